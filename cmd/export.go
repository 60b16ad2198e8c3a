package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heritage-maps/gedmap-cli/internal/addrbook"
	"github.com/heritage-maps/gedmap-cli/internal/export"
	"github.com/heritage-maps/gedmap-cli/internal/geocache"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cached locations as GeoJSON or XLSX",
	Long: `Exports every positive cache row.

Examples:
  gedmap-cli export --format geojson --output places.geojson
  gedmap-cli export --format xlsx --output places.xlsx`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		cache := geocache.Open(cfg.Cache.File, cfg.Cache.AltAddrFile)
		book := bookFromCache(cache)
		zap.L().Info("cache loaded for export",
			zap.Int("rows", cache.Len()),
			zap.Int("addresses", book.Len()),
		)

		switch exportFormat {
		case "geojson":
			out := os.Stdout
			if exportOutput != "" {
				f, err := os.Create(exportOutput)
				if err != nil {
					return eris.Wrapf(err, "create %s", exportOutput)
				}
				defer f.Close()
				out = f
			}
			features, skipped, err := export.WriteGeoJSON(out, book)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %d features (%d places without coordinates skipped)\n", features, skipped)
			return nil

		case "xlsx":
			if exportOutput == "" {
				return eris.New("--output is required for xlsx")
			}
			if err := export.WriteWorkbook(exportOutput, book); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %d places to %s\n", book.Len(), exportOutput)
			return nil

		default:
			return eris.Errorf("unknown format %q (want geojson or xlsx)", exportFormat)
		}
	},
}

// bookFromCache rebuilds an address book from the cache's non-negative rows.
func bookFromCache(cache *geocache.Cache) *addrbook.Book {
	book := addrbook.New(false)
	cache.Each(func(_ string, e *geocache.Entry) {
		if e.NoResult {
			return
		}
		if e.Address == "" {
			return
		}
		book.Put(e.Address, e.Location())
	})
	return book
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "geojson", "output format: geojson or xlsx")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output file (geojson defaults to stdout)")
	rootCmd.AddCommand(exportCmd)
}
