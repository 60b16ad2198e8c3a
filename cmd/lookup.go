package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var lookupJSON bool

var lookupCmd = &cobra.Command{
	Use:   "lookup <place>",
	Short: "Resolve a single place name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		place := strings.Join(args, " ")

		env, err := initResolver("lookup")
		if err != nil {
			return err
		}

		loc := env.Resolver.LookupLocation(cmd.Context(), place)

		if err := env.Cache.Save(); err != nil {
			zap.L().Warn("cache save", zap.Error(err))
		}

		if loc == nil || loc.Coord == nil {
			return eris.Errorf("no location found for %q", place)
		}

		if lookupJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(loc)
		}

		fmt.Printf("%s\n", place)
		fmt.Printf("  coordinates: %.5f, %.5f\n", loc.Coord.Lat, loc.Coord.Lon)
		if loc.CountryName != "" {
			fmt.Printf("  country:     %s (%s)\n", loc.CountryName, loc.CountryCode)
		}
		if loc.Continent != "" {
			fmt.Printf("  continent:   %s\n", loc.Continent)
		}
		if loc.Address != "" && loc.Address != place {
			fmt.Printf("  matched:     %s\n", loc.Address)
		}
		return nil
	},
}

func init() {
	lookupCmd.Flags().BoolVar(&lookupJSON, "json", false, "print the full location as JSON")
	rootCmd.AddCommand(lookupCmd)
}
