package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heritage-maps/gedmap-cli/internal/addrbook"
	"github.com/heritage-maps/gedmap-cli/internal/model"
	"github.com/heritage-maps/gedmap-cli/internal/resolver"
)

var (
	resolvePlacesFile string
	resolveNoHistory  bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a places file against the cache and live geocoder",
	Long: `Reads distinct place names from a places file (one per line), resolves
each through the cache-first pipeline, writes the cache back, and records a
run summary.

Examples:
  # Resolve places, live lookups allowed
  gedmap-cli resolve --places places.txt

  # Resolve from cache only
  GEDMAP_CACHE_CACHE_ONLY=true gedmap-cli resolve --places places.txt`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		places, err := addrbook.ReadPlaces(resolvePlacesFile)
		if err != nil {
			return err
		}
		zap.L().Info("places file read",
			zap.String("file", resolvePlacesFile),
			zap.Int("places", len(places)),
		)

		book := addrbook.NewWithThreshold(cfg.Geo.Fuzzy, cfg.Geo.FuzzyThreshold)
		for _, place := range places {
			book.Add(place, nil)
		}

		progress := resolver.WithProgress(func(place string, current, total int) {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", current, total, place)
		})
		env, err := initResolver("resolve", progress)
		if err != nil {
			return err
		}

		withGeo, withoutGeo, uncached := env.Resolver.Partition(book)
		zap.L().Info("cache partition",
			zap.Int("located", withGeo.Len()),
			zap.Int("negative", withoutGeo.Len()),
			zap.Int("uncached", uncached.Len()),
		)

		var run *model.Run
		if !resolveNoHistory {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			run, err = st.CreateRun(ctx, resolvePlacesFile, book.Len())
			if err != nil {
				return err
			}

			defer func() {
				resolved, unresolved := tally(book)
				counters := env.Resolver.Counters()
				status := model.RunStatusComplete
				if ctx.Err() != nil {
					status = model.RunStatusFailed
				}
				// ctx may already be cancelled; the run record should
				// still be finalized.
				if err := st.CompleteRun(context.Background(), run.ID, status, resolved, unresolved, &model.RunStats{
					LiveLookups:       counters.LiveLookups,
					CacheHits:         counters.CacheHits,
					CacheNegativeHits: counters.CacheNegativeHits,
				}); err != nil {
					zap.L().Warn("record run", zap.Error(err))
				}
			}()
		}

		if err := env.Resolver.ResolveAll(ctx, book); err != nil {
			return eris.Wrap(err, "resolve")
		}

		resolved, unresolved := tally(book)
		counters := env.Resolver.Counters()
		fmt.Printf("Resolved %d of %d places (%d live lookups, %d cache hits, %d known misses)\n",
			resolved, book.Len(), counters.LiveLookups, counters.CacheHits, counters.CacheNegativeHits)
		if unresolved > 0 {
			fmt.Printf("%d places could not be located\n", unresolved)
		}
		return nil
	},
}

// tally counts addresses with and without a resolved coordinate.
func tally(book *addrbook.Book) (resolved, unresolved int) {
	book.Each(func(_ string, loc *model.Location) {
		if loc != nil && loc.Coord != nil && loc.Coord.Valid() {
			resolved++
		} else {
			unresolved++
		}
	})
	return resolved, unresolved
}

func init() {
	resolveCmd.Flags().StringVar(&resolvePlacesFile, "places", "", "places file, one place per line (required)")
	resolveCmd.Flags().BoolVar(&resolveNoHistory, "no-history", false, "skip recording the run in the history database")
	_ = resolveCmd.MarkFlagRequired("places")
	rootCmd.AddCommand(resolveCmd)
}
