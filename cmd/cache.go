package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heritage-maps/gedmap-cli/internal/geocache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the geocode cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print cache row counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}

		cache := geocache.Open(cfg.Cache.File, cfg.Cache.AltAddrFile)
		positive, negative, expired := cache.Stats()

		fmt.Printf("Cache file:        %s\n", cfg.Cache.File)
		fmt.Printf("Rows:              %d\n", cache.Len())
		fmt.Printf("Located:           %d\n", positive)
		fmt.Printf("Known misses:      %d\n", negative)
		fmt.Printf("Expired misses:    %d\n", expired)
		if cfg.Cache.AltAddrFile != "" {
			fmt.Printf("Override file:     %s\n", cfg.Cache.AltAddrFile)
		}
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	rootCmd.AddCommand(cacheCmd)
}
