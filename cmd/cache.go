package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fernandes-group/tenderscan/internal/orgcache"
)

var purgeExpiredOnly bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the organization reputation cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache composition as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache := loadCache()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cache.Statistics())
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove cache entries and rewrite the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache := loadCache()
		if purgeExpiredOnly {
			purged := cache.PurgeExpired()
			fmt.Printf("purged %d expired entries\n", purged)
		} else {
			cache.Purge()
			fmt.Println("purged all entries")
		}
		return cache.Save(cfg.Cache.SnapshotPath)
	},
}

func init() {
	cachePurgeCmd.Flags().BoolVar(&purgeExpiredOnly, "expired", false, "purge only entries past the max age")
	cacheCmd.AddCommand(cacheStatsCmd, cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

func loadCache() *orgcache.Cache {
	cache := orgcache.New(orgcache.Options{
		MaxAge:       time.Duration(cfg.Cache.MaxAgeDays) * 24 * time.Hour,
		EphemeralTTL: time.Duration(cfg.Cache.EphemeralTTLSecs) * time.Second,
	})
	cache.Load(cfg.Cache.SnapshotPath)
	return cache
}
