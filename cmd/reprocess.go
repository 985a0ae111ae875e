package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fernandes-group/tenderscan/internal/discovery"
	"github.com/fernandes-group/tenderscan/internal/store"
	"github.com/fernandes-group/tenderscan/pkg/pncp"
)

var reprocessLimit int

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Finish classification of saved tenders that lack one",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		cache := loadCache()
		engine := discovery.New(pncp.NewClient(cfg.PNCP), st, cache, cfg.Discovery)
		processed, err := engine.ProcessUnprocessed(ctx, reprocessLimit)
		if err != nil {
			return err
		}

		if cfg.Cache.SaveAfterRun && processed > 0 {
			if err := cache.Save(cfg.Cache.SnapshotPath); err != nil {
				return err
			}
		}
		fmt.Printf("reprocessed %d tenders\n", processed)
		return nil
	},
}

func init() {
	reprocessCmd.Flags().IntVar(&reprocessLimit, "limit", 500, "maximum tenders to reprocess")
	rootCmd.AddCommand(reprocessCmd)
}
