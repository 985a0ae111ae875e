package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fernandes-group/tenderscan/internal/discovery"
	"github.com/fernandes-group/tenderscan/internal/model"
	"github.com/fernandes-group/tenderscan/internal/store"
	"github.com/fernandes-group/tenderscan/pkg/notion"
	"github.com/fernandes-group/tenderscan/pkg/pncp"
)

var (
	discoverDays   int
	discoverFrom   string
	discoverTo     string
	discoverStates []string
	exportNotion   bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run the discovery funnel over a publication date window",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&discoverDays, "days", 7, "scan the last N days (ignored when --from is set)")
	discoverCmd.Flags().StringVar(&discoverFrom, "from", "", "window start, YYYY-MM-DD")
	discoverCmd.Flags().StringVar(&discoverTo, "to", "", "window end, YYYY-MM-DD (default today)")
	discoverCmd.Flags().StringSliceVar(&discoverStates, "states", nil, "UF codes to scan, one partition each (default nationwide)")
	discoverCmd.Flags().BoolVar(&exportNotion, "export-notion", false, "export approved tenders to Notion")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	from, to, err := resolveWindow()
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	cache := loadCache()
	engine := discovery.New(pncp.NewClient(cfg.PNCP), st, cache, cfg.Discovery)

	partitions := buildPartitions(from, to, discoverStates)
	var approved []model.Tender
	for i, p := range partitions {
		label := p.State
		if label == "" {
			label = "all"
		}
		zap.L().Info("running partition",
			zap.String("state", label),
			zap.Time("from", p.DateFrom),
			zap.Time("to", p.DateTo))

		result, err := engine.Run(ctx, p)
		if err != nil {
			return eris.Wrapf(err, "cmd: partition %s", label)
		}
		approved = append(approved, result.Approved...)
		fmt.Print(result.Metrics.Summary())

		// Per-run tender/item caches do not help across partitions.
		if i < len(partitions)-1 {
			cache.ClearEphemeral()
		}
	}

	if cfg.Cache.SaveAfterRun {
		if err := cache.Save(cfg.Cache.SnapshotPath); err != nil {
			zap.L().Warn("cache snapshot save failed", zap.Error(err))
		}
	}

	if exportNotion && len(approved) > 0 {
		client, err := notion.NewClient(cfg.Notion)
		if err != nil {
			return err
		}
		if _, err := client.ExportApproved(ctx, approved); err != nil {
			return err
		}
	}

	fmt.Printf("approved %d tenders across %d partition(s)\n", len(approved), len(partitions))
	return nil
}

func resolveWindow() (time.Time, time.Time, error) {
	to := time.Now()
	if discoverTo != "" {
		parsed, err := time.Parse("2006-01-02", discoverTo)
		if err != nil {
			return time.Time{}, time.Time{}, eris.Wrap(err, "cmd: parse --to")
		}
		to = parsed
	}

	var from time.Time
	if discoverFrom != "" {
		parsed, err := time.Parse("2006-01-02", discoverFrom)
		if err != nil {
			return time.Time{}, time.Time{}, eris.Wrap(err, "cmd: parse --from")
		}
		from = parsed
	} else {
		from = to.AddDate(0, 0, -discoverDays)
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, eris.New("cmd: window start after end")
	}
	return from, to, nil
}

func buildPartitions(from, to time.Time, states []string) []pncp.Partition {
	if len(states) == 0 {
		return []pncp.Partition{{DateFrom: from, DateTo: to}}
	}
	partitions := make([]pncp.Partition, 0, len(states))
	for _, state := range states {
		partitions = append(partitions, pncp.Partition{
			DateFrom: from,
			DateTo:   to,
			State:    strings.ToUpper(strings.TrimSpace(state)),
		})
	}
	return partitions
}
