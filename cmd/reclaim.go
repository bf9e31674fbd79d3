package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewReclaimCommand 立即执行一次过期回收
func NewReclaimCommand(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Delete files that have not been downloaded for a number of days",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = cfg.Retention.ThresholdDays
			}
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.files.ReclaimStale(cmd.Context(), days)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d of %d files (%d failed), freed %s in %s\n",
				result.Reclaimed, result.Candidates, result.Failed,
				humanize.IBytes(uint64(result.FreedBytes)), result.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention threshold in days (default: retention.threshold_days)")
	return cmd
}
