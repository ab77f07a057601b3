package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/safety-report-retrieval/internal/bootstrap"
	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	natsqueue "github.com/kirillkom/safety-report-retrieval/internal/infrastructure/queue/nats"
)

func newRunsCommand(open Opener) *cobra.Command {
	var (
		threshold float64
		limit     int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs whose K achievement is below a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if threshold < 0 || threshold > 1 {
				return domain.WrapError(domain.ErrInvalidInput, "runs", fmt.Errorf("threshold must be within [0,1], got %v", threshold))
			}
			return withApp(cmd, open, func(app *bootstrap.App) error {
				if app.Runs == nil {
					return domain.WrapError(domain.ErrUnavailable, "runs", errors.New("run log disabled, set POSTGRES_DSN"))
				}
				runs, err := app.Runs.ListLowAchievement(cmd.Context(), threshold, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), runs)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "CREATED\tSTAKEHOLDER\tNAMESPACE\tK\tRETURNED\tRATE\tDEGRADED")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.2f\t%s\n",
						r.CreatedAt.Format(time.RFC3339), r.StakeholderID, r.Namespace, r.DynamicK, r.Returned, r.AchievementRate, r.Degraded)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "achievement rate threshold (0-1)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newWatchCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream retrieval.completed events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(app *bootstrap.App) error {
				if app.Events == nil {
					return domain.WrapError(domain.ErrUnavailable, "watch", errors.New("events disabled, set NATS_URL"))
				}
				out := cmd.OutOrStdout()
				return app.Events.SubscribeRetrievalCompleted(cmd.Context(), func(_ context.Context, ev natsqueue.RunEvent) error {
					_, err := fmt.Fprintf(out, "%s run=%s stakeholder=%s k=%d returned=%d rate=%.2f degraded=%q\n",
						ev.OccurredAt.Format(time.RFC3339), ev.Run.ID, ev.Run.StakeholderID,
						ev.Run.DynamicK, ev.Run.Returned, ev.Run.AchievementRate, ev.Run.Degraded)
					return err
				})
			})
		},
	}
	return cmd
}
