package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/safety-report-retrieval/internal/bootstrap"
	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/usecase"
)

func newEvaluateCommand(open Opener) *cobra.Command {
	var (
		truthPath        string
		stakeholdersPath string
		k                int
		asJSON           bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score live retrieval against ground truth",
		Long: `Run every ground-truth query and report Precision@K, Recall@K, F1, MRR,
nDCG@K and relevant-file coverage, per query and macro-averaged.
--k 0 scores each query at its own dynamic K.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var truth []domain.GroundTruthQuery
			if err := readJSONFile(truthPath, &truth); err != nil {
				return err
			}
			resolve, err := loadStakeholders(stakeholdersPath)
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(app *bootstrap.App) error {
				report := usecase.NewEvaluator(app.Search, resolve).Evaluate(cmd.Context(), truth, k)
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				return printReport(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&truthPath, "truth", "", "ground-truth JSON written by import")
	cmd.Flags().StringVar(&stakeholdersPath, "stakeholders", "", "stakeholder registry YAML")
	cmd.Flags().IntVar(&k, "k", 0, "cutoff K (0 uses dynamic K)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("truth")
	return cmd
}

func printReport(w io.Writer, report domain.EvaluationReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUERY\tSTAKEHOLDER\tK\tP@K\tR@K\tF1\tMRR\tNDCG\tFILES")
	for _, q := range append(report.Queries, report.Mean) {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\n",
			q.QueryID, q.StakeholderID, q.K, q.Precision, q.Recall, q.F1, q.MRR, q.NDCG, q.FileCoverage)
	}
	return tw.Flush()
}
