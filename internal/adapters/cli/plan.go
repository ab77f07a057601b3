package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

type stakeholderFlags struct {
	id       string
	role     string
	concerns []string
}

func (f *stakeholderFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "stakeholder", "", "stakeholder id (predefined or custom_*)")
	cmd.Flags().StringVar(&f.role, "role", "", "role description")
	cmd.Flags().StringArrayVar(&f.concerns, "concern", nil, "concern, repeatable")
	_ = cmd.MarkFlagRequired("stakeholder")
}

func (f *stakeholderFlags) stakeholder() (domain.Stakeholder, error) {
	if strings.TrimSpace(f.id) == "" {
		return domain.Stakeholder{}, domain.WrapError(domain.ErrInvalidInput, "stakeholder flag", errors.New("stakeholder id is empty"))
	}
	return domain.NewStakeholder(f.id, f.role, f.concerns), nil
}

func newQueriesCommand(open PlannerOpener) *cobra.Command {
	var (
		who        stakeholderFlags
		maxQueries int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Print the enhanced query plan for a stakeholder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := who.stakeholder()
			if err != nil {
				return err
			}
			planner, err := open()
			if err != nil {
				return err
			}
			plan := planner.Plan(st, maxQueries)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), plan)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "category: %s\n", plan.Category)
			for i, q := range plan.Queries {
				fmt.Fprintf(out, "%d\t%.1f\t%s\n", i+1, plan.Weights[i], q)
			}
			return nil
		},
	}
	who.bind(cmd)
	cmd.Flags().IntVar(&maxQueries, "max-queries", 0, "query limit before the English slot (0 uses RETRIEVAL_MAX_QUERIES)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newDynamicKCommand(open PlannerOpener) *cobra.Command {
	var (
		who   stakeholderFlags
		total int
		store string
	)
	cmd := &cobra.Command{
		Use:   "dynamic-k",
		Short: "Compute the result count target for a corpus size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := who.stakeholder()
			if err != nil {
				return err
			}
			if total < 0 {
				return domain.WrapError(domain.ErrInvalidInput, "dynamic-k", fmt.Errorf("total must be >= 0, got %d", total))
			}
			planner, err := open()
			if err != nil {
				return err
			}
			k := planner.DynamicK(total, st, store)
			fmt.Fprintf(cmd.OutOrStdout(), "dynamic_k=%d search_k=%d\n", k, planner.SearchK(k))
			return nil
		},
	}
	who.bind(cmd)
	cmd.Flags().IntVar(&total, "total", 0, "number of chunks in the namespace")
	cmd.Flags().StringVar(&store, "store", "", "store type for the K ceiling (default VECTOR_STORE)")
	return cmd
}
