// Package cli implements the evalctl commands: query planning, indexing,
// labeling sheets, offline evaluation and run log inspection.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/safety-report-retrieval/internal/bootstrap"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
)

// Opener builds the retrieval app for one command invocation.
type Opener func(ctx context.Context, opts ...bootstrap.Option) (*bootstrap.App, error)

// PlannerOpener builds query planning and K sizing without any backend.
type PlannerOpener func() (ports.QueryPlanner, error)

// NewRootCommand wires every evalctl subcommand. queries and dynamic-k only
// use plan; the rest open the full app.
func NewRootCommand(open Opener, plan PlannerOpener) *cobra.Command {
	root := &cobra.Command{
		Use:   "evalctl",
		Short: "Retrieval evaluation toolkit for safety status reports",
		Long: `evalctl inspects and evaluates the stakeholder retrieval core.

Example usage:
  evalctl queries --stakeholder cxo            # Show the enhanced query plan
  evalctl dynamic-k --stakeholder cxo --total 800
  evalctl export --queries q.json --out sheet.xlsx
  evalctl import --in sheet.xlsx --out truth.json
  evalctl evaluate --truth truth.json --k 10`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newQueriesCommand(plan),
		newDynamicKCommand(plan),
		newIndexCommand(open),
		newExportCommand(open),
		newImportCommand(),
		newEvaluateCommand(open),
		newRunsCommand(open),
		newWatchCommand(open),
	)
	return root
}

// withApp opens the app, runs fn and always closes it.
func withApp(cmd *cobra.Command, open Opener, fn func(*bootstrap.App) error, opts ...bootstrap.Option) error {
	app, err := open(cmd.Context(), opts...)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func readJSONFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := writeJSON(f, v); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
