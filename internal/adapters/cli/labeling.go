package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/safety-report-retrieval/internal/bootstrap"
	"github.com/kirillkom/safety-report-retrieval/internal/config"
	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
	"github.com/kirillkom/safety-report-retrieval/internal/core/usecase"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/chunking"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/labeling"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/reports"
)

func newIndexCommand(open Opener) *cobra.Command {
	var file, dir, namespace string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Upsert chunks into the configured vector store",
		Long: `Upsert chunks into the configured vector store, either from a JSON
snapshot (--file) or by chunking the .md and .txt reports under --dir into
--namespace.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(app *bootstrap.App) error {
				var chunks []domain.IndexedChunk
				if file != "" {
					if err := readJSONFile(file, &chunks); err != nil {
						return err
					}
				} else {
					var err error
					chunks, err = chunkReports(dir, namespace, app.Config)
					if err != nil {
						return err
					}
				}
				if err := app.Index(cmd.Context(), chunks); err != nil {
					return fmt.Errorf("index chunks: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks into %s\n", len(chunks), app.Config.VectorStore)
				return nil
			}, bootstrap.WithoutRunRecording())
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "snapshot JSON: [{id, namespace, file_name, content, vector?, sparse?}]")
	cmd.Flags().StringVar(&dir, "dir", "", "directory of report files to chunk")
	cmd.Flags().StringVar(&namespace, "namespace", "", "target namespace for --dir, e.g. cxo or cxo_user1")
	cmd.MarkFlagsOneRequired("file", "dir")
	cmd.MarkFlagsMutuallyExclusive("file", "dir")
	cmd.MarkFlagsRequiredTogether("dir", "namespace")
	return cmd
}

func chunkReports(dir, namespace string, cfg config.Config) ([]domain.IndexedChunk, error) {
	loader, err := reports.New(dir)
	if err != nil {
		return nil, err
	}
	files, err := loader.Load()
	if err != nil {
		return nil, err
	}
	splitter := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	var chunks []domain.IndexedChunk
	for _, f := range files {
		chunks = append(chunks, splitter.Chunks(namespace, f.Name, f.Text)...)
	}
	return chunks, nil
}

func newExportCommand(open Opener) *cobra.Command {
	var queriesPath, outPath, stakeholdersPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run retrieval for a query set and write a labeling sheet",
		Long: `Run retrieval for every query and write one sheet row per fused chunk.
The relevance_score column is left blank for reviewers (0-3).
The output format follows the extension of --out (.csv or .xlsx).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := labeling.Format(outPath); err != nil {
				return err
			}
			var queries []domain.GroundTruthQuery
			if err := readJSONFile(queriesPath, &queries); err != nil {
				return err
			}
			resolve, err := loadStakeholders(stakeholdersPath)
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(app *bootstrap.App) error {
				var rows []labeling.Row
				for _, q := range queries {
					st := usecase.StakeholderForQuery(resolve(q.StakeholderID), q.Query)
					res := app.Search.Search(cmd.Context(), ports.SearchRequest{Stakeholder: st})
					if res.Metadata.Degraded != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "query %s degraded: %s\n", q.QueryID, res.Metadata.Degraded)
					}
					rows = append(rows, labeling.BuildRows(q, res.Documents)...)
				}
				if err := labeling.WriteFile(outPath, rows); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows for %d queries to %s\n", len(rows), len(queries), outPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&queriesPath, "queries", "", "query set JSON: [{queryId, query, stakeholderId}]")
	cmd.Flags().StringVar(&outPath, "out", "", "output sheet (.csv or .xlsx)")
	cmd.Flags().StringVar(&stakeholdersPath, "stakeholders", "", "stakeholder registry YAML")
	_ = cmd.MarkFlagRequired("queries")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newImportCommand() *cobra.Command {
	var inPath, outPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Convert a labeled sheet into ground-truth JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := labeling.ReadFile(inPath)
			if err != nil {
				return err
			}
			truth, skipped := labeling.ToGroundTruth(rows)
			if outPath == "" {
				if err := writeJSON(cmd.OutOrStdout(), truth); err != nil {
					return err
				}
			} else if err := writeJSONFile(outPath, truth); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "imported %d queries, skipped %d rows without a valid score\n", len(truth), skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "labeled sheet (.csv or .xlsx)")
	cmd.Flags().StringVar(&outPath, "out", "", "ground-truth JSON (default stdout)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
