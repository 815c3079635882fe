package handlers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"newsbundle/internal/config"
	"newsbundle/internal/logger"
	"newsbundle/internal/store"
)

// NewRunsCmd creates the runs command for inspecting stored clustering runs
func NewRunsCmd() *cobra.Command {
	var limit int
	var asJSON bool

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored clustering runs",
		Long:  `List clustering runs saved with "cluster --save", most recent first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(config.Get(), func(s *store.Store) error {
				return runRunsList(cmd.Context(), s, limit, asJSON, cmd.OutOrStdout())
			})
		},
	}
	runsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	runsCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print as JSON")

	runsCmd.AddCommand(newRunsShowCmd(&asJSON))
	runsCmd.AddCommand(newRunsDeleteCmd())

	return runsCmd
}

func newRunsShowCmd(asJSON *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the topics of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(config.Get(), func(s *store.Store) error {
				return runRunsShow(cmd.Context(), s, args[0], *asJSON, cmd.OutOrStdout())
			})
		},
	}
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(config.Get(), func(s *store.Store) error {
				return runRunsDelete(cmd.Context(), s, args[0], cmd.OutOrStdout())
			})
		},
	}
}

func withStore(cfg *config.Config, fn func(*store.Store) error) error {
	runStore, err := store.NewStore(cfg.Store.Directory)
	if err != nil {
		return errors.Wrap(err, "failed to initialize run store")
	}
	defer func() {
		if err := runStore.Close(); err != nil {
			logger.Error("Failed to close run store", err)
		}
	}()
	return fn(runStore)
}

func runRunsList(ctx context.Context, s *store.Store, limit int, asJSON bool, out io.Writer) error {
	runs, err := s.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if asJSON {
		if runs == nil {
			runs = []store.RunSummary{}
		}
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No stored runs. Use \"newsbundle cluster <file> --save\" to store one.")
		return nil
	}

	fmt.Fprintln(out, headingStyle.Render("📊 Stored runs"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tSOURCE\tARTICLES\tCLUSTERS\tNOISE\tSCORE\tPARAMS")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%.3f\t%s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Source,
			r.NumArticles, r.NumClusters, r.NumNoise, r.ValidityScore, r.Params)
	}
	return w.Flush()
}

func runRunsShow(ctx context.Context, s *store.Store, id string, asJSON bool, out io.Writer) error {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, run)
	}

	fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("📄 Run %s", run.ID)))
	fmt.Fprintf(out, "   Created: %s | Source: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"), run.Source)
	fmt.Fprintf(out, "   Params: %s | Validity score: %.3f | %d clusters, %d noise\n\n",
		run.Params, run.ValidityScore, run.NumClusters, run.NumNoise)

	for i, topic := range run.Topics {
		fmt.Fprintf(out, "%d. %s (%d articles, %d tokens)\n", i+1, topic.Label, len(topic.ArticleIDs), topic.TokenCount)
		fmt.Fprintf(out, "   %s\n", strings.Join(topic.ArticleIDs, ", "))
	}
	if len(run.NoiseArticleIDs) > 0 {
		fmt.Fprintf(out, "🔇 Unclustered: %s\n", strings.Join(run.NoiseArticleIDs, ", "))
	}
	return nil
}

func runRunsDelete(ctx context.Context, s *store.Store, id string, out io.Writer) error {
	if _, err := s.GetRun(ctx, id); err != nil {
		return err
	}
	if err := s.DeleteRun(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Deleted run %s\n", id)
	return nil
}
