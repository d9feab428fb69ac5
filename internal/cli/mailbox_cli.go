// Package cli is the command-line host of the tagging pipeline.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"smart_mailbox/config"
	"smart_mailbox/core/domain"
	"smart_mailbox/internal/bootstrap"
)

// app carries state shared by subcommands. Dependencies are opened lazily so
// that "help" and "token" work without storage.
type app struct {
	cfg     *config.Config
	deps    *bootstrap.Dependencies
	cleanup func()
	asJSON  bool
}

func (a *app) open(ctx context.Context) (*bootstrap.Dependencies, error) {
	if a.deps != nil {
		return a.deps, nil
	}
	deps, cleanup, err := bootstrap.NewDependencies(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.deps, a.cleanup = deps, cleanup
	return deps, nil
}

func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup, a.deps = nil, nil
	}
}

// NewRootCmd builds the command tree for cfg.
func NewRootCmd(cfg *config.Config) *cobra.Command {
	cmd, _ := newRootCmd(cfg)
	return cmd
}

func newRootCmd(cfg *config.Config) (*cobra.Command, *app) {
	a := &app{cfg: cfg}

	root := &cobra.Command{
		Use:   "smart-mailbox",
		Short: "AI tagging and reply drafting for .eml files",
		Long: `smart-mailbox classifies local .eml files with a locally hosted language
model, stores them with their tags, and drafts replies for emails that need one.

Examples:
  smart-mailbox process inbox/*.eml   # tag a batch of files
  smart-mailbox sweep                 # retry emails that were never tagged
  smart-mailbox check                 # is the model server reachable?
  smart-mailbox serve                 # run the HTTP API for a desktop UI`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print results as JSON")

	root.AddCommand(
		newProcessCmd(a),
		newReanalyzeCmd(a),
		newSweepCmd(a),
		newCheckCmd(a),
		newStatsCmd(a),
		newListCmd(a),
		newRepliesCmd(a),
		newDeleteCmd(a),
		newServeCmd(a),
		newWatchCmd(a),
		newTokenCmd(a),
	)
	return root, a
}

// Execute runs the CLI and exits non-zero on error.
func Execute(cfg *config.Config) {
	root, a := newRootCmd(cfg)
	err := root.Execute()
	a.close()
	if err != nil {
		os.Exit(1)
	}
}

func (a *app) printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printSummary(w io.Writer, s *domain.BatchSummary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, s.Headline())
	if s.RepliesDrafted > 0 {
		fmt.Fprintf(w, "Replies drafted: %d\n", s.RepliesDrafted)
	}
	fmt.Fprintf(w, "Elapsed: %s\n", s.Duration.Round(1e6))
}

func printEmail(w io.Writer, e *domain.EmailRecord) {
	status := "untagged"
	if e.AIProcessed {
		status = "tagged"
	}
	fmt.Fprintf(w, "%s  %s  %-8s  %s\n", e.ID, e.DateSent.Format("2006-01-02"), status, e.Subject)
	fmt.Fprintf(w, "    from: %s\n", e.DisplaySender())
	if len(e.Tags) > 0 {
		fmt.Fprintf(w, "    tags: %v\n", e.Tags)
	}
}
