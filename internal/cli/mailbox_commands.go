package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
	"smart_mailbox/infra/middleware"
)

func newProcessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "process <file.eml>...",
		Short: "Tag a batch of .eml files",
		Long: `Parses, classifies and stores each file in order. Files that fail are
reported and skipped; Ctrl-C stops after the file in flight.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := a.open(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			var progress out.ProgressPublisher = newProgressPrinter(w)
			if a.asJSON {
				progress = nil
			}
			if deps.RedisProgress != nil {
				progress = out.MultiProgress{progress, deps.RedisProgress}
			}

			summary, err := deps.Pipeline.ProcessFiles(ctx, args, progress)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(w, summary)
			}
			printSummary(w, summary)
			return nil
		},
	}
}

func newSweepCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Retry classification of stored emails that were never tagged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := a.open(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			summary, err := deps.Pipeline.ReanalyzeUnprocessed(ctx, limit, newProgressPrinter(w))
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(w, summary)
			}
			printSummary(w, summary)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum emails to retry (0 = all)")
	return cmd
}

func newReanalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reanalyze <email-id>",
		Short: "Classify one stored email again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			result, err := deps.Pipeline.Reanalyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.asJSON {
				return a.printJSON(w, result)
			}
			fmt.Fprintf(w, "%s tagged %v\n", result.EmailID, result.Tags)
			if result.ReplyID != "" {
				fmt.Fprintf(w, "reply drafted: %s\n", result.ReplyID)
			}
			if result.ReplyError != "" {
				fmt.Fprintf(w, "reply failed: %s\n", result.ReplyError)
			}
			return nil
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the model server connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			ok, models := deps.Pipeline.CheckConnection(cmd.Context())
			w := cmd.OutOrStdout()
			if a.asJSON {
				if models == nil {
					models = []string{}
				}
				return a.printJSON(w, map[string]any{"connected": ok, "models": models})
			}
			settings := deps.Settings.Get()
			if !ok {
				fmt.Fprintf(w, "model server %s is not reachable\n", settings.ServerURL)
				return domain.ErrModelUnavailable
			}
			fmt.Fprintf(w, "model server %s is up, %d model(s) installed\n", settings.ServerURL, len(models))
			for _, m := range models {
				marker := " "
				if m == settings.Model || m == settings.Model+":latest" {
					marker = "*"
				}
				fmt.Fprintf(w, "  %s %s\n", marker, m)
			}
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show processing statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := deps.Pipeline.Stats(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.asJSON {
				return a.printJSON(w, stats)
			}
			fmt.Fprintf(w, "emails:      %d\n", stats.Total)
			fmt.Fprintf(w, "tagged:      %d (%.1f%%)\n", stats.Processed, stats.ProcessingRate)
			fmt.Fprintf(w, "untagged:    %d\n", stats.Unprocessed)
			fmt.Fprintf(w, "replies:     %d\n", stats.Replies)
			tags := make([]string, 0, len(stats.TagCounts))
			for tag := range stats.TagCounts {
				tags = append(tags, tag)
			}
			sort.Strings(tags)
			for _, tag := range tags {
				fmt.Fprintf(w, "  %-12s %d\n", tag, stats.TagCounts[tag])
			}
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var filter domain.EmailFilter
	var untagged bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored emails, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if untagged {
				f := false
				filter.AIProcessed = &f
			}
			emails, err := deps.Pipeline.ListEmails(cmd.Context(), &filter)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.asJSON {
				return a.printJSON(w, emails)
			}
			if len(emails) == 0 {
				fmt.Fprintln(w, "no emails")
			}
			for _, e := range emails {
				printEmail(w, e)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "substring to search for")
	cmd.Flags().StringVar(&filter.Tag, "tag", "", "only emails with this tag")
	cmd.Flags().BoolVar(&untagged, "untagged", false, "only emails that were never tagged")
	cmd.Flags().BoolVar(&filter.IncludeGenerated, "include-replies", false, "include generated replies")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum emails to show")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "emails to skip")
	return cmd
}

func newRepliesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replies <email-id>",
		Short: "Show drafted replies for an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			replies, err := deps.Pipeline.Replies(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.asJSON {
				return a.printJSON(w, replies)
			}
			if len(replies) == 0 {
				fmt.Fprintln(w, "no replies")
			}
			for _, r := range replies {
				fmt.Fprintf(w, "--- %s (%s)\nTo: %s\nSubject: %s\n\n%s\n\n",
					r.ID, r.DateSent.Format(time.RFC3339), r.DisplayRecipient(), r.Subject, r.BodyText)
			}
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <email-id>...",
		Short: "Delete stored emails",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			result, err := deps.Pipeline.DeleteEmails(cmd.Context(), args)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.asJSON {
				return a.printJSON(w, result)
			}
			fmt.Fprintf(w, "deleted %d, failed %d\n", result.Succeeded, result.Failed)
			for _, id := range result.FailedIDs {
				fmt.Fprintf(w, "  not found: %s\n", id)
			}
			return nil
		},
	}
}

func newTokenCmd(a *app) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.JWTSecret == "" {
				return fmt.Errorf("API_JWT_SECRET is not set; the API accepts requests without a token")
			}
			token, err := middleware.IssueToken(a.cfg.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "desktop", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
