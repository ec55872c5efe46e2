package cmd

import (
	"time"

	"github.com/spigell/cvsift/internal/ingest"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull new CV attachments from a connected mailbox",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		env := setup(ctx)
		defer env.close()

		flags := cmd.Flags()
		accountID, _ := flags.GetInt64("account")

		opts := ingest.DefaultOptions()
		opts.MaxResults, _ = flags.GetInt64("max-results")
		opts.Query, _ = flags.GetString("query")
		opts.FilterThreshold, _ = flags.GetInt("threshold")
		if noFilter, _ := flags.GetBool("no-filter"); noFilter {
			opts.SmartFiltering = false
		}

		if raw, _ := flags.GetString("since"); raw != "" {
			since, err := parseDate(raw, time.Now())
			if err != nil {
				env.logger.Fatal("parsing since date", zap.Error(err))
			}
			opts.Since = since
		}

		engine := env.ingester(ctx, env.provider(ctx))

		result, err := engine.Sync(ctx, accountID, env.team, opts)
		if err != nil {
			env.logger.Fatal("syncing mailbox", zap.Error(err), zap.Int64("account_id", accountID))
		}

		for _, msg := range result.Errors {
			env.logger.Warn("sync error", zap.String("error", msg))
		}

		env.logger.Info("sync finished",
			zap.Int("messages", result.TotalMessages),
			zap.Int("pdf_attachments", result.PDFAttachments),
			zap.Int("new_resumes", result.NewResumes),
			zap.Int("filtered_out", result.FilteredOut),
			zap.Int("errors", len(result.Errors)),
		)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	flags := syncCmd.Flags()
	flags.Int64P("account", "a", 1, "mail account to sync")
	flags.String("since", "", "only messages received on or after this date (YYYY-MM-DD)")
	flags.Int64("max-results", ingest.DefaultMaxResults, "maximum number of messages to look at")
	flags.String("query", "", "raw mailbox search query, replaces the built one")
	flags.Int("threshold", ingest.DefaultOptions().FilterThreshold, "minimum attachment score to download")
	flags.Bool("no-filter", false, "download every PDF attachment without scoring it")
}
