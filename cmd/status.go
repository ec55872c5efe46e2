package cmd

import (
	"github.com/spigell/cvsift/internal/ingest"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync state of a mailbox and resume counts",
	Run: func(cmd *cobra.Command, _ []string) {
		env := setup(cmd.Context())
		defer env.close()

		accountID, _ := cmd.Flags().GetInt64("account")

		// Reading the status needs neither the mailbox nor the detector.
		status, err := ingest.NewEngine(nil, env.db, nil, nil, env.logger).Status(cmd.Context(), accountID, env.team)
		if err != nil {
			env.logger.Fatal("getting sync status", zap.Error(err), zap.Int64("account_id", accountID))
		}

		fields := []zap.Field{
			zap.String("email", status.Email),
			zap.Int("total", status.Total),
			zap.Int("pending", status.Pending),
			zap.Int("processing", status.Processing),
			zap.Int("processed", status.Processed),
			zap.Int("rejected", status.Rejected),
			zap.Int("error", status.Errored),
		}
		if status.LastSyncAt != nil {
			fields = append(fields, zap.Time("last_sync_at", *status.LastSyncAt))
		}
		if status.SyncFromDate != nil {
			fields = append(fields, zap.String("sync_from_date", status.SyncFromDate.Format(dateLayout)))
		}

		env.logger.Info("sync status", fields...)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Int64P("account", "a", 1, "mail account to report on")
}
