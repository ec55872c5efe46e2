package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spigell/cvsift/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage connected mailboxes",
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Connect a mailbox to the team",
	Run: func(cmd *cobra.Command, _ []string) {
		env := setup(cmd.Context())
		defer env.close()

		email, _ := cmd.Flags().GetString("email")
		if strings.TrimSpace(email) == "" {
			env.logger.Fatal("email is required")
		}

		acc := &store.MailAccount{TeamID: env.team, Email: strings.TrimSpace(email), Active: true}

		raw, _ := cmd.Flags().GetString("sync-from")
		if raw != "" {
			since, err := parseDate(raw, time.Now())
			if err != nil {
				env.logger.Fatal("parsing sync-from date", zap.Error(err))
			}
			acc.SyncFromDate = &since
		}

		id, err := env.db.CreateAccount(cmd.Context(), acc)
		if err != nil {
			env.logger.Fatal("creating mail account", zap.Error(err))
		}

		env.logger.Info("mail account connected", zap.Int64("account_id", id), zap.String("email", acc.Email))
	},
}

// parseDate parses a YYYY-MM-DD date and rejects dates after now.
func parseDate(raw string, now time.Time) (time.Time, error) {
	date, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be in YYYY-MM-DD format", raw)
	}
	if date.After(now) {
		return time.Time{}, fmt.Errorf("date %s is in the future", raw)
	}
	return date, nil
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountAddCmd)

	accountAddCmd.Flags().String("email", "", "mailbox address")
	accountAddCmd.Flags().String("sync-from", "", "only sync messages received on or after this date (YYYY-MM-DD)")
}
