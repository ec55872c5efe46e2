package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Run: func(cmd *cobra.Command, _ []string) {
		env := setup(cmd.Context())
		defer env.close()

		if err := env.db.Migrate(cmd.Context()); err != nil {
			env.logger.Fatal("migrating the database", zap.Error(err))
		}

		env.logger.Info("database is up to date", zap.String("driver", string(env.db.Dialect())))
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
