package cmd

import (
	"github.com/spigell/cvsift/internal/ai"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pingAICmd = &cobra.Command{
	Use:   "ping-ai",
	Short: "Check that the configured AI provider answers",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		env := setup(ctx)
		defer env.close()

		provider := env.provider(ctx)
		name, model := ai.Describe(provider)

		pinger, ok := provider.(ai.Pinger)
		if !ok {
			env.logger.Fatal("provider does not support connection checks", zap.String("provider", name))
		}

		if err := pinger.Ping(ctx); err != nil {
			env.logger.Fatal("ai provider is not reachable", zap.Error(err), zap.String("provider", name), zap.String("model", model))
		}

		env.logger.Info("ai provider is reachable", zap.String("provider", name), zap.String("model", model))
	},
}

func init() {
	rootCmd.AddCommand(pingAICmd)
}
