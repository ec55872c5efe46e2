package cmd

import (
	"errors"

	"github.com/spigell/cvsift/internal/classifier"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Classify pending resumes and extract candidate profiles",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		env := setup(ctx)
		defer env.close()

		processor := env.processor(env.provider(ctx))

		resumeID, _ := cmd.Flags().GetInt64("id")
		if resumeID == 0 {
			result, err := processor.ProcessAllPending(ctx, env.team)
			if err != nil {
				env.logger.Fatal("processing pending resumes", zap.Error(err))
			}
			env.logger.Info("pending resumes processed",
				zap.Int("processed", result.Processed),
				zap.Int("errors", result.Errors),
			)
			return
		}

		outcome, err := processor.ProcessByID(ctx, env.team, resumeID)
		if errors.Is(err, classifier.ErrNotPending) {
			env.logger.Info("skipping resume", zap.Int64("resume_id", resumeID), zap.String("reason", err.Error()))
			return
		}
		if err != nil {
			env.logger.Fatal("processing resume", zap.Error(err), zap.Int64("resume_id", resumeID))
		}

		fields := []zap.Field{
			zap.Int64("resume_id", outcome.ResumeID),
			zap.String("status", string(outcome.Status)),
			zap.Int("confidence", outcome.Confidence),
			zap.String("reason", outcome.Reason),
		}
		if outcome.CandidateID != nil {
			fields = append(fields, zap.Int64("candidate_id", *outcome.CandidateID))
		}
		if outcome.Error != "" {
			fields = append(fields, zap.String("error", outcome.Error))
		}
		env.logger.Info("resume processed", fields...)
	},
}

var resetErrorsCmd = &cobra.Command{
	Use:   "reset-errors",
	Short: "Put failed resumes back into the pending queue",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		env := setup(ctx)
		defer env.close()

		includeStuck, _ := cmd.Flags().GetBool("include-stuck")

		// Resetting only touches the store, no provider is needed.
		reset, err := classifier.NewProcessor(env.db, nil, nil, nil, env.logger, 0).ResetErrored(ctx, env.team, includeStuck)
		if err != nil {
			env.logger.Fatal("resetting resumes", zap.Error(err))
		}

		env.logger.Info("resumes reset to pending", zap.Int64("count", reset), zap.Bool("include_stuck", includeStuck))
	},
}

func init() {
	rootCmd.AddCommand(processCmd, resetErrorsCmd)

	processCmd.Flags().Int64("id", 0, "process a single resume instead of every pending one")
	resetErrorsCmd.Flags().Bool("include-stuck", false, "also reset resumes left in processing")
}
