package cmd

import (
	"strings"

	"github.com/spigell/cvsift/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var applicationsCmd = &cobra.Command{
	Use:   "applications",
	Short: "List applications of a job position or the spontaneous ones",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		env := setup(ctx)
		defer env.close()

		var (
			apps []store.Application
			err  error
		)

		positionID, _ := cmd.Flags().GetInt64("position")
		resumeID, _ := cmd.Flags().GetInt64("resume")
		switch {
		case resumeID > 0:
			var found *store.Application
			found, err = env.db.ApplicationForResume(ctx, env.team, resumeID)
			if found != nil {
				apps = append(apps, *found)
			}
		case positionID > 0:
			apps, err = env.db.PositionApplications(ctx, env.team, positionID)
		default:
			apps, err = env.db.SpontaneousApplications(ctx, env.team)
		}
		if err != nil {
			env.logger.Fatal("listing applications", zap.Error(err))
		}

		for _, a := range apps {
			fields := []zap.Field{
				zap.Int64("application_id", a.ID),
				zap.Int64("resume_id", a.ResumeID),
				zap.String("type", string(a.Type)),
				zap.String("status", string(a.Status)),
				zap.Time("applied_at", a.AppliedAt),
			}
			if a.JobPositionID != nil {
				fields = append(fields, zap.Int64("position_id", *a.JobPositionID))
			}
			if a.ReviewNotes != nil {
				fields = append(fields, zap.String("notes", *a.ReviewNotes))
			}
			env.logger.Info("application", fields...)
		}
		env.logger.Info("applications", zap.Int("count", len(apps)))
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Move an application to another status",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		env := setup(ctx)
		defer env.close()

		applicationID, _ := cmd.Flags().GetInt64("id")
		raw, _ := cmd.Flags().GetString("status")
		notes, _ := cmd.Flags().GetString("notes")

		status := store.ApplicationStatus(strings.ToLower(strings.TrimSpace(raw)))
		if err := env.db.UpdateApplicationStatus(ctx, env.team, applicationID, status, notes); err != nil {
			env.logger.Fatal("updating application", zap.Error(err), zap.Int64("application_id", applicationID))
		}

		app, err := env.db.GetApplication(ctx, env.team, applicationID)
		if err != nil {
			env.logger.Fatal("reading application", zap.Error(err), zap.Int64("application_id", applicationID))
		}

		env.logger.Info("application updated",
			zap.Int64("application_id", app.ID),
			zap.String("status", string(app.Status)),
		)
	},
}

func init() {
	rootCmd.AddCommand(applicationsCmd)
	applicationsCmd.AddCommand(reviewCmd)

	applicationsCmd.Flags().Int64P("position", "p", 0, "list applications of this job position")
	applicationsCmd.Flags().Int64("resume", 0, "show the application of this resume")

	reviewCmd.Flags().Int64("id", 0, "application id")
	reviewCmd.Flags().String("status", "", "new status: pending, reviewing, interview, rejected or accepted")
	reviewCmd.Flags().String("notes", "", "review notes")
}
