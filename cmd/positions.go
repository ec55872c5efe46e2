package cmd

import (
	"os"
	"strings"

	"github.com/spigell/cvsift/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var positionCmd = &cobra.Command{
	Use:   "position",
	Short: "Manage job positions",
}

var positionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Open a new job position",
	Run: func(cmd *cobra.Command, _ []string) {
		env := setup(cmd.Context())
		defer env.close()

		flags := cmd.Flags()
		title, _ := flags.GetString("title")
		if strings.TrimSpace(title) == "" {
			env.logger.Fatal("title is required")
		}

		p := &store.JobPosition{TeamID: env.team, Title: strings.TrimSpace(title)}
		p.Location, _ = flags.GetString("location")
		p.EmploymentType, _ = flags.GetString("employment-type")

		for flag, dst := range map[string]*string{
			"description":      &p.Description,
			"requirements":     &p.Requirements,
			"responsibilities": &p.Responsibilities,
		} {
			text, err := textOrFile(flags.Lookup(flag).Value.String())
			if err != nil {
				env.logger.Fatal("reading position "+flag, zap.Error(err))
			}
			*dst = text
		}

		if draft, _ := flags.GetBool("draft"); draft {
			p.Status = store.PositionDraft
		}

		id, err := env.db.CreatePosition(cmd.Context(), p)
		if err != nil {
			env.logger.Fatal("creating job position", zap.Error(err))
		}

		env.logger.Info("job position created", zap.Int64("position_id", id), zap.String("title", p.Title))
	},
}

var positionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active job positions",
	Run: func(cmd *cobra.Command, _ []string) {
		env := setup(cmd.Context())
		defer env.close()

		positions, err := env.db.ActivePositions(cmd.Context(), env.team)
		if err != nil {
			env.logger.Fatal("listing job positions", zap.Error(err))
		}

		for _, p := range positions {
			env.logger.Info("job position",
				zap.Int64("position_id", p.ID),
				zap.String("title", p.Title),
				zap.String("location", p.Location),
			)
		}
		env.logger.Info("active job positions", zap.Int("count", len(positions)))
	},
}

// textOrFile reads the value from a file when it starts with @.
func textOrFile(value string) (string, error) {
	if path, ok := strings.CutPrefix(value, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.TrimSpace(value), nil
}

func init() {
	rootCmd.AddCommand(positionCmd)
	positionCmd.AddCommand(positionAddCmd, positionListCmd)

	flags := positionAddCmd.Flags()
	flags.String("title", "", "position title")
	flags.String("description", "", "position description, @file reads it from a file")
	flags.String("requirements", "", "requirements, @file reads them from a file")
	flags.String("responsibilities", "", "responsibilities, @file reads them from a file")
	flags.String("location", "", "work location")
	flags.String("employment-type", "", "employment type, for example full-time")
	flags.Bool("draft", false, "create the position as a draft")
}
