package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/cvsift/internal/matching"
	"github.com/spigell/cvsift/internal/report"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score candidates against a job position",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		env := setup(ctx)
		defer env.close()

		positionID, opts, err := matchOptions(cmd)
		if err != nil {
			env.logger.Fatal("reading match options", zap.Error(err))
		}

		results, err := env.matcher(env.provider(ctx)).MatchPosition(ctx, env.team, positionID, opts)
		if err != nil {
			env.logger.Fatal("matching candidates", zap.Error(err), zap.Int64("position_id", positionID))
		}

		env.report(ctx, cmd, positionID, results)
	},
}

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "Show stored matches of a job position",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		env := setup(ctx)
		defer env.close()

		positionID, opts, err := matchOptions(cmd)
		if err != nil {
			env.logger.Fatal("reading match options", zap.Error(err))
		}

		// Stored matches are read without scoring, so no provider is needed.
		results, err := matching.NewEngine(env.db, nil, nil, env.logger, 0).ExistingMatches(ctx, env.team, positionID, opts)
		if err != nil {
			env.logger.Fatal("reading matches", zap.Error(err), zap.Int64("position_id", positionID))
		}

		env.report(ctx, cmd, positionID, results)
	},
}

var rematchCmd = &cobra.Command{
	Use:   "rematch",
	Short: "Drop stored matches of a job position and score every candidate again",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		env := setup(ctx)
		defer env.close()

		positionID, _ := cmd.Flags().GetInt64("position")
		if positionID <= 0 {
			env.logger.Fatal("position is required")
		}

		position, err := env.db.GetPosition(ctx, env.team, positionID)
		if err != nil {
			env.logger.Fatal("getting job position", zap.Error(err), zap.Int64("position_id", positionID))
		}

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			confirm := promptui.Prompt{
				Label:     fmt.Sprintf("Drop stored matches of %q and score again", position.Title),
				IsConfirm: true,
			}
			if _, err := confirm.Run(); err != nil {
				env.logger.Info("exiting", zap.String("reason", "rematch not confirmed"))
				return
			}
		}

		summary, err := env.matcher(env.provider(ctx)).Rematch(ctx, env.team, positionID)
		if err != nil {
			env.logger.Fatal("rematching candidates", zap.Error(err), zap.Int64("position_id", positionID))
		}

		env.logger.Info("rematch finished",
			zap.Int64("position_id", positionID),
			zap.Int("matched", summary.Matched),
			zap.Int("errors", summary.Errors),
		)
	},
}

func matchOptions(cmd *cobra.Command) (int64, matching.Options, error) {
	flags := cmd.Flags()
	opts := matching.DefaultOptions()

	positionID, _ := flags.GetInt64("position")
	if positionID <= 0 {
		return 0, opts, errors.New("position is required")
	}

	opts.MinScore, _ = flags.GetInt("min-score")
	opts.MaxResults, _ = flags.GetInt("max-results")

	typ, _ := flags.GetString("type")
	switch filter := matching.Filter(strings.ToLower(strings.TrimSpace(typ))); filter {
	case matching.FilterAll, matching.FilterDirect, matching.FilterCross:
		opts.Type = filter
	default:
		return 0, opts, fmt.Errorf("unknown match type %q (use all, direct or cross)", typ)
	}

	if noCross, _ := flags.GetBool("no-cross"); noCross {
		opts.IncludeCross = false
	}

	return positionID, opts, nil
}

// report prints the results and exports them when --sheet is set.
func (e *session) report(ctx context.Context, cmd *cobra.Command, positionID int64, results []matching.Result) {
	// do not bother error since results are plain data
	pretty, _ := json.MarshalIndent(results, "", "  ")
	e.logger.Info(string(pretty), zap.Int64("position_id", positionID), zap.Int("matches count", len(results)))

	if sheet, _ := cmd.Flags().GetBool("sheet"); !sheet {
		return
	}

	position, err := e.db.GetPosition(ctx, e.team, positionID)
	if err != nil {
		e.logger.Fatal("getting job position", zap.Error(err), zap.Int64("position_id", positionID))
	}

	exporter, err := report.NewSheets(ctx, report.Config{
		CredentialsFile: e.config.Sheets.CredentialsFile,
		SpreadsheetID:   e.config.Sheets.SpreadsheetID,
		Tab:             e.config.Sheets.Tab,
	}, e.logger)
	if err != nil {
		e.logger.Fatal("creating sheets exporter", zap.Error(err),
			zap.String("hint", "set sheets.spreadsheet-id and sheets.credentials-file in the configuration file"))
	}

	rows, err := exporter.Export(ctx, position, results)
	if err != nil {
		e.logger.Fatal("exporting matches", zap.Error(err))
	}
	e.logger.Info("matches exported", zap.Int("rows", rows), zap.String("spreadsheet_id", e.config.Sheets.SpreadsheetID))
}

func addMatchFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int64P("position", "p", 0, "job position id")
	flags.Int("min-score", 0, "drop matches scored below this value")
	flags.Int("max-results", matching.DefaultMaxResults, "maximum number of matches to show, 0 keeps all")
	flags.String("type", string(matching.FilterAll), "match type: all, direct or cross")
	flags.Bool("no-cross", false, "skip candidates who did not apply to the position")
	flags.Bool("sheet", false, "export the matches to the configured Google Sheet")
}

func init() {
	rootCmd.AddCommand(matchCmd, matchesCmd, rematchCmd)

	addMatchFlags(matchCmd)
	addMatchFlags(matchesCmd)

	rematchCmd.Flags().Int64P("position", "p", 0, "job position id")
	rematchCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}
