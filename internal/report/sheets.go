// Package report exports match results to Google Sheets.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/cvsift/internal/matching"
	"github.com/spigell/cvsift/internal/store"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const defaultTab = "Matches"

var header = []any{
	"Rank", "Type", "Score", "Candidate", "Email", "Phone", "Location",
	"Summary", "Strengths", "Weaknesses", "Resume ID", "Application ID",
}

type Config struct {
	CredentialsFile string
	SpreadsheetID   string
	// Tab is the sheet name. Its content is replaced on every export.
	Tab string
}

type Sheets struct {
	service       *sheets.Service
	spreadsheetID string
	tab           string
	logger        *zap.Logger
}

// NewSheets builds an exporter. Extra options are appended after the
// credentials option.
func NewSheets(ctx context.Context, cfg Config, log *zap.Logger, opts ...option.ClientOption) (*Sheets, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("sheets: spreadsheet id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	service, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to create service: %w", err)
	}

	tab := strings.TrimSpace(cfg.Tab)
	if tab == "" {
		tab = defaultTab
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Sheets{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		tab:           tab,
		logger:        log.Named("report"),
	}, nil
}

// Export replaces the tab content with a title row, a header and one row per result.
func (s *Sheets) Export(ctx context.Context, position *store.JobPosition, results []matching.Result) (int, error) {
	values := make([][]any, 0, len(results)+2)
	values = append(values, []any{fmt.Sprintf("%s (#%d)", position.Title, position.ID)}, header)
	values = append(values, Rows(results)...)

	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.tab, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("sheets: clearing %s: %w", s.tab, err)
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.tab+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("sheets: writing %s: %w", s.tab, err)
	}

	s.logger.Info("matches exported",
		zap.String("spreadsheet_id", s.spreadsheetID),
		zap.String("tab", s.tab),
		zap.Int("rows", len(results)),
	)
	return len(results), nil
}

// Rows renders results in their given order.
func Rows(results []matching.Result) [][]any {
	rows := make([][]any, 0, len(results))
	for i, r := range results {
		var appID any = ""
		if r.ApplicationID != nil {
			appID = *r.ApplicationID
		}
		rows = append(rows, []any{
			i + 1,
			string(r.Type),
			r.Score,
			r.CandidateName,
			r.Email,
			r.Phone,
			r.Location,
			r.Summary,
			strings.Join(r.Strengths, "; "),
			strings.Join(r.Weaknesses, "; "),
			r.ResumeID,
			appID,
		})
	}
	return rows
}
