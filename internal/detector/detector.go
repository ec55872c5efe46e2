// Package detector decides which open job position an inbound email applies to.
package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/cvsift/internal/ai"
	"github.com/spigell/cvsift/internal/logger"
	"github.com/spigell/cvsift/internal/store"
	"github.com/spigell/cvsift/internal/utils"
	"go.uber.org/zap"
)

const (
	// DescriptionRunes bounds each posting description sent to the model.
	DescriptionRunes = 500
	// BodyRunes bounds the email body sent to the model.
	BodyRunes = 1000

	temperature         = 0.2
	defaultMaxLogLength = 200
)

//go:embed prompt.md
var promptTemplate string

// PositionLister returns the active job positions of a team.
type PositionLister interface {
	ActivePositions(ctx context.Context, teamID int64) ([]store.JobPosition, error)
}

// Detection is the application target chosen for an email.
type Detection struct {
	PositionID *int64
	Confidence int
	Reason     string
	Type       store.ApplicationType
}

type Detector struct {
	positions PositionLister
	provider  ai.Provider
	logger    *zap.Logger
	maxLogLen int
}

func New(positions PositionLister, provider ai.Provider, log *zap.Logger, maxLogLength int) *Detector {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	name, model := ai.Describe(provider)
	return &Detector{
		positions: positions,
		provider:  provider,
		logger:    logger.WithCommonFields(log, name, model).Named("detector"),
		maxLogLen: maxLogLength,
	}
}

type response struct {
	JobPositionID *int64  `json:"jobPositionId"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
}

var responseSchema = ai.Schema{
	Required: []string{"confidence", "reason"},
	Nullable: []string{"jobPositionId"},
}

type positionPayload struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// Detect never fails: any store or model problem yields a spontaneous
// detection with zero confidence.
func (d *Detector) Detect(ctx context.Context, teamID int64, subject, body string) Detection {
	log := d.logger.With(logger.PipelineFields(teamID, 0, 0)...)

	positions, err := d.positions.ActivePositions(ctx, teamID)
	if err != nil {
		log.Warn("failed to load active positions", zap.Error(err))
		return failed()
	}

	if len(positions) == 0 {
		return Detection{
			Confidence: 100,
			Reason:     "No active job positions. This is a spontaneous application.",
			Type:       store.ApplicationSpontaneous,
		}
	}

	prompt, err := buildPrompt(positions, subject, body)
	if err != nil {
		log.Warn("failed to build detection prompt", zap.Error(err))
		return failed()
	}

	log.Debug("detection request",
		zap.Int("positions", len(positions)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, d.maxLogLen)),
	)

	completion, err := d.provider.Complete(ctx, ai.Request{Prompt: prompt, Temperature: temperature, JSONMode: true})
	if err != nil {
		log.Warn("detection call failed", zap.Error(err))
		return failed()
	}

	log.Debug("detection response",
		zap.String("response_preview", utils.TruncateForLog(completion.Text, d.maxLogLen)),
	)

	var resp response
	if err := ai.Decode(completion.Text, &resp, responseSchema); err != nil {
		log.Warn("malformed detection response", zap.Error(err))
		return failed()
	}

	if resp.JobPositionID == nil {
		return Detection{
			Confidence: ai.Percent(resp.Confidence),
			Reason:     resp.Reason,
			Type:       store.ApplicationSpontaneous,
		}
	}

	if !contains(positions, *resp.JobPositionID) {
		log.Info("model picked an unknown position", zap.Int64(logger.FieldPosition, *resp.JobPositionID))
		return Detection{
			Confidence: 100,
			Reason:     "The detected position is not among the active positions. Marking as spontaneous.",
			Type:       store.ApplicationSpontaneous,
		}
	}

	id := *resp.JobPositionID
	return Detection{
		PositionID: &id,
		Confidence: ai.Percent(resp.Confidence),
		Reason:     resp.Reason,
		Type:       store.ApplicationDirect,
	}
}

func failed() Detection {
	return Detection{
		Reason: "Position detection failed. Defaulting to a spontaneous application.",
		Type:   store.ApplicationSpontaneous,
	}
}

func contains(positions []store.JobPosition, id int64) bool {
	for _, p := range positions {
		if p.ID == id {
			return true
		}
	}
	return false
}

func buildPrompt(positions []store.JobPosition, subject, body string) (string, error) {
	payload := make([]positionPayload, 0, len(positions))
	for _, p := range positions {
		payload = append(payload, positionPayload{
			ID:          p.ID,
			Title:       p.Title,
			Description: utils.CutRunes(p.Description, DescriptionRunes),
			Location:    p.Location,
		})
	}

	positionsJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal positions: %w", err)
	}

	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Positions:\n{{POSITIONS_JSON}}\n\nSubject: {{SUBJECT}}\n{{BODY}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{POSITIONS_JSON}}", string(positionsJSON))
	prompt = strings.ReplaceAll(prompt, "{{SUBJECT}}", subject)
	prompt = strings.ReplaceAll(prompt, "{{BODY}}", utils.CutRunes(body, BodyRunes))
	return prompt, nil
}
