package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/spigell/cvsift/internal/ai"
	"github.com/spigell/cvsift/internal/utils"
	"go.uber.org/zap"
)

type validationResponse struct {
	IsCV       bool    `json:"isCV"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

var validationSchema = ai.Schema{Required: []string{"isCV", "confidence", "reason"}}

type verdict struct {
	isCV bool
	// score is the confidence as answered, confidence the stored percentage.
	score      float64
	confidence int
	reason     string
}

func (p *Processor) validate(ctx context.Context, log *zap.Logger, text string) (verdict, error) {
	prompt := fillPrompt(validatePrompt, utils.CutRunes(text, ValidationRunes))

	raw, err := p.complete(ctx, log, "validation", prompt)
	if err != nil {
		return verdict{}, err
	}

	var resp validationResponse
	if err := ai.Decode(raw, &resp, validationSchema); err != nil {
		return verdict{}, fmt.Errorf("validation: %w", err)
	}

	return verdict{
		isCV:       resp.IsCV,
		score:      resp.Confidence,
		confidence: ai.Percent(resp.Confidence),
		reason:     strings.TrimSpace(resp.Reason),
	}, nil
}
