package classifier

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/spigell/cvsift/internal/ai"
	"github.com/spigell/cvsift/internal/store"
	"github.com/spigell/cvsift/internal/utils"
	"go.uber.org/zap"
)

type extractionResponse struct {
	FirstName         *string            `json:"firstName"`
	LastName          *string            `json:"lastName"`
	Email             *string            `json:"email"`
	Phone             *string            `json:"phone"`
	Summary           *string            `json:"summary"`
	YearsOfExperience *float64           `json:"yearsOfExperience"`
	TechnicalSkills   []string           `json:"technicalSkills"`
	SoftSkills        []string           `json:"softSkills"`
	Experience        []store.Experience `json:"experience"`
	Education         []store.Education  `json:"education"`
	Certifications    []string           `json:"certifications"`
	Languages         []store.Language   `json:"languages"`
	KeyAchievements   []string           `json:"keyAchievements"`
	LinkedInURL       *string            `json:"linkedinUrl"`
	Location          *string            `json:"location"`
}

var extractionSchema = ai.Schema{
	Required: []string{"technicalSkills", "softSkills", "experience", "education"},
	Nullable: []string{"firstName", "lastName"},
}

func (p *Processor) extract(ctx context.Context, log *zap.Logger, text string) (*store.Candidate, error) {
	prompt := fillPrompt(extractPrompt, utils.CutRunes(text, ExtractionRunes))

	raw, err := p.complete(ctx, log, "extraction", prompt)
	if err != nil {
		return nil, err
	}

	var resp extractionResponse
	if err := ai.Decode(raw, &resp, extractionSchema); err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}

	return resp.candidate(), nil
}

func (r extractionResponse) candidate() *store.Candidate {
	c := &store.Candidate{
		FirstName:       optional(r.FirstName),
		LastName:        optional(r.LastName),
		Email:           optional(r.Email),
		Phone:           optional(r.Phone),
		Summary:         optional(r.Summary),
		TechnicalSkills: compact(r.TechnicalSkills),
		SoftSkills:      compact(r.SoftSkills),
		Experience:      r.Experience,
		Education:       r.Education,
		Certifications:  compact(r.Certifications),
		Languages:       r.Languages,
		KeyAchievements: compact(r.KeyAchievements),
		LinkedInURL:     optional(r.LinkedInURL),
		Location:        optional(r.Location),
	}
	if r.YearsOfExperience != nil && *r.YearsOfExperience >= 0 {
		years := int(math.Round(*r.YearsOfExperience))
		c.YearsOfExperience = &years
	}
	return c
}

// optional drops blank values and the literal "null" some models emit.
func optional(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
