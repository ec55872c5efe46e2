package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/cvsift/internal/ai"
	"github.com/spigell/cvsift/internal/store"
	"github.com/spigell/cvsift/internal/utils"
	"go.uber.org/zap"
)

//go:embed prompt.md
var promptTemplate string

type assessmentResponse struct {
	MatchScore float64  `json:"matchScore"`
	AIAnalysis string   `json:"aiAnalysis"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Summary    string   `json:"summary"`
}

var assessmentSchema = ai.Schema{
	Required: []string{"matchScore", "aiAnalysis", "strengths", "weaknesses", "summary"},
}

type assessment struct {
	score      int
	analysis   string
	summary    string
	strengths  []string
	weaknesses []string
}

type positionPayload struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	Requirements     string `json:"requirements"`
	Responsibilities string `json:"responsibilities,omitempty"`
	Location         string `json:"location,omitempty"`
	EmploymentType   string `json:"employmentType,omitempty"`
}

type profilePayload struct {
	Name              string             `json:"name"`
	Email             *string            `json:"email"`
	Phone             *string            `json:"phone"`
	Location          *string            `json:"location"`
	Summary           *string            `json:"summary"`
	YearsOfExperience *int               `json:"yearsOfExperience"`
	TechnicalSkills   []string           `json:"technicalSkills"`
	SoftSkills        []string           `json:"softSkills"`
	Experience        []store.Experience `json:"experience"`
	Education         []store.Education  `json:"education"`
	Certifications    []string           `json:"certifications"`
	Languages         []store.Language   `json:"languages"`
	KeyAchievements   []string           `json:"keyAchievements"`
}

func (e *Engine) assess(ctx context.Context, log *zap.Logger, position *store.JobPosition, profile *store.Profile) (*assessment, error) {
	prompt, err := buildPrompt(position, profile)
	if err != nil {
		return nil, err
	}

	log.Debug("assessment request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, e.maxLogLen)),
	)

	completion, err := e.provider.Complete(ctx, ai.Request{Prompt: prompt, Temperature: temperature, JSONMode: true})
	if err != nil {
		return nil, fmt.Errorf("assessment: %w", err)
	}

	log.Debug("assessment response",
		zap.Int("response_length", utf8.RuneCountInString(completion.Text)),
		zap.String("response_preview", utils.TruncateForLog(completion.Text, e.maxLogLen)),
	)

	var resp assessmentResponse
	if err := ai.Decode(completion.Text, &resp, assessmentSchema); err != nil {
		return nil, fmt.Errorf("assessment: %w", err)
	}

	return &assessment{
		score:      ai.Percent(resp.MatchScore),
		analysis:   strings.TrimSpace(resp.AIAnalysis),
		summary:    strings.TrimSpace(resp.Summary),
		strengths:  resp.Strengths,
		weaknesses: resp.Weaknesses,
	}, nil
}

func buildPrompt(position *store.JobPosition, profile *store.Profile) (string, error) {
	positionJSON, err := json.MarshalIndent(positionPayload{
		Title:            position.Title,
		Description:      position.Description,
		Requirements:     position.Requirements,
		Responsibilities: position.Responsibilities,
		Location:         position.Location,
		EmploymentType:   position.EmploymentType,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal position: %w", err)
	}

	c := profile.Candidate
	profileJSON, err := json.MarshalIndent(profilePayload{
		Name:              c.FullName(),
		Email:             c.Email,
		Phone:             c.Phone,
		Location:          c.Location,
		Summary:           c.Summary,
		YearsOfExperience: c.YearsOfExperience,
		TechnicalSkills:   c.TechnicalSkills,
		SoftSkills:        c.SoftSkills,
		Experience:        c.Experience,
		Education:         c.Education,
		Certifications:    c.Certifications,
		Languages:         c.Languages,
		KeyAchievements:   c.KeyAchievements,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}

	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Position:\n{{POSITION}}\n\nCandidate:\n{{PROFILE}}\n\nCV:\n{{CV_TEXT}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{POSITION}}", string(positionJSON))
	prompt = strings.ReplaceAll(prompt, "{{PROFILE}}", string(profileJSON))
	prompt = strings.ReplaceAll(prompt, "{{CV_TEXT}}", utils.CutRunes(profile.Resume.Text(), CVTextRunes))
	return prompt, nil
}
