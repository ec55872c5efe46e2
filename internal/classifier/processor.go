// Package classifier turns stored resume documents into candidate profiles.
// Every claimed resume ends processed, rejected or error.
package classifier

import (
	"context"
	"errors"
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
	// MinConfidence is the lowest validation confidence accepted as a resume.
	MinConfidence = 60
	// MaxTextRunes bounds the text kept for a document.
	MaxTextRunes = 50000
	// ValidationRunes bounds the text sent for validation.
	ValidationRunes = 8000
	// ExtractionRunes bounds the text sent for profile extraction.
	ExtractionRunes = 20000

	temperature         = 0.1
	defaultMaxLogLength = 200
)

// ErrNotPending is returned when a resume cannot be claimed for processing.
var ErrNotPending = errors.New("resume is not pending")

var (
	//go:embed validate.md
	validatePrompt string
	//go:embed extract.md
	extractPrompt string
)

// Store is the part of the relational store the processor needs.
type Store interface {
	ResumeIDsByStatus(ctx context.Context, teamID int64, status store.ResumeStatus) ([]int64, error)
	ClaimResume(ctx context.Context, teamID, resumeID int64) (*store.Resume, bool, error)
	SaveParsedText(ctx context.Context, teamID, resumeID int64, text string) error
	SaveValidation(ctx context.Context, teamID, resumeID int64, score int, reason string) error
	FinishResume(ctx context.Context, teamID, resumeID int64, status store.ResumeStatus) error
	CompleteResume(ctx context.Context, teamID, resumeID int64, c *store.Candidate) (int64, error)
	ResetResumes(ctx context.Context, teamID int64, statuses ...store.ResumeStatus) (int64, error)
}

// Objects reads stored documents.
type Objects interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Outcome describes how processing of one resume ended.
type Outcome struct {
	ResumeID    int64
	Status      store.ResumeStatus
	CandidateID *int64
	Confidence  int
	Reason      string
	// Error is set when Status is error.
	Error string
}

// BatchResult counts processed and rejected resumes as Processed and the
// failed ones as Errors.
type BatchResult struct {
	Processed int
	Errors    int
}

type Processor struct {
	store     Store
	objects   Objects
	text      TextExtractor
	provider  ai.Provider
	logger    *zap.Logger
	maxLogLen int
}

func NewProcessor(db Store, objects Objects, text TextExtractor, provider ai.Provider, log *zap.Logger, maxLogLength int) *Processor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if text == nil {
		text = PDFText{}
	}
	name, model := ai.Describe(provider)
	return &Processor{
		store:     db,
		objects:   objects,
		text:      text,
		provider:  provider,
		logger:    logger.WithCommonFields(log, name, model).Named("classifier"),
		maxLogLen: maxLogLength,
	}
}

// ProcessByID claims a pending resume and drives it to a terminal status.
// Failures after the claim are reported through the Outcome.
func (p *Processor) ProcessByID(ctx context.Context, teamID, resumeID int64) (*Outcome, error) {
	resume, claimed, err := p.store.ClaimResume(ctx, teamID, resumeID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("resume %d is %s: %w", resumeID, resume.Status, ErrNotPending)
	}

	log := p.logger.With(logger.PipelineFields(teamID, resumeID, 0)...)
	log.Info("processing resume", zap.String("file", resume.FileName))

	outcome, err := p.process(ctx, log, resume)
	if err == nil {
		log.Info("resume processed",
			zap.String("status", string(outcome.Status)),
			zap.Int("confidence", outcome.Confidence),
		)
		return outcome, nil
	}

	log.Warn("resume processing failed", zap.Error(err))
	outcome.Status = store.ResumeError
	outcome.Error = err.Error()

	// The claim context may already be cancelled; the error status still has to land.
	if finishErr := p.store.FinishResume(context.WithoutCancel(ctx), teamID, resumeID, store.ResumeError); finishErr != nil {
		return outcome, fmt.Errorf("marking resume %d as error: %w", resumeID, finishErr)
	}
	return outcome, nil
}

func (p *Processor) process(ctx context.Context, log *zap.Logger, resume *store.Resume) (*Outcome, error) {
	outcome := &Outcome{ResumeID: resume.ID}
	teamID := resume.TeamID

	data, err := p.objects.Get(ctx, resume.ObjectKey)
	if err != nil {
		return outcome, fmt.Errorf("reading document: %w", err)
	}

	text, err := p.text.ExtractText(ctx, data)
	if err != nil {
		return outcome, fmt.Errorf("extracting text: %w", err)
	}
	text = utils.CutRunes(text, MaxTextRunes)

	if err := p.store.SaveParsedText(ctx, teamID, resume.ID, text); err != nil {
		return outcome, err
	}
	if strings.TrimSpace(text) == "" {
		return outcome, errors.New("document contains no extractable text")
	}

	verdict, err := p.validate(ctx, log, text)
	if err != nil {
		return outcome, err
	}
	outcome.Confidence = verdict.confidence
	outcome.Reason = verdict.reason

	if err := p.store.SaveValidation(ctx, teamID, resume.ID, verdict.confidence, verdict.reason); err != nil {
		return outcome, err
	}

	if !Accepted(verdict.isCV, verdict.score) {
		if err := p.store.FinishResume(ctx, teamID, resume.ID, store.ResumeRejected); err != nil {
			return outcome, err
		}
		outcome.Status = store.ResumeRejected
		return outcome, nil
	}

	candidate, err := p.extract(ctx, log, text)
	if err != nil {
		return outcome, err
	}

	candidateID, err := p.store.CompleteResume(ctx, teamID, resume.ID, candidate)
	if err != nil {
		return outcome, err
	}

	outcome.Status = store.ResumeProcessed
	outcome.CandidateID = &candidateID
	return outcome, nil
}

// Accepted reports whether a validation verdict lets a document through.
func Accepted(isCV bool, confidence float64) bool {
	return isCV && confidence >= MinConfidence
}

// ProcessAllPending runs every pending resume of the team through ProcessByID.
// Resumes claimed concurrently by someone else are skipped.
func (p *Processor) ProcessAllPending(ctx context.Context, teamID int64) (BatchResult, error) {
	var result BatchResult

	ids, err := p.store.ResumeIDsByStatus(ctx, teamID, store.ResumePending)
	if err != nil {
		return result, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome, err := p.ProcessByID(ctx, teamID, id)
		switch {
		case errors.Is(err, ErrNotPending):
			continue
		case err != nil:
			p.logger.Warn("resume processing aborted", append(logger.PipelineFields(teamID, id, 0), zap.Error(err))...)
			result.Errors++
		case outcome.Status == store.ResumeError:
			result.Errors++
		default:
			result.Processed++
		}
	}

	if len(ids) > 0 {
		p.logger.Info("pending resumes processed",
			zap.Int64(logger.FieldTeam, teamID),
			zap.Int("processed", result.Processed),
			zap.Int("errors", result.Errors),
		)
	}
	return result, nil
}

// ResetErrored moves failed resumes back to pending. With includeStuck,
// resumes left in processing are reset as well.
func (p *Processor) ResetErrored(ctx context.Context, teamID int64, includeStuck bool) (int64, error) {
	statuses := []store.ResumeStatus{store.ResumeError}
	if includeStuck {
		statuses = append(statuses, store.ResumeProcessing)
	}

	n, err := p.store.ResetResumes(ctx, teamID, statuses...)
	if err != nil {
		return n, err
	}
	p.logger.Info("resumes reset to pending", zap.Int64(logger.FieldTeam, teamID), zap.Int64("count", n))
	return n, nil
}

func (p *Processor) complete(ctx context.Context, log *zap.Logger, step, prompt string) (string, error) {
	log.Debug(step+" request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, p.maxLogLen)),
	)

	completion, err := p.provider.Complete(ctx, ai.Request{Prompt: prompt, Temperature: temperature, JSONMode: true})
	if err != nil {
		return "", fmt.Errorf("%s: %w", step, err)
	}

	log.Debug(step+" response",
		zap.Int("response_length", utf8.RuneCountInString(completion.Text)),
		zap.String("response_preview", utils.TruncateForLog(completion.Text, p.maxLogLen)),
	)
	return completion.Text, nil
}

func fillPrompt(template, text string) string {
	if strings.TrimSpace(template) == "" {
		template = "{{TEXT}}\n\nJSON Response:"
	}
	return strings.ReplaceAll(template, "{{TEXT}}", text)
}
