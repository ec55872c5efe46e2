// Package matching scores candidates against job positions and keeps the
// scores in the store.
package matching

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/spigell/cvsift/internal/ai"
	"github.com/spigell/cvsift/internal/classifier"
	"github.com/spigell/cvsift/internal/logger"
	"github.com/spigell/cvsift/internal/store"
	"go.uber.org/zap"
)

const (
	// CVTextRunes bounds the resume text sent with each assessment.
	CVTextRunes = 6000
	// DefaultMaxResults caps MatchPosition results unless overridden.
	DefaultMaxResults = 50

	temperature         = 0.3
	defaultMaxLogLength = 200
)

// Filter selects which kinds of matches are returned.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterDirect Filter = "direct"
	FilterCross  Filter = "cross"
)

type Options struct {
	MinScore int
	// MaxResults truncates the sorted result. Zero or less keeps everything.
	MaxResults   int
	Type         Filter
	IncludeCross bool
}

func DefaultOptions() Options {
	return Options{MaxResults: DefaultMaxResults, Type: FilterAll, IncludeCross: true}
}

func (o Options) wantsDirect() bool {
	return o.Type == "" || o.Type == FilterAll || o.Type == FilterDirect
}

func (o Options) wantsCross() bool {
	return o.IncludeCross && (o.Type == "" || o.Type == FilterAll || o.Type == FilterCross)
}

// Result is one scored candidate for a position.
type Result struct {
	MatchID       int64
	CandidateID   int64
	ResumeID      int64
	ApplicationID *int64
	CandidateName string
	Email         string
	Phone         string
	Location      string
	Type          store.MatchType
	Score         int
	Analysis      string
	Summary       string
	Strengths     []string
	Weaknesses    []string
}

// Summary reports a rematch run. Matched counts rows written.
type Summary struct {
	Matched int
	Errors  int
}

// Store is the part of the relational store the engine needs.
type Store interface {
	GetPosition(ctx context.Context, teamID, positionID int64) (*store.JobPosition, error)
	DirectApplicants(ctx context.Context, teamID, positionID int64) ([]store.Profile, error)
	CrossCandidates(ctx context.Context, teamID, positionID int64) ([]store.Profile, error)
	UpsertMatch(ctx context.Context, m *store.Match) (int64, error)
	PositionMatches(ctx context.Context, teamID, positionID int64) ([]store.MatchView, error)
	DeleteMatches(ctx context.Context, teamID, positionID int64) (int64, error)
}

// PendingProcessor classifies the resumes still waiting in a team.
type PendingProcessor interface {
	ProcessAllPending(ctx context.Context, teamID int64) (classifier.BatchResult, error)
}

type Engine struct {
	store     Store
	pending   PendingProcessor
	provider  ai.Provider
	logger    *zap.Logger
	maxLogLen int
}

func NewEngine(db Store, pending PendingProcessor, provider ai.Provider, log *zap.Logger, maxLogLength int) *Engine {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	name, model := ai.Describe(provider)
	return &Engine{
		store:     db,
		pending:   pending,
		provider:  provider,
		logger:    logger.WithCommonFields(log, name, model).Named("matching"),
		maxLogLen: maxLogLength,
	}
}

// MatchPosition classifies pending resumes, scores the eligible candidates
// and stores every score of at least opts.MinScore.
func (e *Engine) MatchPosition(ctx context.Context, teamID, positionID int64, opts Options) ([]Result, error) {
	results, _, err := e.run(ctx, teamID, positionID, opts)
	if err != nil {
		return nil, err
	}
	Sort(results)
	return truncate(results, opts.MaxResults), nil
}

// ExistingMatches returns stored matches without scoring anything.
func (e *Engine) ExistingMatches(ctx context.Context, teamID, positionID int64, opts Options) ([]Result, error) {
	if _, err := e.store.GetPosition(ctx, teamID, positionID); err != nil {
		return nil, err
	}

	views, err := e.store.PositionMatches(ctx, teamID, positionID)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(views))
	for _, v := range views {
		if v.Match.Score < opts.MinScore {
			continue
		}
		if v.Match.Type == store.MatchDirect && !opts.wantsDirect() {
			continue
		}
		if v.Match.Type == store.MatchCross && !opts.wantsCross() {
			continue
		}
		results = append(results, fromView(v))
	}

	Sort(results)
	return truncate(results, opts.MaxResults), nil
}

// Rematch drops the stored matches of a position and scores every eligible
// candidate again.
func (e *Engine) Rematch(ctx context.Context, teamID, positionID int64) (Summary, error) {
	if _, err := e.store.GetPosition(ctx, teamID, positionID); err != nil {
		return Summary{}, err
	}

	deleted, err := e.store.DeleteMatches(ctx, teamID, positionID)
	if err != nil {
		return Summary{}, err
	}
	e.logger.Info("matches cleared", append(logger.PipelineFields(teamID, 0, positionID), zap.Int64("deleted", deleted))...)

	opts := DefaultOptions()
	opts.MaxResults = 0

	results, failed, err := e.run(ctx, teamID, positionID, opts)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Matched: len(results), Errors: failed}, nil
}

func (e *Engine) run(ctx context.Context, teamID, positionID int64, opts Options) ([]Result, int, error) {
	position, err := e.store.GetPosition(ctx, teamID, positionID)
	if err != nil {
		return nil, 0, err
	}

	log := e.logger.With(logger.PipelineFields(teamID, 0, positionID)...)

	batch, err := e.pending.ProcessAllPending(ctx, teamID)
	if err != nil {
		return nil, 0, fmt.Errorf("processing pending resumes: %w", err)
	}
	log.Info("pending resumes processed before matching",
		zap.Int("processed", batch.Processed),
		zap.Int("errors", batch.Errors),
	)

	var (
		results []Result
		failed  int
	)

	if opts.wantsDirect() {
		profiles, err := e.store.DirectApplicants(ctx, teamID, positionID)
		if err != nil {
			return nil, 0, err
		}
		scored, n := e.scoreAll(ctx, log, position, profiles, store.MatchDirect, opts.MinScore)
		results = append(results, scored...)
		failed += n
		log.Info("direct applicants scored", zap.Int("candidates", len(profiles)), zap.Int("matches", len(scored)))
	}

	if opts.wantsCross() {
		profiles, err := e.store.CrossCandidates(ctx, teamID, positionID)
		if err != nil {
			return nil, 0, err
		}
		scored, n := e.scoreAll(ctx, log, position, profiles, store.MatchCross, opts.MinScore)
		results = append(results, scored...)
		failed += n
		log.Info("cross candidates scored", zap.Int("candidates", len(profiles)), zap.Int("matches", len(scored)))
	}

	return results, failed, nil
}

func (e *Engine) scoreAll(ctx context.Context, log *zap.Logger, position *store.JobPosition, profiles []store.Profile, kind store.MatchType, minScore int) ([]Result, int) {
	var (
		results []Result
		failed  int
	)

	for i := range profiles {
		profile := &profiles[i]
		if profile.Resume.Text() == "" {
			continue
		}
		if ctx.Err() != nil {
			failed++
			continue
		}

		fields := []zap.Field{
			zap.Int64(logger.FieldResume, profile.Resume.ID),
			zap.Int64("candidate_id", profile.Candidate.ID),
			zap.String("match_type", string(kind)),
		}

		a, err := e.assess(ctx, log, position, profile)
		if err != nil {
			log.Warn("candidate assessment failed", append(fields, zap.Error(err))...)
			failed++
			continue
		}
		if a.score < minScore {
			log.Debug("candidate below minimum score", append(fields, zap.Int("score", a.score))...)
			continue
		}

		m := &store.Match{
			JobPositionID: position.ID,
			CandidateID:   profile.Candidate.ID,
			ResumeID:      profile.Resume.ID,
			Type:          kind,
			Score:         a.score,
			Analysis:      a.analysis,
			Summary:       a.summary,
			Strengths:     a.strengths,
			Weaknesses:    a.weaknesses,
		}
		if kind == store.MatchDirect {
			m.ApplicationID = profile.ApplicationID
		}

		if _, err := e.store.UpsertMatch(ctx, m); err != nil {
			log.Warn("failed to store match", append(fields, zap.Error(err))...)
			failed++
			continue
		}

		results = append(results, newResult(m, &profile.Candidate))
	}

	return results, failed
}

// Sort orders direct matches before cross matches, each by descending score.
func Sort(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		if a.Type != b.Type {
			if a.Type == store.MatchDirect {
				return -1
			}
			if b.Type == store.MatchDirect {
				return 1
			}
		}
		return cmp.Compare(b.Score, a.Score)
	})
}

func truncate(results []Result, limit int) []Result {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func newResult(m *store.Match, c *store.Candidate) Result {
	return Result{
		MatchID:       m.ID,
		CandidateID:   m.CandidateID,
		ResumeID:      m.ResumeID,
		ApplicationID: m.ApplicationID,
		CandidateName: c.FullName(),
		Email:         deref(c.Email),
		Phone:         deref(c.Phone),
		Location:      deref(c.Location),
		Type:          m.Type,
		Score:         m.Score,
		Analysis:      m.Analysis,
		Summary:       m.Summary,
		Strengths:     m.Strengths,
		Weaknesses:    m.Weaknesses,
	}
}

func fromView(v store.MatchView) Result {
	return newResult(&v.Match, &v.Candidate)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
