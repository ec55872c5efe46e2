// Package ingest pulls resume attachments out of a mailbox into the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/cvsift/internal/detector"
	"github.com/spigell/cvsift/internal/filtering"
	"github.com/spigell/cvsift/internal/logger"
	"github.com/spigell/cvsift/internal/mail"
	"github.com/spigell/cvsift/internal/store"
	"go.uber.org/zap"
)

// DefaultMaxResults is the number of messages listed per sync.
const DefaultMaxResults = 50

type Options struct {
	MaxResults int64
	// Query replaces the built search query when set.
	Query string
	// Since is the inclusive date floor. Zero falls back to the account's sync-from date.
	Since           time.Time
	FilterThreshold int
	// SmartFiltering runs the attachment pre-filter before downloading.
	SmartFiltering bool
}

func DefaultOptions() Options {
	return Options{
		MaxResults:      DefaultMaxResults,
		FilterThreshold: filtering.DefaultThreshold,
		SmartFiltering:  true,
	}
}

// Result counts what a sync did. Errors holds one entry per failed message
// or attachment.
type Result struct {
	TotalMessages  int
	PDFAttachments int
	NewResumes     int
	FilteredOut    int
	Errors         []string
}

// Status is the sync state of one account.
type Status struct {
	Email        string
	LastSyncAt   *time.Time
	SyncFromDate *time.Time
	store.StatusCounts
}

// Store is the part of the relational store sync needs.
type Store interface {
	GetAccount(ctx context.Context, teamID, accountID int64) (*store.MailAccount, error)
	TouchAccountSync(ctx context.Context, teamID, accountID int64, at time.Time) error
	MessageSeen(ctx context.Context, messageID string) (bool, error)
	InsertResume(ctx context.Context, r *store.Resume) (int64, error)
	CreateApplication(ctx context.Context, resumeID int64, positionID *int64, typ store.ApplicationType) (*store.Application, error)
	CountResumes(ctx context.Context, teamID int64) (store.StatusCounts, error)
}

// Objects stores downloaded documents.
type Objects interface {
	Put(ctx context.Context, data []byte, suggestedName string, teamID int64) (string, error)
	Delete(ctx context.Context, key string) error
}

// Detector picks the position an email applies to.
type Detector interface {
	Detect(ctx context.Context, teamID int64, subject, body string) detector.Detection
}

type Engine struct {
	mail     mail.Provider
	store    Store
	objects  Objects
	detector Detector
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(provider mail.Provider, db Store, objects Objects, detect Detector, log *zap.Logger) *Engine {
	return &Engine{
		mail:     provider,
		store:    db,
		objects:  objects,
		detector: detect,
		logger:   logger.OrNop(log).Named("ingest"),
		now:      time.Now,
	}
}

// Sync lists matching messages and stores every new resume attachment as a
// pending resume with one application. Per message and per attachment
// failures are collected in the result.
func (e *Engine) Sync(ctx context.Context, accountID, teamID int64, opts Options) (*Result, error) {
	account, err := e.store.GetAccount(ctx, teamID, accountID)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, fmt.Errorf("mail account %d is inactive", accountID)
	}

	opts = withDefaults(opts)
	query := opts.Query
	if query == "" {
		since := opts.Since
		if since.IsZero() && account.SyncFromDate != nil {
			since = *account.SyncFromDate
		}
		query = filtering.BuildQuery(since)
	}

	log := e.logger.With(logger.PipelineFields(teamID, 0, 0)...).With(zap.Int64("account_id", accountID))
	log.Info("syncing mailbox", zap.String("query", query), zap.Int64("max_results", opts.MaxResults))

	result := &Result{}

	ids, err := e.mail.ListMessages(ctx, query, opts.MaxResults)
	if err != nil {
		log.Error("failed to list messages", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("listing messages: %v", err))
		return result, nil
	}
	result.TotalMessages = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("sync interrupted: %v", err))
			break
		}
		if err := e.syncMessage(ctx, log.With(zap.String(logger.FieldMessage, id)), teamID, id, opts, result); err != nil {
			log.Warn("message failed", zap.String(logger.FieldMessage, id), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("message %s: %v", id, err))
		}
	}

	if err := e.store.TouchAccountSync(context.WithoutCancel(ctx), teamID, accountID, e.now()); err != nil {
		log.Error("failed to stamp last sync", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("updating last sync: %v", err))
	}

	log.Info("mailbox synced",
		zap.Int("messages", result.TotalMessages),
		zap.Int("pdf_attachments", result.PDFAttachments),
		zap.Int("new_resumes", result.NewResumes),
		zap.Int("filtered_out", result.FilteredOut),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func withDefaults(opts Options) Options {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.FilterThreshold < 0 {
		opts.FilterThreshold = 0
	}
	return opts
}

// Status reports the account's sync times with resume counts for the team.
func (e *Engine) Status(ctx context.Context, accountID, teamID int64) (*Status, error) {
	account, err := e.store.GetAccount(ctx, teamID, accountID)
	if err != nil {
		return nil, err
	}

	counts, err := e.store.CountResumes(ctx, teamID)
	if err != nil {
		return nil, err
	}

	return &Status{
		Email:        account.Email,
		LastSyncAt:   account.LastSyncAt,
		SyncFromDate: account.SyncFromDate,
		StatusCounts: counts,
	}, nil
}

func (e *Engine) syncMessage(ctx context.Context, log *zap.Logger, teamID int64, id string, opts Options, result *Result) error {
	seen, err := e.store.MessageSeen(ctx, id)
	if err != nil {
		return err
	}
	if seen {
		log.Debug("message already ingested")
		return nil
	}

	msg, err := e.mail.GetMessage(ctx, id)
	if err != nil {
		return fmt.Errorf("fetching message: %w", err)
	}

	meta := messageMeta{
		subject: msg.Subject(),
		from:    msg.From(),
		sender:  msg.SenderAddress(),
		body:    msg.Body(),
	}
	if date, ok := msg.Date(); ok {
		utc := date.UTC()
		meta.date = &utc
	}

	for _, ref := range msg.Attachments() {
		if !filtering.IsPDF(ref.MimeType, ref.Filename) {
			continue
		}
		result.PDFAttachments++

		if !e.admit(log, ref, meta, opts) {
			result.FilteredOut++
			continue
		}

		created, err := e.ingestAttachment(ctx, log, teamID, ref, meta)
		if created {
			result.NewResumes++
		}
		if err != nil {
			log.Warn("attachment failed", zap.String("file", ref.Filename), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("attachment %s: %v", ref.Filename, err))
		}
	}

	return nil
}

type messageMeta struct {
	subject string
	from    string
	sender  string
	body    string
	date    *time.Time
}

func (e *Engine) admit(log *zap.Logger, ref mail.AttachmentRef, meta messageMeta, opts Options) bool {
	if filtering.TooLarge(ref.Size) {
		log.Info("attachment skipped", zap.String("file", ref.Filename), zap.Int64("size", ref.Size), zap.String("reason", "too large"))
		return false
	}
	if !opts.SmartFiltering {
		return true
	}

	assessment := filtering.Score(filtering.Attachment{
		Subject:  meta.subject,
		Sender:   meta.sender,
		Filename: ref.Filename,
		Body:     meta.body,
	})
	passes := assessment.Passes(opts.FilterThreshold)

	log.Debug("attachment assessed",
		zap.String("file", ref.Filename),
		zap.Int("score", assessment.Score),
		zap.Bool("download", passes),
		zap.Strings("reasons", assessment.Reasons),
	)
	if !passes {
		log.Info("attachment skipped", zap.String("file", ref.Filename), zap.Int("score", assessment.Score))
	}
	return passes
}

// ingestAttachment downloads, stores and records one attachment. It reports
// false when another run stored the same attachment first. A stored resume
// without an application reports true together with the error.
func (e *Engine) ingestAttachment(ctx context.Context, log *zap.Logger, teamID int64, ref mail.AttachmentRef, meta messageMeta) (bool, error) {
	data, err := e.mail.GetAttachment(ctx, ref.MessageID, ref.AttachmentID)
	if err != nil {
		return false, fmt.Errorf("downloading: %w", err)
	}
	if len(data) == 0 {
		log.Warn("attachment is empty", zap.String("file", ref.Filename))
		return false, nil
	}

	key, err := e.objects.Put(ctx, data, ref.Filename, teamID)
	if err != nil {
		return false, fmt.Errorf("storing: %w", err)
	}

	mimeType := ref.MimeType
	if !filtering.IsPDF(mimeType, "") {
		mimeType = "application/pdf"
	}

	resume := &store.Resume{
		TeamID:          teamID,
		ObjectKey:       key,
		FileName:        ref.Filename,
		MimeType:        mimeType,
		FileSize:        int64(len(data)),
		SourceMessageID: ref.MessageID,
		EmailFrom:       meta.from,
		EmailSubject:    meta.subject,
		EmailDate:       meta.date,
	}
	if _, err := e.store.InsertResume(ctx, resume); err != nil {
		if delErr := e.objects.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			log.Warn("failed to remove orphaned object", zap.String("key", key), zap.Error(delErr))
		}
		if errors.Is(err, store.ErrDuplicate) {
			log.Info("attachment already stored", zap.String("file", ref.Filename))
			return false, nil
		}
		return false, err
	}

	rlog := log.With(zap.Int64(logger.FieldResume, resume.ID))
	rlog.Info("resume stored", zap.String("file", ref.Filename), zap.String("key", key))

	if err := e.apply(ctx, rlog, teamID, resume.ID, meta); err != nil {
		return true, err
	}
	return true, nil
}

// apply creates the application of a new resume. A failure against the
// detected position falls back to a spontaneous application.
func (e *Engine) apply(ctx context.Context, log *zap.Logger, teamID, resumeID int64, meta messageMeta) error {
	detection := e.detector.Detect(ctx, teamID, meta.subject, meta.body)
	log.Info("application target detected",
		zap.String("type", string(detection.Type)),
		zap.Int("confidence", detection.Confidence),
		zap.String("reason", detection.Reason),
	)

	_, err := e.store.CreateApplication(ctx, resumeID, detection.PositionID, detection.Type)
	if err == nil {
		return nil
	}
	log.Warn("failed to create application", zap.Error(err))

	if detection.Type == store.ApplicationSpontaneous {
		return fmt.Errorf("creating application for resume %d: %w", resumeID, err)
	}
	if _, err := e.store.CreateApplication(ctx, resumeID, nil, store.ApplicationSpontaneous); err != nil {
		log.Error("failed to create fallback application", zap.Error(err))
		return fmt.Errorf("creating fallback application for resume %d: %w", resumeID, err)
	}
	return nil
}
