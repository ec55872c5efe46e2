package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spigell/cvsift/internal/ai/aitest"
	"github.com/spigell/cvsift/internal/detector"
	"github.com/spigell/cvsift/internal/mail"
	"github.com/spigell/cvsift/internal/mail/mailtest"
	"github.com/spigell/cvsift/internal/objectstore"
	"github.com/spigell/cvsift/internal/store"
	"github.com/spigell/cvsift/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type staticDetector struct {
	detection detector.Detection
	calls     int
}

func (d *staticDetector) Detect(context.Context, int64, string, string) detector.Detection {
	d.calls++
	return d.detection
}

func spontaneous() *staticDetector {
	return &staticDetector{detection: detector.Detection{Type: store.ApplicationSpontaneous, Confidence: 100, Reason: "none open"}}
}

type harness struct {
	db      *store.DB
	mailbox *mailtest.Mailbox
	objects *objectstore.Store
	fs      afero.Fs
	account *store.MailAccount
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := storetest.Open(t)
	account := &store.MailAccount{TeamID: 1, Email: "hr@example.com", Active: true}
	_, err := db.CreateAccount(context.Background(), account)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	return &harness{
		db:      db,
		mailbox: mailtest.New(),
		objects: objectstore.New(fs),
		fs:      fs,
		account: account,
	}
}

func (h *harness) engine(d Detector, log *zap.Logger) *Engine {
	return NewEngine(h.mailbox, h.db, h.objects, d, log)
}

func (h *harness) sync(t *testing.T, e *Engine, opts Options) *Result {
	t.Helper()

	result, err := e.Sync(context.Background(), h.account.ID, 1, opts)
	require.NoError(t, err)
	return result
}

func TestSyncFiltersAndStores(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	h.mailbox.AddPDF("m1", "Jan Kowalski <jan@example.com>", "Zgłoszenie", "Dzień dobry, przesyłam dokumenty.", "jan_kowalski.pdf", []byte("%PDF jan"))
	h.mailbox.AddPDF("m2", "Accounting <office@example.com>", "March", "Please pay.", "invoice_march.pdf", []byte("%PDF invoice"))

	d := spontaneous()
	result := h.sync(t, h.engine(d, zap.NewNop()), DefaultOptions())

	assert.Equal(t, 2, result.TotalMessages)
	assert.Equal(t, 2, result.PDFAttachments)
	assert.Equal(t, 1, result.FilteredOut)
	assert.Equal(t, 1, result.NewResumes)
	assert.Empty(t, result.Errors)
	assert.Zero(t, h.mailbox.AttachmentGets["m2-att"])
	assert.Equal(t, 1, d.calls)

	ids, err := h.db.ResumeIDsByStatus(ctx, 1, store.ResumePending)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	r, err := h.db.GetResume(ctx, 1, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "jan_kowalski.pdf", r.FileName)
	assert.Equal(t, "m1", r.SourceMessageID)
	assert.Equal(t, "Zgłoszenie", r.EmailSubject)
	assert.Equal(t, int64(len("%PDF jan")), r.FileSize)
	require.NotNil(t, r.EmailDate)
	assert.Equal(t, 2024, r.EmailDate.Year())
	assert.True(t, strings.HasPrefix(r.ObjectKey, "team_1/jan_kowalski_"))

	data, err := h.objects.Get(ctx, r.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF jan"), data)

	app, err := h.db.ApplicationForResume(ctx, 1, r.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ApplicationSpontaneous, app.Type)
	assert.Nil(t, app.JobPositionID)

	acc, err := h.db.GetAccount(ctx, 1, h.account.ID)
	require.NoError(t, err)
	assert.NotNil(t, acc.LastSyncAt)
}

func TestSyncDeduplicatesMessages(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.mailbox.AddPDF("m1", "jan@example.com", "CV", "", "cv.pdf", []byte("%PDF 1"))
	h.mailbox.AddPDF("m2", "anna@example.com", "CV", "", "anna.pdf", []byte("%PDF 2"))

	e := h.engine(spontaneous(), zap.NewNop())
	first := h.sync(t, e, DefaultOptions())
	assert.Equal(t, 2, first.NewResumes)

	second := h.sync(t, e, DefaultOptions())
	assert.Equal(t, 2, second.TotalMessages)
	assert.Zero(t, second.NewResumes)
	assert.Zero(t, second.PDFAttachments)
	assert.Equal(t, 1, h.mailbox.MessageFetches["m1"])
	assert.Equal(t, 1, h.mailbox.AttachmentGets["m1-att"])

	counts, err := h.db.CountResumes(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Total)
}

func TestSyncNestedAttachments(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.mailbox.Add(&mail.Message{
		ID: "nested",
		Headers: []mail.Header{
			{Name: "from", Value: "ewa@example.com"},
			{Name: "SUBJECT", Value: "Aplikacja na stanowisko"},
		},
		Payload: &mail.Part{
			MimeType: "multipart/mixed",
			Parts: []*mail.Part{
				{
					MimeType: "multipart/alternative",
					Parts: []*mail.Part{
						{MimeType: "text/html", Data: []byte("<p>W załączeniu CV</p>")},
					},
				},
				{
					MimeType: "multipart/mixed",
					Parts: []*mail.Part{
						{MimeType: "application/octet-stream", Filename: "Ewa_Nowak.PDF", AttachmentID: "a1"},
						{MimeType: "image/png", Filename: "photo.png", AttachmentID: "a2"},
					},
				},
				{MimeType: "application/pdf", Filename: "portfolio.pdf", AttachmentID: "a3"},
			},
		},
	}, map[string][]byte{"a1": []byte("%PDF ewa"), "a2": []byte("png"), "a3": []byte("%PDF portfolio")})

	result := h.sync(t, h.engine(spontaneous(), zap.NewNop()), DefaultOptions())
	assert.Equal(t, 2, result.PDFAttachments)
	assert.Equal(t, 2, result.NewResumes)
	assert.Zero(t, h.mailbox.AttachmentGets["a2"])
}

func TestSyncRecordsFailuresAndContinues(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.mailbox.AddPDF("m1", "jan@example.com", "CV", "", "cv.pdf", []byte("%PDF 1"))
	h.mailbox.AddPDF("m2", "anna@example.com", "CV", "", "anna.pdf", []byte("%PDF 2"))
	h.mailbox.FailAttachmentID = "m1-att"

	observed, logs := observer.New(zap.WarnLevel)
	result := h.sync(t, h.engine(spontaneous(), zap.New(observed)), DefaultOptions())

	assert.Equal(t, 1, result.NewResumes)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "cv.pdf")
	assert.Equal(t, 1, logs.FilterMessage("attachment failed").Len())
}

func TestSyncListFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	h.mailbox.ListErr = errors.New("token expired")

	result := h.sync(t, h.engine(spontaneous(), zap.NewNop()), DefaultOptions())
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "token expired")

	acc, err := h.db.GetAccount(ctx, 1, h.account.ID)
	require.NoError(t, err)
	assert.Nil(t, acc.LastSyncAt)
}

func TestSyncQuery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	withFloor := &store.MailAccount{TeamID: 1, Email: "jobs@example.com", SyncFromDate: &from, Active: true}
	_, err := h.db.CreateAccount(ctx, withFloor)
	require.NoError(t, err)

	e := h.engine(spontaneous(), zap.NewNop())

	_, err = e.Sync(ctx, withFloor.ID, 1, DefaultOptions())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Since = time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	_, err = e.Sync(ctx, withFloor.ID, 1, opts)
	require.NoError(t, err)

	opts = DefaultOptions()
	opts.Query = "from:someone@example.com"
	_, err = e.Sync(ctx, h.account.ID, 1, opts)
	require.NoError(t, err)

	require.Len(t, h.mailbox.Queries, 3)
	assert.True(t, strings.HasPrefix(h.mailbox.Queries[0], "after:2025/02/01 has:attachment filename:pdf"))
	assert.True(t, strings.HasPrefix(h.mailbox.Queries[1], "after:2025/03/09 "))
	assert.Equal(t, "from:someone@example.com", h.mailbox.Queries[2])
}

func TestSyncSizeAndThreshold(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.mailbox.Add(&mail.Message{
		ID:      "big",
		Headers: []mail.Header{{Name: "Subject", Value: "CV"}},
		Payload: &mail.Part{Parts: []*mail.Part{
			{MimeType: "application/pdf", Filename: "cv.pdf", AttachmentID: "huge", Size: 11 * 1024 * 1024},
		}},
	}, map[string][]byte{"huge": []byte("%PDF")})
	h.mailbox.AddPDF("plain", "x@example.com", "Hello", "", "document.pdf", []byte("%PDF doc"))

	opts := DefaultOptions()
	opts.FilterThreshold = 60
	result := h.sync(t, h.engine(spontaneous(), zap.NewNop()), opts)

	assert.Equal(t, 2, result.PDFAttachments)
	assert.Equal(t, 2, result.FilteredOut)
	assert.Zero(t, result.NewResumes)
	assert.Zero(t, h.mailbox.AttachmentGets["huge"])
}

func TestSyncWithoutSmartFiltering(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.mailbox.AddPDF("m1", "billing@example.com", "Invoice", "", "invoice.pdf", []byte("%PDF inv"))

	opts := DefaultOptions()
	opts.SmartFiltering = false
	result := h.sync(t, h.engine(spontaneous(), zap.NewNop()), opts)

	assert.Equal(t, 1, result.NewResumes)
	assert.Zero(t, result.FilteredOut)
}

func TestSyncFallsBackToSpontaneousApplication(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	h.mailbox.AddPDF("m1", "jan@example.com", "CV", "", "cv.pdf", []byte("%PDF 1"))

	missing := int64(999)
	d := &staticDetector{detection: detector.Detection{PositionID: &missing, Type: store.ApplicationDirect, Confidence: 90}}
	result := h.sync(t, h.engine(d, zap.NewNop()), DefaultOptions())
	require.Equal(t, 1, result.NewResumes)

	ids, err := h.db.ResumeIDsByStatus(ctx, 1, store.ResumePending)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	app, err := h.db.ApplicationForResume(ctx, 1, ids[0])
	require.NoError(t, err)
	assert.Equal(t, store.ApplicationSpontaneous, app.Type)
	assert.Nil(t, app.JobPositionID)
}

type failingApplications struct {
	*store.DB
}

func (failingApplications) CreateApplication(context.Context, int64, *int64, store.ApplicationType) (*store.Application, error) {
	return nil, errors.New("applications table is locked")
}

func TestSyncRecordsApplicationFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	h.mailbox.AddPDF("m1", "jan@example.com", "CV", "", "cv.pdf", []byte("%PDF 1"))

	position := int64(1)
	d := &staticDetector{detection: detector.Detection{PositionID: &position, Type: store.ApplicationDirect, Confidence: 90}}
	e := NewEngine(h.mailbox, failingApplications{h.db}, h.objects, d, zap.NewNop())

	result := h.sync(t, e, DefaultOptions())
	assert.Equal(t, 1, result.NewResumes)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "cv.pdf")
	assert.Contains(t, result.Errors[0], "fallback application")

	ids, err := h.db.ResumeIDsByStatus(ctx, 1, store.ResumePending)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	_, err = h.db.ApplicationForResume(ctx, 1, ids[0])
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncUsesDetector(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	position := &store.JobPosition{TeamID: 1, Title: "Go Developer"}
	_, err := h.db.CreatePosition(ctx, position)
	require.NoError(t, err)

	h.mailbox.AddPDF("m1", "jan@example.com", "Go Developer application", "I am applying for the Go Developer role.", "cv.pdf", []byte("%PDF 1"))

	provider := aitest.Static(fmt.Sprintf(`{"jobPositionId": %d, "confidence": 92, "reason": "Subject names the role"}`, position.ID))
	d := detector.New(h.db, provider, zap.NewNop(), 0)

	result := h.sync(t, h.engine(d, zap.NewNop()), DefaultOptions())
	require.Equal(t, 1, result.NewResumes)
	assert.Contains(t, provider.Requests()[0].Prompt, "I am applying for the Go Developer role.")

	apps, err := h.db.PositionApplications(ctx, 1, position.ID)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, store.ApplicationDirect, apps[0].Type)
}

func TestSyncRejectsUnknownOrInactiveAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	e := h.engine(spontaneous(), zap.NewNop())

	_, err := e.Sync(ctx, h.account.ID, 2, DefaultOptions())
	assert.ErrorIs(t, err, store.ErrNotFound)

	inactive := &store.MailAccount{TeamID: 1, Email: "old@example.com"}
	_, err = h.db.CreateAccount(ctx, inactive)
	require.NoError(t, err)

	_, err = e.Sync(ctx, inactive.ID, 1, DefaultOptions())
	require.Error(t, err)
	assert.Empty(t, h.mailbox.Queries)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	h.mailbox.AddPDF("m1", "jan@example.com", "CV", "", "cv.pdf", []byte("%PDF 1"))

	e := h.engine(spontaneous(), zap.NewNop())
	fixed := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	h.sync(t, e, DefaultOptions())

	status, err := e.Status(ctx, h.account.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "hr@example.com", status.Email)
	require.NotNil(t, status.LastSyncAt)
	assert.True(t, fixed.Equal(*status.LastSyncAt))
	assert.Equal(t, 1, status.Total)
	assert.Equal(t, 1, status.Pending)
}
