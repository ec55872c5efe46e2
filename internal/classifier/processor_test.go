package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spigell/cvsift/internal/ai"
	"github.com/spigell/cvsift/internal/ai/aitest"
	"github.com/spigell/cvsift/internal/objectstore"
	"github.com/spigell/cvsift/internal/store"
	"github.com/spigell/cvsift/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	validationKey = "# Resume validation"
	extractionKey = "# Candidate profile extraction"

	cvText = "Jan Kowalski\nSenior Go Developer\nExperience: Acme 2019-2024\nSkills: Go, PostgreSQL"

	profileJSON = `{
		"firstName": "Jan",
		"lastName": "Kowalski",
		"email": "jan@example.com",
		"phone": null,
		"summary": "Backend engineer.",
		"yearsOfExperience": 5.4,
		"technicalSkills": ["Go", " PostgreSQL ", ""],
		"softSkills": ["Mentoring"],
		"experience": [{"company": "Acme", "position": "Developer", "startDate": "2019", "endDate": null, "description": "APIs"}],
		"education": [{"institution": "PW", "degree": "MSc", "field": "CS", "graduationYear": "2018"}],
		"certifications": [],
		"languages": [{"language": "English", "level": "C1"}],
		"keyAchievements": [],
		"linkedinUrl": "null",
		"location": "Warsaw, Poland"
	}`
)

type fakeText struct {
	text string
	err  error
}

func (f fakeText) ExtractText(context.Context, []byte) (string, error) {
	return f.text, f.err
}

type fixture struct {
	db      *store.DB
	objects *objectstore.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return fixture{db: storetest.Open(t), objects: objectstore.New(afero.NewMemMapFs())}
}

func (f fixture) addResume(t *testing.T, name string, upload bool) *store.Resume {
	t.Helper()

	ctx := context.Background()
	key := "team_1/missing.pdf"
	if upload {
		var err error
		key, err = f.objects.Put(ctx, []byte("%PDF-1.4 "+name), name, 1)
		require.NoError(t, err)
	}

	r := &store.Resume{
		TeamID: 1, ObjectKey: key, FileName: name, MimeType: "application/pdf",
		FileSize: 8, SourceMessageID: "msg-" + name,
	}
	_, err := f.db.InsertResume(ctx, r)
	require.NoError(t, err)
	return r
}

func validationAnswer(isCV bool, confidence int) string {
	return fmt.Sprintf(`{"isCV": %t, "confidence": %d, "reason": "checked"}`, isCV, confidence)
}

func TestProcessByID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		validation string
		extraction string
		text       fakeText
		upload     bool
		wantStatus store.ResumeStatus
		wantCalls  int
	}{
		{
			name:       "confidence at threshold is accepted",
			validation: validationAnswer(true, 60),
			extraction: profileJSON,
			text:       fakeText{text: cvText},
			upload:     true,
			wantStatus: store.ResumeProcessed,
			wantCalls:  2,
		},
		{
			name:       "confidence below threshold is rejected",
			validation: validationAnswer(true, 59),
			text:       fakeText{text: cvText},
			upload:     true,
			wantStatus: store.ResumeRejected,
			wantCalls:  1,
		},
		{
			name:       "fractional confidence below threshold is rejected",
			validation: `{"isCV": true, "confidence": 59.5, "reason": "checked"}`,
			text:       fakeText{text: cvText},
			upload:     true,
			wantStatus: store.ResumeRejected,
			wantCalls:  1,
		},
		{
			name:       "not a resume is rejected",
			validation: validationAnswer(false, 95),
			text:       fakeText{text: "Invoice 2024/03"},
			upload:     true,
			wantStatus: store.ResumeRejected,
			wantCalls:  1,
		},
		{
			name:       "missing document",
			text:       fakeText{text: cvText},
			wantStatus: store.ResumeError,
		},
		{
			name:       "text extraction failure",
			text:       fakeText{err: errors.New("pdftotext not found")},
			upload:     true,
			wantStatus: store.ResumeError,
		},
		{
			name:       "no text",
			text:       fakeText{text: "  "},
			upload:     true,
			wantStatus: store.ResumeError,
		},
		{
			name:       "malformed validation",
			validation: `{"isCV": true, "reason": "no confidence"}`,
			text:       fakeText{text: cvText},
			upload:     true,
			wantStatus: store.ResumeError,
			wantCalls:  1,
		},
		{
			name:       "blank validation fields",
			validation: `{"isCV": "", "confidence": "", "reason": "?"}`,
			text:       fakeText{text: cvText},
			upload:     true,
			wantStatus: store.ResumeError,
			wantCalls:  1,
		},
		{
			name:       "malformed extraction",
			validation: validationAnswer(true, 90),
			extraction: `{"firstName": "Jan", "lastName": "Kowalski"}`,
			text:       fakeText{text: cvText},
			upload:     true,
			wantStatus: store.ResumeError,
			wantCalls:  2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			f := newFixture(t)
			r := f.addResume(t, "jan_kowalski.pdf", tc.upload)

			provider := aitest.Route(
				[]string{validationKey, extractionKey},
				map[string]string{validationKey: tc.validation, extractionKey: tc.extraction},
			)
			p := NewProcessor(f.db, f.objects, tc.text, provider, zap.NewNop(), 0)

			outcome, err := p.ProcessByID(ctx, 1, r.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, outcome.Status)
			assert.Equal(t, tc.wantCalls, provider.Calls())
			assert.Equal(t, tc.wantStatus == store.ResumeError, outcome.Error != "")

			stored, err := f.db.GetResume(ctx, 1, r.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, stored.Status)
			assert.True(t, stored.Status.Terminal())
			assert.NotNil(t, stored.ProcessedAt)

			if tc.wantStatus == store.ResumeProcessed {
				require.NotNil(t, outcome.CandidateID)
				assert.Equal(t, *outcome.CandidateID, *stored.CandidateID)
			} else {
				assert.Nil(t, stored.CandidateID)
			}
		})
	}
}

func TestProcessByIDStoresProfile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	r := f.addResume(t, "jan_kowalski.pdf", true)

	provider := aitest.Route(
		[]string{validationKey, extractionKey},
		map[string]string{validationKey: validationAnswer(true, 88), extractionKey: "```json\n" + profileJSON + "\n```"},
	)
	p := NewProcessor(f.db, f.objects, fakeText{text: cvText}, provider, zap.NewNop(), 0)

	outcome, err := p.ProcessByID(ctx, 1, r.ID)
	require.NoError(t, err)
	require.Equal(t, store.ResumeProcessed, outcome.Status)
	assert.Equal(t, 88, outcome.Confidence)

	stored, err := f.db.GetResume(ctx, 1, r.ID)
	require.NoError(t, err)
	assert.Equal(t, cvText, stored.Text())
	require.NotNil(t, stored.ValidationScore)
	assert.Equal(t, 88, *stored.ValidationScore)

	c, err := f.db.GetCandidate(ctx, 1, *outcome.CandidateID)
	require.NoError(t, err)
	assert.Equal(t, "Jan Kowalski", c.FullName())
	assert.Nil(t, c.Phone)
	assert.Nil(t, c.LinkedInURL)
	require.NotNil(t, c.YearsOfExperience)
	assert.Equal(t, 5, *c.YearsOfExperience)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, c.TechnicalSkills)
	assert.Equal(t, "Acme", c.Experience[0].Company)
	assert.Empty(t, c.Experience[0].EndDate)
	assert.Equal(t, "C1", c.Languages[0].Level)

	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	for _, req := range reqs {
		assert.True(t, req.JSONMode)
		assert.InDelta(t, 0.1, req.Temperature, 1e-6)
	}
	assert.Contains(t, reqs[1].Prompt, "Never invent names")
}

func TestProcessByIDValidationTextIsBounded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	r := f.addResume(t, "long.pdf", true)

	provider := aitest.Static(validationAnswer(false, 90))
	p := NewProcessor(f.db, f.objects, fakeText{text: strings.Repeat("x", ValidationRunes+500)}, provider, zap.NewNop(), 0)

	_, err := p.ProcessByID(ctx, 1, r.ID)
	require.NoError(t, err)

	prompt := provider.Requests()[0].Prompt
	assert.Contains(t, prompt, strings.Repeat("x", ValidationRunes))
	assert.NotContains(t, prompt, strings.Repeat("x", ValidationRunes+1))
}

func TestProcessByIDRequiresPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	r := f.addResume(t, "cv.pdf", true)
	require.NoError(t, f.db.FinishResume(ctx, 1, r.ID, store.ResumeRejected))

	provider := aitest.Static(validationAnswer(true, 90))
	p := NewProcessor(f.db, f.objects, fakeText{text: cvText}, provider, zap.NewNop(), 0)

	_, err := p.ProcessByID(ctx, 1, r.ID)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Zero(t, provider.Calls())

	_, err = p.ProcessByID(ctx, 1, r.ID+100)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessAllPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	good := f.addResume(t, "good.pdf", true)
	rejected := f.addResume(t, "rejected.pdf", true)
	broken := f.addResume(t, "broken.pdf", false)
	done := f.addResume(t, "done.pdf", true)
	require.NoError(t, f.db.FinishResume(ctx, 1, done.ID, store.ResumeRejected))

	text := textFunc(func(data []byte) (string, error) {
		if strings.Contains(string(data), "rejected") {
			return "Quarterly report REJECT-ME", nil
		}
		return cvText, nil
	})

	provider := &aitest.Provider{Respond: func(req ai.Request) (string, error) {
		switch {
		case strings.Contains(req.Prompt, extractionKey):
			return profileJSON, nil
		case strings.Contains(req.Prompt, "REJECT-ME"):
			return validationAnswer(true, 20), nil
		default:
			return validationAnswer(true, 90), nil
		}
	}}

	observed, logs := observer.New(zap.InfoLevel)
	p := NewProcessor(f.db, f.objects, text, provider, zap.New(observed), 0)

	result, err := p.ProcessAllPending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Processed: 2, Errors: 1}, result)

	assert.Equal(t, store.ResumeProcessed, f.status(t, good.ID))
	assert.Equal(t, store.ResumeRejected, f.status(t, rejected.ID))
	assert.Equal(t, store.ResumeError, f.status(t, broken.ID))
	assert.Equal(t, store.ResumeRejected, f.status(t, done.ID))
	assert.Equal(t, 1, logs.FilterMessage("pending resumes processed").Len())

	again, err := p.ProcessAllPending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, again)

	n, err := p.ResetErrored(ctx, 1, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, store.ResumePending, f.status(t, broken.ID))
}

type textFunc func(data []byte) (string, error)

func (f textFunc) ExtractText(_ context.Context, data []byte) (string, error) {
	return f(data)
}

func (f fixture) status(t *testing.T, resumeID int64) store.ResumeStatus {
	t.Helper()

	r, err := f.db.GetResume(context.Background(), 1, resumeID)
	require.NoError(t, err)
	return r.Status
}
