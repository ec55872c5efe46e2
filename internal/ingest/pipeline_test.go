package ingest

import (
	"context"
	"fmt"
	"testing"

	"github.com/spigell/cvsift/internal/ai/aitest"
	"github.com/spigell/cvsift/internal/classifier"
	"github.com/spigell/cvsift/internal/detector"
	"github.com/spigell/cvsift/internal/matching"
	"github.com/spigell/cvsift/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	detectionKey  = "# Job position detection"
	validationKey = "# Resume validation"
	extractionKey = "# Candidate profile extraction"
	matchKey      = "# Candidate match assessment"
)

type pdfText map[string]string

func (p pdfText) ExtractText(_ context.Context, data []byte) (string, error) {
	text, ok := p[string(data)]
	if !ok {
		return "", fmt.Errorf("unexpected document %q", data)
	}
	return text, nil
}

func TestPipeline(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		applies   bool
		wantType  store.MatchType
		wantAppID bool
	}{
		{name: "applied to the position", applies: true, wantType: store.MatchDirect, wantAppID: true},
		{name: "spontaneous application", applies: false, wantType: store.MatchCross},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			h := newHarness(t)

			position := &store.JobPosition{TeamID: 1, Title: "Go Developer", Requirements: "Go", Location: "Warsaw"}
			_, err := h.db.CreatePosition(ctx, position)
			require.NoError(t, err)

			h.mailbox.AddPDF("m1", "Jan Kowalski <jan@example.com>", "Moje CV", "Dzień dobry, w załączeniu CV.", "jan_kowalski.pdf", []byte("%PDF jan"))
			h.mailbox.AddPDF("m2", "office@example.com", "March", "Please find the invoice attached.", "invoice_march.pdf", []byte("%PDF invoice"))

			detection := `{"jobPositionId": null, "confidence": 80, "reason": "No position named"}`
			if tc.applies {
				detection = fmt.Sprintf(`{"jobPositionId": %d, "confidence": 85, "reason": "Go Developer"}`, position.ID)
			}

			provider := aitest.Route(
				[]string{detectionKey, validationKey, extractionKey, matchKey},
				map[string]string{
					detectionKey:  detection,
					validationKey: `{"isCV": true, "confidence": 93, "reason": "Experience and skills sections"}`,
					extractionKey: `{"firstName": "Jan", "lastName": "Kowalski", "email": "jan@example.com",
						"technicalSkills": ["Go"], "softSkills": [], "experience": [], "education": []}`,
					matchKey: `{"matchScore": 82, "aiAnalysis": "Strong Go background.", "strengths": ["Go"],
						"weaknesses": ["No Kubernetes"], "summary": "Very good fit."}`,
				},
			)

			syncer := h.engine(detector.New(h.db, provider, zap.NewNop(), 0), zap.NewNop())
			result := h.sync(t, syncer, DefaultOptions())
			assert.Equal(t, 2, result.PDFAttachments)
			assert.Equal(t, 1, result.FilteredOut)
			assert.Equal(t, 1, result.NewResumes)
			assert.Empty(t, result.Errors)

			processor := classifier.NewProcessor(h.db, h.objects, pdfText{"%PDF jan": "Jan Kowalski\nGo developer"}, provider, zap.NewNop(), 0)
			engine := matching.NewEngine(h.db, processor, provider, zap.NewNop(), 0)

			matches, err := engine.MatchPosition(ctx, 1, position.ID, matching.DefaultOptions())
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, tc.wantType, matches[0].Type)
			assert.Equal(t, tc.wantAppID, matches[0].ApplicationID != nil)
			assert.Equal(t, 82, matches[0].Score)
			assert.Equal(t, "Jan Kowalski", matches[0].CandidateName)

			status, err := syncer.Status(ctx, h.account.ID, 1)
			require.NoError(t, err)
			assert.Equal(t, 1, status.Processed)
			assert.Zero(t, status.Pending)
		})
	}
}
