package detector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spigell/cvsift/internal/ai/aitest"
	"github.com/spigell/cvsift/internal/store"
	"go.uber.org/zap"
)

type fakePositions struct {
	positions []store.JobPosition
	err       error
}

func (f fakePositions) ActivePositions(context.Context, int64) ([]store.JobPosition, error) {
	return f.positions, f.err
}

var openPositions = []store.JobPosition{
	{ID: 3, Title: "Go Developer", Description: strings.Repeat("d", 800), Location: "Warsaw"},
	{ID: 9, Title: "QA Engineer", Location: "Remote"},
}

func TestDetect(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		positions  fakePositions
		answer     string
		aiErr      error
		wantID     *int64
		wantConf   int
		wantType   store.ApplicationType
		wantAICall bool
	}{
		{
			name:      "no active positions",
			positions: fakePositions{},
			wantConf:  100,
			wantType:  store.ApplicationSpontaneous,
		},
		{
			name:       "matching position",
			positions:  fakePositions{positions: openPositions},
			answer:     `{"jobPositionId": 3, "confidence": 87, "reason": "Subject names the Go Developer position"}`,
			wantID:     int64Ptr(3),
			wantConf:   87,
			wantType:   store.ApplicationDirect,
			wantAICall: true,
		},
		{
			name:       "string id is accepted",
			positions:  fakePositions{positions: openPositions},
			answer:     "```json\n{\"jobPositionId\": \"9\", \"confidence\": \"70\", \"reason\": \"QA\"}\n```",
			wantID:     int64Ptr(9),
			wantConf:   70,
			wantType:   store.ApplicationDirect,
			wantAICall: true,
		},
		{
			name:       "null id",
			positions:  fakePositions{positions: openPositions},
			answer:     `{"jobPositionId": null, "confidence": 90, "reason": "General inquiry"}`,
			wantConf:   90,
			wantType:   store.ApplicationSpontaneous,
			wantAICall: true,
		},
		{
			name:       "unknown id",
			positions:  fakePositions{positions: openPositions},
			answer:     `{"jobPositionId": 42, "confidence": 95, "reason": "Sales"}`,
			wantConf:   100,
			wantType:   store.ApplicationSpontaneous,
			wantAICall: true,
		},
		{
			name:       "missing id key",
			positions:  fakePositions{positions: openPositions},
			answer:     `{"confidence": 95, "reason": "Sales"}`,
			wantType:   store.ApplicationSpontaneous,
			wantAICall: true,
		},
		{
			name:       "provider failure",
			positions:  fakePositions{positions: openPositions},
			aiErr:      errors.New("timeout"),
			wantType:   store.ApplicationSpontaneous,
			wantAICall: true,
		},
		{
			name:      "store failure",
			positions: fakePositions{err: errors.New("db down")},
			wantType:  store.ApplicationSpontaneous,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			provider := aitest.Static(tc.answer)
			if tc.aiErr != nil {
				provider = aitest.Failing(tc.aiErr)
			}

			d := New(tc.positions, provider, zap.NewNop(), 0)
			got := d.Detect(context.Background(), 1, "Application: Go Developer", "Hello, please find my CV attached.")

			if got.Type != tc.wantType {
				t.Fatalf("expected type %s, got %s", tc.wantType, got.Type)
			}
			if got.Confidence != tc.wantConf {
				t.Fatalf("expected confidence %d, got %d", tc.wantConf, got.Confidence)
			}
			switch {
			case tc.wantID == nil && got.PositionID != nil:
				t.Fatalf("expected no position, got %d", *got.PositionID)
			case tc.wantID != nil && (got.PositionID == nil || *got.PositionID != *tc.wantID):
				t.Fatalf("expected position %d, got %v", *tc.wantID, got.PositionID)
			}
			if got.Reason == "" {
				t.Fatalf("expected a reason")
			}
			if (provider.Calls() > 0) != tc.wantAICall {
				t.Fatalf("expected ai call %v, got %d calls", tc.wantAICall, provider.Calls())
			}
		})
	}
}

func TestDetectPrompt(t *testing.T) {
	t.Parallel()

	provider := aitest.Static(`{"jobPositionId": null, "confidence": 50, "reason": "unclear"}`)
	d := New(fakePositions{positions: openPositions}, provider, zap.NewNop(), 0)

	body := strings.Repeat("b", 1500)
	d.Detect(context.Background(), 1, "Application: Go Developer", body)

	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one request, got %d", len(reqs))
	}
	req := reqs[0]

	if !req.JSONMode || req.Temperature != temperature {
		t.Fatalf("unexpected request options: %+v", req)
	}
	if !strings.Contains(req.Prompt, "# Job position detection") {
		t.Fatalf("expected detection heading in prompt")
	}
	if !strings.Contains(req.Prompt, "Subject: Application: Go Developer") {
		t.Fatalf("expected subject in prompt")
	}
	if strings.Contains(req.Prompt, strings.Repeat("b", BodyRunes+1)) {
		t.Fatalf("expected body to be cut to %d runes", BodyRunes)
	}
	if !strings.Contains(req.Prompt, strings.Repeat("b", BodyRunes)) {
		t.Fatalf("expected body in prompt")
	}
	if strings.Contains(req.Prompt, strings.Repeat("d", DescriptionRunes+1)) {
		t.Fatalf("expected description to be cut to %d runes", DescriptionRunes)
	}
	if !strings.Contains(req.Prompt, `"title": "QA Engineer"`) {
		t.Fatalf("expected positions in prompt")
	}
}

func int64Ptr(v int64) *int64 { return &v }
