package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spigell/cvsift/internal/ai"
)

func TestClientComplete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" {\"matchScore\": 71} "}}],"usage":{"prompt_tokens":40,"completion_tokens":9}}`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "grok-test"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := client.Complete(context.Background(), ai.Request{Prompt: "score", Temperature: 0.3, JSONMode: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Text != `{"matchScore": 71}` {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if out.Usage.PromptTokens != 40 || out.Usage.CompletionTokens != 9 {
		t.Fatalf("unexpected usage %+v", out.Usage)
	}
	if got.Model != "grok-test" || got.ResponseFormat["type"] != "json_object" {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "score" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestClientCompleteErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "api error body", status: http.StatusUnauthorized, body: `{"error":{"message":"bad key"}}`, wantErr: "status 401: bad key"},
		{name: "non json failure", status: http.StatusBadGateway, body: `upstream down`, wantErr: "status 502: upstream down"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: "no choices"},
		{name: "empty content", status: http.StatusOK, body: `{"choices":[{"message":{"content":"  "}}]}`, wantErr: "empty content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := New(Config{BaseURL: srv.URL, APIKey: "k"}, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_, err = client.Complete(context.Background(), ai.Request{Prompt: "x"})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, nil); err == nil {
		t.Fatalf("expected error without api key")
	}
}
