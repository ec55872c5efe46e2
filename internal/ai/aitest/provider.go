// Package aitest provides a scripted ai.Provider for tests.
package aitest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/spigell/cvsift/internal/ai"
)

// Provider answers every request through Respond and records the requests.
type Provider struct {
	Respond func(req ai.Request) (string, error)

	mu       sync.Mutex
	requests []ai.Request
}

// Static returns a provider that always answers with text.
func Static(text string) *Provider {
	return &Provider{Respond: func(ai.Request) (string, error) { return text, nil }}
}

// Failing returns a provider whose every call fails with err.
func Failing(err error) *Provider {
	return &Provider{Respond: func(ai.Request) (string, error) { return "", err }}
}

// Route answers with the first route whose key is contained in the prompt.
// Keys are tried in the order given in keys.
func Route(keys []string, answers map[string]string) *Provider {
	return &Provider{Respond: func(req ai.Request) (string, error) {
		for _, key := range keys {
			if strings.Contains(req.Prompt, key) {
				return answers[key], nil
			}
		}
		return "", errors.New("aitest: no route for prompt")
	}}
}

func (p *Provider) Complete(_ context.Context, req ai.Request) (*ai.Completion, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.Respond == nil {
		return nil, errors.New("aitest: no responder")
	}
	text, err := p.Respond(req)
	if err != nil {
		return nil, err
	}
	return &ai.Completion{Text: text}, nil
}

// Requests returns a copy of the recorded requests.
func (p *Provider) Requests() []ai.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ai.Request(nil), p.requests...)
}

// Calls returns the number of recorded requests.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
