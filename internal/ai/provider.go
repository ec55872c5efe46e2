package ai

import "context"

// Request is a single prompt sent to a language model.
type Request struct {
	Prompt      string
	Temperature float32
	// MaxTokens caps the completion length. Zero leaves the provider default.
	MaxTokens int32
	// JSONMode asks the provider to answer with a single JSON object.
	JSONMode bool
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Completion is the textual answer of a provider.
type Completion struct {
	Text  string
	Usage Usage
}

// Provider is a synchronous request/response language model.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Pinger is implemented by providers that can verify their credentials.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Describer is implemented by providers that expose their name and model for logs.
type Describer interface {
	Name() string
	Model() string
}

// Describe returns provider and model names when p implements Describer.
func Describe(p Provider) (name, model string) {
	if d, ok := p.(Describer); ok {
		return d.Name(), d.Model()
	}
	return "", ""
}
