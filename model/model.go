package model

import (
	"context"
	"fmt"
)

// Message is one entry of the conversation handed to the backend. Role is
// "user" or "assistant"; system text travels separately in
// Request.Instructions.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Request is the normalized input for one generation.
type Request struct {
	Instructions string    `json:"instructions"`
	Messages     []Message `json:"messages"`
	Stream       bool      `json:"stream,omitempty"`
}

// Usage captures token accounting for a generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	Partial      bool   `json:"partial"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Model is the minimal interface the partner layer needs to drive
// generation. Implementations must close both channels when done and honor
// context cancellation between emissions.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model for tests. Canned generations
// are keyed on the final user message; unkeyed prompts get a deterministic
// echo.
type MockModel struct {
	info      Info
	responses map[string]string
	delay     func(ctx context.Context) error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned generation for an input.
func (m *MockModel) AddResponse(input, response string) { m.responses[input] = response }

// SetDelay installs a hook invoked before emitting, letting tests simulate
// slow backends. Returning a non-nil error aborts the generation.
func (m *MockModel) SetDelay(fn func(ctx context.Context) error) { m.delay = fn }

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if m.delay != nil {
			if err := m.delay(ctx); err != nil {
				errCh <- err
				return
			}
		}
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		input := req.Messages[len(req.Messages)-1].Text
		full, ok := m.responses[input]
		if !ok {
			full = fmt.Sprintf("PARTNER: Yes, and %s", input)
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Text: full, FinishReason: "stop"}:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

var _ Model = (*MockModel)(nil)
