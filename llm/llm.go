// Package llm holds the language-model capabilities the research loop consumes and the
// provider adapters that implement them.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Option allows for optional parameters like Temperature or Model.
type Option func(*Options)

type Options struct {
	Model       string // Override default model
	Temperature *float64
	MaxTokens   int
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = &temp
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// Apply folds opts over the zero Options.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TextGenerator produces free text for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// StructuredGenerator decodes the model's JSON answer into out.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt string, out any, opts ...Option) error
}

// GroundedGenerator answers with text plus the web sources that ground it.
type GroundedGenerator interface {
	GenerateGrounded(ctx context.Context, prompt string, opts ...Option) (GroundedResponse, error)
}

// Provider is a backend offering both plain and structured generation.
type Provider interface {
	TextGenerator
	StructuredGenerator
	Name() string
}

// GroundingChunk is one web document used to ground an answer.
type GroundingChunk struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// GroundingSupport ties a byte span of the answer to the chunks that support it.
type GroundingSupport struct {
	StartIndex   int   `json:"start_index"`
	EndIndex     int   `json:"end_index"`
	ChunkIndices []int `json:"grounding_chunk_indices"`
}

type GroundedResponse struct {
	Text     string
	Chunks   []GroundingChunk
	Supports []GroundingSupport
}
