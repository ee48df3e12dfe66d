package provider

import (
	"context"
	"errors"

	"github.com/fiscora-ai/fiscora/config"
	openai_provider "github.com/fiscora-ai/fiscora/provider/openai"
)

// StreamDelta is a single partial result of a streaming completion. Cumulative
// always carries the full model output produced so far, not just the new bytes.
type StreamDelta = openai_provider.StreamDelta

// Provider abstracts the external completion and embedding APIs.
type Provider interface {
	// CreateEmbedding returns one fixed-dimension vector per input text.
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	// Complete performs a bounded non-streaming completion.
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
	// StreamComplete starts a streaming completion and returns a channel of
	// cumulative partial results. The channel is closed when the stream ends.
	StreamComplete(ctx context.Context, system, user string) (<-chan StreamDelta, error)
}

var ErrUnsupportedProvider = errors.New("unsupported llm provider")

// NewProvider builds a Provider from configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return openai_provider.NewClient(openai_provider.Options{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			CompletionModel: cfg.CompletionModel,
			EmbeddingModel:  cfg.EmbeddingModel,
			Temperature:     cfg.Temperature,
			MaxTokens:       cfg.MaxTokens,
			Timeout:         cfg.Timeout,
		}), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
