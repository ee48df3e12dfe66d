package websearch

import (
	"context"
	"errors"

	"github.com/fiscora-ai/fiscora/config"
	"github.com/fiscora-ai/fiscora/tools/websearch/brave"
	"github.com/fiscora-ai/fiscora/tools/websearch/models"
	"github.com/fiscora-ai/fiscora/tools/websearch/serper"
)

// WebSearcher discovers candidate pages for a query.
type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

var ErrUnsupportedProvider = errors.New("unsupported web search provider")

// NewWebSearcher builds the configured provider.
func NewWebSearcher(cfg config.SearchConfig) (WebSearcher, error) {
	switch cfg.Provider {
	case "serper":
		return &serper.Search{APIKey: cfg.SerperAPIKey}, nil
	case "brave":
		return &brave.Search{APIKey: cfg.BraveAPIKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
