package webaug

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/fiscora-ai/fiscora/config"
	"github.com/fiscora-ai/fiscora/tools/websearch"
)

const userAgent = "Mozilla/5.0 (compatible; FiscoraBot/1.0; +https://fiscora.nl/bot)"

// Completer is the bounded completion surface used for query generation.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Sources is the pipeline output: one delimited block per accepted page plus
// the accepted URLs in the same order. Empty means no usable web sources,
// which is a normal outcome, never an error.
type Sources struct {
	Block string
	URLs  []string
}

// Pipeline discovers, verifies and extracts live web pages to supplement
// internal retrieval. Every stage degrades to fewer (or zero) sources.
type Pipeline struct {
	cfg      config.WebAugConfig
	searcher websearch.WebSearcher
	llm      Completer
	client   *http.Client
	logger   *log.Logger
}

// NewPipeline wires the augmentation pipeline. A nil client gets a default
// with the configured fetch timeout.
func NewPipeline(cfg config.WebAugConfig, searcher websearch.WebSearcher, llm Completer, client *http.Client, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[WEBAUG] ", log.LstdFlags)
	}
	if client == nil {
		timeout := cfg.FetchTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Pipeline{cfg: cfg, searcher: searcher, llm: llm, client: client, logger: logger}
}

// Run executes the full pipeline for one question. The pipeline timeout
// bounds the whole run; on expiry partial results are discarded and the
// answer proceeds without web sources.
func (p *Pipeline) Run(ctx context.Context, question string, history []string) Sources {
	if !p.cfg.Enabled || p.searcher == nil {
		return Sources{}
	}
	if p.cfg.PipelineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PipelineTimeout)
		defer cancel()
	}

	query := p.generateQuery(ctx, question, history)

	count := p.cfg.SearchResults
	if count <= 0 {
		count = 10
	}
	results, err := p.searcher.Discover(ctx, query, count)
	if err != nil {
		p.logger.Printf("warn: web discovery failed: %v", err)
		return Sources{}
	}

	candidates := p.filterCandidates(results)
	if len(candidates) == 0 {
		return Sources{}
	}

	verified := p.verify(ctx, candidates)
	if len(verified) == 0 {
		return Sources{}
	}

	pages := p.extract(ctx, verified)
	if ctx.Err() != nil {
		p.logger.Printf("warn: augmentation deadline expired, discarding %d partial page(s)", len(pages))
		return Sources{}
	}
	return assemble(pages)
}

const queryGenSystem = `Je herschrijft een Nederlandse belastingvraag tot één korte zoekopdracht voor een zoekmachine.
Antwoord met alleen de zoekopdracht, zonder aanhalingstekens of toelichting.`

// generateQuery rewrites the question into one search query; any failure
// falls back to the raw question.
func (p *Pipeline) generateQuery(ctx context.Context, question string, history []string) string {
	if p.llm == nil {
		return question
	}
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Context:\n")
		for _, h := range history {
			fmt.Fprintf(&sb, "- %s\n", h)
		}
	}
	fmt.Fprintf(&sb, "Vraag: %s", question)

	out, err := p.llm.Complete(ctx, queryGenSystem, sb.String(), 64)
	if err != nil {
		p.logger.Printf("warn: query generation failed, using raw question: %v", err)
		return question
	}
	out = strings.Trim(strings.TrimSpace(out), `"`)
	if out == "" {
		return question
	}
	return out
}

// assemble joins extracted pages into one delimited block, in the order the
// extractions completed.
func assemble(pages []page) Sources {
	if len(pages) == 0 {
		return Sources{}
	}
	var sb strings.Builder
	var urls []string
	for i, pg := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "=== Bron: %s ===\n%s", pg.url, pg.text)
		urls = append(urls, pg.url)
	}
	return Sources{Block: sb.String(), URLs: urls}
}
