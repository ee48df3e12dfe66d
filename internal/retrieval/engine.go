package retrieval

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/fiscora-ai/fiscora/config"
	"github.com/fiscora-ai/fiscora/internal/cache"
	"github.com/fiscora-ai/fiscora/internal/metrics"
	"github.com/fiscora-ai/fiscora/internal/segment"
	"github.com/fiscora-ai/fiscora/internal/store"
)

// Query is one retrieval request: question text plus optional categorical
// filters derived from question analysis.
type Query struct {
	Text   string
	Years  []int
	Topics []segment.Topic
}

// Candidate is a scored retrieval result.
type Candidate struct {
	Segment  segment.Segment
	Distance float64
	Score    float64
}

// Searcher is the store surface the engine depends on.
type Searcher interface {
	SearchOversampled(ctx context.Context, vec []float32, years []int, topics []segment.Topic, limit, oversample, efSearch int) ([]store.Hit, error)
	SearchExactBounded(ctx context.Context, vec []float32, years []int, topics []segment.Topic, limit, pool int) ([]store.Hit, error)
}

// Embedder produces query embeddings.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine runs vector search with the degradation ladder and scores results.
type Engine struct {
	store    Searcher
	embedder Embedder
	cache    *cache.EmbeddingCache
	cfg      config.RetrievalConfig
	model    string
	logger   *log.Logger

	now func() time.Time
}

// NewEngine wires the retrieval engine. cache may be nil.
func NewEngine(st Searcher, emb Embedder, c *cache.EmbeddingCache, cfg config.RetrievalConfig, embeddingModel string, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[RETRIEVAL] ", log.LstdFlags)
	}
	return &Engine{
		store:    st,
		embedder: emb,
		cache:    c,
		cfg:      cfg,
		model:    embeddingModel,
		logger:   logger,
		now:      time.Now,
	}
}

// ladderState tracks where a search sits on the degradation ladder.
type ladderState int

const (
	stateNormal ladderState = iota
	stateReduced
	stateExact
	stateEmpty
)

func (s ladderState) String() string {
	switch s {
	case stateNormal:
		return "normal"
	case stateReduced:
		return "reduced"
	case stateExact:
		return "exact"
	default:
		return "empty"
	}
}

// Search embeds the query and walks the ladder until a stage yields rows or
// the ladder is exhausted. An empty result means no internal coverage and is
// not an error. When the only requested topic is the unknown sentinel the
// search is skipped entirely.
func (e *Engine) Search(ctx context.Context, q Query) ([]Candidate, error) {
	if onlyUnknownTopic(q.Topics) {
		return nil, nil
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, nil
	}

	vec, err := e.embedQuery(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Without a query vector there is no internal retrieval, but the
		// caller can still answer from web sources or context alone.
		e.logger.Printf("warn: query embedding failed, skipping internal retrieval: %v", err)
		return nil, nil
	}

	hits := e.runLadder(ctx, vec, q)
	return e.scoreAndSort(hits, q), nil
}

// embedQuery serves the query vector from cache when possible.
func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec := e.cache.Get(ctx, e.model, text); len(vec) > 0 {
		metrics.EmbeddingCacheHits.Inc()
		return vec, nil
	}
	vecs, err := e.embedder.CreateEmbedding(ctx, []string{text})
	if err != nil {
		metrics.EmbeddingFailures.Inc()
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		metrics.EmbeddingFailures.Inc()
		return nil, errors.New("provider returned no embedding")
	}
	e.cache.Put(ctx, e.model, text, vecs[0])
	return vecs[0], nil
}

// runLadder executes one search stage at a time, degrading on timeout or
// failure. A transient connection loss grants exactly one extra attempt of
// the same stage before degrading.
func (e *Engine) runLadder(ctx context.Context, vec []float32, q Query) []store.Hit {
	state := stateNormal
	retried := false

	for state != stateEmpty {
		hits, err := e.runStage(ctx, state, vec, q)
		if err == nil {
			return hits
		}
		if ctx.Err() != nil {
			return nil
		}
		if isTransientConn(err) && !retried {
			retried = true
			e.logger.Printf("warn: transient connection failure at %s stage, retrying once: %v", state, err)
			continue
		}
		next := state + 1
		e.logger.Printf("warn: %s search failed, degrading to %s: %v", state, next, err)
		metrics.RetrievalDegradations.WithLabelValues(next.String()).Inc()
		state = next
	}
	return nil
}

func (e *Engine) runStage(ctx context.Context, state ladderState, vec []float32, q Query) ([]store.Hit, error) {
	timeout := e.cfg.SearchTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch state {
	case stateNormal:
		return e.store.SearchOversampled(sctx, vec, q.Years, q.Topics,
			e.cfg.Limit, e.cfg.OversampleFactor, e.cfg.EFSearch)
	case stateReduced:
		return e.store.SearchOversampled(sctx, vec, q.Years, q.Topics,
			e.cfg.Limit, e.cfg.ReducedOversample, e.cfg.ReducedEFSearch)
	case stateExact:
		return e.store.SearchExactBounded(sctx, vec, q.Years, q.Topics,
			e.cfg.Limit, e.cfg.ExactFallbackPool)
	default:
		return nil, nil
	}
}

// scoreAndSort applies distance, topic, recency and authority weights and
// orders candidates by descending final score.
func (e *Engine) scoreAndSort(hits []store.Hit, q Query) []Candidate {
	if len(hits) == 0 {
		return nil
	}
	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, Candidate{
			Segment:  h.Segment,
			Distance: h.Distance,
			Score:    e.score(h, q),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (e *Engine) score(h store.Hit, q Query) float64 {
	maxDist := e.cfg.MaxExpectedDistance
	if maxDist <= 0 {
		maxDist = 1.0
	}
	norm := 1 - h.Distance/maxDist
	if norm < 0 {
		norm = 0
	}
	if norm > 1 {
		norm = 1
	}
	return norm * e.topicWeight(h.Segment, q) * e.recencyWeight(h.Segment) * e.authorityWeight(h.Segment)
}

// topicWeight mildly penalises candidates whose topics do not intersect the
// requested filter. With an active filter the store already guarantees the
// intersection, so this only bites on unfiltered searches.
func (e *Engine) topicWeight(seg segment.Segment, q Query) float64 {
	if len(q.Topics) == 0 || onlyUnknownTopic(q.Topics) {
		return 1.0
	}
	for _, t := range q.Topics {
		if seg.Topics[t] {
			return 1.0
		}
	}
	return 0.85
}

// recencyWeight decays per year of age from the most recent tagged year,
// floored at the configured minimum. Untagged segments are not penalised.
func (e *Engine) recencyWeight(seg segment.Segment) float64 {
	if len(seg.Years) == 0 {
		return 1.0
	}
	latest := seg.Years[0]
	for _, y := range seg.Years[1:] {
		if y > latest {
			latest = y
		}
	}
	age := e.now().Year() - latest
	if age <= 0 {
		return 1.0
	}
	decay := e.cfg.RecencyDecayPerYear
	if decay <= 0 {
		decay = 0.05
	}
	w := 1 - decay*float64(age)
	min := e.cfg.MinRecencyWeight
	if min <= 0 {
		min = 0.7
	}
	if w < min {
		return min
	}
	return w
}

func (e *Engine) authorityWeight(seg segment.Segment) float64 {
	if e.cfg.AuthoritySource != "" && strings.EqualFold(seg.Source, e.cfg.AuthoritySource) {
		boost := e.cfg.AuthorityBoost
		if boost > 0 {
			return boost
		}
	}
	return 1.0
}

func onlyUnknownTopic(topics []segment.Topic) bool {
	if len(topics) == 0 {
		return false
	}
	for _, t := range topics {
		if t != segment.TopicUnknown {
			return false
		}
	}
	return true
}

// isTransientConn reports whether the error indicates a dropped connection
// worth a single retry, as opposed to a timeout or a query error.
func isTransientConn(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection reset", "broken pipe", "bad connection", "connection refused", "unexpectedly closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
