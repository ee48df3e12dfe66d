package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fiscora-ai/fiscora/config"
	"github.com/fiscora-ai/fiscora/internal/segment"
	"github.com/fiscora-ai/fiscora/internal/store"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

// fakeSearcher replays scripted responses per stage invocation.
type fakeSearcher struct {
	oversampled []stageResult
	exact       []stageResult

	oversampledCalls int
	exactCalls       int
	efSeen           []int
}

type stageResult struct {
	hits []store.Hit
	err  error
}

func (f *fakeSearcher) SearchOversampled(ctx context.Context, vec []float32, years []int, topics []segment.Topic, limit, oversample, efSearch int) ([]store.Hit, error) {
	i := f.oversampledCalls
	f.oversampledCalls++
	f.efSeen = append(f.efSeen, efSearch)
	if i >= len(f.oversampled) {
		return nil, nil
	}
	return f.oversampled[i].hits, f.oversampled[i].err
}

func (f *fakeSearcher) SearchExactBounded(ctx context.Context, vec []float32, years []int, topics []segment.Topic, limit, pool int) ([]store.Hit, error) {
	i := f.exactCalls
	f.exactCalls++
	if i >= len(f.exact) {
		return nil, nil
	}
	return f.exact[i].hits, f.exact[i].err
}

func testConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		Limit:               8,
		OversampleFactor:    5,
		EFSearch:            80,
		ReducedEFSearch:     40,
		ReducedOversample:   2,
		ExactFallbackPool:   2000,
		SearchTimeout:       time.Second,
		MaxExpectedDistance: 1.0,
		RecencyDecayPerYear: 0.05,
		MinRecencyWeight:    0.7,
		AuthoritySource:     "Belastingdienst",
		AuthorityBoost:      1.15,
	}
}

func hitWith(id string, distance float64, source string, years ...int) store.Hit {
	return store.Hit{
		Segment: segment.Segment{
			ID:     id,
			Source: source,
			Years:  years,
			Topics: map[segment.Topic]bool{segment.TopicInkomstenbelasting: true},
		},
		Distance: distance,
	}
}

func TestSearchUnknownTopicShortCircuit(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	eng := NewEngine(&fakeSearcher{}, emb, nil, testConfig(), "m", nil)

	got, err := eng.Search(context.Background(), Query{
		Text:   "wat is box 3",
		Topics: []segment.Topic{segment.TopicUnknown},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got != nil {
		t.Fatalf("expected empty result, got %d", len(got))
	}
	if emb.calls != 0 {
		t.Fatalf("embedding must be skipped, saw %d calls", emb.calls)
	}
}

func TestSearchDegradesToReduced(t *testing.T) {
	t.Parallel()
	st := &fakeSearcher{
		oversampled: []stageResult{
			{err: context.DeadlineExceeded},
			{hits: []store.Hit{hitWith("a", 0.2, "Belastingdienst", 2024)}},
		},
	}
	eng := NewEngine(st, &fakeEmbedder{}, nil, testConfig(), "m", nil)

	got, err := eng.Search(context.Background(), Query{Text: "aftrek zorgkosten"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Segment.ID != "a" {
		t.Fatalf("expected hit from reduced stage, got %+v", got)
	}
	if st.oversampledCalls != 2 || st.exactCalls != 0 {
		t.Fatalf("expected 2 oversampled calls and no exact calls, got %d/%d", st.oversampledCalls, st.exactCalls)
	}
	if st.efSeen[1] != 40 {
		t.Fatalf("reduced stage should use reduced ef_search, got %d", st.efSeen[1])
	}
}

func TestSearchFallsThroughToExact(t *testing.T) {
	t.Parallel()
	st := &fakeSearcher{
		oversampled: []stageResult{
			{err: context.DeadlineExceeded},
			{err: context.DeadlineExceeded},
		},
		exact: []stageResult{
			{hits: []store.Hit{hitWith("b", 0.3, "KVK", 2023)}},
		},
	}
	eng := NewEngine(st, &fakeEmbedder{}, nil, testConfig(), "m", nil)

	got, err := eng.Search(context.Background(), Query{Text: "btw tarief"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Segment.ID != "b" {
		t.Fatalf("expected exact fallback hit, got %+v", got)
	}
}

func TestSearchLadderExhaustedReturnsEmpty(t *testing.T) {
	t.Parallel()
	st := &fakeSearcher{
		oversampled: []stageResult{
			{err: context.DeadlineExceeded},
			{err: context.DeadlineExceeded},
		},
		exact: []stageResult{{err: context.DeadlineExceeded}},
	}
	eng := NewEngine(st, &fakeEmbedder{}, nil, testConfig(), "m", nil)

	got, err := eng.Search(context.Background(), Query{Text: "toeslagen"})
	if err != nil {
		t.Fatalf("empty ladder must not error, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}

func TestSearchTransientRetryOnce(t *testing.T) {
	t.Parallel()
	st := &fakeSearcher{
		oversampled: []stageResult{
			{err: errors.New("read tcp: connection reset by peer")},
			{hits: []store.Hit{hitWith("a", 0.1, "Belastingdienst", 2024)}},
		},
	}
	eng := NewEngine(st, &fakeEmbedder{}, nil, testConfig(), "m", nil)

	got, err := eng.Search(context.Background(), Query{Text: "loonheffing"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected retry to succeed, got %d hits", len(got))
	}
	if st.efSeen[0] != 80 || st.efSeen[1] != 80 {
		t.Fatalf("retry must rerun the same stage, ef sequence %v", st.efSeen)
	}
}

func TestSearchDegradesWhenEmbeddingFails(t *testing.T) {
	t.Parallel()
	st := &fakeSearcher{}
	emb := &fakeEmbedder{err: errors.New("rate limited")}
	eng := NewEngine(st, emb, nil, testConfig(), "m", nil)

	got, err := eng.Search(context.Background(), Query{Text: "middelingsregeling"})
	if err != nil {
		t.Fatalf("embedding failure must not abort the search, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected no candidates, got %d", len(got))
	}
	if st.oversampledCalls != 0 || st.exactCalls != 0 {
		t.Fatalf("store must not be queried without a query vector")
	}
}

func TestScoreRecencyMonotonic(t *testing.T) {
	t.Parallel()
	eng := NewEngine(&fakeSearcher{}, &fakeEmbedder{}, nil, testConfig(), "m", nil)
	eng.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	older := eng.score(hitWith("a", 0.2, "Belastingdienst", 2020), Query{})
	newer := eng.score(hitWith("a", 0.2, "Belastingdienst", 2025), Query{})
	if newer < older {
		t.Fatalf("newer year scored lower: newer=%v older=%v", newer, older)
	}
}

func TestScoreAuthorityBoost(t *testing.T) {
	t.Parallel()
	eng := NewEngine(&fakeSearcher{}, &fakeEmbedder{}, nil, testConfig(), "m", nil)
	eng.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	plain := eng.score(hitWith("a", 0.2, "KVK", 2025), Query{})
	boosted := eng.score(hitWith("a", 0.2, "Belastingdienst", 2025), Query{})
	if boosted <= plain {
		t.Fatalf("authority source must outrank: boosted=%v plain=%v", boosted, plain)
	}
}

func TestScoreClampedDistance(t *testing.T) {
	t.Parallel()
	eng := NewEngine(&fakeSearcher{}, &fakeEmbedder{}, nil, testConfig(), "m", nil)
	if got := eng.score(hitWith("a", 2.5, "KVK"), Query{}); got != 0 {
		t.Fatalf("distance beyond max must clamp score to 0, got %v", got)
	}
}
