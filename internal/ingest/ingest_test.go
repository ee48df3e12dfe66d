package ingest

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/fiscora-ai/fiscora/config"
	"github.com/fiscora-ai/fiscora/internal/segment"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1}
	}
	return out, nil
}

type fakeStore struct {
	err  error
	segs []segment.Segment
}

func (f *fakeStore) UpsertSegment(ctx context.Context, seg segment.Segment) error {
	if f.err != nil {
		return f.err
	}
	f.segs = append(f.segs, seg)
	return nil
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func testIngestor(emb *fakeEmbedder, st *fakeStore) *Ingestor {
	seg := segment.NewSegmenter(config.SegmenterConfig{MaxTokens: 1000}, testLogger())
	return New(seg, emb, st, testLogger())
}

const rawDoc = `Jaar: [2024]
Titel: Aangifte doen
Bron: Belastingdienst
Categorie: inkomstenbelasting
URL: https://www.belastingdienst.nl/aangifte
Gescraped: 2024-03-01T12:00:00Z
Content:
# Aangifte

U doet voor 1 mei aangifte over het voorgaande jaar.`

func TestIngestRawStoresSegments(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	st := &fakeStore{}
	var stats Stats
	if err := testIngestor(emb, st).IngestRaw(context.Background(), rawDoc, &stats); err != nil {
		t.Fatalf("IngestRaw: %v", err)
	}
	if stats.Documents != 1 || stats.Stored == 0 || stats.Stored != stats.Segments {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(st.segs) != stats.Stored {
		t.Fatalf("store saw %d segments, stats say %d", len(st.segs), stats.Stored)
	}
	if len(st.segs[0].Embedding) == 0 {
		t.Fatalf("stored segment missing embedding")
	}
}

func TestIngestRawSkipsEmptyDocument(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	st := &fakeStore{}
	var stats Stats
	raw := "Titel: leeg\nContent:\n"
	if err := testIngestor(emb, st).IngestRaw(context.Background(), raw, &stats); err != nil {
		t.Fatalf("empty document must not raise, got %v", err)
	}
	if stats.SkippedDocs != 1 || stats.Segments != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestIngestRawCountsEmbeddingFailures(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{err: errors.New("quota exceeded")}
	st := &fakeStore{}
	var stats Stats
	if err := testIngestor(emb, st).IngestRaw(context.Background(), rawDoc, &stats); err != nil {
		t.Fatalf("embedding failure must be swallowed, got %v", err)
	}
	if stats.EmbedFailures == 0 || stats.Stored != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestIngestRawCountsUpsertFailures(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	st := &fakeStore{err: errors.New("dimension mismatch")}
	var stats Stats
	if err := testIngestor(emb, st).IngestRaw(context.Background(), rawDoc, &stats); err != nil {
		t.Fatalf("upsert failure must be swallowed, got %v", err)
	}
	if stats.UpsertFailures == 0 || stats.Stored != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
