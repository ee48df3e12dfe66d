package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fiscora-ai/fiscora/internal/metrics"
	"github.com/fiscora-ai/fiscora/internal/segment"
)

// Upserter is the store surface ingestion writes to.
type Upserter interface {
	UpsertSegment(ctx context.Context, seg segment.Segment) error
}

// Embedder produces segment embeddings.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Stats tallies one ingestion run. Failures are counted, not raised.
type Stats struct {
	Documents      int
	SkippedDocs    int
	Segments       int
	Stored         int
	EmbedFailures  int
	UpsertFailures int
}

// Ingestor runs the parse, segment, embed, upsert pipeline.
type Ingestor struct {
	segmenter *segment.Segmenter
	embedder  Embedder
	store     Upserter
	logger    *log.Logger
}

func New(seg *segment.Segmenter, emb Embedder, st Upserter, logger *log.Logger) *Ingestor {
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	return &Ingestor{segmenter: seg, embedder: emb, store: st, logger: logger}
}

// IngestRaw processes one raw scraped document. Per-segment embedding calls
// are synchronous; a failed embedding skips that segment and counts it.
func (i *Ingestor) IngestRaw(ctx context.Context, raw string, stats *Stats) error {
	doc, err := segment.ParseDocument(raw)
	if err != nil {
		stats.SkippedDocs++
		i.logger.Printf("warn: skipping document: %v", err)
		return nil
	}
	stats.Documents++

	segs, err := i.segmenter.SegmentWithContext(ctx, doc)
	if err != nil {
		return fmt.Errorf("segmenting %q: %w", doc.Title, err)
	}
	stats.Segments += len(segs)

	for _, seg := range segs {
		vecs, err := i.embedder.CreateEmbedding(ctx, []string{seg.Content})
		if err != nil || len(vecs) == 0 || len(vecs[0]) == 0 {
			stats.EmbedFailures++
			metrics.EmbeddingFailures.Inc()
			i.logger.Printf("warn: embedding failed for segment %s: %v", seg.ID, err)
			continue
		}
		seg.Embedding = vecs[0]

		if err := i.store.UpsertSegment(ctx, seg); err != nil {
			stats.UpsertFailures++
			i.logger.Printf("warn: upsert failed for segment %s: %v", seg.ID, err)
			continue
		}
		stats.Stored++
		metrics.SegmentsIngested.Inc()
	}
	return ctx.Err()
}

// IngestPath ingests a single file or every .txt file under a directory.
func (i *Ingestor) IngestPath(ctx context.Context, path string) (Stats, error) {
	var stats Stats
	info, err := os.Stat(path)
	if err != nil {
		return stats, err
	}
	if !info.IsDir() {
		raw, err := os.ReadFile(path)
		if err != nil {
			return stats, err
		}
		return stats, i.IngestRaw(ctx, string(raw), &stats)
	}

	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(p), ".txt") {
			return nil
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			stats.SkippedDocs++
			i.logger.Printf("warn: unreadable file %s: %v", p, err)
			return nil
		}
		return i.IngestRaw(ctx, string(raw), &stats)
	})
	return stats, err
}
