package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/fiscora-ai/fiscora/internal/segment"
)

// EmbeddingDimensions is the store-wide vector size for pgvector columns.
const EmbeddingDimensions = 1536

// ErrDimensionMismatch indicates a write with a vector of the wrong length.
// It is fatal for that write only; ingestion continues with other segments.
var ErrDimensionMismatch = errors.New("embedding dimensions do not match store schema")

// Store persists segments and serves vector search over them.
type Store struct {
	DB *sql.DB
}

// Hit is one row returned from a vector search, before scoring.
type Hit struct {
	Segment  segment.Segment
	Distance float64
}

// topicColumns maps topic flags onto their boolean columns. The order is
// fixed so generated SQL stays deterministic.
var topicColumnOrder = []segment.Topic{
	segment.TopicInkomstenbelasting,
	segment.TopicOmzetbelasting,
	segment.TopicLoonheffingen,
	segment.TopicVennootschapsbelasting,
	segment.TopicToeslagen,
}

func topicColumn(t segment.Topic) string {
	return "topic_" + string(t)
}

// New opens a Postgres connection pool and verifies connectivity.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{DB: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.DB.Close() }

// UpsertSegment persists one segment, replacing every column when the id
// already exists. Embedding dimensions are enforced here, never coerced.
func (s *Store) UpsertSegment(ctx context.Context, seg segment.Segment) error {
	if seg.ID == "" {
		return fmt.Errorf("segment id required")
	}
	if len(seg.Embedding) != EmbeddingDimensions {
		return fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(seg.Embedding), EmbeddingDimensions)
	}
	vectorLiteral, err := encodeVectorLiteral(seg.Embedding)
	if err != nil {
		return err
	}

	var pages interface{}
	if len(seg.Locator.Pages) > 0 {
		pages = pq.Array(seg.Locator.Pages)
	}
	var headers interface{}
	if len(seg.Locator.Headers) > 0 {
		headers = pq.Array(seg.Locator.Headers)
	}

	args := []interface{}{
		seg.ID, seg.Title, seg.Content, pq.Array(seg.Years), seg.DataCategory,
		seg.Source, seg.SourceURL, pages, headers, vectorLiteral,
		seg.DateScraped, seg.DateChunked,
	}
	for _, t := range topicColumnOrder {
		args = append(args, seg.Topics[t])
	}

	_, err = s.DB.ExecContext(ctx, `
INSERT INTO segments (id, title, content, years, data_category, source, source_url,
                      locator_pages, locator_headers, embedding, date_scraped, date_chunked,
                      topic_inkomstenbelasting, topic_omzetbelasting, topic_loonheffingen,
                      topic_vennootschapsbelasting, topic_toeslagen)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::vector,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  content = EXCLUDED.content,
  years = EXCLUDED.years,
  data_category = EXCLUDED.data_category,
  source = EXCLUDED.source,
  source_url = EXCLUDED.source_url,
  locator_pages = EXCLUDED.locator_pages,
  locator_headers = EXCLUDED.locator_headers,
  embedding = EXCLUDED.embedding,
  date_scraped = EXCLUDED.date_scraped,
  date_chunked = EXCLUDED.date_chunked,
  topic_inkomstenbelasting = EXCLUDED.topic_inkomstenbelasting,
  topic_omzetbelasting = EXCLUDED.topic_omzetbelasting,
  topic_loonheffingen = EXCLUDED.topic_loonheffingen,
  topic_vennootschapsbelasting = EXCLUDED.topic_vennootschapsbelasting,
  topic_toeslagen = EXCLUDED.topic_toeslagen;
`, args...)
	return err
}

const hitColumns = `s.id, s.title, s.content, s.years, s.data_category, s.source, s.source_url,
       s.locator_pages, s.locator_headers, s.date_scraped, s.date_chunked,
       s.topic_inkomstenbelasting, s.topic_omzetbelasting, s.topic_loonheffingen,
       s.topic_vennootschapsbelasting, s.topic_toeslagen`

// SearchOversampled runs the two-stage oversample-then-filter query: an
// unfiltered ANN pass over the index for limit × oversample candidates,
// joined against the categorical filters and truncated to limit. Pushing the
// filters into index traversal degrades recall badly, hence the two stages.
func (s *Store) SearchOversampled(ctx context.Context, vec []float32, years []int, topics []segment.Topic, limit, oversample, efSearch int) ([]Hit, error) {
	if limit <= 0 {
		limit = 8
	}
	if oversample <= 0 {
		oversample = 5
	}
	vecLiteral, err := encodeVectorLiteral(vec)
	if err != nil {
		return nil, err
	}
	pool := limit * oversample

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if efSearch > 0 {
		// SET LOCAL takes no bind parameters; efSearch is validated as an int.
		if _, err := tx.ExecContext(ctx, "SET LOCAL hnsw.ef_search = "+strconv.Itoa(efSearch)); err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf(`
WITH ann AS (
  SELECT id, embedding <=> $1::vector AS distance
  FROM segments
  ORDER BY embedding <=> $1::vector
  LIMIT $2
)
SELECT %s, ann.distance
FROM ann
JOIN segments s ON s.id = ann.id
WHERE ($3::int[] IS NULL OR s.years && $3)
  AND (%s)
ORDER BY ann.distance
LIMIT $4
`, hitColumns, topicPredicate(topics))

	rows, err := tx.QueryContext(ctx, query, vecLiteral, pool, yearsArg(years), limit)
	if err != nil {
		return nil, err
	}
	hits, err := scanHits(rows)
	if err != nil {
		return nil, err
	}
	return hits, tx.Commit()
}

// SearchExactBounded computes exact distances over a bounded, recency-ordered
// candidate pool. Worst-case cost is capped by the pool size; this is the
// degraded path when the approximate index keeps timing out.
func (s *Store) SearchExactBounded(ctx context.Context, vec []float32, years []int, topics []segment.Topic, limit, pool int) ([]Hit, error) {
	if limit <= 0 {
		limit = 8
	}
	if pool <= 0 {
		pool = 2000
	}
	vecLiteral, err := encodeVectorLiteral(vec)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT %s, s.embedding <=> $1::vector AS distance
FROM (
  SELECT * FROM segments
  WHERE ($2::int[] IS NULL OR years && $2)
    AND (%s)
  ORDER BY date_scraped DESC
  LIMIT $3
) s
ORDER BY distance
LIMIT $4
`, hitColumns, strings.ReplaceAll(topicPredicate(topics), "s.", ""))

	rows, err := s.DB.QueryContext(ctx, query, vecLiteral, yearsArg(years), pool, limit)
	if err != nil {
		return nil, err
	}
	return scanHits(rows)
}

// CountSegments reports the number of stored segments.
func (s *Store) CountSegments(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n)
	return n, err
}

// topicPredicate builds the boolean filter for the requested topics. An
// empty set, or a set containing only the unknown sentinel, matches all.
func topicPredicate(topics []segment.Topic) string {
	var cols []string
	for _, t := range topics {
		if t == segment.TopicUnknown {
			continue
		}
		for _, known := range topicColumnOrder {
			if t == known {
				cols = append(cols, "s."+topicColumn(t))
			}
		}
	}
	if len(cols) == 0 {
		return "TRUE"
	}
	return strings.Join(cols, " OR ")
}

func yearsArg(years []int) interface{} {
	if len(years) == 0 {
		return nil
	}
	return pq.Array(years)
}

func scanHits(rows *sql.Rows) ([]Hit, error) {
	defer rows.Close()
	var hits []Hit
	for rows.Next() {
		var (
			h       Hit
			years   pq.Int64Array
			pages   pq.Int64Array
			headers pq.StringArray
			flags   [5]bool
		)
		if err := rows.Scan(
			&h.Segment.ID, &h.Segment.Title, &h.Segment.Content, &years,
			&h.Segment.DataCategory, &h.Segment.Source, &h.Segment.SourceURL,
			&pages, &headers, &h.Segment.DateScraped, &h.Segment.DateChunked,
			&flags[0], &flags[1], &flags[2], &flags[3], &flags[4],
			&h.Distance,
		); err != nil {
			return nil, err
		}
		for _, y := range years {
			h.Segment.Years = append(h.Segment.Years, int(y))
		}
		for _, p := range pages {
			h.Segment.Locator.Pages = append(h.Segment.Locator.Pages, int(p))
		}
		h.Segment.Locator.Headers = append([]string(nil), headers...)
		h.Segment.Topics = map[segment.Topic]bool{}
		for i, t := range topicColumnOrder {
			if flags[i] {
				h.Segment.Topics[t] = true
			}
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
