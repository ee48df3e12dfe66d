package store

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/fiscora-ai/fiscora/internal/segment"
)

func testVector() []float32 {
	return make([]float32, EmbeddingDimensions)
}

func TestUpsertSegmentDimensionMismatch(t *testing.T) {
	t.Parallel()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	err = st.UpsertSegment(context.Background(), segment.Segment{
		ID:        "seg-1",
		Content:   "tekst",
		Embedding: []float32{0.1, 0.2},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestUpsertSegment(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	seg := segment.Segment{
		ID:           "seg-1",
		Title:        "Aangifte inkomstenbelasting 2024",
		Content:      "U doet aangifte voor 1 mei.",
		Years:        []int{2024},
		Topics:       map[segment.Topic]bool{segment.TopicInkomstenbelasting: true},
		DataCategory: "aangifte",
		Source:       "Belastingdienst",
		SourceURL:    "https://www.belastingdienst.nl/aangifte",
		Locator:      segment.Locator{Pages: []int{1, 2}},
		Embedding:    testVector(),
		DateScraped:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		DateChunked:  time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC),
	}

	mock.ExpectExec(`INSERT INTO segments`).
		WithArgs(
			seg.ID, seg.Title, seg.Content, sqlmock.AnyArg(), seg.DataCategory,
			seg.Source, seg.SourceURL, sqlmock.AnyArg(), nil, sqlmock.AnyArg(),
			seg.DateScraped, seg.DateChunked,
			true, false, false, false, false,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.UpsertSegment(context.Background(), seg); err != nil {
		t.Fatalf("UpsertSegment: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func hitRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "content", "years", "data_category", "source", "source_url",
		"locator_pages", "locator_headers", "date_scraped", "date_chunked",
		"topic_inkomstenbelasting", "topic_omzetbelasting", "topic_loonheffingen",
		"topic_vennootschapsbelasting", "topic_toeslagen", "distance",
	})
}

func TestSearchOversampledFewerThanLimit(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	scraped := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	rows := hitRows()
	for i, id := range []string{"a", "b", "c"} {
		rows.AddRow(id, "titel", "tekst", pq.Int64Array{2024}, "aangifte",
			"Belastingdienst", "https://www.belastingdienst.nl/x",
			nil, pq.StringArray{"Box 1"}, scraped, scraped,
			true, false, false, false, false, 0.1*float64(i+1))
	}

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL hnsw\.ef_search = 80`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`WITH ann AS`).
		WithArgs(sqlmock.AnyArg(), 35, sqlmock.AnyArg(), 7).
		WillReturnRows(rows)
	mock.ExpectCommit()

	hits, err := st.SearchOversampled(context.Background(), testVector(),
		[]int{2024}, []segment.Topic{segment.TopicInkomstenbelasting}, 7, 5, 80)
	if err != nil {
		t.Fatalf("SearchOversampled: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Segment.ID != "a" || hits[0].Distance != 0.1 {
		t.Fatalf("unexpected first hit: %+v", hits[0])
	}
	if !hits[0].Segment.Topics[segment.TopicInkomstenbelasting] {
		t.Fatalf("topic flag not reassembled")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchExactBounded(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	scraped := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := hitRows().AddRow("a", "titel", "tekst", pq.Int64Array{2023}, "wet",
		"Wet inkomstenbelasting 2001", "https://wetten.overheid.nl/w",
		nil, pq.StringArray{"Hoofdstuk 3", "Artikel 3.1"}, scraped, scraped,
		true, false, false, false, false, 0.2)

	mock.ExpectQuery(`ORDER BY date_scraped DESC`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 2000, 8).
		WillReturnRows(rows)

	hits, err := st.SearchExactBounded(context.Background(), testVector(),
		[]int{2023}, nil, 8, 2000)
	if err != nil {
		t.Fatalf("SearchExactBounded: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if got := hits[0].Segment.Locator.Kind(); got != segment.LocatorHeaders {
		t.Fatalf("expected header locator, got %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTopicPredicate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		topics []segment.Topic
		want   string
	}{
		{"empty matches all", nil, "TRUE"},
		{"unknown only matches all", []segment.Topic{segment.TopicUnknown}, "TRUE"},
		{"single", []segment.Topic{segment.TopicToeslagen}, "s.topic_toeslagen"},
		{"multiple", []segment.Topic{segment.TopicInkomstenbelasting, segment.TopicOmzetbelasting},
			"s.topic_inkomstenbelasting OR s.topic_omzetbelasting"},
		{"unknown mixed in is dropped", []segment.Topic{segment.TopicUnknown, segment.TopicLoonheffingen},
			"s.topic_loonheffingen"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := topicPredicate(tc.topics); got != tc.want {
				t.Fatalf("topicPredicate(%v) = %q, want %q", tc.topics, got, tc.want)
			}
		})
	}
}

func TestEncodeVectorLiteral(t *testing.T) {
	t.Parallel()
	got, err := encodeVectorLiteral([]float32{0.5, -1, 2.25})
	if err != nil {
		t.Fatalf("encodeVectorLiteral: %v", err)
	}
	if got != "[0.5,-1,2.25]" {
		t.Fatalf("unexpected literal %q", got)
	}
	if _, err := encodeVectorLiteral(nil); err == nil {
		t.Fatalf("expected error for empty vector")
	}
}
