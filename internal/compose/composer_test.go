package compose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fiscora-ai/fiscora/internal/segment"
	"github.com/fiscora-ai/fiscora/provider"
)

type fakeStreamer struct {
	deltas []provider.StreamDelta
	err    error
}

func (f *fakeStreamer) StreamComplete(ctx context.Context, system, user string) (<-chan provider.StreamDelta, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan provider.StreamDelta, len(f.deltas))
	for _, d := range f.deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func collect(t *testing.T, events <-chan Event) (text string, citations []Citation, err error) {
	t.Helper()
	for ev := range events {
		if ev.Err != nil {
			return text, citations, ev.Err
		}
		text += ev.Text
		if ev.Citations != nil {
			citations = ev.Citations
		}
	}
	return text, citations, nil
}

func testSegments() []segment.Segment {
	return []segment.Segment{
		{
			ID:        "seg-1",
			Title:     "Aangifte inkomstenbelasting",
			SourceURL: "https://www.belastingdienst.nl/aangifte",
			Locator:   segment.Locator{Pages: []int{1, 2}},
		},
		{
			ID:        "seg-2",
			Title:     "Wet inkomstenbelasting 2001",
			SourceURL: "https://wetten.overheid.nl/wet-ib",
			Locator:   segment.Locator{Headers: []string{"Hoofdstuk 3", "Artikel 3.1."}},
		},
	}
}

func TestStreamEmitsSuffixesOnly(t *testing.T) {
	t.Parallel()
	llm := &fakeStreamer{deltas: []provider.StreamDelta{
		{Cumulative: `{"answer": "U kunt`},
		{Cumulative: `{"answer": "U kunt`}, // repeated prefix must emit nothing
		{Cumulative: `{"answer": "U kunt de rente aftrekken.`},
		{Cumulative: `{"answer": "U kunt de rente aftrekken.", "used_segments": ["seg-1"], "used_urls": []}`},
	}}
	c := New(llm, nil)

	events, err := c.Stream(context.Background(), Request{Question: "vraag", Segments: testSegments()})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	text, citations, err := collect(t, events)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if text != "U kunt de rente aftrekken." {
		t.Fatalf("unexpected concatenated text %q", text)
	}
	if len(citations) != 1 || citations[0].Label != "Aangifte inkomstenbelasting (p. 1, 2)" {
		t.Fatalf("unexpected citations %+v", citations)
	}
}

func TestStreamForcedFirstCitation(t *testing.T) {
	t.Parallel()
	llm := &fakeStreamer{deltas: []provider.StreamDelta{
		{Cumulative: `{"answer": "Antwoord zonder bronvermelding.", "used_segments": [], "used_urls": []}`},
	}}
	c := New(llm, nil)

	events, err := c.Stream(context.Background(), Request{Question: "vraag", Segments: testSegments()})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	_, citations, err := collect(t, events)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(citations) != 1 {
		t.Fatalf("expected exactly one forced citation, got %+v", citations)
	}
	if citations[0].URL != "https://www.belastingdienst.nl/aangifte" {
		t.Fatalf("forced citation must be the first retrieved segment, got %+v", citations[0])
	}
}

func TestStreamInterruptedAfterPartialText(t *testing.T) {
	t.Parallel()
	llm := &fakeStreamer{deltas: []provider.StreamDelta{
		{Cumulative: `{"answer": "Gedeeltelijk antw`},
		{Err: errors.New("connection dropped")},
	}}
	c := New(llm, nil)

	events, err := c.Stream(context.Background(), Request{Question: "vraag"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	text, _, err := collect(t, events)
	if text == "" {
		t.Fatalf("expected partial text before the failure")
	}
	if !errors.Is(err, ErrStreamInterrupted) {
		t.Fatalf("expected ErrStreamInterrupted, got %v", err)
	}
}

func TestStreamFailureBeforeTextIsPlainError(t *testing.T) {
	t.Parallel()
	llm := &fakeStreamer{deltas: []provider.StreamDelta{
		{Err: errors.New("bad request")},
	}}
	c := New(llm, nil)

	events, err := c.Stream(context.Background(), Request{Question: "vraag"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	_, _, err = collect(t, events)
	if err == nil || errors.Is(err, ErrStreamInterrupted) {
		t.Fatalf("failure before any text must not be ErrStreamInterrupted, got %v", err)
	}
}

func TestStreamWebURLCitations(t *testing.T) {
	t.Parallel()
	llm := &fakeStreamer{deltas: []provider.StreamDelta{
		{Cumulative: `{"answer": "Zie de site.", "used_segments": [], "used_urls": ["https://www.belastingdienst.nl/zakelijk/btw-tarieven"]}`},
	}}
	c := New(llm, nil)

	events, err := c.Stream(context.Background(), Request{
		Question: "vraag",
		WebURLs:  []string{"https://www.belastingdienst.nl/zakelijk/btw-tarieven"},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	_, citations, err := collect(t, events)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(citations) != 1 {
		t.Fatalf("expected one citation, got %+v", citations)
	}
	if !strings.Contains(citations[0].Label, "belastingdienst.nl") {
		t.Fatalf("URL label must carry the host, got %q", citations[0].Label)
	}
}

func TestSegmentLabelLegalLocator(t *testing.T) {
	t.Parallel()
	got := segmentLabel(testSegments()[1])
	if got != "Wet inkomstenbelasting 2001, Artikel 3.1" {
		t.Fatalf("unexpected legal label %q", got)
	}
}

func TestResolveCitationsDedupeByLabel(t *testing.T) {
	t.Parallel()
	c := New(nil, nil)
	segs := []segment.Segment{
		{ID: "a", Title: "Toeslagen", SourceURL: "https://x.nl/1"},
		{ID: "b", Title: "Toeslagen", SourceURL: "https://x.nl/2"},
	}
	got := c.resolveCitations(Request{Segments: segs}, map[string]bool{"a": true, "b": true}, map[string]bool{})
	if len(got) != 1 {
		t.Fatalf("expected label dedupe to one citation, got %+v", got)
	}
}
