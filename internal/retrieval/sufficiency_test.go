package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fiscora-ai/fiscora/internal/segment"
)

type fakeCompleter struct {
	calls  int
	answer string
	err    error
	lastIn string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	f.calls++
	f.lastIn = user
	return f.answer, f.err
}

func candidateSet(n int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{Segment: segment.Segment{
			ID:      "seg",
			Title:   "Aftrekposten 2024",
			Content: "VERTROUWELIJKE INHOUD",
			Years:   []int{2024},
			Source:  "Belastingdienst",
		}}
	}
	return out
}

func TestNeedsAugmentationFewCandidates(t *testing.T) {
	t.Parallel()
	llm := &fakeCompleter{answer: "NEE"}
	ev := NewEvaluator(llm, 2, nil)

	if !ev.NeedsAugmentation(context.Background(), "vraag", nil, candidateSet(2)) {
		t.Fatalf("2 candidates must always require augmentation")
	}
	if llm.calls != 0 {
		t.Fatalf("threshold path must skip the model, saw %d calls", llm.calls)
	}
}

func TestNeedsAugmentationModelVerdict(t *testing.T) {
	t.Parallel()
	cases := []struct {
		answer string
		want   bool
	}{
		{"JA", true},
		{"ja, er ontbreekt recente informatie", true},
		{"NEE", false},
		{"nee", false},
	}
	for _, tc := range cases {
		llm := &fakeCompleter{answer: tc.answer}
		ev := NewEvaluator(llm, 2, nil)
		got := ev.NeedsAugmentation(context.Background(), "vraag", []string{"eerdere vraag"}, candidateSet(4))
		if got != tc.want {
			t.Fatalf("answer %q: got %v, want %v", tc.answer, got, tc.want)
		}
	}
}

func TestNeedsAugmentationFailureFallback(t *testing.T) {
	t.Parallel()
	llm := &fakeCompleter{err: errors.New("provider down")}
	ev := NewEvaluator(llm, 2, nil)

	if ev.NeedsAugmentation(context.Background(), "vraag", nil, candidateSet(4)) {
		t.Fatalf("model failure with candidates present must report sufficient")
	}
}

func TestNeedsAugmentationSendsMetadataOnly(t *testing.T) {
	t.Parallel()
	llm := &fakeCompleter{answer: "NEE"}
	ev := NewEvaluator(llm, 2, nil)

	ev.NeedsAugmentation(context.Background(), "vraag", nil, candidateSet(4))
	if strings.Contains(llm.lastIn, "VERTROUWELIJKE INHOUD") {
		t.Fatalf("segment content leaked into the sufficiency prompt")
	}
	if !strings.Contains(llm.lastIn, "Aftrekposten 2024") {
		t.Fatalf("candidate titles missing from prompt:\n%s", llm.lastIn)
	}
}
