package retrieval

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Completer is the bounded completion surface the evaluator depends on.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Evaluator decides whether internal retrieval results suffice or live web
// augmentation is needed.
type Evaluator struct {
	llm    Completer
	minIC  int
	logger *log.Logger
}

// NewEvaluator builds an evaluator. minInternalCandidates is the threshold
// below which augmentation is always required without consulting the model.
func NewEvaluator(llm Completer, minInternalCandidates int, logger *log.Logger) *Evaluator {
	if minInternalCandidates <= 0 {
		minInternalCandidates = 2
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SUFFICIENCY] ", log.LstdFlags)
	}
	return &Evaluator{llm: llm, minIC: minInternalCandidates, logger: logger}
}

const sufficiencySystem = `Je beoordeelt of interne bronnen volstaan om een Nederlandse belastingvraag te beantwoorden.
Je ziet alleen metadata van gevonden passages, niet de inhoud.
Antwoord met precies één woord: JA als aanvullende webbronnen nodig zijn, NEE als de interne bronnen volstaan.`

// NeedsAugmentation reports whether web augmentation is required. Only
// candidate metadata (title, years, source) reaches the model, never content.
func (e *Evaluator) NeedsAugmentation(ctx context.Context, question string, history []string, candidates []Candidate) bool {
	if len(candidates) <= e.minIC {
		return true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Vraag: %s\n", question)
	if len(history) > 0 {
		sb.WriteString("Context:\n")
		for _, h := range history {
			fmt.Fprintf(&sb, "- %s\n", h)
		}
	}
	sb.WriteString("Gevonden passages:\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- titel: %q, jaren: %v, bron: %s\n",
			c.Segment.Title, c.Segment.Years, c.Segment.Source)
	}
	sb.WriteString("Zijn aanvullende webbronnen nodig? JA of NEE.")

	answer, err := e.llm.Complete(ctx, sufficiencySystem, sb.String(), 8)
	if err != nil {
		e.logger.Printf("warn: sufficiency check failed, using candidate-count fallback: %v", err)
		return len(candidates) == 0
	}
	return strings.Contains(strings.ToUpper(answer), "JA")
}
