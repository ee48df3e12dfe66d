package compose

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fiscora-ai/fiscora/internal/helpers"
	"github.com/fiscora-ai/fiscora/internal/metrics"
	"github.com/fiscora-ai/fiscora/internal/segment"
	"github.com/fiscora-ai/fiscora/provider"
)

// ErrStreamInterrupted signals a stream failure after partial answer text
// was already emitted. Callers can no longer retry transparently.
var ErrStreamInterrupted = errors.New("answer stream interrupted after partial output")

// Streamer is the streaming completion surface the composer depends on.
type Streamer interface {
	StreamComplete(ctx context.Context, system, user string) (<-chan provider.StreamDelta, error)
}

// Request bundles everything that feeds one answer.
type Request struct {
	Question string
	History  []string
	Segments []segment.Segment
	WebBlock string
	WebURLs  []string
}

// Citation is one resolved source reference.
type Citation struct {
	Label string
	URL   string
}

// Event is one element of the answer stream: either an appended text
// fragment, the trailing citation list, or a terminal error.
type Event struct {
	Text      string
	Citations []Citation
	Err       error
}

// Composer turns retrieval output into a streamed, cited answer.
type Composer struct {
	llm    Streamer
	logger *log.Logger
}

func New(llm Streamer, logger *log.Logger) *Composer {
	if logger == nil {
		logger = log.New(log.Writer(), "[COMPOSE] ", log.LstdFlags)
	}
	return &Composer{llm: llm, logger: logger}
}

const composeSystem = `Je bent een Nederlandse belastingassistent. Beantwoord de vraag uitsluitend op basis van de meegeleverde passages en webbronnen.
Antwoord in JSON met exact deze velden:
{"answer": "het antwoord in het Nederlands", "used_segments": ["ids van gebruikte passages"], "used_urls": ["urls van gebruikte webbronnen"]}
Noem in used_segments alleen ids van passages die je antwoord daadwerkelijk dragen, en in used_urls alleen urls die je gebruikt hebt.
Als de bronnen de vraag niet dekken, zeg dat eerlijk in het antwoord.`

// Stream starts the completion and returns the event channel. The channel
// carries appended answer fragments in order, then one trailing event with
// the resolved citations, and is closed. Errors arrive as a final event.
func (c *Composer) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	deltas, err := c.llm.StreamComplete(ctx, composeSystem, c.buildPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("starting answer stream: %w", err)
	}

	events := make(chan Event, 8)
	go func() {
		defer close(events)

		var (
			emitted  string
			usedSegs = map[string]bool{}
			usedURLs = map[string]bool{}
		)
		for delta := range deltas {
			if delta.Err != nil {
				if emitted != "" {
					events <- Event{Err: fmt.Errorf("%w: %v", ErrStreamInterrupted, delta.Err)}
				} else {
					events <- Event{Err: delta.Err}
				}
				return
			}

			answer := helpers.PartialStringField(delta.Cumulative, "answer")
			if suffix := helpers.AppendedSuffix(emitted, answer); suffix != "" {
				emitted = answer
				events <- Event{Text: suffix}
			}
			for _, id := range helpers.PartialStringArray(delta.Cumulative, "used_segments") {
				usedSegs[id] = true
			}
			for _, u := range helpers.PartialStringArray(delta.Cumulative, "used_urls") {
				usedURLs[u] = true
			}
		}

		events <- Event{Citations: c.resolveCitations(req, usedSegs, usedURLs)}
		metrics.AnswersComposed.Inc()
	}()
	return events, nil
}

// buildPrompt merges internal segments as structured records, the optional
// web block and the conversation context into one user prompt. With no
// sources at all the model still gets the question and context.
func (c *Composer) buildPrompt(req Request) string {
	var sb strings.Builder
	if len(req.History) > 0 {
		sb.WriteString("Gespreksgeschiedenis:\n")
		for _, h := range req.History {
			fmt.Fprintf(&sb, "- %s\n", h)
		}
		sb.WriteString("\n")
	}

	if len(req.Segments) > 0 {
		sb.WriteString("Interne passages:\n")
		for _, seg := range req.Segments {
			fmt.Fprintf(&sb, "--- id: %s\ntitel: %s\njaren: %v\nbron: %s\n%s\n",
				seg.ID, seg.Title, seg.Years, seg.Source, seg.Content)
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("Er zijn geen interne passages gevonden.\n\n")
	}

	if req.WebBlock != "" {
		sb.WriteString("Webbronnen:\n")
		sb.WriteString(req.WebBlock)
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "Vraag: %s", req.Question)
	return sb.String()
}
