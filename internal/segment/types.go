package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Topic enumerates the tax domains a segment can be tagged with.
type Topic string

const (
	TopicInkomstenbelasting     Topic = "inkomstenbelasting"
	TopicOmzetbelasting         Topic = "omzetbelasting"
	TopicLoonheffingen          Topic = "loonheffingen"
	TopicVennootschapsbelasting Topic = "vennootschapsbelasting"
	TopicToeslagen              Topic = "toeslagen"

	// TopicUnknown is the sentinel for unclassified content. A query whose
	// only requested topic is TopicUnknown matches everything.
	TopicUnknown Topic = "onbekend"
)

// AllTopics lists every classifiable topic, excluding the unknown sentinel.
var AllTopics = []Topic{
	TopicInkomstenbelasting,
	TopicOmzetbelasting,
	TopicLoonheffingen,
	TopicVennootschapsbelasting,
	TopicToeslagen,
}

// ParseTopic maps free-form category text onto a Topic.
func ParseTopic(s string) Topic {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for _, t := range AllTopics {
		if normalized == string(t) {
			return t
		}
	}
	switch {
	case strings.Contains(normalized, "inkomsten"), strings.Contains(normalized, "box 1"), strings.Contains(normalized, "box 3"):
		return TopicInkomstenbelasting
	case strings.Contains(normalized, "btw"), strings.Contains(normalized, "omzet"):
		return TopicOmzetbelasting
	case strings.Contains(normalized, "loon"):
		return TopicLoonheffingen
	case strings.Contains(normalized, "vennootschap"), strings.Contains(normalized, "vpb"):
		return TopicVennootschapsbelasting
	case strings.Contains(normalized, "toeslag"):
		return TopicToeslagen
	default:
		return TopicUnknown
	}
}

// DocClass discriminates the structural shape of a source document.
type DocClass int

const (
	ClassHeading DocClass = iota // markdown-style heading hierarchy
	ClassPaginated               // page-delimited (PDF-derived) text
	ClassLegalArticle            // statute text with chapter/article markers
)

func (c DocClass) String() string {
	switch c {
	case ClassPaginated:
		return "paginated"
	case ClassLegalArticle:
		return "legal-article"
	default:
		return "heading"
	}
}

// LocatorKind identifies which structural locator variant a segment carries.
type LocatorKind int

const (
	LocatorNone LocatorKind = iota
	LocatorPages
	LocatorHeaders
)

// Locator points back into the source document. Pages and Headers are
// mutually exclusive; the document class fixes which one is used.
type Locator struct {
	Pages   []int
	Headers []string
}

func (l Locator) Kind() LocatorKind {
	switch {
	case len(l.Pages) > 0:
		return LocatorPages
	case len(l.Headers) > 0:
		return LocatorHeaders
	default:
		return LocatorNone
	}
}

func (l Locator) String() string {
	switch l.Kind() {
	case LocatorPages:
		parts := make([]string, len(l.Pages))
		for i, p := range l.Pages {
			parts[i] = fmt.Sprintf("%d", p)
		}
		return "p:" + strings.Join(parts, ",")
	case LocatorHeaders:
		return "h:" + strings.Join(l.Headers, " > ")
	default:
		return ""
	}
}

// Segment is a bounded span of a source document with provenance and an
// embedding vector.
type Segment struct {
	ID           string
	Title        string
	Content      string
	Years        []int
	Topics       map[Topic]bool
	DataCategory string
	Source       string
	SourceURL    string
	Locator      Locator
	Embedding    []float32
	DateScraped  time.Time
	DateChunked  time.Time
}

// Document is the ephemeral parsed form of one scraped source. It is consumed
// by the segmenter and never persisted.
type Document struct {
	Title        string
	Source       string
	DataCategory string
	URL          string
	Years        []int
	Topics       map[Topic]bool
	ScrapedAt    time.Time
	Body         string
}

// segmentID derives a deterministic identifier so re-ingesting the same
// document upserts rather than duplicates.
func segmentID(sourceURL string, loc Locator, index int) string {
	data := fmt.Sprintf("%s|%s|%d", sourceURL, loc.String(), index)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:16])
}
