package segment

import (
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fiscora-ai/fiscora/config"
)

// Segmenter splits documents into bounded segments along class-specific
// structural boundaries.
type Segmenter struct {
	maxTokens int
	minTokens int
	counter   *TokenCounter
	logger    *log.Logger

	parallelThreshold int
	workers           int
	sectionTimeout    time.Duration
}

// NewSegmenter builds a Segmenter from configuration.
func NewSegmenter(cfg config.SegmenterConfig, logger *log.Logger) *Segmenter {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	minTokens := cfg.MinTokens
	if minTokens <= 0 || minTokens > maxTokens {
		minTokens = maxTokens * 6 / 10
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	sectionTimeout := cfg.SectionTimeout
	if sectionTimeout <= 0 {
		sectionTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SEGMENTER] ", log.LstdFlags)
	}
	return &Segmenter{
		maxTokens:         maxTokens,
		minTokens:         minTokens,
		counter:           NewTokenCounter(),
		logger:            logger,
		parallelThreshold: cfg.ParallelThreshold,
		workers:           workers,
		sectionTimeout:    sectionTimeout,
	}
}

// unit is one structural boundary span: a page, a heading section or an
// article. Page 0 means the unit carries no page locator.
type unit struct {
	text string
	page int
	path []string
}

var (
	pageMarkerRe = regexp.MustCompile(`^\s*\[pagina\s+(\d+)\]\s*$`)
	headingRe    = regexp.MustCompile(`^(#{1,3})\s+(.+)$`)

	legalMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*(Hoofdstuk\s+\S+.*)$`),
		regexp.MustCompile(`(?i)^\s*(Afdeling\s+\S+.*)$`),
		regexp.MustCompile(`(?i)^\s*((?:Paragraaf|§)\s*\S+.*)$`),
		regexp.MustCompile(`(?i)^\s*(Artikel\s+\S+.*)$`),
	}

	sentenceRe = regexp.MustCompile(`[^.!?]*[.!?]+[\s"')\]]*|[^.!?]+$`)
)

// Segment splits a parsed document into ordered segments, each at most
// MaxTokens. An empty body yields an empty list.
func (s *Segmenter) Segment(doc Document) ([]Segment, error) {
	body := strings.TrimSpace(doc.Body)
	if body == "" {
		return nil, nil
	}
	class := ClassForDocument(doc)
	units, structured := splitUnits(body, class)
	if !structured {
		units = []unit{{text: body}}
	}
	return s.pack(doc, units), nil
}

// pack greedily accumulates boundary units into segments. The budget is
// checked against the joined text that build will store, not the sum of the
// unit counts, since joining re-tokenizes. An oversized single unit is
// further split at sentence level, each child keeping the unit's locator.
// When a flush would leave the running segment below MinTokens, leading
// sentences of the overflowing unit are pulled in first.
func (s *Segmenter) pack(doc Document, units []unit) []Segment {
	var out []Segment
	var cur []unit
	var curText string

	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, s.build(doc, cur, len(out)))
		cur = nil
		curText = ""
	}

	for _, u := range units {
		text := strings.TrimSpace(u.text)
		if text == "" {
			continue
		}
		if s.counter.Count(text) > s.maxTokens {
			flush()
			for _, part := range s.splitSentences(text) {
				child := u
				child.text = part
				out = append(out, s.build(doc, []unit{child}, len(out)))
			}
			continue
		}
		if curText != "" {
			if joined := curText + "\n\n" + text; s.counter.Count(joined) <= s.maxTokens {
				child := u
				child.text = text
				cur = append(cur, child)
				curText = joined
				continue
			}
			if s.counter.Count(curText) < s.minTokens {
				child := u
				child.text = text
				text = s.topUp(&cur, &curText, child)
			}
			flush()
			if text == "" {
				continue
			}
		}
		child := u
		child.text = text
		cur = append(cur, child)
		curText = text
	}
	flush()
	return out
}

// topUp moves leading sentences of the overflowing unit into the running
// segment until it reaches MinTokens or the budget would be exceeded, and
// returns the remaining text of the unit.
func (s *Segmenter) topUp(cur *[]unit, curText *string, u unit) string {
	sentences := sentenceRe.FindAllString(u.text, -1)
	var moved []string
	taken := 0
	for _, raw := range sentences {
		sent := strings.TrimSpace(raw)
		if sent == "" {
			taken++
			continue
		}
		chunk := sent
		if len(moved) > 0 {
			chunk = strings.Join(moved, " ") + " " + sent
		}
		n := s.counter.Count(*curText + "\n\n" + chunk)
		if n > s.maxTokens {
			break
		}
		moved = append(moved, sent)
		taken++
		if n >= s.minTokens {
			break
		}
	}
	if len(moved) == 0 {
		return strings.TrimSpace(u.text)
	}
	child := u
	child.text = strings.Join(moved, " ")
	*cur = append(*cur, child)
	*curText = *curText + "\n\n" + child.text

	var rest []string
	for _, raw := range sentences[taken:] {
		if sent := strings.TrimSpace(raw); sent != "" {
			rest = append(rest, sent)
		}
	}
	return strings.Join(rest, " ")
}

// build assembles one segment from the accumulated units, recording the
// union of pages or the header lineage spanned.
func (s *Segmenter) build(doc Document, units []unit, index int) Segment {
	var texts []string
	var loc Locator
	pageSet := map[int]bool{}
	for _, u := range units {
		texts = append(texts, u.text)
		if u.page > 0 {
			pageSet[u.page] = true
		}
		if len(loc.Headers) == 0 && len(u.path) > 0 {
			loc.Headers = append([]string(nil), u.path...)
		} else if len(u.path) > 0 {
			leaf := u.path[len(u.path)-1]
			if !containsString(loc.Headers, leaf) {
				loc.Headers = append(loc.Headers, leaf)
			}
		}
	}
	for p := range pageSet {
		loc.Pages = append(loc.Pages, p)
	}
	sort.Ints(loc.Pages)
	if len(loc.Pages) > 0 {
		// Locator kinds are mutually exclusive; pages win for paginated docs.
		loc.Headers = nil
	}

	topics := make(map[Topic]bool, len(doc.Topics))
	for t, v := range doc.Topics {
		topics[t] = v
	}
	return Segment{
		ID:           segmentID(doc.URL, loc, index),
		Title:        doc.Title,
		Content:      strings.Join(texts, "\n\n"),
		Years:        append([]int(nil), doc.Years...),
		Topics:       topics,
		DataCategory: doc.DataCategory,
		Source:       doc.Source,
		SourceURL:    doc.URL,
		Locator:      loc,
		DateScraped:  doc.ScrapedAt,
		DateChunked:  time.Now().UTC(),
	}
}

// splitSentences greedily groups sentences so each part stays within the
// token budget, recounting the joined part as it grows.
func (s *Segmenter) splitSentences(text string) []string {
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	var parts []string
	var cur string
	for _, raw := range sentences {
		sent := strings.TrimSpace(raw)
		if sent == "" {
			continue
		}
		candidate := sent
		if cur != "" {
			candidate = cur + " " + sent
		}
		if cur != "" && s.counter.Count(candidate) > s.maxTokens {
			parts = append(parts, cur)
			candidate = sent
		}
		cur = candidate
	}
	if cur != "" {
		parts = append(parts, cur)
	}
	return parts
}

// splitUnits locates class-specific boundary markers. The second return is
// false when no markers were found and the caller should fall back to
// sentence-level segmentation.
func splitUnits(body string, class DocClass) ([]unit, bool) {
	switch class {
	case ClassPaginated:
		return splitPages(body)
	case ClassLegalArticle:
		return splitMarkers(body, matchLegal, len(legalMarkers))
	default:
		return splitMarkers(body, matchHeading, 3)
	}
}

func splitPages(body string) ([]unit, bool) {
	lines := strings.Split(body, "\n")
	var units []unit
	page := 1
	var cur []string
	sawMarker := false
	flush := func() {
		text := strings.TrimSpace(strings.Join(cur, "\n"))
		if text != "" {
			units = append(units, unit{text: text, page: page})
		}
		cur = nil
	}
	for _, line := range lines {
		if m := pageMarkerRe.FindStringSubmatch(line); m != nil {
			flush()
			if n, err := strconv.Atoi(m[1]); err == nil {
				page = n
			} else {
				page++
			}
			sawMarker = true
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return units, sawMarker
}

// matchHeading returns the heading level (1-based) and title, or 0.
func matchHeading(line string) (int, string) {
	m := headingRe.FindStringSubmatch(line)
	if m == nil {
		return 0, ""
	}
	return len(m[1]), strings.TrimSpace(m[2])
}

// matchLegal returns the marker level (1-based) and text, or 0.
func matchLegal(line string) (int, string) {
	for level, re := range legalMarkers {
		if m := re.FindStringSubmatch(line); m != nil {
			return level + 1, strings.TrimSpace(m[1])
		}
	}
	return 0, ""
}

// splitMarkers walks the document line by line maintaining the active
// header lineage; each marker starts a new unit carrying the path active at
// that point.
func splitMarkers(body string, match func(string) (int, string), levels int) ([]unit, bool) {
	lines := strings.Split(body, "\n")
	path := make([]string, levels)
	var units []unit
	var cur []string
	var curPath []string
	sawMarker := false

	activePath := func() []string {
		var p []string
		for _, h := range path {
			if h != "" {
				p = append(p, h)
			}
		}
		return p
	}
	flush := func() {
		text := strings.TrimSpace(strings.Join(cur, "\n"))
		if text != "" {
			units = append(units, unit{text: text, path: curPath})
		}
		cur = nil
	}

	for _, line := range lines {
		level, title := match(line)
		if level > 0 {
			flush()
			path[level-1] = title
			for i := level; i < levels; i++ {
				path[i] = ""
			}
			curPath = activePath()
			sawMarker = true
		}
		cur = append(cur, line)
	}
	flush()
	return units, sawMarker
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
