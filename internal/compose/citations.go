package compose

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fiscora-ai/fiscora/internal/helpers"
	"github.com/fiscora-ai/fiscora/internal/segment"
)

// resolveCitations maps the accumulated used-id sets onto display labels,
// deduplicated by label, preserving retrieval order for segments and input
// order for URLs. With zero used citations but at least one internal segment
// the first retrieved segment is forced in.
func (c *Composer) resolveCitations(req Request, usedSegs, usedURLs map[string]bool) []Citation {
	if len(usedSegs) == 0 && len(usedURLs) == 0 && len(req.Segments) > 0 {
		usedSegs[req.Segments[0].ID] = true
	}

	var out []Citation
	seen := map[string]bool{}
	add := func(ct Citation) {
		if ct.Label == "" || seen[ct.Label] {
			return
		}
		seen[ct.Label] = true
		out = append(out, ct)
	}

	for _, seg := range req.Segments {
		if usedSegs[seg.ID] {
			add(Citation{Label: segmentLabel(seg), URL: seg.SourceURL})
		}
	}
	for _, u := range req.WebURLs {
		if usedURLs[u] {
			add(Citation{Label: helpers.URLDisplayLabel(u), URL: u})
		}
	}
	// The model may cite a URL verbatim that was never in the web pool.
	var extra []string
	for u := range usedURLs {
		if !containsURL(req.WebURLs, u) {
			extra = append(extra, u)
		}
	}
	sort.Strings(extra)
	for _, u := range extra {
		add(Citation{Label: helpers.URLDisplayLabel(u), URL: u})
	}
	return out
}

// segmentLabel renders the display label: the title, suffixed with the page
// list or the sanitized legal locator when present.
func segmentLabel(seg segment.Segment) string {
	title := strings.TrimSpace(seg.Title)
	if title == "" {
		title = strings.TrimSpace(seg.Source)
	}
	switch seg.Locator.Kind() {
	case segment.LocatorPages:
		var pages []string
		for _, p := range seg.Locator.Pages {
			pages = append(pages, strconv.Itoa(p))
		}
		return fmt.Sprintf("%s (p. %s)", title, strings.Join(pages, ", "))
	case segment.LocatorHeaders:
		leaf := sanitizeLocator(seg.Locator.Headers[len(seg.Locator.Headers)-1])
		if leaf == "" {
			return title
		}
		return fmt.Sprintf("%s, %s", title, leaf)
	default:
		return title
	}
}

// sanitizeLocator strips markup remnants and collapses whitespace in a
// header locator.
func sanitizeLocator(s string) string {
	s = strings.TrimLeft(s, "#§ \t")
	s = strings.Trim(s, ".:;- ")
	return strings.Join(strings.Fields(s), " ")
}

func containsURL(urls []string, u string) bool {
	for _, v := range urls {
		if v == u {
			return true
		}
	}
	return false
}
