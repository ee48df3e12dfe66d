package webaug

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/fiscora-ai/fiscora/internal/helpers"
	"github.com/fiscora-ai/fiscora/internal/metrics"
)

type page struct {
	url  string
	text string
}

const maxFetchBytes = 2 << 20

// strippedTags never contribute main content.
var strippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true,
	"header": true, "footer": true, "aside": true, "form": true,
	"iframe": true, "svg": true, "button": true,
}

// contentAttrPatterns are common id/class markers for the main content area.
var contentAttrPatterns = []string{
	"main-content", "hoofdinhoud", "content-main", "article-body",
	"page-content", "post-content", "content",
}

var notFoundRe = regexp.MustCompile(`(?i)(pagina niet gevonden|niet gevonden|404|bestaat niet( meer)?)`)

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// extract fetches and extracts pages over a bounded worker pool, walking an
// oversampled slice of the verified URLs. Results are collected in completion
// order; once TargetPages pages are accepted the remaining work is abandoned.
func (p *Pipeline) extract(ctx context.Context, urls []string) []page {
	target := p.cfg.TargetPages
	if target <= 0 {
		target = 3
	}
	pool := p.cfg.ExtractOversample
	if pool <= 0 {
		pool = target * 2
	}
	if len(urls) > pool {
		urls = urls[:pool]
	}
	workers := p.cfg.ExtractWorkers
	if workers <= 0 {
		workers = 3
	}

	ectx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    sync.Mutex
		pages []page
		wg    sync.WaitGroup
	)
	sem := make(chan struct{}, workers)
	for _, u := range urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ectx.Done():
				return
			}
			if ectx.Err() != nil {
				return
			}

			text, ok := p.extractOne(ectx, u)
			if !ok {
				return
			}
			if !p.acceptLocale(u, text) {
				metrics.WebPagesRejected.WithLabelValues("locale").Inc()
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if len(pages) >= target {
				return
			}
			pages = append(pages, page{url: u, text: text})
			metrics.WebPagesAccepted.Inc()
			if len(pages) >= target {
				cancel()
			}
		}(u)
	}
	wg.Wait()
	return pages
}

// extractOne fetches one URL and pulls its main text content.
func (p *Pipeline) extractOne(ctx context.Context, u string) (string, bool) {
	timeout := p.cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, ok := p.fetchHTML(fctx, u)
	if !ok {
		return "", false
	}
	text := extractMainText(raw, u)
	text = cleanupText(text)

	maxChars := p.cfg.MaxExtractChars
	if maxChars <= 0 {
		maxChars = 8000
	}
	text = truncateRunes(text, maxChars)
	minChars := p.cfg.MinExtractChars
	if minChars <= 0 {
		minChars = 400
	}
	if len(text) < minChars {
		metrics.WebPagesRejected.WithLabelValues("too_short").Inc()
		return "", false
	}
	if looksLikeNotFound(text) {
		metrics.WebPagesRejected.WithLabelValues("not_found_page").Inc()
		return "", false
	}
	return text, true
}

func (p *Pipeline) fetchHTML(ctx context.Context, u string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "nl-NL,nl;q=0.9")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Printf("warn: fetch %s failed: %v", u, err)
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.WebPagesRejected.WithLabelValues("fetch_status").Inc()
		return "", false
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		metrics.WebPagesRejected.WithLabelValues("content_type").Inc()
		return "", false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", false
	}
	return string(body), true
}

// acceptLocale keeps pages from authoritative hosts unconditionally; other
// hosts must read as Dutch.
func (p *Pipeline) acceptLocale(u, text string) bool {
	if p.isAuthoritative(u) {
		return true
	}
	return helpers.LooksDutch(text)
}

// extractMainText walks the parsed document: structural containers first
// (<main>, <article>), then common content id/class markers, then the
// largest text block. Thin results fall back to readability over the full
// document.
func extractMainText(rawHTML, pageURL string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return readabilityText(rawHTML, pageURL)
	}
	stripNodes(doc)

	node := findByTag(doc, "main")
	if node == nil {
		node = findByTag(doc, "article")
	}
	if node == nil {
		node = findByContentAttr(doc)
	}
	if node == nil {
		node = largestTextBlock(doc)
	}

	var text string
	if node != nil {
		text = nodeText(node)
	}
	if len(strings.TrimSpace(text)) < 200 {
		if rt := readabilityText(rawHTML, pageURL); len(rt) > len(text) {
			return rt
		}
	}
	return text
}

func readabilityText(rawHTML, pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
	if err != nil {
		return ""
	}
	return article.TextContent
}

// stripNodes removes non-content subtrees in place.
func stripNodes(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && strippedTags[c.Data] {
			n.RemoveChild(c)
			continue
		}
		stripNodes(c)
	}
}

func findByTag(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findByContentAttr(n *html.Node) *html.Node {
	for _, pattern := range contentAttrPatterns {
		if found := findAttrMatch(n, pattern); found != nil {
			return found
		}
	}
	return nil
}

func findAttrMatch(n *html.Node, pattern string) *html.Node {
	if n.Type == html.ElementNode && (n.Data == "div" || n.Data == "section") {
		for _, attr := range n.Attr {
			if attr.Key != "id" && attr.Key != "class" {
				continue
			}
			if strings.Contains(strings.ToLower(attr.Val), pattern) {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findAttrMatch(c, pattern); found != nil {
			return found
		}
	}
	return nil
}

// largestTextBlock picks the div/section with the most direct text.
func largestTextBlock(n *html.Node) *html.Node {
	var best *html.Node
	bestLen := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "div" || n.Data == "section" || n.Data == "body") {
			if l := len(strings.TrimSpace(nodeText(n))); l > bestLen {
				best, bestLen = n, l
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return best
}

// nodeText concatenates text content, keeping block boundaries as newlines.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		isBlock := n.Type == html.ElementNode && blockTag(n.Data)
		if isBlock {
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if isBlock {
			sb.WriteByte('\n')
		}
	}
	walk(n)
	return sb.String()
}

func blockTag(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "li", "br", "tr",
		"h1", "h2", "h3", "h4", "h5", "h6", "table", "ul", "ol":
		return true
	}
	return false
}

// truncateRunes cuts text to at most max bytes without splitting a
// multibyte rune at the boundary.
func truncateRunes(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// cleanupText trims each line and collapses runs of blank lines.
func cleanupText(text string) string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	text = strings.Join(lines, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// looksLikeNotFound detects soft-404 pages that slip past status checks.
func looksLikeNotFound(text string) bool {
	head := text
	if len(head) > 600 {
		head = head[:600]
	}
	return notFoundRe.MatchString(head)
}
