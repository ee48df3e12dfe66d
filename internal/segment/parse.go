package segment

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyDocument indicates a document whose body is empty after the
// metadata header. Callers skip such documents and log them.
var ErrEmptyDocument = errors.New("document has no content after metadata")

const contentMarker = "Content:"

// ParseDocument parses the scrape ingestion convention: a fixed metadata
// header (Jaar, Titel, Bron, Categorie, URL, Gescraped) followed by a
// "Content:" marker and the body text.
func ParseDocument(raw string) (Document, error) {
	idx := strings.Index(raw, contentMarker)
	if idx < 0 {
		return Document{}, errors.New("missing Content: marker")
	}
	header := raw[:idx]
	body := strings.TrimSpace(raw[idx+len(contentMarker):])

	doc := Document{Topics: map[Topic]bool{}}
	for _, line := range strings.Split(header, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "jaar", "jaren", "year":
			doc.Years = parseYears(value)
		case "titel", "title":
			doc.Title = value
		case "bron", "source":
			doc.Source = value
		case "categorie", "category", "data category":
			doc.DataCategory = value
			doc.Topics[ParseTopic(value)] = true
		case "url":
			doc.URL = value
		case "gescraped", "scraped at", "scraped":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				doc.ScrapedAt = ts
			}
		}
	}
	if body == "" {
		return doc, ErrEmptyDocument
	}
	doc.Body = body
	if len(doc.Topics) == 0 {
		doc.Topics[TopicUnknown] = true
	}
	return doc, nil
}

// parseYears accepts "2024", "2023, 2024" and bracketed list forms
// like "[2024]".
func parseYears(value string) []int {
	value = strings.Trim(value, "[]")
	var years []int
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' || r == ' ' }) {
		if y, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && y > 1900 && y < 2200 {
			years = append(years, y)
		}
	}
	return years
}

// ClassForDocument derives the structural class from source metadata.
// Statute hosts and statute-named sources segment on article markers,
// PDF-derived material on page markers, everything else on headings.
func ClassForDocument(doc Document) DocClass {
	host := ""
	if parsed, err := url.Parse(doc.URL); err == nil {
		host = strings.ToLower(parsed.Hostname())
	}
	source := strings.ToLower(doc.Source)
	switch {
	case host == "wetten.overheid.nl" || strings.Contains(source, "wet "):
		return ClassLegalArticle
	case strings.HasSuffix(strings.ToLower(doc.URL), ".pdf"),
		strings.Contains(strings.ToLower(doc.DataCategory), "rapport"):
		return ClassPaginated
	default:
		return ClassHeading
	}
}
