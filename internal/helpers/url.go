package helpers

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

var trackingQueryParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"utm_id":       {},
	"gclid":        {},
	"dclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"igshid":       {},
}

// Hosts whose pages are search result listings rather than content.
var searchEngineHosts = map[string]struct{}{
	"google.com":        {},
	"www.google.com":    {},
	"google.nl":         {},
	"www.google.nl":     {},
	"bing.com":          {},
	"www.bing.com":      {},
	"duckduckgo.com":    {},
	"search.yahoo.com":  {},
	"www.startpage.com": {},
	"startpage.com":     {},
}

// File extensions that cannot be extracted as HTML content.
var disallowedExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".ppt": {}, ".pptx": {}, ".zip": {}, ".rar": {}, ".jpg": {},
	".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".mp3": {},
	".mp4": {}, ".xml": {}, ".rss": {},
}

// Frequent scrape/link typos worth repairing instead of discarding.
var pathTypoFixes = map[string]string{
	"/wettenbundel//": "/wettenbundel/",
	"//artikel/":      "/artikel/",
	"/pdf/html/":      "/html/",
}

// CanonicalURL normalises a URL string for comparison and deduplication.
// It lowercases scheme/host, removes default ports, strips fragments, cleans
// path segments, removes tracking query parameters and sorts the remainder.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" {
		return "", errors.New("url missing scheme")
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)

	host := strings.ToLower(parsed.Host)
	if host == "" {
		return "", errors.New("url missing host")
	}
	if parts := strings.Split(host, ":"); len(parts) == 2 {
		port := parts[1]
		if (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443") {
			host = parts[0]
		}
	}
	parsed.Host = host

	cleanPath := path.Clean(parsed.Path)
	if cleanPath == "." || cleanPath == "" {
		cleanPath = "/"
	}
	if !strings.HasPrefix(cleanPath, "/") {
		cleanPath = "/" + cleanPath
	}
	for typo, fix := range pathTypoFixes {
		cleanPath = strings.ReplaceAll(cleanPath, typo, fix)
	}
	parsed.Path = cleanPath
	parsed.Fragment = ""

	query := parsed.Query()
	for key := range query {
		if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}
	if len(query) == 0 {
		parsed.RawQuery = ""
	} else {
		keys := make([]string, 0, len(query))
		for key := range query {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, key := range keys {
			values := append([]string(nil), query[key]...)
			sort.Strings(values)
			for _, value := range values {
				if b.Len() > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(key))
				if value != "" {
					b.WriteByte('=')
					b.WriteString(url.QueryEscape(value))
				}
			}
		}
		parsed.RawQuery = b.String()
	}
	return parsed.String(), nil
}

// AcceptCandidateURL reports whether a discovered URL is worth verifying.
// Bare homepages, non-http(s) schemes, binary file types, blocked hosts and
// search engine result pages are all rejected.
func AcceptCandidateURL(raw string, blockedHosts []string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	// A root path carries no answerable content.
	if parsed.Path == "" || parsed.Path == "/" {
		return false
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if _, bad := disallowedExtensions[ext]; bad {
		return false
	}
	if _, bad := searchEngineHosts[host]; bad {
		return false
	}
	for _, blocked := range blockedHosts {
		blocked = strings.ToLower(strings.TrimSpace(blocked))
		if blocked == "" {
			continue
		}
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return false
		}
	}
	return true
}

// HostMatchesDomain reports whether the URL's host is the domain or one of
// its subdomains.
func HostMatchesDomain(raw, domain string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	domain = strings.ToLower(strings.TrimSpace(domain))
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// HostHasTLD reports whether the URL's host ends in the given TLD suffix
// (e.g. ".nl").
func HostHasTLD(raw, tld string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(parsed.Hostname()), strings.ToLower(tld))
}

// URLDisplayLabel renders "host – topic" from a URL, where topic is derived
// from the final path segment.
func URLDisplayLabel(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	segment := path.Base(strings.TrimSuffix(parsed.Path, "/"))
	if segment == "." || segment == "/" || segment == "" {
		return host
	}
	segment = strings.TrimSuffix(segment, path.Ext(segment))
	segment = strings.ReplaceAll(segment, "-", " ")
	segment = strings.ReplaceAll(segment, "_", " ")
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return host
	}
	return host + " – " + segment
}
