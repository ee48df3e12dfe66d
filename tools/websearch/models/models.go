package models

// Result is one discovered search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}
