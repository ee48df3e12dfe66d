package segment

import (
	"context"
	"strings"
	"sync"
)

// SegmentWithContext segments a document, fanning large bodies out across a
// bounded worker pool. Below the size threshold it is equivalent to Segment.
// A section that fails or exceeds its timeout is logged and skipped; the
// remaining sections still produce output in original document order.
func (s *Segmenter) SegmentWithContext(ctx context.Context, doc Document) ([]Segment, error) {
	body := strings.TrimSpace(doc.Body)
	if body == "" {
		return nil, nil
	}
	if s.parallelThreshold <= 0 || len(body) < s.parallelThreshold {
		return s.Segment(doc)
	}

	class := ClassForDocument(doc)
	units, structured := splitUnits(body, class)
	if !structured {
		units = []unit{{text: body}}
	}
	sections := partitionUnits(units, s.workers)
	if len(sections) <= 1 {
		return s.Segment(doc)
	}

	results := make([][]Segment, len(sections))
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.workers)
	for i, sec := range sections {
		wg.Add(1)
		go func(i int, sec []unit) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			sctx, cancel := context.WithTimeout(ctx, s.sectionTimeout)
			defer cancel()

			done := make(chan []Segment, 1)
			go func() { done <- s.pack(doc, sec) }()
			select {
			case segs := <-done:
				results[i] = segs
			case <-sctx.Done():
				s.logger.Printf("warn: section %d/%d timed out, skipping", i+1, len(sections))
			}
		}(i, sec)
	}
	wg.Wait()

	// Concatenate in original order, then renumber ids so they stay
	// deterministic regardless of which sections survived.
	var out []Segment
	for _, segs := range results {
		out = append(out, segs...)
	}
	for i := range out {
		out[i].ID = segmentID(doc.URL, out[i].Locator, i)
	}
	return out, nil
}

// partitionUnits slices the unit list into contiguous sections, one per
// worker, preserving order. Boundaries land between units so no content is
// duplicated or lost.
func partitionUnits(units []unit, sections int) [][]unit {
	if sections <= 1 || len(units) <= 1 {
		return [][]unit{units}
	}
	if sections > len(units) {
		sections = len(units)
	}
	size := (len(units) + sections - 1) / sections
	var out [][]unit
	for start := 0; start < len(units); start += size {
		end := start + size
		if end > len(units) {
			end = len(units)
		}
		out = append(out, units[start:end])
	}
	return out
}
