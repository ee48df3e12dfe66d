package webaug

import (
	"github.com/fiscora-ai/fiscora/internal/helpers"
	"github.com/fiscora-ai/fiscora/internal/metrics"
	"github.com/fiscora-ai/fiscora/tools/websearch/models"
)

// filterCandidates normalises and filters discovered URLs, then orders them
// authoritative-domain pool first, other local-TLD hosts second. Everything
// else is dropped.
func (p *Pipeline) filterCandidates(results []models.Result) []string {
	seen := map[string]bool{}
	var authoritative, local []string

	for _, r := range results {
		if !helpers.AcceptCandidateURL(r.URL, p.cfg.BlockedHosts) {
			metrics.WebPagesRejected.WithLabelValues("url_filter").Inc()
			continue
		}
		canonical, err := helpers.CanonicalURL(r.URL)
		if err != nil {
			metrics.WebPagesRejected.WithLabelValues("url_filter").Inc()
			continue
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true

		if p.isAuthoritative(canonical) {
			authoritative = append(authoritative, canonical)
		} else if p.cfg.LocaleTLD == "" || helpers.HostHasTLD(canonical, p.cfg.LocaleTLD) {
			local = append(local, canonical)
		} else {
			metrics.WebPagesRejected.WithLabelValues("locale").Inc()
		}
	}
	return append(authoritative, local...)
}

func (p *Pipeline) isAuthoritative(raw string) bool {
	for _, d := range p.cfg.AuthoritativeDomains {
		if helpers.HostMatchesDomain(raw, d) {
			return true
		}
	}
	return false
}
