package webaug

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fiscora-ai/fiscora/internal/metrics"
)

// verify confirms candidate URLs are reachable, HEAD first with a GET
// fallback for servers that refuse HEAD. 2xx/3xx pass; the final redirected
// URL is recorded. Order of the input is preserved in the output.
func (p *Pipeline) verify(ctx context.Context, urls []string) []string {
	workers := p.cfg.VerifyWorkers
	if workers <= 0 {
		workers = 4
	}
	timeout := p.cfg.VerifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	results := make([]string, len(urls))
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			vctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if final, ok := p.probe(vctx, u); ok {
				results[i] = final
			} else {
				metrics.WebPagesRejected.WithLabelValues("unreachable").Inc()
			}
		}(i, u)
	}
	wg.Wait()

	var out []string
	seen := map[string]bool{}
	for _, r := range results {
		if r != "" && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// probe issues HEAD, then GET when HEAD is rejected. Returns the final URL
// after redirects.
func (p *Pipeline) probe(ctx context.Context, u string) (string, bool) {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return "", false
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := p.client.Do(req)
		if err != nil {
			return "", false
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		switch {
		case resp.StatusCode < 400:
			return resp.Request.URL.String(), true
		case resp.StatusCode == http.StatusMethodNotAllowed && method == http.MethodHead:
			continue
		default:
			// 4xx and 429 are dropped without retry.
			return "", false
		}
	}
	return "", false
}
