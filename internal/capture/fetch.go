// Package capture performs the network half of an acquisition: a manually
// walked redirect chain over HTTP, and the black-box browser render consumed
// from a sidecar.
package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/webseal/internal/evidence"
)

// FetchConfig controls one logical fetch.
type FetchConfig struct {
	MaxRedirects int
	Timeout      time.Duration
	UserAgent    string
	Headers      map[string]string
}

// FetchResult is the best-effort outcome of a fetch. Ordinary HTTP and
// navigation conditions never produce a Go error; they land in Errors.
type FetchResult struct {
	FinalURL     string
	FinalStatus  int
	FinalHeaders evidence.HeaderMap
	Body         []byte
	ContentType  string
	SizeBytes    int64
	Hops         []evidence.RedirectHop
	Errors       []string
}

// Fetcher walks redirect chains hop by hop with automatic following disabled.
type Fetcher struct {
	client *http.Client
	cfg    FetchConfig
	logger *zap.Logger
}

// NewFetcher constructs a Fetcher. The underlying client never follows
// redirects on its own; every hop is issued and recorded explicitly.
func NewFetcher(cfg FetchConfig, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg:    cfg,
		logger: logger,
	}
}

func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Fetch issues up to MaxRedirects+1 requests starting at rawURL, recording a
// RedirectHop for every iteration, success or transport failure. Every status
// code, including 4xx/5xx, is a valid hop. A hop is a redirect iff its status
// is in {301,302,303,307,308} and a Location header is present; the next URL
// is Location resolved relative to the current URL. Exceeding the redirect
// bound is a soft failure: an error is appended and the last completed hop
// stands as final. Only a malformed start URL returns a Go error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	current, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if !current.IsAbs() || (current.Scheme != "http" && current.Scheme != "https") {
		return nil, fmt.Errorf("url %q is not an absolute http(s) url", rawURL)
	}

	result := &FetchResult{FinalURL: current.String()}

	for i := 0; i <= f.cfg.MaxRedirects; i++ {
		lastIteration := i == f.cfg.MaxRedirects

		hop, resp, err := f.doHop(ctx, current)
		result.Hops = append(result.Hops, *hop)
		if err != nil {
			// Transport failure: synthetic hop already recorded, chain ends.
			result.FinalURL = current.String()
			result.FinalStatus = 0
			result.Errors = append(result.Errors, fmt.Sprintf("request to %s failed: %v", current, err))
			f.logger.Warn("capture hop failed", zap.String("url", current.String()), zap.Error(err))
			return result, nil
		}

		location := resp.Header.Get("Location")
		redirect := isRedirectStatus(resp.StatusCode) && location != ""

		var next *url.URL
		if redirect {
			resolved, perr := current.Parse(location)
			if perr != nil {
				// An unresolvable Location demotes the hop to final.
				result.Errors = append(result.Errors, fmt.Sprintf("unresolvable location %q at %s: %v", location, current, perr))
				redirect = false
			} else {
				// Relative, scheme-relative, and encoded locations all
				// resolve against the current URL; the hop records the
				// resolved target.
				next = resolved
				loc := resolved.String()
				result.Hops[len(result.Hops)-1].Location = &loc
			}
		}

		if redirect && !lastIteration {
			size, rerr := discardBody(resp)
			setBodySize(&result.Hops[len(result.Hops)-1], size, rerr, result)
			current = next
			continue
		}

		// Final hop: either a non-redirect status, or the redirect budget is
		// spent. The body is retained either way so partial evidence survives.
		body, rerr := io.ReadAll(resp.Body)
		resp.Body.Close()
		setBodySize(&result.Hops[len(result.Hops)-1], int64(len(body)), rerr, result)

		result.FinalURL = current.String()
		result.FinalStatus = resp.StatusCode
		result.FinalHeaders = evidence.HeadersFromHTTP(resp.Header)
		result.Body = body
		result.ContentType = resp.Header.Get("Content-Type")
		result.SizeBytes = int64(len(body))

		if redirect && lastIteration {
			result.Errors = append(result.Errors,
				fmt.Sprintf("maximum redirects (%d) exceeded at %s", f.cfg.MaxRedirects, current))
		}
		return result, nil
	}

	// Only reached with a negative redirect budget: no request is issued and
	// the empty best-effort result stands.
	return result, nil
}

// doHop issues exactly one request. A transport-level failure (DNS, refused
// connection, timeout) yields a synthetic hop with status 0, no headers, and
// a nil body size, together with the error.
func (f *Fetcher) doHop(ctx context.Context, u *url.URL) (*evidence.RedirectHop, *http.Response, error) {
	started := time.Now().UTC()
	hop := &evidence.RedirectHop{
		URL:         u.String(),
		Method:      http.MethodGet,
		RequestedAt: started,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		hop.RespondedAt = time.Now().UTC()
		hop.DurationMs = hop.RespondedAt.Sub(started).Milliseconds()
		return hop, nil, err
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	for k, v := range f.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	hop.RespondedAt = time.Now().UTC()
	hop.DurationMs = hop.RespondedAt.Sub(started).Milliseconds()
	if err != nil {
		return hop, nil, err
	}

	hop.Status = resp.StatusCode
	hop.StatusText = http.StatusText(resp.StatusCode)
	hop.Headers = evidence.HeadersFromHTTP(resp.Header)
	return hop, resp, nil
}

func discardBody(resp *http.Response) (int64, error) {
	defer resp.Body.Close()
	return io.Copy(io.Discard, resp.Body)
}

// setBodySize records the observed body size on a hop. A read error leaves
// the count of bytes actually seen and appends to the fetch error list.
func setBodySize(hop *evidence.RedirectHop, n int64, err error, result *FetchResult) {
	size := n
	hop.BodySize = &size
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("read body at %s: %v", hop.URL, err))
	}
}
