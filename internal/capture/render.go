package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RenderOptions is the input contract of the render collaborator.
type RenderOptions struct {
	URL            string `json:"url"`
	ViewportWidth  int    `json:"viewportWidth"`
	ViewportHeight int    `json:"viewportHeight"`
	TimeoutMs      int64  `json:"timeoutMs"`
	RecordVideo    bool   `json:"recordVideo"`
}

// NetworkEntry is one request observed by the browser during rendering.
type NetworkEntry struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Status     int               `json:"status"`
	DurationMs int64             `json:"durationMs"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// RenderResult is what the collaborator returns. Page-level failures are
// reported in Errors, never raised.
type RenderResult struct {
	FinalURL   string            `json:"finalUrl"`
	Title      string            `json:"title"`
	Screenshot []byte            `json:"screenshot"`
	DOM        string            `json:"dom"`
	NetworkLog []NetworkEntry    `json:"networkLog"`
	ConsoleLog []string          `json:"consoleLog"`
	Metadata   map[string]string `json:"metadata"`
	Video      []byte            `json:"video,omitempty"`
	Errors     []string          `json:"errors"`
}

// Renderer is the black-box browser-rendering capability. Implementations own
// the browser resource lifecycle; one render call holds exclusive use of one
// browser context, released on every exit path.
type Renderer interface {
	Render(ctx context.Context, opts RenderOptions) (*RenderResult, error)
}

// HTTPRenderer consumes a rendering sidecar over HTTP. The sidecar keeps the
// long-lived browser handle; this client only carries the request/response.
type HTTPRenderer struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPRenderer constructs a client for the sidecar at endpoint.
func NewHTTPRenderer(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPRenderer {
	return &HTTPRenderer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Render posts the options to the sidecar and decodes the result. A Go error
// means the sidecar itself was unreachable or answered garbage; navigation
// failures come back inside RenderResult.Errors.
func (r *HTTPRenderer) Render(ctx context.Context, opts RenderOptions) (*RenderResult, error) {
	payload, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/render", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render service returned %d", resp.StatusCode)
	}

	var result RenderResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode render result: %w", err)
	}
	if len(result.Errors) > 0 {
		r.logger.Warn("render completed with page errors",
			zap.String("url", opts.URL),
			zap.Strings("errors", result.Errors))
	}
	return &result, nil
}
