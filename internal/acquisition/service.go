// Package acquisition orchestrates the evidence pipeline: concurrent HTTP
// capture and browser render, artifact persistence, hashing, timestamp
// stamping, and the final sealed manifest.
package acquisition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/webseal/internal/capture"
	"github.com/your-org/webseal/internal/evidence"
	"github.com/your-org/webseal/internal/integrity"
	"github.com/your-org/webseal/internal/timestamp"
	"github.com/your-org/webseal/internal/verify"
	"github.com/your-org/webseal/pkg/kafka"
	"github.com/your-org/webseal/pkg/storage/objectstore"
)

// Artifact filenames written into every acquisition directory.
const (
	ArtifactBody       = "page.html"
	ArtifactScreenshot = "screenshot.png"
	ArtifactDOM        = "dom.txt"
	ArtifactNetworkLog = "network_log.json"
	ArtifactConsoleLog = "console_log.json"
	ArtifactMetadata   = "metadata.json"
	ArtifactOpsLog     = "operations.log"
)

// Options carries capture defaults applied to every acquisition.
type Options struct {
	MaxRedirects   int
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	RecordVideo    bool
}

// Params wires the service's collaborators. Renderer, Producer, and Replica
// may be nil; the corresponding step is skipped.
type Params struct {
	Store    *evidence.Store
	Fetcher  *capture.Fetcher
	Renderer capture.Renderer
	Hasher   *integrity.Engine
	Stamper  *timestamp.Stamper
	Producer *kafka.Producer
	Replica  objectstore.Client
	Logger   *zap.Logger
	Options  Options
}

// Service runs the capture-to-manifest pipeline and verification on demand.
type Service struct {
	store    *evidence.Store
	fetcher  *capture.Fetcher
	renderer capture.Renderer
	hasher   *integrity.Engine
	stamper  *timestamp.Stamper
	verifier *verify.Verifier
	producer *kafka.Producer
	replica  objectstore.Client
	logger   *zap.Logger
	opts     Options
}

// NewService constructs the pipeline service.
func NewService(p Params) *Service {
	return &Service{
		store:    p.Store,
		fetcher:  p.Fetcher,
		renderer: p.Renderer,
		hasher:   p.Hasher,
		stamper:  p.Stamper,
		verifier: verify.NewVerifier(p.Store, p.Logger),
		producer: p.Producer,
		replica:  p.Replica,
		logger:   p.Logger,
		opts:     p.Options,
	}
}

// Verifier exposes the verification engine for the HTTP surface.
func (s *Service) Verifier() *verify.Verifier { return s.verifier }

// Store exposes the evidence store for the HTTP surface.
func (s *Service) Store() *evidence.Store { return s.store }

// Capture runs the full pipeline for one URL and returns the sealed manifest.
// Capture-time errors are folded into the manifest's error lists; the only
// hard failure before work begins is a malformed target URL. A capture with
// errors still completes with a best-effort manifest, so partial evidence is
// preserved.
func (s *Service) Capture(ctx context.Context, rawURL string) (*evidence.Manifest, error) {
	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, fmt.Errorf("invalid capture url %q", rawURL)
	}

	started := time.Now().UTC()
	id := evidence.NewAcquisitionID(started)
	dir, err := s.store.CreateDir(id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("acquisition started", zap.String("id", id), zap.String("url", rawURL))
	ops := newOpsLog(started)
	ops.add("acquisition %s started for %s", id, rawURL)

	manifest := &evidence.Manifest{
		SchemaVersion: evidence.SchemaVersion,
		Acquisition: evidence.Acquisition{
			ID:        id,
			URL:       rawURL,
			StartedAt: started,
		},
		Settings: evidence.CaptureSettings{
			URL:            rawURL,
			MaxRedirects:   s.opts.MaxRedirects,
			TimeoutMs:      s.opts.Timeout.Milliseconds(),
			UserAgent:      s.opts.UserAgent,
			ViewportWidth:  s.opts.ViewportWidth,
			ViewportHeight: s.opts.ViewportHeight,
		},
		Artifacts: []evidence.Artifact{},
	}

	fetched, rendered := s.captureConcurrently(ctx, rawURL, manifest, ops)

	s.foldFetch(manifest, fetched, ops)
	s.foldRender(manifest, rendered, ops)

	// First hashing pass covers everything captured so far.
	s.hasher.Rehash(dir, manifest)
	ops.add("hashed %d artifacts, master hash %s", len(manifest.Artifacts), manifest.MasterHash.Digest)

	proof := s.stamper.Stamp(ctx, dir, manifest)
	manifest.Timestamp = proof
	if proof.Status == evidence.ProofError {
		manifest.Errors = append(manifest.Errors, "timestamp: "+proof.Error)
		ops.add("timestamp failed: %s", proof.Error)
	} else {
		manifest.AppendArtifact(proof.ProofFile,
			"Blockchain timestamp proof envelope",
			"application/octet-stream",
			"Proves the master hash existed at capture time", time.Now().UTC())
		ops.add("master hash stamped, proof %s pending confirmation", proof.ProofFile)
	}

	// The operations log is itself evidence. Appending it (and the proof
	// file) invalidates the first pass, so the whole artifact list is
	// rehashed from scratch. The stamped hash stays recorded in the proof.
	ops.add("sealing manifest")
	if _, err := s.store.SaveArtifact(id, ArtifactOpsLog, strings.NewReader(ops.String())); err != nil {
		manifest.Errors = append(manifest.Errors, fmt.Sprintf("write operations log: %v", err))
	} else {
		manifest.AppendArtifact(ArtifactOpsLog,
			"Chronological record of pipeline operations",
			"text/plain",
			"Documents how the evidence was produced", time.Now().UTC())
	}
	s.hasher.Rehash(dir, manifest)

	completed := time.Now().UTC()
	manifest.Acquisition.CompletedAt = completed
	manifest.Acquisition.DurationMs = completed.Sub(started).Milliseconds()

	if err := s.store.WriteManifest(manifest); err != nil {
		return nil, fmt.Errorf("persist manifest: %w", err)
	}

	s.publishSealed(ctx, manifest)
	s.replicate(ctx, manifest)

	s.logger.Info("acquisition sealed",
		zap.String("id", id),
		zap.String("master_hash", manifest.MasterHash.Digest),
		zap.Int("artifacts", len(manifest.Artifacts)),
		zap.Int("errors", len(manifest.Errors)))
	return manifest, nil
}

// captureConcurrently runs the HTTP fetch and the browser render in parallel.
// The two touch independent network resources; their outputs are merged only
// after both complete.
func (s *Service) captureConcurrently(ctx context.Context, rawURL string, manifest *evidence.Manifest, ops *opsLog) (*capture.FetchResult, *capture.RenderResult) {
	var (
		wg        sync.WaitGroup
		fetched   *capture.FetchResult
		rendered  *capture.RenderResult
		fetchErr  error
		renderErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		fetched, fetchErr = s.fetcher.Fetch(ctx, rawURL)
	}()

	renderEnabled := s.renderer != nil
	if renderEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rendered, renderErr = s.renderer.Render(ctx, capture.RenderOptions{
				URL:            rawURL,
				ViewportWidth:  s.opts.ViewportWidth,
				ViewportHeight: s.opts.ViewportHeight,
				TimeoutMs:      s.opts.Timeout.Milliseconds(),
				RecordVideo:    s.opts.RecordVideo,
			})
		}()
	}
	wg.Wait()

	if fetchErr != nil {
		// The URL was validated up front, so this is unexpected.
		manifest.Errors = append(manifest.Errors, fmt.Sprintf("fetch: %v", fetchErr))
	}
	if renderErr != nil {
		manifest.Errors = append(manifest.Errors, fmt.Sprintf("render: %v", renderErr))
	}
	if !renderEnabled {
		manifest.Errors = append(manifest.Errors, "render: no render service configured, capture is fetch-only")
	}

	ops.add("network capture complete")
	return fetched, rendered
}

func (s *Service) foldFetch(manifest *evidence.Manifest, fetched *capture.FetchResult, ops *opsLog) {
	if fetched == nil {
		return
	}
	id := manifest.Acquisition.ID
	manifest.Capture = &evidence.CaptureSummary{
		FinalURL:    fetched.FinalURL,
		FinalStatus: fetched.FinalStatus,
		ContentType: fetched.ContentType,
		SizeBytes:   fetched.SizeBytes,
		Hops:        fetched.Hops,
		Errors:      fetched.Errors,
	}
	manifest.Errors = append(manifest.Errors, fetched.Errors...)
	ops.add("fetched %s: status %d, %d hops", fetched.FinalURL, fetched.FinalStatus, len(fetched.Hops))

	if len(fetched.Body) > 0 {
		mime := fetched.ContentType
		if mime == "" {
			mime = "application/octet-stream"
		}
		if _, err := s.store.SaveArtifact(id, ArtifactBody, bytes.NewReader(fetched.Body)); err != nil {
			manifest.Errors = append(manifest.Errors, fmt.Sprintf("save body artifact: %v", err))
		} else {
			manifest.AppendArtifact(ArtifactBody,
				"Raw HTTP response body of the final hop", mime,
				"Primary captured content as served over HTTP", time.Now().UTC())
		}
	}
}

func (s *Service) foldRender(manifest *evidence.Manifest, rendered *capture.RenderResult, ops *opsLog) {
	if rendered == nil {
		return
	}
	manifest.Render = &evidence.RenderSummary{
		FinalURL: rendered.FinalURL,
		Title:    rendered.Title,
		Metadata: rendered.Metadata,
		Errors:   rendered.Errors,
	}
	manifest.Errors = append(manifest.Errors, rendered.Errors...)
	ops.add("rendered %q (%d network requests, %d console lines)",
		rendered.Title, len(rendered.NetworkLog), len(rendered.ConsoleLog))

	now := time.Now().UTC()
	if len(rendered.Screenshot) > 0 {
		s.saveRenderArtifact(manifest, ArtifactScreenshot, rendered.Screenshot, "image/png",
			"Full-page screenshot as rendered by the browser",
			"Visual record of the page at capture time", now)
	}
	if rendered.DOM != "" {
		s.saveRenderArtifact(manifest, ArtifactDOM, []byte(rendered.DOM), "text/plain",
			"Rendered DOM snapshot",
			"Post-JavaScript document state", now)
	}
	s.saveRenderJSON(manifest, ArtifactNetworkLog, rendered.NetworkLog,
		"Browser network request log",
		"Every subresource the page loaded", now)
	s.saveRenderJSON(manifest, ArtifactConsoleLog, rendered.ConsoleLog,
		"Browser console output",
		"Script errors and warnings during rendering", now)
	s.saveRenderJSON(manifest, ArtifactMetadata, rendered.Metadata,
		"Browser environment metadata",
		"Identifies the rendering environment", now)
}

func (s *Service) saveRenderArtifact(manifest *evidence.Manifest, filename string, data []byte, mime, desc, purpose string, now time.Time) {
	if _, err := s.store.SaveArtifact(manifest.Acquisition.ID, filename, bytes.NewReader(data)); err != nil {
		manifest.Errors = append(manifest.Errors, fmt.Sprintf("save %s: %v", filename, err))
		return
	}
	manifest.AppendArtifact(filename, desc, mime, purpose, now)
}

func (s *Service) saveRenderJSON(manifest *evidence.Manifest, filename string, v any, desc, purpose string, now time.Time) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		manifest.Errors = append(manifest.Errors, fmt.Sprintf("encode %s: %v", filename, err))
		return
	}
	s.saveRenderArtifact(manifest, filename, data, "application/json", desc, purpose, now)
}

// Verify re-derives hash integrity and timestamp status for a persisted
// acquisition and emits a verification event.
func (s *Service) Verify(ctx context.Context, id string) (*verify.HashReport, *verify.TimestampReport, error) {
	hashes, err := s.verifier.VerifyHashes(id)
	if err != nil {
		return nil, nil, err
	}
	ts, err := s.verifier.VerifyTimestamp(id)
	if err != nil {
		return hashes, nil, err
	}

	s.publish(ctx, "evidence.verified", id, VerifiedEvent{
		AcquisitionID:     id,
		Overall:           string(hashes.Overall),
		MasterHashVerdict: string(hashes.MasterHashVerdict),
		TimestampStatus:   string(ts.Check.Status),
		VerifiedAt:        hashes.VerifiedAt,
	})
	return hashes, ts, nil
}

func (s *Service) publishSealed(ctx context.Context, m *evidence.Manifest) {
	status := ""
	if m.Timestamp != nil {
		status = string(m.Timestamp.Status)
	}
	s.publish(ctx, "evidence.sealed", m.Acquisition.ID, SealedEvent{
		ID:              m.Acquisition.ID,
		URL:             m.Acquisition.URL,
		MasterHash:      m.MasterHash.Digest,
		ArtifactCount:   len(m.Artifacts),
		TimestampStatus: status,
		ErrorCount:      len(m.Errors),
		SealedAt:        m.Acquisition.CompletedAt,
	})
}

func (s *Service) publish(ctx context.Context, eventType, key string, event any) {
	if s.producer == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal event", zap.String("type", eventType), zap.Error(err))
		return
	}
	headers := map[string]string{"event_type": eventType}
	if err := s.producer.Publish(ctx, []byte(key), payload, headers); err != nil {
		s.logger.Error("publish event", zap.String("type", eventType), zap.Error(err))
	}
}

// replicate mirrors the sealed bundle to the object store, best effort.
func (s *Service) replicate(ctx context.Context, m *evidence.Manifest) {
	if s.replica == nil {
		return
	}
	id := m.Acquisition.ID
	upload := func(filename, contentType string) {
		key := path.Join(id, filename)
		if err := s.replica.PutFile(ctx, key, s.store.ArtifactPath(id, filename), contentType); err != nil {
			s.logger.Warn("bundle replication failed",
				zap.String("id", id),
				zap.String("file", filename),
				zap.Error(err))
		}
	}
	for _, a := range m.Artifacts {
		upload(a.Filename, a.MimeType)
	}
	upload(evidence.ManifestFilename, "application/json")
}

// Close releases the producer and replica handles.
func (s *Service) Close(ctx context.Context) error {
	if s.producer != nil {
		if err := s.producer.Close(ctx); err != nil {
			return err
		}
	}
	if s.replica != nil {
		return s.replica.Close()
	}
	return nil
}

// opsLog accumulates the human-readable operations record that is sealed
// into the bundle as its own artifact.
type opsLog struct {
	mu    sync.Mutex
	start time.Time
	lines []string
}

func newOpsLog(start time.Time) *opsLog {
	return &opsLog{start: start}
}

func (o *opsLog) add(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, fmt.Sprintf("%s %s",
		time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...)))
}

func (o *opsLog) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return strings.Join(o.lines, "\n") + "\n"
}
