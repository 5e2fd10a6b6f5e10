package timestamp

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/webseal/internal/evidence"
)

// ProofFilename is the proof file written alongside the manifest.
const ProofFilename = "masterhash.ots"

// ProofType tags the proof envelope format in the manifest.
const ProofType = "opentimestamps"

// Config controls calendar submission.
type Config struct {
	Enabled   bool
	Calendars []string
	Timeout   time.Duration
}

// Stamper submits master hashes to calendar endpoints and writes proof files.
type Stamper struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewStamper constructs a Stamper. Timeout bounds each individual calendar
// submission.
func NewStamper(cfg Config, logger *zap.Logger) *Stamper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Stamper{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Stamp submits the manifest's master hash and, on success, writes the proof
// envelope into dir. Submission fans out across the configured calendars and
// the first success wins; outstanding requests are cancelled and their
// results discarded. Status after a successful submission is always pending:
// blockchain confirmation happens outside this pipeline. If every endpoint
// fails, the proof records an error status with the union of failure reasons
// and no file is written. A disabled stamper short-circuits with zero
// endpoints attempted and no network calls.
func (s *Stamper) Stamp(ctx context.Context, dir string, m *evidence.Manifest) *evidence.TimestampProof {
	proof := &evidence.TimestampProof{
		Type:        ProofType,
		StampedHash: m.MasterHash.Digest,
		RequestedAt: time.Now().UTC(),
		Calendars:   []string{},
	}

	if !s.cfg.Enabled {
		proof.Status = evidence.ProofError
		proof.Error = "timestamp service disabled"
		return proof
	}
	if len(s.cfg.Calendars) == 0 {
		proof.Status = evidence.ProofError
		proof.Error = "no calendar endpoints configured"
		return proof
	}

	digest, err := hex.DecodeString(m.MasterHash.Digest)
	if err != nil || len(digest) != digestLen {
		proof.Status = evidence.ProofError
		proof.Error = fmt.Sprintf("master hash %q is not a valid sha256 digest", m.MasterHash.Digest)
		return proof
	}

	proof.Calendars = append(proof.Calendars, s.cfg.Calendars...)

	response, endpoint, submitErr := s.submitFirstSuccess(ctx, digest)
	if submitErr != nil {
		proof.Status = evidence.ProofError
		proof.Error = submitErr.Error()
		return proof
	}

	envelope, err := BuildEnvelope(digest, response)
	if err != nil {
		proof.Status = evidence.ProofError
		proof.Error = fmt.Sprintf("build proof envelope: %v", err)
		return proof
	}
	if err := os.WriteFile(filepath.Join(dir, ProofFilename), envelope, 0o644); err != nil {
		proof.Status = evidence.ProofError
		proof.Error = fmt.Sprintf("write proof file: %v", err)
		return proof
	}

	s.logger.Info("master hash stamped",
		zap.String("calendar", endpoint),
		zap.String("hash", m.MasterHash.Digest))

	proof.ProofFile = ProofFilename
	proof.Status = evidence.ProofPending
	return proof
}

type submission struct {
	endpoint string
	body     []byte
	err      error
}

// submitFirstSuccess fans the digest out to every calendar concurrently. The
// first success cancels the rest; if all fail, the failure reasons are
// unioned for diagnostics.
func (s *Stamper) submitFirstSuccess(ctx context.Context, digest []byte) ([]byte, string, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan submission, len(s.cfg.Calendars))
	for _, endpoint := range s.cfg.Calendars {
		go func(endpoint string) {
			body, err := s.submit(subCtx, endpoint, digest)
			results <- submission{endpoint: endpoint, body: body, err: err}
		}(endpoint)
	}

	var failures []string
	for range s.cfg.Calendars {
		res := <-results
		if res.err == nil {
			return res.body, res.endpoint, nil
		}
		s.logger.Warn("calendar submission failed",
			zap.String("calendar", res.endpoint),
			zap.Error(res.err))
		failures = append(failures, fmt.Sprintf("%s: %v", res.endpoint, res.err))
	}
	return nil, "", fmt.Errorf("all calendar endpoints failed: %s", strings.Join(failures, "; "))
}

// submit POSTs the raw digest bytes to one calendar. Success is a 200 with an
// opaque binary body.
func (s *Stamper) submit(ctx context.Context, endpoint string, digest []byte) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		strings.TrimRight(endpoint, "/")+"/digest", bytes.NewReader(digest))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read calendar response: %w", err)
	}
	return body, nil
}

// CheckStatus is the structural-verification verdict for a proof file.
type CheckStatus string

const (
	CheckPending CheckStatus = "pending"
	CheckInvalid CheckStatus = "invalid"
	CheckError   CheckStatus = "error"
)

// ProofCheck is the result of structurally validating a proof file.
type ProofCheck struct {
	Status      CheckStatus `json:"status"`
	StampedHash string      `json:"stampedHash,omitempty"`
	Note        string      `json:"note,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// VerifyProofFile checks only the proof file's structure. A valid file yields
// pending: full confirmation, proving the commitment landed in a Bitcoin
// block, requires an external verifier. A missing or unreadable file yields
// error; a bad magic prefix yields invalid.
func VerifyProofFile(path string) ProofCheck {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProofCheck{Status: CheckError, Error: fmt.Sprintf("read proof file: %v", err)}
	}
	stamped, _, err := ParseEnvelope(data)
	if err != nil {
		return ProofCheck{Status: CheckInvalid, Error: err.Error()}
	}
	return ProofCheck{
		Status:      CheckPending,
		StampedHash: stamped,
		Note:        "structure valid; full confirmation requires an external blockchain verifier",
	}
}
