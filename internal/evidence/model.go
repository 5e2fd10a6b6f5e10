// Package evidence defines the data model shared by the capture, hashing,
// timestamping, and verification stages: an Acquisition owns a directory of
// Artifacts described by a single persisted Manifest.
package evidence

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is written into every persisted manifest so later readers can
// detect format changes.
const SchemaVersion = "1.0"

// HashPending is the placeholder digest carried by artifacts that have not
// been through a hashing pass yet. It is never a valid SHA-256 hex string.
const HashPending = "pending"

// MasterHashAlgorithm names the digest used throughout the pipeline.
const MasterHashAlgorithm = "SHA-256"

// Acquisition is one capture session. It exclusively owns every artifact file
// beneath its directory; the persisted manifest marks it complete.
type Acquisition struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	DurationMs  int64     `json:"durationMs"`
}

// NewAcquisitionID derives a sortable, filesystem-safe identifier from a UTC
// instant plus a random suffix.
func NewAcquisitionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102T150405Z"), suffix)
}

// ValidateAcquisitionID rejects identifiers that could escape the evidence
// root when joined into a path.
func ValidateAcquisitionID(id string) error {
	if id == "" {
		return fmt.Errorf("empty acquisition id")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid acquisition id %q", id)
	}
	return nil
}

// Artifact is one file inside the bundle. SHA256 and SizeBytes are only
// meaningful after a hashing pass; artifacts appended later start with
// placeholder values and force a full recomputation.
type Artifact struct {
	Filename    string    `json:"filename"`
	Description string    `json:"description"`
	MimeType    string    `json:"mimeType"`
	SizeBytes   int64     `json:"sizeBytes"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"createdAt"`
	Purpose     string    `json:"purpose"`
}

// MasterHash summarizes the whole artifact set. Digest is always SHA-256 of
// the delimiter-free concatenation of every artifact's sha256 hex string in
// manifest order; reordering without recomputation invalidates it.
type MasterHash struct {
	Algorithm string `json:"algorithm"`
	Digest    string `json:"digest"`
	Method    string `json:"method"`
}

// ProofStatus is the lifecycle state of a timestamp proof.
type ProofStatus string

const (
	ProofPending   ProofStatus = "pending"
	ProofConfirmed ProofStatus = "confirmed"
	ProofError     ProofStatus = "error"
)

// TimestampProof records the calendar attestation for a master hash.
// BlockHeight and TxID are populated only by full blockchain confirmation,
// which happens outside this pipeline.
type TimestampProof struct {
	Type        string      `json:"type"`
	ProofFile   string      `json:"proofFile"`
	StampedHash string      `json:"stampedHash"`
	Status      ProofStatus `json:"status"`
	RequestedAt time.Time   `json:"requestedAt"`
	BlockHeight *int64      `json:"blockHeight,omitempty"`
	TxID        string      `json:"txId,omitempty"`
	Calendars   []string    `json:"calendars"`
	Error       string      `json:"error,omitempty"`
}

// CaptureSettings is the configuration snapshot embedded in the manifest.
type CaptureSettings struct {
	URL            string `json:"url"`
	MaxRedirects   int    `json:"maxRedirects"`
	TimeoutMs      int64  `json:"timeoutMs"`
	UserAgent      string `json:"userAgent"`
	ViewportWidth  int    `json:"viewportWidth,omitempty"`
	ViewportHeight int    `json:"viewportHeight,omitempty"`
}

// CaptureSummary embeds the raw HTTP capture result in the manifest.
type CaptureSummary struct {
	FinalURL    string        `json:"finalUrl"`
	FinalStatus int           `json:"finalStatus"`
	ContentType string        `json:"contentType"`
	SizeBytes   int64         `json:"sizeBytes"`
	Hops        []RedirectHop `json:"hops"`
	Errors      []string      `json:"errors,omitempty"`
}

// RenderSummary embeds the browser-render result in the manifest.
type RenderSummary struct {
	FinalURL string            `json:"finalUrl"`
	Title    string            `json:"title"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
}

// Manifest is the aggregate root persisted as the single source of truth for
// an acquisition. Artifact order is significant.
type Manifest struct {
	SchemaVersion string          `json:"schemaVersion"`
	Acquisition   Acquisition     `json:"acquisition"`
	Settings      CaptureSettings `json:"settings"`
	Artifacts     []Artifact      `json:"artifacts"`
	MasterHash    MasterHash      `json:"masterHash"`
	Timestamp     *TimestampProof `json:"timestamp"`
	Capture       *CaptureSummary `json:"capture,omitempty"`
	Render        *RenderSummary  `json:"render,omitempty"`
	Errors        []string        `json:"errors,omitempty"`
}

// AppendArtifact adds a file to the manifest with placeholder hash values.
// Callers must run a full hashing pass before the manifest is final.
func (m *Manifest) AppendArtifact(filename, description, mimeType, purpose string, now time.Time) *Artifact {
	m.Artifacts = append(m.Artifacts, Artifact{
		Filename:    filename,
		Description: description,
		MimeType:    mimeType,
		SizeBytes:   0,
		SHA256:      HashPending,
		CreatedAt:   now.UTC(),
		Purpose:     purpose,
	})
	return &m.Artifacts[len(m.Artifacts)-1]
}

// FindArtifact returns the artifact with the given filename, or nil.
func (m *Manifest) FindArtifact(filename string) *Artifact {
	for i := range m.Artifacts {
		if m.Artifacts[i].Filename == filename {
			return &m.Artifacts[i]
		}
	}
	return nil
}
