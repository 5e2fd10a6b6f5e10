package acquisition

import "time"

// SealedEvent is emitted when an acquisition's manifest is persisted.
type SealedEvent struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	MasterHash      string    `json:"master_hash"`
	ArtifactCount   int       `json:"artifact_count"`
	TimestampStatus string    `json:"timestamp_status"`
	ErrorCount      int       `json:"error_count"`
	SealedAt        time.Time `json:"sealed_at"`
}

// VerifiedEvent is emitted after a verification run.
type VerifiedEvent struct {
	AcquisitionID     string    `json:"acquisition_id"`
	Overall           string    `json:"overall"`
	MasterHashVerdict string    `json:"master_hash_verdict"`
	TimestampStatus   string    `json:"timestamp_status"`
	VerifiedAt        time.Time `json:"verified_at"`
}
