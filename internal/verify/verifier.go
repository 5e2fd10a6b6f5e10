// Package verify independently re-derives integrity and timestamp status for
// a persisted acquisition without trusting any cached verdict or mutating any
// stored artifact.
package verify

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/webseal/internal/evidence"
	"github.com/your-org/webseal/internal/integrity"
	"github.com/your-org/webseal/internal/timestamp"
)

// Verdict classifies one verified item.
type Verdict string

const (
	VerdictPass    Verdict = "pass"
	VerdictFail    Verdict = "fail"
	VerdictMissing Verdict = "missing"
)

// FileResult is the verdict for a single artifact.
type FileResult struct {
	Filename     string  `json:"filename"`
	Verdict      Verdict `json:"verdict"`
	StoredHash   string  `json:"storedHash"`
	ObservedHash string  `json:"observedHash,omitempty"`
}

// HashReport is the outcome of re-deriving every hash in a manifest.
type HashReport struct {
	AcquisitionID      string       `json:"acquisitionId"`
	VerifiedAt         time.Time    `json:"verifiedAt"`
	Files              []FileResult `json:"files"`
	StoredMasterHash   string       `json:"storedMasterHash"`
	ObservedMasterHash string       `json:"observedMasterHash"`
	MasterHashVerdict  Verdict      `json:"masterHashVerdict"`
	Overall            Verdict      `json:"overall"`
}

// TimestampReport wraps the structural proof check with the verification
// instant and the stamped hash pulled from the manifest.
type TimestampReport struct {
	AcquisitionID string               `json:"acquisitionId"`
	VerifiedAt    time.Time            `json:"verifiedAt"`
	Check         timestamp.ProofCheck `json:"check"`
	ManifestHash  string               `json:"manifestStampedHash,omitempty"`
	Calendars     []string             `json:"calendars,omitempty"`
}

// Verifier re-hashes artifacts and validates proof structure against a
// persisted manifest. Every run is appended to the acquisition's history.
type Verifier struct {
	store  *evidence.Store
	log    *Log
	logger *zap.Logger
}

// NewVerifier constructs a Verifier over the given evidence store.
func NewVerifier(store *evidence.Store, logger *zap.Logger) *Verifier {
	return &Verifier{
		store:  store,
		log:    NewLog(store.Dir),
		logger: logger,
	}
}

// History returns all recorded verification runs for an acquisition.
func (v *Verifier) History(id string) ([]LogEntry, error) {
	return v.log.Entries(id)
}

// VerifyHashes re-hashes every artifact the manifest references and
// recomputes the master hash from the newly observed digests in stored order.
// Overall is pass iff every file verdict is pass and the master hash matches;
// any fail or missing file forces overall fail. Nothing stored is mutated;
// the run itself is appended to the verification log.
func (v *Verifier) VerifyHashes(id string) (*HashReport, error) {
	m, err := v.store.LoadManifest(id)
	if err != nil {
		return nil, err
	}

	report := &HashReport{
		AcquisitionID:    id,
		VerifiedAt:       time.Now().UTC(),
		StoredMasterHash: m.MasterHash.Digest,
		Overall:          VerdictPass,
	}

	observed := make([]evidence.Artifact, len(m.Artifacts))
	for i, artifact := range m.Artifacts {
		fr := FileResult{Filename: artifact.Filename, StoredHash: artifact.SHA256}

		digest, _, err := integrity.HashFile(v.store.ArtifactPath(id, artifact.Filename))
		switch {
		case os.IsNotExist(err):
			fr.Verdict = VerdictMissing
		case err != nil:
			fr.Verdict = VerdictMissing
			v.logger.Warn("artifact unreadable during verification",
				zap.String("acquisition", id),
				zap.String("artifact", artifact.Filename),
				zap.Error(err))
		case digest == artifact.SHA256:
			fr.Verdict = VerdictPass
			fr.ObservedHash = digest
		default:
			fr.Verdict = VerdictFail
			fr.ObservedHash = digest
		}

		if fr.Verdict != VerdictPass {
			report.Overall = VerdictFail
		}

		observed[i] = artifact
		if fr.ObservedHash != "" {
			observed[i].SHA256 = fr.ObservedHash
		} else {
			observed[i].SHA256 = fmt.Sprintf("unavailable:%s", artifact.Filename)
		}
		report.Files = append(report.Files, fr)
	}

	report.ObservedMasterHash = integrity.ComputeMasterHash(observed)
	if report.ObservedMasterHash == report.StoredMasterHash {
		report.MasterHashVerdict = VerdictPass
	} else {
		report.MasterHashVerdict = VerdictFail
		report.Overall = VerdictFail
	}

	v.append(LogEntry{
		At:            report.VerifiedAt,
		Action:        "verify_hashes",
		AcquisitionID: id,
		Result:        string(report.Overall),
		Details: map[string]any{
			"files":      len(report.Files),
			"masterHash": string(report.MasterHashVerdict),
		},
	})
	return report, nil
}

// VerifyTimestamp structurally validates the acquisition's proof file. The
// check never confirms blockchain inclusion; a structurally valid proof stays
// pending until an external verifier confirms it.
func (v *Verifier) VerifyTimestamp(id string) (*TimestampReport, error) {
	m, err := v.store.LoadManifest(id)
	if err != nil {
		return nil, err
	}

	report := &TimestampReport{
		AcquisitionID: id,
		VerifiedAt:    time.Now().UTC(),
	}
	if m.Timestamp == nil || m.Timestamp.ProofFile == "" {
		report.Check = timestamp.ProofCheck{
			Status: timestamp.CheckError,
			Error:  "no timestamp proof recorded for this acquisition",
		}
	} else {
		report.Check = timestamp.VerifyProofFile(v.store.ArtifactPath(id, m.Timestamp.ProofFile))
		report.ManifestHash = m.Timestamp.StampedHash
		report.Calendars = m.Timestamp.Calendars
	}

	v.append(LogEntry{
		At:            report.VerifiedAt,
		Action:        "verify_timestamp",
		AcquisitionID: id,
		Result:        string(report.Check.Status),
	})
	return report, nil
}

func (v *Verifier) append(entry LogEntry) {
	if err := v.log.Append(entry); err != nil {
		v.logger.Error("append verification log", zap.Error(err))
	}
}
