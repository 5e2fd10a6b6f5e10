package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/webseal/internal/evidence"
	"github.com/your-org/webseal/internal/integrity"
	"github.com/your-org/webseal/internal/timestamp"
)

// sealAcquisition builds a hashed, persisted acquisition with two artifacts.
func sealAcquisition(t *testing.T) (*evidence.Store, string) {
	t.Helper()
	store, err := evidence.NewStore(t.TempDir())
	require.NoError(t, err)

	id := evidence.NewAcquisitionID(time.Now())
	dir, err := store.CreateDir(id)
	require.NoError(t, err)

	_, err = store.SaveArtifact(id, "page.html", strings.NewReader("<html>evidence</html>"))
	require.NoError(t, err)
	_, err = store.SaveArtifact(id, "dom.txt", strings.NewReader("rendered text"))
	require.NoError(t, err)

	m := &evidence.Manifest{
		SchemaVersion: evidence.SchemaVersion,
		Acquisition:   evidence.Acquisition{ID: id, URL: "https://example.com"},
	}
	now := time.Now().UTC()
	m.AppendArtifact("page.html", "body", "text/html", "content", now)
	m.AppendArtifact("dom.txt", "dom", "text/plain", "rendered state", now)

	integrity.NewEngine(zap.NewNop()).Rehash(dir, m)
	require.NoError(t, store.WriteManifest(m))
	return store, id
}

func TestVerifyHashesRoundTripPasses(t *testing.T) {
	store, id := sealAcquisition(t)
	v := NewVerifier(store, zap.NewNop())

	report, err := v.VerifyHashes(id)
	require.NoError(t, err)

	assert.Equal(t, VerdictPass, report.Overall)
	assert.Equal(t, VerdictPass, report.MasterHashVerdict)
	require.Len(t, report.Files, 2)
	for _, f := range report.Files {
		assert.Equal(t, VerdictPass, f.Verdict)
		assert.Equal(t, f.StoredHash, f.ObservedHash)
	}
	assert.Equal(t, report.StoredMasterHash, report.ObservedMasterHash)
}

func TestVerifyHashesDetectsTamper(t *testing.T) {
	store, id := sealAcquisition(t)

	// Flip the stored bytes after sealing.
	require.NoError(t, os.WriteFile(store.ArtifactPath(id, "page.html"), []byte("<html>tampered</html>"), 0o644))

	report, err := NewVerifier(store, zap.NewNop()).VerifyHashes(id)
	require.NoError(t, err)

	assert.Equal(t, VerdictFail, report.Overall)
	assert.Equal(t, VerdictFail, report.MasterHashVerdict)
	assert.Equal(t, VerdictFail, report.Files[0].Verdict)
	assert.Equal(t, VerdictPass, report.Files[1].Verdict, "untouched artifact still passes")
	assert.NotEqual(t, report.Files[0].StoredHash, report.Files[0].ObservedHash)
}

func TestVerifyHashesDetectsMissingFile(t *testing.T) {
	store, id := sealAcquisition(t)
	require.NoError(t, os.Remove(store.ArtifactPath(id, "dom.txt")))

	report, err := NewVerifier(store, zap.NewNop()).VerifyHashes(id)
	require.NoError(t, err)

	assert.Equal(t, VerdictMissing, report.Files[1].Verdict)
	assert.Equal(t, VerdictFail, report.Overall)
}

func TestVerifyHashesDetectsReorderedArtifacts(t *testing.T) {
	store, id := sealAcquisition(t)

	// Swap artifact order without recomputing: per-file hashes still match,
	// but the master hash is order-sensitive.
	m, err := store.LoadManifest(id)
	require.NoError(t, err)
	m.Artifacts[0], m.Artifacts[1] = m.Artifacts[1], m.Artifacts[0]
	require.NoError(t, store.WriteManifest(m))

	report, err := NewVerifier(store, zap.NewNop()).VerifyHashes(id)
	require.NoError(t, err)

	for _, f := range report.Files {
		assert.Equal(t, VerdictPass, f.Verdict)
	}
	assert.Equal(t, VerdictFail, report.MasterHashVerdict)
	assert.Equal(t, VerdictFail, report.Overall)
}

func TestVerifyHashesDoesNotMutateManifest(t *testing.T) {
	store, id := sealAcquisition(t)
	before, err := store.LoadManifest(id)
	require.NoError(t, err)

	require.NoError(t, os.Remove(store.ArtifactPath(id, "dom.txt")))
	_, err = NewVerifier(store, zap.NewNop()).VerifyHashes(id)
	require.NoError(t, err)

	after, err := store.LoadManifest(id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestVerificationLogAppendOnly(t *testing.T) {
	store, id := sealAcquisition(t)
	v := NewVerifier(store, zap.NewNop())

	_, err := v.VerifyHashes(id)
	require.NoError(t, err)
	entries, err := v.History(id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	first := entries[0]
	assert.Equal(t, "verify_hashes", first.Action)
	assert.Equal(t, id, first.AcquisitionID)
	assert.Equal(t, "pass", first.Result)

	_, err = v.VerifyHashes(id)
	require.NoError(t, err)
	entries, err = v.History(id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0], "prior entries are never rewritten")
}

func TestVerifyHashesUnknownAcquisition(t *testing.T) {
	store, _ := sealAcquisition(t)
	_, err := NewVerifier(store, zap.NewNop()).VerifyHashes("20990101T000000Z-ffffffff")
	assert.Error(t, err)
}

func TestVerifyTimestamp(t *testing.T) {
	store, id := sealAcquisition(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("attestation"))
	}))
	defer srv.Close()

	m, err := store.LoadManifest(id)
	require.NoError(t, err)
	stamper := timestamp.NewStamper(timestamp.Config{
		Enabled:   true,
		Calendars: []string{srv.URL},
		Timeout:   5 * time.Second,
	}, zap.NewNop())
	m.Timestamp = stamper.Stamp(context.Background(), store.Dir(id), m)
	require.Equal(t, evidence.ProofPending, m.Timestamp.Status)
	require.NoError(t, store.WriteManifest(m))

	v := NewVerifier(store, zap.NewNop())
	report, err := v.VerifyTimestamp(id)
	require.NoError(t, err)

	assert.Equal(t, timestamp.CheckPending, report.Check.Status)
	assert.Equal(t, m.Timestamp.StampedHash, report.Check.StampedHash)
	assert.Equal(t, m.Timestamp.StampedHash, report.ManifestHash)
	assert.Equal(t, []string{srv.URL}, report.Calendars)

	entries, err := v.History(id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "verify_timestamp", entries[0].Action)
}

func TestVerifyTimestampWithoutProof(t *testing.T) {
	store, id := sealAcquisition(t)
	report, err := NewVerifier(store, zap.NewNop()).VerifyTimestamp(id)
	require.NoError(t, err)
	assert.Equal(t, timestamp.CheckError, report.Check.Status)
	assert.Contains(t, report.Check.Error, "no timestamp proof")
}
