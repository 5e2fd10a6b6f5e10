package evidence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func testManifest(id string) *Manifest {
	return &Manifest{
		SchemaVersion: SchemaVersion,
		Acquisition: Acquisition{
			ID:        id,
			URL:       "https://example.com",
			StartedAt: time.Now().UTC().Truncate(time.Millisecond),
		},
		Artifacts: []Artifact{
			{Filename: "page.html", SHA256: HashPending},
		},
	}
}

func TestCreateDirOwnedByAcquisition(t *testing.T) {
	s := newTestStore(t)

	dir, err := s.CreateDir("20260824T000000Z-aaaa0000")
	require.NoError(t, err)
	assert.Equal(t, s.Dir("20260824T000000Z-aaaa0000"), dir)

	// The directory is the unit of ownership: creating it twice fails.
	_, err = s.CreateDir("20260824T000000Z-aaaa0000")
	assert.Error(t, err)
}

func TestCreateDirRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateDir("../outside")
	assert.Error(t, err)
}

func TestManifestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id := "20260824T000000Z-bbbb1111"
	_, err := s.CreateDir(id)
	require.NoError(t, err)

	m := testManifest(id)
	require.NoError(t, s.WriteManifest(m))

	back, err := s.LoadManifest(id)
	require.NoError(t, err)
	assert.Equal(t, m.SchemaVersion, back.SchemaVersion)
	assert.Equal(t, m.Acquisition.ID, back.Acquisition.ID)
	require.Len(t, back.Artifacts, 1)
	assert.Equal(t, "page.html", back.Artifacts[0].Filename)
}

func TestWriteManifestLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	id := "20260824T000000Z-cccc2222"
	dir, err := s.CreateDir(id)
	require.NoError(t, err)

	require.NoError(t, s.WriteManifest(testManifest(id)))
	require.NoError(t, s.WriteManifest(testManifest(id)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestSaveArtifact(t *testing.T) {
	s := newTestStore(t)
	id := "20260824T000000Z-dddd3333"
	_, err := s.CreateDir(id)
	require.NoError(t, err)

	n, err := s.SaveArtifact(id, "page.html", strings.NewReader("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)

	data, err := os.ReadFile(filepath.Join(s.Dir(id), "page.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}

func TestLoadManifestMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadManifest("20260824T000000Z-eeee4444")
	assert.Error(t, err)
}
