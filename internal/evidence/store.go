package evidence

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ManifestFilename is the name of the manifest inside every acquisition
// directory.
const ManifestFilename = "manifest.json"

// Store manages acquisition directories under a single evidence root. Each
// acquisition exclusively owns its directory, so no cross-acquisition locking
// is needed.
type Store struct {
	root string
}

// NewStore creates the evidence root if necessary.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the evidence root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the directory owned by the given acquisition.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// CreateDir makes the acquisition directory, failing if it already exists.
func (s *Store) CreateDir(id string) (string, error) {
	if err := ValidateAcquisitionID(id); err != nil {
		return "", err
	}
	dir := s.Dir(id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create acquisition dir: %w", err)
	}
	return dir, nil
}

// ArtifactPath returns the path of an artifact file within an acquisition.
func (s *Store) ArtifactPath(id, filename string) string {
	return filepath.Join(s.Dir(id), filename)
}

// SaveArtifact streams content into an artifact file.
func (s *Store) SaveArtifact(id, filename string, r io.Reader) (int64, error) {
	f, err := os.Create(s.ArtifactPath(id, filename))
	if err != nil {
		return 0, fmt.Errorf("create artifact %s: %w", filename, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write artifact %s: %w", filename, err)
	}
	return n, nil
}

// WriteManifest persists the manifest atomically: written to a temp file in
// the same directory, then renamed over manifest.json. A reader never sees a
// torn manifest.
func (s *Store) WriteManifest(m *Manifest) error {
	if err := ValidateAcquisitionID(m.Acquisition.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	dir := s.Dir(m.Acquisition.ID)
	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, ManifestFilename)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a persisted manifest without mutating anything.
func (s *Store) LoadManifest(id string) (*Manifest, error) {
	if err := ValidateAcquisitionID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(id), ManifestFilename))
	if err != nil {
		return nil, fmt.Errorf("read manifest for %s: %w", id, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest for %s: %w", id, err)
	}
	return &m, nil
}
