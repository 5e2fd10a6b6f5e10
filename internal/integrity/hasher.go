// Package integrity computes per-artifact content hashes and the master hash
// that summarizes an acquisition's whole artifact set.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/your-org/webseal/internal/evidence"
)

// MasterHashMethod documents how the master digest is derived. The per-artifact
// hex digests are fixed 64-character strings, so the delimiter-free
// concatenation is unambiguous; the scheme is preserved for compatibility with
// previously sealed bundles.
const MasterHashMethod = "sha256 of the concatenation of all artifact sha256 hex digests in manifest order, no delimiter"

// unavailablePrefix marks a digest slot whose file could not be read. The
// value is never 64 hex characters, so it cannot collide with a real digest.
const unavailablePrefix = "unavailable:"

// Engine runs hashing passes over an acquisition directory.
type Engine struct {
	logger  *zap.Logger
	workers int
}

// NewEngine constructs a hashing engine with a bounded worker pool sized to
// the host.
func NewEngine(logger *zap.Logger) *Engine {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	return &Engine{logger: logger, workers: workers}
}

// HashFile stream-reads a file and returns its lowercase hex SHA-256 digest
// and byte size. Files of any size are handled without loading them fully
// into memory.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashString digests the UTF-8 bytes of s.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ComputeMasterHash derives the master digest from per-artifact digests in
// list order. Order is significant: reordering artifacts without
// recomputation invalidates the result.
func ComputeMasterHash(artifacts []evidence.Artifact) string {
	h := sha256.New()
	for _, a := range artifacts {
		io.WriteString(h, a.SHA256)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Unavailable reports whether a stored digest records a read failure instead
// of file content.
func Unavailable(digest string) bool {
	return len(digest) >= len(unavailablePrefix) && digest[:len(unavailablePrefix)] == unavailablePrefix
}

// Rehash recomputes every artifact's sha256 and sizeBytes from the files in
// dir, then sets the manifest's master hash. The pass is idempotent and must
// be re-run in full whenever the artifact list changes; partial updates are
// disallowed because the master hash is a pure function of the full ordered
// list. An unreadable file records an error-encoding digest and the pass
// continues.
//
// Per-artifact hashing runs on a bounded worker pool. The master-hash step is
// a strict barrier that consumes results in manifest order regardless of
// completion order.
func (e *Engine) Rehash(dir string, m *evidence.Manifest) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workers)

	for i := range m.Artifacts {
		wg.Add(1)
		sem <- struct{}{}
		go func(a *evidence.Artifact) {
			defer wg.Done()
			defer func() { <-sem }()

			digest, size, err := HashFile(filepath.Join(dir, a.Filename))
			if err != nil {
				e.logger.Warn("artifact hash failed",
					zap.String("artifact", a.Filename),
					zap.Error(err))
				a.SHA256 = fmt.Sprintf("%s%v", unavailablePrefix, err)
				a.SizeBytes = 0
				return
			}
			a.SHA256 = digest
			a.SizeBytes = size
		}(&m.Artifacts[i])
	}
	wg.Wait()

	m.MasterHash = evidence.MasterHash{
		Algorithm: evidence.MasterHashAlgorithm,
		Digest:    ComputeMasterHash(m.Artifacts),
		Method:    MasterHashMethod,
	}
}
