// Package timestamp submits master hashes to calendar servers and manages the
// resulting proof envelopes.
package timestamp

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// proofMagic is the 31-byte prefix identifying the proof file format.
var proofMagic = []byte("\x00OpenTimestamps\x00\x00Proof\x00\xbf\x89\xe2\xe8\x84\xe8\x92\x94")

// sha256Tag is the one-byte hash-algorithm tag for SHA-256.
const sha256Tag byte = 0x08

// digestLen is the raw SHA-256 digest length embedded in the envelope.
const digestLen = 32

// BuildEnvelope assembles a proof file: magic prefix, algorithm tag, raw
// digest, then the opaque calendar response appended verbatim.
func BuildEnvelope(digest []byte, calendarResponse []byte) ([]byte, error) {
	if len(digest) != digestLen {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", digestLen, len(digest))
	}
	buf := make([]byte, 0, len(proofMagic)+1+digestLen+len(calendarResponse))
	buf = append(buf, proofMagic...)
	buf = append(buf, sha256Tag)
	buf = append(buf, digest...)
	buf = append(buf, calendarResponse...)
	return buf, nil
}

// ParseEnvelope structurally validates a proof file and returns the embedded
// digest (lowercase hex) and the calendar response bytes. Only the format is
// checked; whether the response anchors to a real block is for an external
// verifier.
func ParseEnvelope(data []byte) (stampedHex string, calendarResponse []byte, err error) {
	if len(data) < len(proofMagic)+1+digestLen {
		return "", nil, fmt.Errorf("proof file truncated: %d bytes", len(data))
	}
	if !bytes.Equal(data[:len(proofMagic)], proofMagic) {
		return "", nil, fmt.Errorf("proof file magic mismatch")
	}
	rest := data[len(proofMagic):]
	if rest[0] != sha256Tag {
		return "", nil, fmt.Errorf("unsupported hash algorithm tag 0x%02x", rest[0])
	}
	digest := rest[1 : 1+digestLen]
	return hex.EncodeToString(digest), rest[1+digestLen:], nil
}
