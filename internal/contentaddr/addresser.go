package contentaddr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/datalith/provenance-ledger/internal/adapter"
)

// Addresser turns an arbitrary stored artifact into an opaque, content-derived
// reference. Callers treat the result as an identifier only; resolving it back
// to bytes is the storage collaborator's job.
type Addresser interface {
	// Address computes the content reference for a JSON document. Two
	// documents that differ only in key order or whitespace yield the same
	// reference.
	Address(doc []byte) (string, error)
}

type jcsAddresser struct {
	jcs adapter.JCS
}

// NewAddresser creates an Addresser that canonicalizes JSON with JCS
// (RFC 8785) and hashes the canonical form with SHA-256
func NewAddresser(jcs adapter.JCS) Addresser {
	return &jcsAddresser{jcs: jcs}
}

// Address computes a sha256:<hex> reference over the JCS canonical form
func (a *jcsAddresser) Address(doc []byte) (string, error) {
	canonical, err := a.jcs.Transform(doc)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize document: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
