// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package hashchain

import (
	"crypto/sha256"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/tomtom215/auditkeep/internal/audit"
)

// Supported digest algorithms. The name is stored on every HashRecord.
const (
	AlgorithmSHA256     = "sha256"
	AlgorithmSHA3_256   = "sha3-256"
	AlgorithmBLAKE2b256 = "blake2b-256"
)

// DefaultAlgorithm is used when none is configured.
const DefaultAlgorithm = AlgorithmSHA256

// newHasher returns a fresh hash.Hash for the named algorithm.
func newHasher(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case AlgorithmSHA256, "":
		return sha256.New(), nil
	case AlgorithmSHA3_256:
		return sha3.New256(), nil
	case AlgorithmBLAKE2b256:
		// New256 only fails for keys longer than 64 bytes.
		return blake2b.New256(nil)
	default:
		return nil, audit.Validationf("unsupported hash algorithm %q", algorithm)
	}
}

// ValidAlgorithm reports whether algorithm can be used for hashing.
func ValidAlgorithm(algorithm string) bool {
	_, err := newHasher(algorithm)
	return err == nil && algorithm != ""
}
