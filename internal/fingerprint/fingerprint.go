// Package fingerprint computes stable identity hashes used for the core's
// at-most-once-build guarantee: a fingerprint of a package name plus its
// inputs is stable across runs, so the same source is never built twice at
// the same time even if two requirements reach the Builder through
// different routes.
package fingerprint

import (
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
)

// Key is a package's at-most-once-build fingerprint, a hex string.
type Key string

// Of hashes v (typically a small struct of package name and source
// locator) into a stable Key. Field order and naming in v must not
// change across releases or existing fingerprints will no longer match.
func Of(v interface{}) (Key, error) {
	h, err := hashstructure.Hash(v, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("error computing fingerprint: %w", err)
	}
	return Key(fmt.Sprintf("%016x", h)), nil
}
