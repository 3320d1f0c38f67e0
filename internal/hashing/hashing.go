// Package hashing computes the short, deterministic content hashes that
// identify trees, configs and action versions throughout the engine.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// Length is the number of hex characters kept from the digest.
	Length = 10
	// VersionPrefix marks a hash as a version string so that an all-digit
	// hash is never mistaken for a numeric literal during template
	// evaluation.
	VersionPrefix = "v-"
	// separator joins the input parts before digesting. It keeps
	// ["ab","c"] and ["a","bc"] from colliding.
	separator = "\x00"
)

// EmptyHash is the sentinel for "no real version computed yet", e.g. an
// action configured to include zero files.
var EmptyHash = strings.Repeat("0", Length)

// EmptyVersion is the version-string form of EmptyHash.
var EmptyVersion = VersionPrefix + EmptyHash

// Hash digests the given parts in order and returns the first Length hex
// characters. Same ordered input always yields the same output; callers
// must sort inputs whose order is not semantically significant.
func Hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, separator)))
	return hex.EncodeToString(sum[:])[:Length]
}

// Version hashes the given parts and applies the version-string prefix.
func Version(parts ...string) string {
	return VersionPrefix + Hash(parts...)
}
