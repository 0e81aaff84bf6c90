// Package hashing provides the content-hashing collaborator used to detect
// source changes and derive stable unit ids.
package hashing

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ContentHash returns the hex-encoded BLAKE2b-256 digest of data.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortID returns a compact hex id derived from the concatenation of parts,
// separated so ("ab","c") and ("a","bc") differ.
func ShortID(parts ...string) string {
	h, _ := blake2b.New(16, nil)
	for _, p := range parts {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(p)))
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Bucket maps s onto [0, buckets) using the BLAKE2b digest. Deterministic
// across processes, unlike Go's runtime map hashing.
func Bucket(s string, buckets int) int {
	if buckets <= 0 {
		return 0
	}
	sum := blake2b.Sum256([]byte(s))
	v := binary.LittleEndian.Uint64(sum[:8])
	return int(v % uint64(buckets))
}
