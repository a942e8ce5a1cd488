// Package hrw implements rendezvous (highest random weight) hashing.
package hrw

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Pick returns the candidate with the highest score for key. Ties are
// broken by candidate order. ok=false if candidates is empty.
func Pick(key string, candidates []string, seed string) (best string, ok bool) {
	var bestScore uint64
	keyB := []byte(key)
	for _, c := range candidates {
		s := score(keyB, c, seed)
		if !ok || s > bestScore {
			best, bestScore, ok = c, s, true
		}
	}
	return best, ok
}

func score(key []byte, candidate string, seed string) uint64 {
	h, _ := blake2b.New(8, nil)

	if seed != "" {
		h.Write([]byte(seed))
		h.Write([]byte{0})
	}

	h.Write(key)
	h.Write([]byte{0})
	h.Write([]byte(candidate))

	return binary.BigEndian.Uint64(h.Sum(nil))
}
