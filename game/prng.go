package game

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
)

const crashDrawDomain = "bierbaron-crash"

// roundRNG seeds math/rand from sha256 over the server seed, the round id and
// a domain tag, NUL-separated so no two (seed, round) pairs share an input.
func roundRNG(serverSeed, roundID string) *rand.Rand {
	h := sha256.New()
	for _, part := range []string{serverSeed, roundID, crashDrawDomain} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)

	seed := binary.BigEndian.Uint64(sum[:8]) ^ binary.BigEndian.Uint64(sum[8:16])
	return rand.New(rand.NewSource(int64(seed)))
}
