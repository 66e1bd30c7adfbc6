package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateServerSeed returns a fresh 32-byte hex seed and its sha256 commitment.
// The hash is published when a round opens, the seed once the round has crashed.
func GenerateServerSeed() (seed string, hash string, err error) {
	bytes := make([]byte, 32)
	if _, err = rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("failed to read random seed: %w", err)
	}

	seed = hex.EncodeToString(bytes)
	hash = HashSeed(seed)
	return seed, hash, nil
}

func HashSeed(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

// VerifySeed reports whether hash is the commitment for seed.
func VerifySeed(seed, hash string) bool {
	return HashSeed(seed) == hash
}
