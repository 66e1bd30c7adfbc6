package crypto

import "testing"

func TestGenerateServerSeed(t *testing.T) {
	seed, hash, err := GenerateServerSeed()
	if err != nil {
		t.Fatalf("GenerateServerSeed failed: %v", err)
	}
	if len(seed) != 64 || len(hash) != 64 {
		t.Fatalf("Expected 64 hex chars, got seed=%d hash=%d", len(seed), len(hash))
	}
	if !VerifySeed(seed, hash) {
		t.Error("Expected generated seed to verify against its hash")
	}
	if VerifySeed(seed+"0", hash) {
		t.Error("Expected tampered seed to fail verification")
	}

	other, _, err := GenerateServerSeed()
	if err != nil {
		t.Fatalf("GenerateServerSeed failed: %v", err)
	}
	if other == seed {
		t.Error("Expected distinct seeds across calls")
	}
}
