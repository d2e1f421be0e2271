package store

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerateAPIKey(t *testing.T) {
	fullKey, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if !strings.HasPrefix(fullKey, "wsk_") {
		t.Errorf("key missing wsk_ prefix: %q", fullKey)
	}
	if len(fullKey) != 68 {
		t.Errorf("key length = %d, want 68", len(fullKey))
	}
	if prefix != fullKey[:8] {
		t.Errorf("prefix = %q, want first 8 chars of key", prefix)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(fullKey)); err != nil {
		t.Errorf("hash does not verify the key: %v", err)
	}

	other, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("second generate failed: %v", err)
	}
	if other == fullKey {
		t.Error("two generated keys are identical")
	}
}
