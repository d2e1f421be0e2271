package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// APIKey represents a row in the api_keys table. Only the bcrypt hash is
// stored; the plaintext key is shown once at creation.
type APIKey struct {
	ID        string
	Name      string
	KeyHash   string
	KeyPrefix string
	Disabled  bool
	CreatedAt time.Time
}

// GenerateAPIKey creates a new wsk_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := "wsk_" + hex.EncodeToString(raw) // 68 chars total

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	prefix := fullKey[:8] // "wsk_abcd"
	return fullKey, string(hashBytes), prefix, nil
}

// CreateKey inserts a new API key and returns it along with the plaintext
// key (shown once).
func (s *Store) CreateKey(ctx context.Context, name string) (*APIKey, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreateKey: %w", err)
	}

	var k APIKey
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (name, key_hash, key_prefix)
		VALUES ($1, $2, $3)
		RETURNING id, name, key_hash, key_prefix, disabled, created_at`,
		name, keyHash, keyPrefix,
	).Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Disabled, &k.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("CreateKey: %w", err)
	}

	return &k, fullKey, nil
}

// LookupKeyByPrefix returns the active key matching the prefix, or nil when
// no such key exists.
func (s *Store) LookupKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	var k APIKey
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, key_hash, key_prefix, disabled, created_at
		FROM api_keys
		WHERE key_prefix = $1 AND NOT disabled`,
		prefix,
	).Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Disabled, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupKeyByPrefix: %w", err)
	}
	return &k, nil
}
