package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost keeps key validation around tens of milliseconds.
	bcryptCost  = 10
	bcryptLimit = 72
)

// Sentinel errors for API key operations.
var (
	// ErrKeyEmpty is returned when an empty API key is provided.
	ErrKeyEmpty = errors.New("API key cannot be empty")
)

// APIKey identifies a caller of the internal operational endpoints. Only the
// bcrypt hash of the key is ever persisted.
type APIKey struct {
	ID        int64
	Name      string
	KeyHash   string
	CreatedAt time.Time
	Active    bool
}

// APIKeyStore validates API keys for the auth middleware.
type APIKeyStore interface {
	// ValidateKey reports whether the plaintext key matches an active stored key.
	ValidateKey(ctx context.Context, key string) bool
}

// HashAPIKey generates a bcrypt hash of the API key for storage. Keys longer
// than bcrypt's 72-byte limit are pre-hashed with SHA-256.
func HashAPIKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrKeyEmpty
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(apiKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return string(hash), nil
}

// CompareAPIKeyHash performs constant-time comparison of an API key against a
// stored bcrypt hash. Returns false on any error condition.
func CompareAPIKeyHash(hash, apiKey string) bool {
	if hash == "" || apiKey == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(apiKey)) == nil
}

func bcryptInput(apiKey string) []byte {
	if len(apiKey) > bcryptLimit {
		sum := sha256.Sum256([]byte(apiKey))

		return sum[:]
	}

	return []byte(apiKey)
}

// PersistentKeyStore implements APIKeyStore with a PostgreSQL backend.
type PersistentKeyStore struct {
	conn *Connection
}

// NewPersistentKeyStore creates a PostgreSQL-backed API key store.
func NewPersistentKeyStore(conn *Connection) (*PersistentKeyStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PersistentKeyStore{conn: conn}, nil
}

// Add stores a new API key, hashing it before persistence.
func (s *PersistentKeyStore) Add(ctx context.Context, name, apiKey string) error {
	hash, err := HashAPIKey(apiKey)
	if err != nil {
		return err
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO api_keys (name, key_hash, created_at, active)
		VALUES ($1, $2, $3, TRUE)
	`, name, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store API key %q: %w", name, err)
	}

	return nil
}

// ValidateKey compares the provided key against every active stored hash.
// Bcrypt salts make a direct hash lookup impossible; the linear scan is fine
// for the handful of operator keys this service carries.
func (s *PersistentKeyStore) ValidateKey(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}

	rows, err := s.conn.QueryContext(ctx, `SELECT key_hash FROM api_keys WHERE active = TRUE`)
	if err != nil {
		return false
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var hash string

		if err := rows.Scan(&hash); err != nil {
			continue
		}

		if CompareAPIKeyHash(hash, key) {
			return true
		}
	}

	return false
}
