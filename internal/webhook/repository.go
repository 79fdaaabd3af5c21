// Package webhook is the public intake and outbound delivery surface.
// Inbound: website forms and listing portals POST lead submissions
// authenticated by per-agency API keys. Outbound: lead lifecycle events are
// forwarded to a configured endpoint as HMAC-signed webhooks.
package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

var ErrAPIKeyNotFound = errors.New("webhook API key not found")

// keyPrefixLen covers "whk_" plus eight hex characters. The prefix is stored
// in clear and indexed so a presented key can be matched to one row before
// the bcrypt comparison runs.
const keyPrefixLen = 12

// APIKey authenticates inbound webhook submissions for one agency. Only the
// bcrypt hash of the key is stored; the plaintext is shown once at creation.
type APIKey struct {
	ID             uuid.UUID
	AgencyID       uuid.UUID
	Name           string
	KeyPrefix      string
	KeyHash        string
	AllowedDomains []string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// GenerateAPIKey mints a random key and returns the plaintext, its bcrypt
// hash, and the lookup prefix. Only the hash and prefix are persisted.
func GenerateAPIKey() (plaintext, hash, prefix string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", err
	}
	plaintext = "whk_" + hex.EncodeToString(buf)

	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", err
	}
	return plaintext, string(digest), plaintext[:keyPrefixLen], nil
}

// MatchKey reports whether a presented plaintext key matches the stored hash.
func MatchKey(hash, presented string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) == nil
}

// Repository stores webhook API keys.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const apiKeyColumns = `id, agency_id, name, key_prefix, key_hash, allowed_domains, is_active, created_at, updated_at`

// Create inserts a new API key record.
func (r *Repository) Create(ctx context.Context, agencyID uuid.UUID, name, keyHash, keyPrefix string, allowedDomains []string) (APIKey, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_api_keys (agency_id, name, key_hash, key_prefix, allowed_domains)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+apiKeyColumns+`
	`, agencyID, name, keyHash, keyPrefix, allowedDomains)
	return scanAPIKey(row)
}

// GetByPrefix returns the active key carrying the given lookup prefix.
func (r *Repository) GetByPrefix(ctx context.Context, prefix string) (APIKey, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apiKeyColumns+`
		FROM webhook_api_keys
		WHERE key_prefix = $1 AND is_active = true
	`, prefix)
	return scanAPIKey(row)
}

// ListByAgency returns every key the agency has created, newest first.
func (r *Repository) ListByAgency(ctx context.Context, agencyID uuid.UUID) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apiKeyColumns+`
		FROM webhook_api_keys
		WHERE agency_id = $1
		ORDER BY created_at DESC
	`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Revoke deactivates a key. Revoked keys stay listed for auditability.
func (r *Repository) Revoke(ctx context.Context, keyID, agencyID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_api_keys
		SET is_active = false, updated_at = now()
		WHERE id = $1 AND agency_id = $2
	`, keyID, agencyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

func scanAPIKey(row pgx.Row) (APIKey, error) {
	var key APIKey
	err := row.Scan(
		&key.ID, &key.AgencyID, &key.Name, &key.KeyPrefix, &key.KeyHash,
		&key.AllowedDomains, &key.IsActive, &key.CreatedAt, &key.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrAPIKeyNotFound
	}
	if err != nil {
		return APIKey{}, err
	}
	if key.AllowedDomains == nil {
		key.AllowedDomains = []string{}
	}
	return key, nil
}
