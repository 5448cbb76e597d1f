package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore keeps the first response written for an Idempotency-Key so
// a retried save returns the original record instead of creating another.
type IdempotencyStore struct {
	db  *pgxpool.Pool
	ttl time.Duration
}

func NewIdempotencyStore(db *pgxpool.Pool, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyStore{db: db, ttl: ttl}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *IdempotencyStore) Check(ctx context.Context, tenantID, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, nil
	}
	var storedHash string
	var stored json.RawMessage
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE tenant_id = $1 AND user_id = $2 AND key = $3 AND endpoint = $4
      AND created_at > now() - make_interval(secs => $5)
  `, tenantID, userID, key, endpoint, s.ttl.Seconds()).Scan(&storedHash, &stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if storedHash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return stored, true, nil
}

// Save stores the response for key. An expired entry for the same key is
// replaced; a live entry with a different request hash is a conflict.
func (s *IdempotencyStore) Save(ctx context.Context, tenantID, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	if s == nil || s.db == nil {
		return nil
	}
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (tenant_id, user_id, key, endpoint, request_hash, response_json)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (tenant_id, user_id, key, endpoint)
    DO UPDATE SET request_hash = EXCLUDED.request_hash, response_json = EXCLUDED.response_json, created_at = now()
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
       OR idempotency_keys.created_at <= now() - make_interval(secs => $7)
  `, tenantID, userID, key, endpoint, requestHash, response, s.ttl.Seconds())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Prune deletes entries older than the store's TTL.
func (s *IdempotencyStore) Prune(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `
    DELETE FROM idempotency_keys
    WHERE created_at <= now() - make_interval(secs => $1)
  `, s.ttl.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
