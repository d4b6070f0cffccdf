package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

type idempotencyRecord struct {
	hash     string
	response json.RawMessage
}

// IdempotencyStore remembers the response to a keyed request per user and
// endpoint. Without a database the records live for the process lifetime.
type IdempotencyStore struct {
	db *pgxpool.Pool

	mu      sync.Mutex
	records map[string]idempotencyRecord
}

func NewIdempotencyStore(db *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{db: db, records: map[string]idempotencyRecord{}}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func memoryKey(userID, endpoint, key string) string {
	return userID + "\x00" + endpoint + "\x00" + key
}

func (s *IdempotencyStore) Check(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		record, ok := s.records[memoryKey(userID, endpoint, key)]
		if !ok {
			return nil, false, nil
		}
		if record.hash != requestHash {
			return nil, false, ErrIdempotencyConflict
		}
		return record.response, true, nil
	}

	var storedHash string
	var stored json.RawMessage
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE user_id = $1 AND key = $2 AND endpoint = $3
  `, userID, key, endpoint).Scan(&storedHash, &stored)
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

func (s *IdempotencyStore) Save(ctx context.Context, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	if s == nil {
		return nil
	}
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		mk := memoryKey(userID, endpoint, key)
		if existing, ok := s.records[mk]; ok && existing.hash != requestHash {
			return ErrIdempotencyConflict
		}
		s.records[mk] = idempotencyRecord{hash: requestHash, response: response}
		return nil
	}

	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (user_id, key, endpoint, request_hash, response_json)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (user_id, key, endpoint)
    DO UPDATE SET response_json = EXCLUDED.response_json
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, userID, key, endpoint, requestHash, response)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}
