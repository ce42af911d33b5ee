// Package keystore provides Postgres-backed storage for third-party API
// credentials. The search orchestrator consults it before every live
// call; the admin surface manages the rows.
package keystore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Key statuses. Anything but "active" is ignored by GetActiveKey.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

// ErrNotFound is returned when a key id does not exist.
var ErrNotFound = errors.New("api key not found")

// APIKey is one stored credential.
type APIKey struct {
	ID          string     `json:"id"`
	ServiceName string     `json:"serviceName"`
	KeyValue    string     `json:"keyValue"`
	Status      string     `json:"status"`
	LastUsed    *time.Time `json:"lastUsed,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Fingerprint returns a short SHA-256 digest of the key value, safe for
// log fields. The key value itself must never be logged.
func (k APIKey) Fingerprint() string {
	sum := sha256.Sum256([]byte(k.KeyValue))
	return hex.EncodeToString(sum[:])[:12]
}

// pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies
// it in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store reads and writes API keys in Postgres.
type Store struct {
	pool   pool
	logger *zap.Logger
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MaxConns int32
}

// NewStore connects a pool and wraps it.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStoreWithPool(p, logger), nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewStoreWithPool(p pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, logger: logger}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// GetActiveKey returns the most recently created active credential for a
// service, or nil (and no error) when none is configured.
func (s *Store) GetActiveKey(ctx context.Context, serviceName string) (*APIKey, error) {
	query := `
SELECT id, service_name, key_value, status, last_used, created_at
FROM api_keys
WHERE service_name = $1 AND status = $2
ORDER BY created_at DESC
LIMIT 1`

	var key APIKey
	err := s.pool.QueryRow(ctx, query, serviceName, StatusActive).
		Scan(&key.ID, &key.ServiceName, &key.KeyValue, &key.Status, &key.LastUsed, &key.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select active key: %w", err)
	}
	return &key, nil
}

// MarkUsed records that a key was consulted. It is fire-and-forget: the
// update runs detached from the caller with its own deadline, and a
// failure is logged, never propagated.
func (s *Store) MarkUsed(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.markUsed(ctx, id); err != nil {
			s.logger.Warn("mark api key used", zap.String("key_id", id), zap.Error(err))
		}
	}()
}

func (s *Store) markUsed(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("update last_used: %w", err)
	}
	return nil
}

// List returns every stored key, newest first.
func (s *Store) List(ctx context.Context) ([]APIKey, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, service_name, key_value, status, last_used, created_at
FROM api_keys
ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var key APIKey
		if err := rows.Scan(&key.ID, &key.ServiceName, &key.KeyValue, &key.Status, &key.LastUsed, &key.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

// Create inserts a new active key and returns it with its generated id.
func (s *Store) Create(ctx context.Context, serviceName, keyValue string) (APIKey, error) {
	key := APIKey{ServiceName: serviceName, KeyValue: keyValue, Status: StatusActive}
	err := s.pool.QueryRow(ctx, `
INSERT INTO api_keys (service_name, key_value, status)
VALUES ($1, $2, $3)
RETURNING id, created_at`, serviceName, keyValue, StatusActive).
		Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return APIKey{}, fmt.Errorf("insert api key: %w", err)
	}
	s.logger.Info("api key created",
		zap.String("service", serviceName),
		zap.String("fingerprint", key.Fingerprint()),
	)
	return key, nil
}

// UpdateStatus flips a key between active and expired.
func (s *Store) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE api_keys SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update api key status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
