package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"route-limiter/middleware/ratelimit/domain"

	_ "github.com/mattn/go-sqlite3"
)

const createAccessLogsSQL = `
CREATE TABLE IF NOT EXISTS access_logs (
    client_key TEXT NOT NULL,
    route_key TEXT NOT NULL,
    times TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (client_key, route_key)
)`

const upsertAccessLogSQL = `
INSERT INTO access_logs (client_key, route_key, times, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (client_key, route_key) DO UPDATE SET times = excluded.times, updated_at = excluded.updated_at`

// SQLAccessStore persiste os logs em arquivo (SQLite), uma linha por (cliente, rota).
// É o equivalente durável do arquivo key-value original: sobrevive a restarts.
type SQLAccessStore struct {
	db    *sql.DB
	codec Codec
}

type SQLAccessOption func(*SQLAccessStore)

func WithSQLCodec(c Codec) SQLAccessOption {
	return func(s *SQLAccessStore) { s.codec = c }
}

// OpenSQLiteAccessStore abre (ou cria) o arquivo em path e garante o schema.
func OpenSQLiteAccessStore(ctx context.Context, path string, opts ...SQLAccessOption) (*SQLAccessStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// SQLite aceita um escritor por vez; uma conexão só evita "database is locked".
	db.SetMaxOpenConns(1)

	s, err := NewSQLAccessStore(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLAccessStore usa um *sql.DB já aberto e cria a tabela se não existir.
func NewSQLAccessStore(ctx context.Context, db *sql.DB, opts ...SQLAccessOption) (*SQLAccessStore, error) {
	s := &SQLAccessStore{db: db, codec: JSONCodec{}}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.ExecContext(ctx, createAccessLogsSQL); err != nil {
		return nil, fmt.Errorf("create access_logs: %w", err)
	}
	return s, nil
}

func (s *SQLAccessStore) Close() error { return s.db.Close() }

func (s *SQLAccessStore) Load(ctx context.Context, client domain.ClientKey, route domain.RouteKey) (domain.AccessLog, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT times FROM access_logs WHERE client_key = ? AND route_key = ?`,
		string(client), string(route)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	log, err := s.codec.Decode([]byte(raw))
	if err != nil {
		return nil, false, err
	}
	return log, true, nil
}

func (s *SQLAccessStore) Save(ctx context.Context, client domain.ClientKey, route domain.RouteKey, log domain.AccessLog) error {
	raw, err := s.codec.Encode(log)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertAccessLogSQL, string(client), string(route), string(raw), time.Now().UTC())
	return err
}

func (s *SQLAccessStore) Keys(ctx context.Context) ([]domain.ClientKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT client_key FROM access_logs ORDER BY client_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ClientKey
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, domain.ClientKey(k))
	}
	return out, rows.Err()
}

func (s *SQLAccessStore) Get(ctx context.Context, client domain.ClientKey) (domain.ClientRecord, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT route_key, times FROM access_logs WHERE client_key = ?`, string(client))
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	rec := make(domain.ClientRecord)
	for rows.Next() {
		var route, raw string
		if err := rows.Scan(&route, &raw); err != nil {
			return nil, false, err
		}
		log, err := s.codec.Decode([]byte(raw))
		if err != nil {
			return nil, false, err
		}
		rec[domain.RouteKey(route)] = log
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(rec) == 0 {
		return nil, false, nil
	}
	return rec, true, nil
}
