// Package postgres provides the Postgres-backed persistence layer for the
// content and articles tables.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artiklix/kirjasto-harvester/internal/harvest"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store writes content and article rows into Postgres.
type Store struct {
	pool dbPool
}

const createContentTable = `
CREATE TABLE IF NOT EXISTS content (
	id BIGSERIAL PRIMARY KEY,
	description TEXT,
	text TEXT
)`

const createArticlesTable = `
CREATE TABLE IF NOT EXISTS articles (
	id BIGSERIAL PRIMARY KEY,
	main_category TEXT NOT NULL,
	sub_category TEXT,
	list_name TEXT,
	article_id TEXT NOT NULL,
	article_name TEXT NOT NULL,
	h2_name TEXT NOT NULL,
	h3_name TEXT NOT NULL,
	keywords TEXT,
	content_id BIGINT NOT NULL REFERENCES content(id)
)`

const insertContentSQL = `
INSERT INTO content (description, text) VALUES ($1, $2) RETURNING id`

const insertArticleSQL = `
INSERT INTO articles (
	main_category,
	sub_category,
	list_name,
	article_id,
	article_name,
	h2_name,
	h3_name,
	keywords,
	content_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`

// NewStore creates a Store backed by a new pgx connection pool.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
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
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates both tables if absent. Content must exist first; the
// articles table references it.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createContentTable); err != nil {
		return &harvest.StorageError{Op: "create content table", PreWrite: true, Err: err}
	}
	if _, err := s.pool.Exec(ctx, createArticlesTable); err != nil {
		return &harvest.StorageError{Op: "create articles table", PreWrite: true, Err: err}
	}
	return nil
}

// LoadContentRows streams every existing content row to fn; used to preload
// the dedup index so reruns reuse prior content ids.
func (s *Store) LoadContentRows(ctx context.Context, fn func(id int64, description, text string)) error {
	rows, err := s.pool.Query(ctx, `SELECT id, description, text FROM content`)
	if err != nil {
		return &harvest.StorageError{Op: "load content rows", PreWrite: true, Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id                int64
			description, text *string
		)
		if err := rows.Scan(&id, &description, &text); err != nil {
			return &harvest.StorageError{Op: "scan content row", PreWrite: true, Err: err}
		}
		fn(id, deref(description), deref(text))
	}
	if err := rows.Err(); err != nil {
		return &harvest.StorageError{Op: "iterate content rows", PreWrite: true, Err: err}
	}
	return nil
}

// InsertArticleWithContent inserts a new content row and the article row
// referencing it inside one transaction, so a cancellation or failure cannot
// leave the pair half written. Returns both generated ids.
func (s *Store) InsertArticleWithContent(
	ctx context.Context,
	rec harvest.ArticleRecord,
	block harvest.ContentBlock,
) (int64, int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		// Nothing written yet; safe to retry.
		return 0, 0, &harvest.StorageError{Op: "begin", PreWrite: true, Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var contentID int64
	err = tx.QueryRow(ctx, insertContentSQL, block.Description, block.Text).Scan(&contentID)
	if err != nil {
		return 0, 0, &harvest.StorageError{Op: "insert content", Err: err}
	}

	rec.ContentID = contentID
	articleID, err := insertArticle(ctx, tx, rec)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, &harvest.StorageError{Op: "commit", Err: err}
	}
	return articleID, contentID, nil
}

// InsertArticleForContent inserts an article row referencing an existing
// content id.
func (s *Store) InsertArticleForContent(
	ctx context.Context,
	rec harvest.ArticleRecord,
	contentID int64,
) (int64, error) {
	rec.ContentID = contentID
	return insertArticle(ctx, s.pool, rec)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertArticle(ctx context.Context, q rowQuerier, rec harvest.ArticleRecord) (int64, error) {
	var articleID int64
	err := q.QueryRow(ctx, insertArticleSQL,
		rec.MainCategory,
		nullable(rec.SubCategory),
		nullable(rec.ListName),
		rec.ArticleID,
		rec.ArticleName,
		rec.H2Name,
		rec.H3Name,
		nullable(rec.Keywords),
		rec.ContentID,
	).Scan(&articleID)
	if err != nil {
		return 0, &harvest.StorageError{Op: "insert article", Err: err}
	}
	return articleID, nil
}

// nullable maps empty strings onto SQL NULL for the nullable columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
