package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dylanlee/wncat/internal/stac"
)

const (
	upsertCollectionSQL = `SELECT pgstac.upsert_collection($1::text::jsonb)`
	upsertItemSQL       = `SELECT pgstac.upsert_item($1::text::jsonb)`
)

// execer is the subset of pgxpool.Pool the loader needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgSTAC loads documents through the pgstac upsert functions, which replace
// the stored row for a collection id or a collection id + item id pair.
type PgSTAC struct {
	db     execer
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPgSTAC connects a pool to dsn and verifies it with a ping.
func OpenPgSTAC(ctx context.Context, dsn string, maxConns int32) (*PgSTAC, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse index DSN: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to pgstac: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pgstac: %w", err)
	}

	p := NewPgSTAC(pool)
	p.pool = pool
	return p, nil
}

// NewPgSTAC creates a loader over an existing connection or pool.
func NewPgSTAC(db execer) *PgSTAC {
	return &PgSTAC{db: db, logger: slog.Default()}
}

// WithLogger sets a custom logger for the loader.
func (p *PgSTAC) WithLogger(logger *slog.Logger) *PgSTAC {
	p.logger = logger
	return p
}

func (p *PgSTAC) UpsertCollection(ctx context.Context, collection *stac.Collection) error {
	if err := p.exec(ctx, upsertCollectionSQL, collection); err != nil {
		return fmt.Errorf("upsert collection %s: %w", collection.Id, err)
	}
	p.logger.DebugContext(ctx, "collection indexed", slog.String("collection", collection.Id))
	return nil
}

func (p *PgSTAC) UpsertItem(ctx context.Context, item *stac.Item) error {
	if err := p.exec(ctx, upsertItemSQL, item); err != nil {
		return fmt.Errorf("upsert item %s/%s: %w", item.Collection, item.Id, err)
	}
	p.logger.DebugContext(ctx, "item indexed",
		slog.String("collection", item.Collection),
		slog.String("item_id", item.Id),
	)
	return nil
}

func (p *PgSTAC) exec(ctx context.Context, sql string, doc any) error {
	if p.db == nil {
		return ErrClosed
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = p.db.Exec(ctx, sql, string(data))
	return err
}

func (p *PgSTAC) Ping(ctx context.Context) error {
	if p.pool == nil {
		return nil
	}
	return p.pool.Ping(ctx)
}

func (p *PgSTAC) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	p.db = nil
	return nil
}

func (p *PgSTAC) Name() string { return "pgstac" }
