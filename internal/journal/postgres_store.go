package journal

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists records in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS mint_journal (
    id BIGSERIAL PRIMARY KEY,
    order_id TEXT NOT NULL,
    buyer TEXT NOT NULL,
    tx_hash TEXT NOT NULL,
    token_id TEXT NOT NULL,
    minted_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS mint_journal_order_id ON mint_journal (order_id);
`

// NewPostgresStore connects to Postgres using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Append(ctx context.Context, record Record) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO mint_journal (order_id, buyer, tx_hash, token_id, minted_at)
VALUES ($1, $2, $3, $4, $5)
`, record.OrderID, record.Buyer, record.TxHash, record.TokenID, record.MintedAt)
	return err
}
