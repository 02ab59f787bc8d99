package store

import (
	"context"
	"database/sql"
	"errors"

	"studydeck/pkg/logger"
)

const defaultSnapshotID = "default"

// PostgresPersister keeps the tree as one JSONB row.
type PostgresPersister struct {
	DB *sql.DB
	ID string
}

func NewPostgresPersister(db *sql.DB) *PostgresPersister {
	return &PostgresPersister{DB: db, ID: defaultSnapshotID}
}

func (p *PostgresPersister) EnsureSchema(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tree_snapshots (
		id TEXT PRIMARY KEY,
		content JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		logger.Sugar.Errorf("Failed to create tree_snapshots table: %v", err)
	}
	return err
}

func (p *PostgresPersister) Load(ctx context.Context) ([]byte, error) {
	var content []byte
	err := p.DB.QueryRowContext(ctx, "SELECT content FROM tree_snapshots WHERE id = $1", p.ID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load snapshot %s: %v", p.ID, err)
		return nil, err
	}
	return content, nil
}

func (p *PostgresPersister) Save(ctx context.Context, snapshot []byte) error {
	// lib/pq wants a string for JSONB, not []byte
	_, err := p.DB.ExecContext(ctx, `INSERT INTO tree_snapshots (id, content, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()`, p.ID, string(snapshot))
	if err != nil {
		logger.Sugar.Errorf("Failed to save snapshot %s: %v", p.ID, err)
	}
	return err
}
