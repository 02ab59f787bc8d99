package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"studydeck/pkg/logger"

	_ "github.com/lib/pq"
)

// Connect opens the postgres pool and pings it, retrying a few times in case
// of temporary DNS/network blips.
func Connect(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.PingContext(ctx); err == nil {
			logger.Sugar.Info("Successfully connected to the database")
			return db, nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in 2s... (%v)", err)
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		}
	}
	db.Close()
	return nil, fmt.Errorf("could not connect to database after retries: %w", err)
}
