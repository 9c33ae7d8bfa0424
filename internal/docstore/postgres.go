package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var postgresDialect = dialect{
	name: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data JSONB NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
	},
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	field: func(name string) string {
		return fmt.Sprintf("COALESCE(data->>'%s', '')", name)
	},
	collate: ` COLLATE "C"`,
	upsert: `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data`,
}

// OpenPostgres connects to a Postgres document store.
func OpenPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*SQL, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("docstore: open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(8)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("docstore: ping postgres: %w", err)
	}

	s, err := newSQL(ctx, db, postgresDialect, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
