package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
	},
	placeholder: func(n int) string { return "?" + strconv.Itoa(n) },
	field: func(name string) string {
		return fmt.Sprintf("COALESCE(json_extract(data, '$.%s'), '')", name)
	},
	upsert: `INSERT INTO documents (collection, id, data) VALUES (?1, ?2, ?3)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data`,
}

// OpenSQLite opens (creating if needed) a SQLite document store at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQL, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps batches atomic
	// without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("docstore: ping sqlite: %w", err)
	}

	s, err := newSQL(ctx, db, sqliteDialect, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
