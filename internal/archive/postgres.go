// Package archive writes the final state of torn-down rooms to
// Postgres. Live documents never touch the database; this is a
// tombstone record of what a session ended with.
package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"codesync/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS room_archive (
	id          BIGSERIAL PRIMARY KEY,
	room_id     TEXT NOT NULL,
	text        TEXT NOT NULL,
	language    TEXT NOT NULL,
	notepad     TEXT NOT NULL,
	archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres archives closed rooms into the room_archive table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and ensures the archive table
// exists.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure archive table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// SaveFinal records the document a room ended with.
func (a *Postgres) SaveFinal(ctx context.Context, roomID string, doc store.Document) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO room_archive (room_id, text, language, notepad) VALUES ($1, $2, $3, $4)`,
		roomID, doc.Text, doc.Language, doc.Notepad)
	if err != nil {
		return fmt.Errorf("archive room %q: %w", roomID, err)
	}
	return nil
}

// History returns the archived documents for a room, newest first.
func (a *Postgres) History(ctx context.Context, roomID string, limit int) ([]store.Document, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT text, language, notepad FROM room_archive
		 WHERE room_id = $1 ORDER BY archived_at DESC LIMIT $2`,
		roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query archive for %q: %w", roomID, err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var doc store.Document
		if err := rows.Scan(&doc.Text, &doc.Language, &doc.Notepad); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (a *Postgres) Close() {
	a.pool.Close()
}
