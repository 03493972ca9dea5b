// Package sqlite persists the usage counters behind the recap tool.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/failure"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS app_stats (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    recaps_created INTEGER NOT NULL DEFAULT 0,
    total_rating_sum INTEGER NOT NULL DEFAULT 0,
    rating_count INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT OR IGNORE INTO app_stats (id) VALUES (1);
`

const (
	MinRating = 1
	MaxRating = 5
)

// Store is a single-row counter table in a local SQLite file.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	const op = "sqlite.Open"

	if strings.TrimSpace(path) == "" {
		return nil, failure.Validation(op, "a stats database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create stats directory")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open stats database")
	}
	// counter updates go through a single connection
	db.SetMaxOpenConns(1)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := execSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return errors.Wrapf(err, "set pragma %q", p)
		}
	}
	return nil
}

func execSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin schema transaction")
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(context.Background(), stmt); err != nil {
			return errors.Wrapf(err, "schema statement %q", stmt)
		}
	}
	return errors.Wrap(tx.Commit(), "commit schema")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) IncrementRecapsCreated(ctx context.Context) error {
	const op = "sqlite.IncrementRecapsCreated"

	_, err := s.db.ExecContext(ctx,
		`UPDATE app_stats SET recaps_created = recaps_created + 1, updated_at = CURRENT_TIMESTAMP WHERE id = 1`)
	if err != nil {
		return failure.Wrap(failure.KindSideEffect, op, err, "failed to increment recap counter")
	}
	return nil
}

func (s *Store) AddRating(ctx context.Context, rating int) error {
	const op = "sqlite.AddRating"

	if rating < MinRating || rating > MaxRating {
		return failure.Validation(op, fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating))
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE app_stats
		    SET total_rating_sum = total_rating_sum + ?,
		        rating_count = rating_count + 1,
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = 1`, rating)
	if err != nil {
		return failure.Wrap(failure.KindSideEffect, op, err, "failed to store rating")
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (types.Stats, error) {
	var st types.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT recaps_created, total_rating_sum, rating_count FROM app_stats WHERE id = 1`,
	).Scan(&st.RecapsCreated, &st.TotalRatingSum, &st.RatingCount)
	if err != nil {
		return types.Stats{}, errors.Wrap(err, "read stats")
	}
	return st, nil
}
