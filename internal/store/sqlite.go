package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/issuebot/internal/model"
)

// busyTimeoutMillis bounds how long a writer waits for another process
// holding the database lock.
const busyTimeoutMillis = 5000

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// One connection: writers from this process are serialized, and an
	// in-memory database is shared by every query.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Other processes (cron next to an inbound delivery) wait instead of
	// failing with SQLITE_BUSY.
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order, each inside its own transaction.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("beginning migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if m.apply != nil {
			if err := m.apply(tx); err != nil {
				tx.Rollback()
				return fmt.Errorf("applying migration v%d: %w", m.version, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const issueColumns = `id, submitter, password, time_created,
	COALESCE(anonymous, 0) AS anonymous,
	COALESCE(subscribed, 0) AS subscribed,
	title, COALESCE(last_update, '') AS last_update`

// InsertIssue stores a newly created issue.
func (s *SQLiteStore) InsertIssue(ctx context.Context, issue model.Issue) error {
	if issue.Token.IsZero() {
		return fmt.Errorf("inserting issue %d: token must be set", issue.ID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issue (
			id, submitter, password, time_created,
			anonymous, subscribed, title, last_update
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Submitter, issue.Token, issue.CreatedAt,
		boolToInt(issue.Anonymous), boolToInt(issue.Subscribed),
		issue.Title, issue.Watermark,
	)
	if err != nil {
		return fmt.Errorf("inserting issue %d: %w", issue.ID, err)
	}

	return nil
}

// FindByToken retrieves the issue owning token.
func (s *SQLiteStore) FindByToken(
	ctx context.Context,
	token model.Token,
) (*model.Issue, error) {
	var issue model.Issue
	err := s.db.GetContext(ctx, &issue,
		"SELECT "+issueColumns+" FROM issue WHERE password = ?", token,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("looking up token %s: %w", token.Short(), model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up token %s: %w", token.Short(), err)
	}

	return &issue, nil
}

// SetSubscribed changes the subscription flag of the issue owning token,
// provided the flag currently holds the opposite value.
func (s *SQLiteStore) SetSubscribed(
	ctx context.Context,
	token model.Token,
	value bool,
) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE issue SET subscribed = ? WHERE password = ? AND COALESCE(subscribed, 0) = ?",
		boolToInt(value), token, boolToInt(!value),
	)
	if err != nil {
		return fmt.Errorf("updating subscription for token %s: %w", token.Short(), err)
	}

	return expectOneRow(result, "subscription for token "+token.Short())
}

// SetWatermark advances the watermark of issue id. Moving it backwards
// matches no row and is reported as a consistency error.
func (s *SQLiteStore) SetWatermark(
	ctx context.Context,
	id int64,
	value string,
) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE issue SET last_update = ? WHERE id = ? AND COALESCE(last_update, '') <= ?",
		value, id, value,
	)
	if err != nil {
		return fmt.Errorf("updating watermark for issue %d: %w", id, err)
	}

	return expectOneRow(result, fmt.Sprintf("watermark for issue %d", id))
}

// ListIssues retrieves every stored issue ordered by id.
func (s *SQLiteStore) ListIssues(ctx context.Context) ([]model.Issue, error) {
	var issues []model.Issue
	err := s.db.SelectContext(ctx, &issues,
		"SELECT "+issueColumns+" FROM issue ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}

	return issues, nil
}

// expectOneRow enforces the single-row-affected contract of the
// conditional updates.
func expectOneRow(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected for %s: %w", what, err)
	}
	if rows != 1 {
		return fmt.Errorf("%w: %s updated %d rows, want 1", ErrConsistency, what, rows)
	}
	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
