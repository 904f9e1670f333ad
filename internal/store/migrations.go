package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/issuebot/internal/model"
)

// migration holds a single schema migration with its target version, its
// SQL and an optional data rewrite that runs in the same transaction.
type migration struct {
	version int
	sql     string
	apply   func(tx *sqlx.Tx) error
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
//
// The issue table keeps the column names of databases created by earlier
// releases of the bot: the capability token lives in "password" and the
// watermark in "last_update".
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS issue (
	id           INTEGER PRIMARY KEY,
	submitter    TEXT NOT NULL,
	password     BLOB,
	time_created TEXT NOT NULL,
	anonymous    BOOLEAN,
	subscribed   BOOLEAN,
	title        TEXT NOT NULL,
	last_update  TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_issue_password ON issue(password);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
UPDATE issue SET last_update = replace(last_update, '"', '')
	WHERE last_update LIKE '%"%';

UPDATE issue SET last_update = '' WHERE last_update IS NULL;

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql:     `INSERT INTO schema_version (version) VALUES (3);`,
		apply:   canonicalizeTimestamps,
	},
}

// canonicalizeTimestamps rewrites timestamps stored with a local offset
// (as earlier releases saved them) into the canonical UTC layout, so that
// string comparison against canonical comment timestamps stays correct.
// An unparseable watermark is reset to empty: its comments are delivered
// again rather than skipped.
func canonicalizeTimestamps(tx *sqlx.Tx) error {
	var rows []struct {
		ID          int64  `db:"id"`
		TimeCreated string `db:"time_created"`
		LastUpdate  string `db:"last_update"`
	}
	err := tx.Select(&rows,
		"SELECT id, time_created, COALESCE(last_update, '') AS last_update FROM issue")
	if err != nil {
		return fmt.Errorf("reading timestamps: %w", err)
	}

	for _, r := range rows {
		created := r.TimeCreated
		if ts, err := model.CanonicalTimestamp(created); err == nil {
			created = ts
		}

		watermark := ""
		if r.LastUpdate != "" {
			if ts, err := model.CanonicalTimestamp(r.LastUpdate); err == nil {
				watermark = ts
			}
		}

		if created == r.TimeCreated && watermark == r.LastUpdate {
			continue
		}
		_, err := tx.Exec(
			"UPDATE issue SET time_created = ?, last_update = ? WHERE id = ?",
			created, watermark, r.ID,
		)
		if err != nil {
			return fmt.Errorf("rewriting timestamps of issue %d: %w", r.ID, err)
		}
	}

	return nil
}
