package sqlite

import (
	"context"
	"fmt"
	"strings"
)

// Timestamps are INTEGER unix nanoseconds; entities and meta are JSON text.
// seq orders rows that share a timestamp by commit order.
const ddl = `
CREATE TABLE IF NOT EXISTS activities (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	id       TEXT NOT NULL UNIQUE,
	kind     TEXT NOT NULL,
	at       INTEGER NOT NULL,
	entities TEXT NOT NULL DEFAULT '{}',
	meta     TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS timeline_entries (
	seq               INTEGER PRIMARY KEY AUTOINCREMENT,
	id                TEXT NOT NULL UNIQUE,
	timeline_kind     TEXT NOT NULL,
	recipient_id      TEXT NOT NULL,
	routing_kind      TEXT NOT NULL,
	activity_id       TEXT NOT NULL DEFAULT '',
	activity_kind     TEXT NOT NULL,
	activity_at       INTEGER NOT NULL,
	activity_entities TEXT NOT NULL DEFAULT '{}',
	activity_meta     TEXT NOT NULL DEFAULT '{}',
	meta              TEXT NOT NULL DEFAULT '{}'
);

-- activity feeds
CREATE INDEX IF NOT EXISTS idx_activities_at ON activities (at, seq);
CREATE INDEX IF NOT EXISTS idx_activities_kind ON activities (kind);

-- timeline reads, counts and dedupe lookups
CREATE INDEX IF NOT EXISTS idx_entries_recipient ON timeline_entries (timeline_kind, recipient_id, activity_at, seq);
CREATE INDEX IF NOT EXISTS idx_entries_key ON timeline_entries (timeline_kind, recipient_id, activity_id, routing_kind);
`

func (c *Client) EnsureSchema(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(ddl) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}
	return nil
}

func splitStatements(ddl string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(ddl, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(stripped, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}

	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}
