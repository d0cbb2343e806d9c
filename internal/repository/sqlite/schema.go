package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeLayout is fixed width so that lexical order of stored values matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// legacy rows written by CURRENT_TIMESTAMP defaults use the plain SQLite layout
var readLayouts = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timestamp scans DATETIME columns regardless of whether the driver hands back
// text or an already parsed time.Time.
type timestamp struct {
	Time time.Time
}

func (ts *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		ts.Time = time.Time{}
		return nil
	case time.Time:
		ts.Time = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (ts *timestamp) parse(value string) error {
	value = strings.TrimSpace(value)
	for _, layout := range readLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			ts.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", value)
}

var _ sql.Scanner = (*timestamp)(nil)

// storedTimeGlob matches values already written in timeLayout.
const storedTimeGlob = `[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]T[0-9][0-9]:[0-9][0-9]:[0-9][0-9].[0-9][0-9][0-9][0-9][0-9][0-9][0-9][0-9][0-9]Z`

// normalizeTimestamps rewrites values in the given columns that are not in
// timeLayout (CURRENT_TIMESTAMP defaults, offsets) so that text comparison in
// ORDER BY stays chronological. Unparseable values are left alone.
func normalizeTimestamps(ctx context.Context, db *sql.DB, table string, columns ...string) error {
	for _, column := range columns {
		stmt := strings.NewReplacer("{table}", table, "{col}", column).Replace(`
UPDATE {table}
SET {col} = strftime('%Y-%m-%dT%H:%M:%f', {col}) || '000000Z'
WHERE {col} IS NOT NULL
	AND {col} NOT GLOB ?
	AND strftime('%Y-%m-%dT%H:%M:%f', {col}) IS NOT NULL`)
		if _, err := db.ExecContext(ctx, stmt, storedTimeGlob); err != nil {
			return fmt.Errorf("normalize %s.%s: %w", table, column, err)
		}
	}
	return nil
}

type columnDef struct {
	name      string
	statement string
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, fmt.Errorf("describe %s table: %w", table, err)
	}
	defer rows.Close()

	columns := map[string]struct{}{}
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan pragma table info: %w", err)
		}
		columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pragma table info: %w", err)
	}
	return columns, nil
}

// addMissingColumns brings a table created by an older release up to date.
// Only additive changes are made; existing rows are kept.
func addMissingColumns(ctx context.Context, db *sql.DB, table string, defs []columnDef) ([]string, error) {
	columns, err := tableColumns(ctx, db, table)
	if err != nil {
		return nil, err
	}

	var added []string
	for _, def := range defs {
		if _, exists := columns[def.name]; exists {
			continue
		}
		if _, err := db.ExecContext(ctx, def.statement); err != nil {
			return added, fmt.Errorf("add column %s.%s: %w", table, def.name, err)
		}
		added = append(added, def.name)
	}
	return added, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	// errors from other drivers only carry the message
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
