package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notekeeper/internal/domain"
	"notekeeper/internal/repository"
)

const (
	createNotesTable = `
CREATE TABLE IF NOT EXISTS notes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	user_id INTEGER REFERENCES users(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	createNotesOwnerIndex = `
CREATE INDEX IF NOT EXISTS idx_notes_user_updated ON notes(user_id, updated_at);
`
	selectNoteColumns = `SELECT id, user_id, title, content, created_at, updated_at FROM notes`
)

type NoteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewNoteRepository(db *sql.DB) repository.NoteRepository {
	return &NoteRepository{db: db, now: time.Now}
}

// Init creates the notes table. Tables that predate per-user ownership get a
// nullable user_id column; their existing rows have no owner and are not
// returned by any owner-scoped query.
func (r *NoteRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createNotesTable); err != nil {
		return fmt.Errorf("create notes table: %w", err)
	}

	added, err := addMissingColumns(ctx, r.db, "notes", []columnDef{
		{name: "user_id", statement: `ALTER TABLE notes ADD COLUMN user_id INTEGER REFERENCES users(id)`},
		{name: "updated_at", statement: `ALTER TABLE notes ADD COLUMN updated_at DATETIME`},
	})
	if err != nil {
		return err
	}
	for _, column := range added {
		if column != "updated_at" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, `UPDATE notes SET updated_at = created_at WHERE updated_at IS NULL`); err != nil {
			return fmt.Errorf("backfill notes.updated_at: %w", err)
		}
	}

	// rows written by earlier releases use the plain SQLite layout
	if err := normalizeTimestamps(ctx, r.db, "notes", "created_at", "updated_at"); err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, createNotesOwnerIndex); err != nil {
		return fmt.Errorf("create notes owner index: %w", err)
	}
	return nil
}

func (r *NoteRepository) Insert(ctx context.Context, ownerID int64, title, content string) (int64, error) {
	now := formatTime(r.now())

	res, err := r.db.ExecContext(ctx, `
INSERT INTO notes (title, content, user_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		title,
		content,
		ownerID,
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert note: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("note last insert id: %w", err)
	}
	return id, nil
}

func (r *NoteRepository) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Note, error) {
	rows, err := r.db.QueryContext(ctx, selectNoteColumns+`
WHERE user_id = ?
ORDER BY updated_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := make([]domain.Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

func (r *NoteRepository) GetByIDForOwner(ctx context.Context, id, ownerID int64) (*domain.Note, error) {
	row := r.db.QueryRowContext(ctx, selectNoteColumns+`
WHERE id = ? AND user_id = ?`, id, ownerID)
	return scanNote(row)
}

// UpdateByIDForOwner replaces title and content and moves updated_at
// strictly past its previous value, even if the clock has not advanced.
func (r *NoteRepository) UpdateByIDForOwner(ctx context.Context, id, ownerID int64, title, content string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update note: %w", err)
	}
	defer tx.Rollback()

	var previous timestamp
	err = tx.QueryRowContext(ctx, `SELECT updated_at FROM notes WHERE id = ? AND user_id = ?`, id, ownerID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read note updated_at: %w", err)
	}

	updatedAt := r.now().UTC()
	if !updatedAt.After(previous.Time) {
		updatedAt = previous.Time.Add(time.Nanosecond)
	}

	res, err := tx.ExecContext(ctx, `
UPDATE notes
SET title = ?, content = ?, updated_at = ?
WHERE id = ? AND user_id = ?`,
		title,
		content,
		formatTime(updatedAt),
		id,
		ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("update note: %w", err)
	}
	ok, err := affected(res, "update note")
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update note: %w", err)
	}
	return ok, nil
}

func (r *NoteRepository) DeleteByIDForOwner(ctx context.Context, id, ownerID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete note: %w", err)
	}
	return affected(res, "delete note")
}

func affected(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n > 0, nil
}

func scanNote(row interface {
	Scan(dest ...any) error
}) (*domain.Note, error) {
	var (
		note      domain.Note
		content   sql.NullString
		createdAt timestamp
		updatedAt timestamp
	)
	if err := row.Scan(
		&note.ID,
		&note.UserID,
		&note.Title,
		&content,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan note: %w", err)
	}
	note.Content = content.String
	note.CreatedAt = createdAt.Time
	note.UpdatedAt = updatedAt.Time
	return &note, nil
}
