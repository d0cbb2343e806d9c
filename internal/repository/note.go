package repository

import (
	"context"

	"notekeeper/internal/domain"
)

// NoteRepository persists notes. Every lookup and mutation is scoped to an
// owner, so a guessed id never reaches another user's row.
type NoteRepository interface {
	Init(ctx context.Context) error
	Insert(ctx context.Context, ownerID int64, title, content string) (int64, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Note, error)
	GetByIDForOwner(ctx context.Context, id, ownerID int64) (*domain.Note, error)
	UpdateByIDForOwner(ctx context.Context, id, ownerID int64, title, content string) (bool, error)
	DeleteByIDForOwner(ctx context.Context, id, ownerID int64) (bool, error)
}
