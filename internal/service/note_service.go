package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"notekeeper/internal/domain"
	"notekeeper/internal/repository"
)

// NoteService coordinates note operations for a single authenticated owner.
type NoteService interface {
	Create(ctx context.Context, ownerID int64, title, content string) (*domain.Note, error)
	List(ctx context.Context, ownerID int64) ([]domain.Note, error)
	Get(ctx context.Context, ownerID, id int64) (*domain.Note, error)
	Update(ctx context.Context, ownerID, id int64, title, content string) (*domain.Note, error)
	Delete(ctx context.Context, ownerID, id int64) error
}

type noteService struct {
	notes repository.NoteRepository
}

func NewNoteService(notes repository.NoteRepository) NoteService {
	return &noteService{notes: notes}
}

func (s *noteService) Create(ctx context.Context, ownerID int64, title, content string) (*domain.Note, error) {
	title, err := validateTitle(title)
	if err != nil {
		return nil, err
	}

	id, err := s.notes.Insert(ctx, ownerID, title, content)
	if err != nil {
		return nil, storageError("create note", err)
	}
	return s.Get(ctx, ownerID, id)
}

func (s *noteService) List(ctx context.Context, ownerID int64) ([]domain.Note, error) {
	notes, err := s.notes.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storageError("list notes", err)
	}
	return notes, nil
}

func (s *noteService) Get(ctx context.Context, ownerID, id int64) (*domain.Note, error) {
	note, err := s.notes.GetByIDForOwner(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("get note", err)
	}
	return note, nil
}

func (s *noteService) Update(ctx context.Context, ownerID, id int64, title, content string) (*domain.Note, error) {
	title, err := validateTitle(title)
	if err != nil {
		return nil, err
	}

	ok, err := s.notes.UpdateByIDForOwner(ctx, id, ownerID, title, content)
	if err != nil {
		return nil, storageError("update note", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.Get(ctx, ownerID, id)
}

func (s *noteService) Delete(ctx context.Context, ownerID, id int64) error {
	ok, err := s.notes.DeleteByIDForOwner(ctx, id, ownerID)
	if err != nil {
		return storageError("delete note", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// validateTitle trims the title and rejects empty or over-long values.
// Long titles are never truncated.
func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "title is required")
	}
	if utf8.RuneCountInString(title) > domain.MaxTitleLength {
		return "", invalid("title", "title must be at most 255 characters")
	}
	return title, nil
}
