package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"notekeeper/internal/auth"
	"notekeeper/internal/domain"
	"notekeeper/internal/service"
)

type UserResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

type NoteResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	UserID    int64  `json:"user_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
}

func userToResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
	}
}

func authToResponse(result *service.AuthResult) AuthResponse {
	return AuthResponse{
		User:  userToResponse(result.User),
		Token: result.Token,
	}
}

func noteToResponse(note *domain.Note) NoteResponse {
	return NoteResponse{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		UserID:    note.UserID,
		CreatedAt: note.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: note.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// writeError maps service and auth errors onto status codes. Anything it does
// not recognize is logged and reported as a generic storage error.
func (h *Handler) writeError(c *gin.Context, err error) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validation.Message, Kind: "validation_error", Field: validation.Field})
	case errors.Is(err, service.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "User already exists", Kind: "duplicate_email"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid credentials", Kind: "invalid_credentials"})
	case errors.Is(err, auth.ErrMissingToken):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Access token required", Kind: "missing_token"})
	case errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired token", Kind: "invalid_token"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Note not found", Kind: "not_found"})
	default:
		h.entry(c).WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Kind: "storage_error"})
	}
}
