package domain

import "time"

// MaxTitleLength is the longest accepted note title, in characters, after trimming.
const MaxTitleLength = 255

// Note is a text note owned by exactly one user.
type Note struct {
	ID        int64
	UserID    int64
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
