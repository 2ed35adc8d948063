package domain

import "time"

// ReadingSession records one user's consumption of a book, the raw input
// to charge calculation.
type ReadingSession struct {
	ID        string
	UserID    string
	BookID    string
	PagesRead int
	Duration  time.Duration
	StartedAt time.Time
	EndedAt   time.Time
}
