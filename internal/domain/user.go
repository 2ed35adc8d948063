package domain

import "time"

// User represents a platform account. Authors and readers share the same
// account type; authorship is a relationship to a book.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}
