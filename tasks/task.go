package tasks

import "time"

const (
	StatusOpen       = "OP"
	StatusInProgress = "IP"
	StatusPaused     = "PA"
	StatusComplete   = "CO"
)

type Task struct {
	ID          int64
	Title       string
	Description string
	Status      string
	OwnerID     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Comment struct {
	ID        int64
	TaskID    int64
	AuthorID  int64
	Text      string
	CreatedAt time.Time
}

// Filter narrows ListTasks. Zero values mean "no restriction".
type Filter struct {
	Search  string
	OwnerID int64
	Status  string
}
