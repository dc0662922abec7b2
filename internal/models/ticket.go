package models

import "time"

// Ticket is one customer's position in a per-service queue. Number is
// unique and gapless within a service; Station stays fixed once the
// ticket has been called.
type Ticket struct {
	ID         int64     `json:"id"`
	ServiceID  string    `json:"service_id"`
	Number     int64     `json:"number"`
	ClientName string    `json:"client_name"`
	Status     string    `json:"status"`
	Station    *string   `json:"station,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const (
	StatusWaiting  = "waiting"
	StatusCalled   = "called"
	StatusFinished = "finished"
	StatusNoShow   = "no_show"
)

// StatusCount is one row of the queue status aggregate. Statuses with no
// tickets do not appear.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}
