package store

import (
	"context"
	"encoding/json"
	"time"

	"municipio/queue-service/internal/models"
)

type GenerateTicketInput struct {
	ServiceID  string
	ClientName string
	CreatedAt  time.Time
}

type CallNextInput struct {
	ServiceID string
	Station   string
	CalledAt  time.Time
}

type TicketActionInput struct {
	TicketID   int64
	OccurredAt time.Time
}

type TicketStore interface {
	GenerateTicket(ctx context.Context, input GenerateTicketInput) (models.Ticket, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Ticket, error)
	QueueStatus(ctx context.Context, serviceID string) ([]models.StatusCount, error)
	ListWaiting(ctx context.Context, serviceID string) ([]models.Ticket, error)
	FinishTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	NoShowTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	ListServices(ctx context.Context) ([]models.Service, error)
	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]OutboxEvent, error)
}

// OutboxEvent is a committed ticket event. Display screens poll these;
// an event exists only if the transaction that produced it committed.
type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
