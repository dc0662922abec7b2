package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"municipio/queue-service/internal/models"
	"municipio/queue-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultClientName = "N/A"

const ticketColumns = "id, service_id, number, client_name, status, station, created_at, updated_at"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GenerateTicket(ctx context.Context, input store.GenerateTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// The upsert locks the per-service counter row, so concurrent
	// generates for the same service serialize here. A rollback undoes
	// the increment with the insert, keeping numbers gapless.
	number, err := nextTicketNumber(ctx, tx, input.ServiceID)
	if err != nil {
		return models.Ticket{}, err
	}

	clientName := input.ClientName
	if clientName == "" {
		clientName = defaultClientName
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO queues (service_id, number, client_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+ticketColumns+`
	`, input.ServiceID, number, clientName, models.StatusWaiting, createdAt)

	ticket, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.created", ticket); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}

	return ticket, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	// SKIP LOCKED makes concurrent dispenses for the same service claim
	// distinct rows instead of the loser blocking and then seeing zero
	// rows. A skipped row is one already being claimed, so FIFO over
	// unclaimed tickets is preserved.
	row := tx.QueryRow(ctx, `
		WITH next_ticket AS (
			SELECT id
			FROM queues
			WHERE service_id = $1 AND status = 'waiting'
			ORDER BY created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE queues
		SET status = 'called',
			station = $2,
			updated_at = $3
		FROM next_ticket
		WHERE queues.id = next_ticket.id
		RETURNING queues.id, queues.service_id, queues.number, queues.client_name, queues.status, queues.station, queues.created_at, queues.updated_at
	`, input.ServiceID, input.Station, calledAt)

	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err = tx.Commit(ctx); err != nil {
				return models.Ticket{}, err
			}
			return models.Ticket{}, store.ErrNoTicket
		}
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.called", ticket); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}

	return ticket, nil
}

func (s *Store) QueueStatus(ctx context.Context, serviceID string) ([]models.StatusCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) AS count
		FROM queues
		WHERE service_id = $1
		GROUP BY status
		ORDER BY status ASC
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []models.StatusCount
	for rows.Next() {
		var count models.StatusCount
		if err := rows.Scan(&count.Status, &count.Count); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *Store) ListWaiting(ctx context.Context, serviceID string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM queues
		WHERE service_id = $1 AND status = 'waiting'
		ORDER BY created_at ASC, id ASC
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) FinishTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	return s.updateTicketStatus(ctx, input, "finish", models.StatusFinished, "ticket.finished")
}

func (s *Store) NoShowTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	return s.updateTicketStatus(ctx, input, "no_show", models.StatusNoShow, "ticket.no_show")
}

func (s *Store) updateTicketStatus(ctx context.Context, input store.TicketActionInput, action, toStatus, eventType string) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	// Station is deliberately not touched: it stays fixed once set.
	row := tx.QueryRow(ctx, `
		UPDATE queues
		SET status = $1,
			updated_at = $2
		WHERE id = $3 AND status = 'called'
		RETURNING `+ticketColumns+`
	`, toStatus, occurredAt, input.TicketID)

	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			current, exists, stateErr := loadTicketStatus(ctx, tx, input.TicketID)
			if stateErr != nil {
				err = stateErr
				return models.Ticket{}, err
			}
			if !exists {
				return models.Ticket{}, store.ErrTicketNotFound
			}
			if !store.ValidTransition(action, current) {
				return models.Ticket{}, store.ErrInvalidState
			}
			return models.Ticket{}, store.ErrInvalidState
		}
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, eventType, ticket); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}

	return ticket, nil
}

// AutoNoShow marks tickets stuck in 'called' longer than grace as no_show.
// Runs from a background loop; batchSize caps work per sweep.
func (s *Store) AutoNoShow(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	if grace <= 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	cutoff := now.Add(-grace)
	rows, err := tx.Query(ctx, `
		WITH stale AS (
			SELECT id
			FROM queues
			WHERE status = 'called' AND updated_at <= $1
			ORDER BY updated_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		UPDATE queues
		SET status = 'no_show',
			updated_at = $3
		FROM stale
		WHERE queues.id = stale.id
		RETURNING queues.id, queues.service_id, queues.number, queues.client_name, queues.status, queues.station, queues.created_at, queues.updated_at
	`, cutoff, batchSize, now)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var ticket models.Ticket
		ticket, err = scanTicket(rows)
		if err != nil {
			return 0, err
		}
		tickets = append(tickets, ticket)
	}
	if err = rows.Err(); err != nil {
		return 0, err
	}

	for _, ticket := range tickets {
		if err = insertOutboxEvent(ctx, tx, "ticket.no_show", ticket); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}

	return len(tickets), nil
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT service_id, name, active
		FROM services
		WHERE active = TRUE
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ServiceID, &svc.Name, &svc.Active); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
	`
	args := []interface{}{}
	if !after.IsZero() {
		query += " WHERE created_at > $1 ORDER BY created_at ASC LIMIT $2"
		args = append(args, after, limit)
	} else {
		query += " ORDER BY created_at ASC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func nextTicketNumber(ctx context.Context, tx pgx.Tx, serviceID string) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (service_id, next_number)
		VALUES ($1, 1)
		ON CONFLICT (service_id)
		DO UPDATE SET next_number = ticket_sequences.next_number + 1
		RETURNING next_number
	`, serviceID)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func loadTicketStatus(ctx context.Context, tx pgx.Tx, ticketID int64) (string, bool, error) {
	var status string
	row := tx.QueryRow(ctx, `
		SELECT status
		FROM queues
		WHERE id = $1
	`, ticketID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return status, true, nil
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, ticket models.Ticket) error {
	payload := map[string]interface{}{
		"ticket_id":   ticket.ID,
		"service_id":  ticket.ServiceID,
		"number":      ticket.Number,
		"client_name": ticket.ClientName,
		"status":      ticket.Status,
		"station":     ticket.Station,
		"created_at":  ticket.CreatedAt,
		"updated_at":  ticket.UpdatedAt,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payloadJSON, time.Now().UTC())
	return err
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var stationNull sql.NullString
	if err := row.Scan(&ticket.ID, &ticket.ServiceID, &ticket.Number, &ticket.ClientName, &ticket.Status, &stationNull, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return models.Ticket{}, err
	}
	if stationNull.Valid {
		station := stationNull.String
		ticket.Station = &station
	}
	return ticket, nil
}
