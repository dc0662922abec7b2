package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"municipio/queue-service/internal/models"
	"municipio/queue-service/internal/store"
)

type fakeStore struct {
	generateFn    func(ctx context.Context, input store.GenerateTicketInput) (models.Ticket, error)
	callFn        func(ctx context.Context, input store.CallNextInput) (models.Ticket, error)
	statusFn      func(ctx context.Context, serviceID string) ([]models.StatusCount, error)
	listWaitingFn func(ctx context.Context, serviceID string) ([]models.Ticket, error)
	finishFn      func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	noShowFn      func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	servicesFn    func(ctx context.Context) ([]models.Service, error)
	eventsFn      func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error)
}

func (f fakeStore) GenerateTicket(ctx context.Context, input store.GenerateTicketInput) (models.Ticket, error) {
	if f.generateFn == nil {
		return models.Ticket{}, nil
	}
	return f.generateFn(ctx, input)
}

func (f fakeStore) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
	if f.callFn == nil {
		return models.Ticket{}, nil
	}
	return f.callFn(ctx, input)
}

func (f fakeStore) QueueStatus(ctx context.Context, serviceID string) ([]models.StatusCount, error) {
	if f.statusFn == nil {
		return nil, nil
	}
	return f.statusFn(ctx, serviceID)
}

func (f fakeStore) ListWaiting(ctx context.Context, serviceID string) ([]models.Ticket, error) {
	if f.listWaitingFn == nil {
		return nil, nil
	}
	return f.listWaitingFn(ctx, serviceID)
}

func (f fakeStore) FinishTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.finishFn == nil {
		return models.Ticket{}, nil
	}
	return f.finishFn(ctx, input)
}

func (f fakeStore) NoShowTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.noShowFn == nil {
		return models.Ticket{}, nil
	}
	return f.noShowFn(ctx, input)
}

func (f fakeStore) ListServices(ctx context.Context) ([]models.Service, error) {
	if f.servicesFn == nil {
		return nil, nil
	}
	return f.servicesFn(ctx)
}

func (f fakeStore) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if f.eventsFn == nil {
		return nil, nil
	}
	return f.eventsFn(ctx, after, limit)
}

func TestGenerateTicketSuccess(t *testing.T) {
	createdAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	st := fakeStore{
		generateFn: func(ctx context.Context, input store.GenerateTicketInput) (models.Ticket, error) {
			if input.ServiceID != "svc1" {
				t.Fatalf("unexpected service_id %q", input.ServiceID)
			}
			return models.Ticket{
				ID:         1,
				ServiceID:  input.ServiceID,
				Number:     1,
				ClientName: "N/A",
				Status:     models.StatusWaiting,
				CreatedAt:  createdAt,
				UpdatedAt:  createdAt,
			}, nil
		},
	}

	h := NewHandler(st)
	body, _ := json.Marshal(map[string]string{"service_id": "svc1"})
	req := httptest.NewRequest(http.MethodPost, "/generate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var ticket models.Ticket
	if err := json.Unmarshal(rec.Body.Bytes(), &ticket); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ticket.Number != 1 || ticket.Status != models.StatusWaiting {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if ticket.Station != nil {
		t.Fatalf("expected no station on a waiting ticket")
	}
}

func TestGenerateTicketMissingServiceID(t *testing.T) {
	h := NewHandler(fakeStore{})
	body, _ := json.Marshal(map[string]string{"client_name": "Ana"})
	req := httptest.NewRequest(http.MethodPost, "/generate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	assertErrorCode(t, rec, "invalid_request")
}

func TestCallNextSuccess(t *testing.T) {
	station := "Modulo-01"
	st := fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
			if input.ServiceID != "svc1" || input.Station != station {
				t.Fatalf("unexpected input %+v", input)
			}
			return models.Ticket{
				ID:        7,
				ServiceID: input.ServiceID,
				Number:    3,
				Status:    models.StatusCalled,
				Station:   &station,
			}, nil
		},
	}

	h := NewHandler(st)
	req := httptest.NewRequest(http.MethodGet, "/next/svc1?station=Modulo-01", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var ticket models.Ticket
	if err := json.Unmarshal(rec.Body.Bytes(), &ticket); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ticket.Status != models.StatusCalled {
		t.Fatalf("expected called, got %s", ticket.Status)
	}
	if ticket.Station == nil || *ticket.Station != station {
		t.Fatalf("expected station %q, got %v", station, ticket.Station)
	}
}

func TestCallNextMissingStation(t *testing.T) {
	h := NewHandler(fakeStore{})
	req := httptest.NewRequest(http.MethodGet, "/next/svc1", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	assertErrorCode(t, rec, "invalid_request")
}

func TestCallNextQueueEmpty(t *testing.T) {
	st := fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
			return models.Ticket{}, store.ErrNoTicket
		},
	}

	h := NewHandler(st)
	req := httptest.NewRequest(http.MethodGet, "/next/svc1?station=M3", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	assertErrorCode(t, rec, "queue_empty")
}

func TestQueueStatus(t *testing.T) {
	st := fakeStore{
		statusFn: func(ctx context.Context, serviceID string) ([]models.StatusCount, error) {
			if serviceID != "svc1" {
				t.Fatalf("unexpected service_id %q", serviceID)
			}
			return []models.StatusCount{
				{Status: models.StatusCalled, Count: 1},
				{Status: models.StatusWaiting, Count: 2},
			}, nil
		},
	}

	h := NewHandler(st)
	req := httptest.NewRequest(http.MethodGet, "/status/svc1", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var counts []models.StatusCount
	if err := json.Unmarshal(rec.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(counts))
	}
}

func TestQueueStatusEmptyService(t *testing.T) {
	h := NewHandler(fakeStore{})
	req := httptest.NewRequest(http.MethodGet, "/status/svc9", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Fatalf("expected empty array, got %q", body)
	}
}

func TestFinishTicketInvalidState(t *testing.T) {
	st := fakeStore{
		finishFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			return models.Ticket{}, store.ErrInvalidState
		},
	}

	h := NewHandler(st)
	req := httptest.NewRequest(http.MethodPost, "/tickets/12/finish", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	assertErrorCode(t, rec, "invalid_state")
}

func TestNoShowTicketNotFound(t *testing.T) {
	st := fakeStore{
		noShowFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			return models.Ticket{}, store.ErrTicketNotFound
		},
	}

	h := NewHandler(st)
	req := httptest.NewRequest(http.MethodPost, "/tickets/99/no-show", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	assertErrorCode(t, rec, "ticket_not_found")
}

func TestTicketActionBadID(t *testing.T) {
	h := NewHandler(fakeStore{})
	req := httptest.NewRequest(http.MethodPost, "/tickets/abc/finish", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEventsBadAfter(t *testing.T) {
	h := NewHandler(fakeStore{})
	req := httptest.NewRequest(http.MethodGet, "/events?after=yesterday", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, code string) {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error.Code != code {
		t.Fatalf("expected error code %q, got %q", code, resp.Error.Code)
	}
}
