package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"municipio/queue-service/internal/models"
	"municipio/queue-service/internal/store"
)

type Handler struct {
	store store.TicketStore
}

type generateTicketRequest struct {
	ServiceID  string `json:"service_id"`
	ClientName string `json:"client_name"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(store store.TicketStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/generate", h.handleGenerate)
	mux.HandleFunc("/next/", h.handleCallNext)
	mux.HandleFunc("/status/", h.handleStatus)
	mux.HandleFunc("/queue/", h.handleListWaiting)
	mux.HandleFunc("/tickets/", h.handleTicketActions)
	mux.HandleFunc("/services", h.handleServices)
	mux.HandleFunc("/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req generateTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ClientName = strings.TrimSpace(req.ClientName)

	if req.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}

	ticket, err := h.store.GenerateTicket(r.Context(), store.GenerateTicketInput{
		ServiceID:  req.ServiceID,
		ClientName: req.ClientName,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	ticketsGeneratedTotal.Add(1)
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceID := pathSuffix(r.URL.Path, "/next/")
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}
	station := strings.TrimSpace(r.URL.Query().Get("station"))
	if station == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "station query parameter is required")
		return
	}

	ticket, err := h.store.CallNext(r.Context(), store.CallNextInput{
		ServiceID: serviceID,
		Station:   station,
		CalledAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	ticketsCalledTotal.Add(1)
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceID := pathSuffix(r.URL.Path, "/status/")
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}

	counts, err := h.store.QueueStatus(r.Context(), serviceID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if counts == nil {
		counts = []models.StatusCount{}
	}

	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) handleListWaiting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceID := pathSuffix(r.URL.Path, "/queue/")
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}

	tickets, err := h.store.ListWaiting(r.Context(), serviceID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}

	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleTicketActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	ticketID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || ticketID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket id must be a positive integer")
		return
	}

	input := store.TicketActionInput{
		TicketID:   ticketID,
		OccurredAt: time.Now().UTC(),
	}

	switch parts[1] {
	case "finish":
		h.writeTicketAction(w, r, input, h.store.FinishTicket)
	case "no-show":
		h.writeTicketAction(w, r, input, h.store.NoShowTicket)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) writeTicketAction(w http.ResponseWriter, r *http.Request, input store.TicketActionInput, action func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)) {
	ticket, err := action(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	services, err := h.store.ListServices(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, services)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	afterRaw := strings.TrimSpace(r.URL.Query().Get("after"))
	var after time.Time
	if afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339, afterRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		after = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.store.ListOutboxEvents(r.Context(), after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

func pathSuffix(path, prefix string) string {
	suffix := strings.TrimPrefix(path, prefix)
	suffix = strings.Trim(suffix, "/")
	if strings.Contains(suffix, "/") {
		return ""
	}
	return strings.TrimSpace(suffix)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrNoTicket):
		return http.StatusNotFound, "queue_empty", "no clients waiting"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
