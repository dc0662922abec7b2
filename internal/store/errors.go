package store

import "errors"

var (
	ErrNoTicket       = errors.New("no ticket available")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrInvalidState   = errors.New("invalid ticket state")
)
