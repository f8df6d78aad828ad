package database

import (
	"context"
	"errors"

	"github.com/voicetel/helpdesk-board/internal/models"
)

// Errors reported by every Authority implementation. Callers classify
// failures with errors.Is.
var (
	ErrNotFound  = errors.New("ticket not found")
	ErrRejected  = errors.New("value rejected by ticket store")
	ErrForbidden = errors.New("operation forbidden")
)

// Authority is the remote ticket store the board synchronizes with.
type Authority interface {
	FetchTickets(ctx context.Context, scope models.RoleScope) ([]models.RawTicket, error)
	UpdateTicketStatus(ctx context.Context, ticketID, status string) error
	DeleteTicket(ctx context.Context, ticketID string) error
	CreateNotification(ctx context.Context, req models.NotificationRequest) error
	FetchCategories(ctx context.Context) ([]models.Category, error)
}
