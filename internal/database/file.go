package database

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/voicetel/helpdesk-board/internal/models"
	"github.com/voicetel/helpdesk-board/internal/status"
)

// Fixture is the on-disk shape read by File.
type Fixture struct {
	Tickets    []models.RawTicket `json:"tickets"`
	Categories []models.Category  `json:"categories"`
	// AcceptedStatuses, when set, restricts the statuses UpdateTicketStatus
	// accepts; others fail with ErrRejected like a strict ENUM column.
	AcceptedStatuses []string `json:"accepted_statuses,omitempty"`
}

// File is an in-memory Authority seeded from a JSON fixture. Mutations are
// kept in memory unless Save is called.
type File struct {
	mu            sync.Mutex
	path          string
	fixture       Fixture
	notifications []models.NotificationRequest
}

func OpenFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &File{path: path, fixture: fx}, nil
}

// NewFile builds a File from an in-memory fixture.
func NewFile(fx Fixture) *File {
	return &File{fixture: fx}
}

func (f *File) FetchTickets(_ context.Context, scope models.RoleScope) ([]models.RawTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.RawTicket, 0, len(f.fixture.Tickets))
	for _, t := range f.fixture.Tickets {
		if scope.Role != models.RoleAdmin && t.OwnerID != scope.UserID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *File) UpdateTicketStatus(_ context.Context, ticketID, st string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accepts(st) {
		return fmt.Errorf("update status %q: %w", st, ErrRejected)
	}
	for i := range f.fixture.Tickets {
		if f.fixture.Tickets[i].ID == ticketID {
			f.fixture.Tickets[i].Status = st
			return nil
		}
	}
	return ErrNotFound
}

func (f *File) accepts(st string) bool {
	if len(f.fixture.AcceptedStatuses) == 0 {
		return status.Known(st)
	}
	for _, a := range f.fixture.AcceptedStatuses {
		if strings.EqualFold(a, st) {
			return true
		}
	}
	return false
}

func (f *File) DeleteTicket(_ context.Context, ticketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.fixture.Tickets {
		if f.fixture.Tickets[i].ID == ticketID {
			f.fixture.Tickets = append(f.fixture.Tickets[:i], f.fixture.Tickets[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *File) CreateNotification(_ context.Context, req models.NotificationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, req)
	return nil
}

func (f *File) FetchCategories(context.Context) ([]models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Category(nil), f.fixture.Categories...), nil
}

// Notifications returns the notifications created so far.
func (f *File) Notifications() []models.NotificationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.NotificationRequest(nil), f.notifications...)
}

// Save writes the current fixture back to the file it was opened from.
func (f *File) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.path == "" {
		return fmt.Errorf("fixture has no backing file")
	}
	data, err := json.MarshalIndent(f.fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal fixture: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write fixture: %w", err)
	}
	return nil
}
