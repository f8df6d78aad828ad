// Package identity answers who is acting on the board and who should hear
// about a change to a ticket.
package identity

import (
	"fmt"

	"github.com/voicetel/helpdesk-board/internal/models"
)

type Identity interface {
	UserID() string
	Role() models.Role
	// RecipientFor returns the user to notify about a change to t, or ""
	// when nobody should be notified.
	RecipientFor(t models.Ticket) string
}

// Static is an Identity fixed at startup.
type Static struct {
	userID string
	role   models.Role
	admin  string
}

// NewStatic builds a Static identity. adminRecipient receives notifications
// for changes made by non-admin users.
func NewStatic(userID string, role models.Role, adminRecipient string) (*Static, error) {
	switch role {
	case models.RoleAdmin, models.RoleStudent:
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return &Static{userID: userID, role: role, admin: adminRecipient}, nil
}

func (s *Static) UserID() string    { return s.userID }
func (s *Static) Role() models.Role { return s.role }

// Scope is the ticket scope the remote authority should return.
func (s *Static) Scope() models.RoleScope {
	return models.RoleScope{Role: s.role, UserID: s.userID}
}

// RecipientFor notifies the ticket owner when an admin acts and the
// configured admin recipient otherwise. Nobody is notified about their own
// change.
func (s *Static) RecipientFor(t models.Ticket) string {
	var to string
	if s.role == models.RoleAdmin {
		to = t.OwnerID
	} else {
		to = s.admin
		if t.AssignedTo != "" {
			to = t.AssignedTo
		}
	}
	if to == s.userID {
		return ""
	}
	return to
}
