// Package badge decides whether a column shows a "new items" badge.
package badge

import (
	"context"
	"time"

	"github.com/voicetel/helpdesk-board/internal/models"
	"github.com/voicetel/helpdesk-board/internal/session"
)

// HasNewItems reports whether col has something the viewer has not seen: any
// ticket with unread chat messages, or, for the new column only, a ticket
// created since local midnight that the viewer has not read.
func HasNewItems(col models.Column, tickets []models.Ticket, now time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	for _, t := range tickets {
		if t.UnreadChatCount > 0 {
			return true
		}
		if col == models.ColumnNew && !t.IsReadByRecipient && !t.CreatedAt.IsZero() && !t.CreatedAt.Before(midnight) {
			return true
		}
	}
	return false
}

// Calculator computes badges and records when each column was last viewed.
// Viewed timestamps are informational; badges depend on ticket data only.
type Calculator struct {
	State    session.State
	Now      func() time.Time
	Location *time.Location
}

func New(st session.State, loc *time.Location) *Calculator {
	return &Calculator{State: st, Now: time.Now, Location: loc}
}

func (c *Calculator) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Calculator) HasNewItems(col models.Column, tickets []models.Ticket) bool {
	return HasNewItems(col, tickets, c.now(), c.Location)
}

// All returns the badge of every column of b.
func (c *Calculator) All(b models.Board) map[models.Column]bool {
	out := make(map[models.Column]bool, models.NumColumns)
	for _, col := range models.Columns {
		out[col] = c.HasNewItems(col, b[col])
	}
	return out
}

// MarkColumnViewed records the current time against col.
func (c *Calculator) MarkColumnViewed(ctx context.Context, col models.Column) (time.Time, error) {
	at := c.now()
	if err := session.SaveViewedAt(ctx, c.State, col, at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

func (c *Calculator) LastViewed(ctx context.Context, col models.Column) (time.Time, bool, error) {
	return session.LoadViewedAt(ctx, c.State, col)
}
