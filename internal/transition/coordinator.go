// Package transition drives cross-column moves: it asks the remote authority
// to change a ticket's status, walking the fallback chain when the primary
// status is refused, and commits the move to the board only on success.
package transition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voicetel/helpdesk-board/internal/board"
	"github.com/voicetel/helpdesk-board/internal/identity"
	"github.com/voicetel/helpdesk-board/internal/logging"
	"github.com/voicetel/helpdesk-board/internal/models"
	"github.com/voicetel/helpdesk-board/internal/status"
)

type State int

const (
	Idle State = iota
	Requested
	RemoteConfirmed
	Committed
	RemoteFailed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case RemoteConfirmed:
		return "remote_confirmed"
	case Committed:
		return "committed"
	case RemoteFailed:
		return "remote_failed"
	case RolledBack:
		return "rolled_back"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StatusUpdater is the part of the remote authority the coordinator needs.
type StatusUpdater interface {
	UpdateTicketStatus(ctx context.Context, ticketID, status string) error
}

type Notifier interface {
	Notify(ctx context.Context, req models.NotificationRequest) error
}

type MoveRequest struct {
	TicketID string
	From     models.Column
	To       models.Column
	// Index is the destination position; -1 appends.
	Index int
}

// Outcome reports how a move ended. Expected failures are reported here
// rather than as errors; Err is only set for a failed remote call or a
// request naming a ticket that is not where it claims to be.
type Outcome struct {
	TicketID  string
	Trace     []State
	Attempts  []string
	RawStatus string
	Committed bool
	Reordered bool
	Stale     bool
	Err       error
	Class     Class
}

// Final returns the last state reached.
func (o Outcome) Final() State {
	if len(o.Trace) == 0 {
		return Idle
	}
	return o.Trace[len(o.Trace)-1]
}

type Config struct {
	Notifier      Notifier
	Identity      identity.Identity
	Logger        *logging.Logger
	NotifyTimeout time.Duration
}

type Coordinator struct {
	store  *board.Store
	remote StatusUpdater
	cfg    Config
	wg     sync.WaitGroup
}

func New(store *board.Store, remote StatusUpdater, cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &Coordinator{store: store, remote: remote, cfg: cfg}
}

// Move reorders within a column locally, or runs a remote transition when
// the columns differ.
func (c *Coordinator) Move(ctx context.Context, req MoveRequest) Outcome {
	out := Outcome{TicketID: req.TicketID, Trace: []State{Idle}}

	if req.From == req.To {
		moved, err := c.store.MoveWithinColumn(req.TicketID, req.From, req.Index)
		out.Reordered = moved
		out.Err = err
		return out
	}

	if col, ok := c.store.Locate(req.TicketID); !ok || col != req.From || !req.To.Valid() {
		out.Err = &board.NotFoundError{ID: req.TicketID, Column: req.From}
		return out
	}
	if !c.store.Begin(req.TicketID) {
		out.Stale = true
		c.cfg.Logger.Verbose("Ignoring move while a transition is in flight", "ticket_id", req.TicketID)
		return out
	}
	defer c.store.End(req.TicketID)

	out.Trace = append(out.Trace, Requested)
	confirmed, err := c.request(ctx, req, &out)
	if err != nil {
		out.Trace = append(out.Trace, RemoteFailed, RolledBack)
		out.Err = err
		out.Class = Classify(err)
		c.cfg.Logger.Warn("Status update failed",
			"ticket_id", req.TicketID,
			"to", req.To.String(),
			"attempts", out.Attempts,
			"class", string(out.Class),
			"error", err.Error(),
		)
		return out
	}
	out.Trace = append(out.Trace, RemoteConfirmed)

	if err := c.store.MoveAcrossColumns(req.TicketID, req.From, req.To, req.Index, confirmed); err != nil {
		// The ticket left the board (reload or delete) while the remote
		// call was in flight.
		out.Err = err
		return out
	}
	out.Trace = append(out.Trace, Committed)
	out.Committed = true
	out.RawStatus = confirmed

	if t, ok := c.store.Ticket(req.TicketID); ok {
		c.notify(ctx, t)
	}
	return out
}

// request walks the status chain of the destination column. The first error
// is the one reported when every attempt fails.
func (c *Coordinator) request(ctx context.Context, req MoveRequest, out *Outcome) (string, error) {
	var primary error
	for _, st := range status.Chain(req.To) {
		out.Attempts = append(out.Attempts, st)
		err := c.remote.UpdateTicketStatus(ctx, req.TicketID, st)
		if err == nil {
			return st, nil
		}
		if primary == nil {
			primary = err
		}
		c.cfg.Logger.Verbose("Remote refused status", "ticket_id", req.TicketID, "status", st, "error", err.Error())
		if !retryable(ctx, err) {
			break
		}
	}
	return "", primary
}

// notify sends the status-change notification in the background on a
// context that outlives the caller's cancellation. Its result never affects
// the committed move.
func (c *Coordinator) notify(ctx context.Context, t models.Ticket) {
	if c.cfg.Notifier == nil || c.cfg.Identity == nil {
		return
	}
	recipient := c.cfg.Identity.RecipientFor(t)
	if recipient == "" {
		return
	}
	req := models.NotificationRequest{
		RecipientID: recipient,
		Type:        models.NotificationStatusChanged,
		Subject:     fmt.Sprintf("Status tiket #%s diperbarui", t.ID),
		Content:     fmt.Sprintf("Tiket \"%s\" sekarang berstatus %s.", t.Subject, status.Label(t.Column)),
		TicketID:    t.ID,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.NotifyTimeout)
		defer cancel()
		if err := c.cfg.Notifier.Notify(ctx, req); err != nil {
			c.cfg.Logger.Warn("Notification failed", "ticket_id", t.ID, "recipient_id", recipient, "error", err.Error())
		}
	}()
}

// Wait blocks until background notifications have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
