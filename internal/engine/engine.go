// Package engine ties the board together: it loads tickets from the remote
// authority, applies and persists filters, drives moves through the
// transition coordinator and computes column badges.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicetel/helpdesk-board/internal/badge"
	"github.com/voicetel/helpdesk-board/internal/board"
	"github.com/voicetel/helpdesk-board/internal/database"
	"github.com/voicetel/helpdesk-board/internal/filter"
	"github.com/voicetel/helpdesk-board/internal/identity"
	"github.com/voicetel/helpdesk-board/internal/logging"
	"github.com/voicetel/helpdesk-board/internal/models"
	"github.com/voicetel/helpdesk-board/internal/session"
	"github.com/voicetel/helpdesk-board/internal/transform"
	"github.com/voicetel/helpdesk-board/internal/transition"
)

// ErrBusy is returned when a ticket has a transition in flight.
var ErrBusy = errors.New("ticket has a transition in flight")

type Config struct {
	Identity        identity.Identity
	State           session.State
	Notifier        transition.Notifier
	Logger          *logging.Logger
	Location        *time.Location
	NotifyTimeout   time.Duration
	BulkConcurrency int
	// Now overrides the clock used for badges.
	Now func() time.Time
}

type Engine struct {
	authority database.Authority
	ident     identity.Identity
	state     session.State
	logger    *logging.Logger
	loc       *time.Location
	bulkLimit int

	store  *board.Store
	coord  *transition.Coordinator
	badges *badge.Calculator

	mu        sync.Mutex
	criteria  models.Criteria
	filterSeq atomic.Uint64
}

func New(authority database.Authority, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.State == nil {
		cfg.State = session.NewMemory()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.BulkConcurrency < 1 {
		cfg.BulkConcurrency = 4
	}

	store := board.New()
	badges := badge.New(cfg.State, cfg.Location)
	if cfg.Now != nil {
		badges.Now = cfg.Now
	}

	return &Engine{
		authority: authority,
		ident:     cfg.Identity,
		state:     cfg.State,
		logger:    cfg.Logger,
		loc:       cfg.Location,
		bulkLimit: cfg.BulkConcurrency,
		store:     store,
		coord: transition.New(store, authority, transition.Config{
			Notifier:      cfg.Notifier,
			Identity:      cfg.Identity,
			Logger:        cfg.Logger,
			NotifyTimeout: cfg.NotifyTimeout,
		}),
		badges: badges,
	}
}

func (e *Engine) scope() models.RoleScope {
	if e.ident == nil {
		return models.RoleScope{Role: models.RoleAdmin}
	}
	return models.RoleScope{Role: e.ident.Role(), UserID: e.ident.UserID()}
}

// Load fetches the board from the remote authority and re-applies the
// persisted filter. A category fetch failure only costs category labels.
func (e *Engine) Load(ctx context.Context) error {
	start := time.Now()

	categories, err := e.authority.FetchCategories(ctx)
	if err != nil {
		e.logger.Warn("Failed to fetch categories", "error", err.Error())
		categories = nil
	}

	scope := e.scope()
	raws, err := e.authority.FetchTickets(ctx, scope)
	if err != nil {
		return fmt.Errorf("fetch tickets: %w", err)
	}

	tickets := transform.New(scope.Role, categories, e.loc).NormalizeAll(raws)
	e.store.Load(tickets)

	criteria, err := session.LoadCriteria(ctx, e.state)
	if err != nil {
		e.logger.Warn("Failed to load saved filter", "error", err.Error())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.filterSeq.Add(1)
	if criteria.IsZero() {
		e.criteria = models.Criteria{}
	} else if b, ferr := e.apply(criteria); ferr != nil {
		e.logger.Warn("Discarding invalid saved filter", "error", ferr.Error())
		e.install(ctx, models.Criteria{}, models.Board{})
	} else {
		e.store.SetView(b)
		e.criteria = criteria
	}

	e.logger.Verbose("Board loaded",
		"tickets", len(tickets),
		"categories", len(categories),
		"duration", time.Since(start).String(),
	)
	return nil
}

func (e *Engine) apply(c models.Criteria) (models.Board, error) {
	orig := e.store.Original()
	return filter.Apply(orig.All(), c, filter.WithLocation(e.loc), filter.WithAdminRole(models.RoleAdmin))
}

// install makes c the active filter with b as its result. Callers hold e.mu.
func (e *Engine) install(ctx context.Context, c models.Criteria, b models.Board) {
	if c.IsZero() {
		c = models.Criteria{}
		e.store.Restore()
	} else {
		e.store.SetView(b)
	}
	e.criteria = c
	if err := session.SaveCriteria(ctx, e.state, c); err != nil {
		e.logger.Warn("Failed to persist filter", "error", err.Error())
	}
}

// installIfCurrent installs c unless a newer filter or search took token's
// place. Callers hold e.mu.
func (e *Engine) installIfCurrent(ctx context.Context, token uint64, c models.Criteria, b models.Board) bool {
	if e.filterSeq.Load() != token {
		return false
	}
	e.install(ctx, c, b)
	return true
}

// ApplyFilter filters the last full fetch by c. An invalid criterion leaves
// the board and the saved filter untouched. Zero criteria clear the filter.
// When a newer filter or search started meanwhile, the board is returned as
// that newer call left it.
func (e *Engine) ApplyFilter(ctx context.Context, c models.Criteria) (models.Board, error) {
	token := e.filterSeq.Add(1)

	var b models.Board
	if !c.IsZero() {
		var err error
		if b, err = e.apply(c); err != nil {
			return models.Board{}, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.installIfCurrent(ctx, token, c, b)
	return e.store.Board(), nil
}

// Search replaces the search text of the active filter. When a newer search
// or filter started meanwhile, this result is dropped and applied is false.
func (e *Engine) Search(ctx context.Context, text string) (b models.Board, applied bool, err error) {
	token := e.filterSeq.Add(1)

	e.mu.Lock()
	c := e.criteria
	e.mu.Unlock()
	c.Search = text

	var result models.Board
	if !c.IsZero() {
		if result, err = e.apply(c); err != nil {
			return models.Board{}, false, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.installIfCurrent(ctx, token, c, result) {
		return models.Board{}, false, nil
	}
	return e.store.Board(), true, nil
}

// Criteria returns the active filter.
func (e *Engine) Criteria() models.Criteria {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.criteria
}

// Board returns the current view.
func (e *Engine) Board() models.Board {
	return e.store.Board()
}

// Move runs a move through the transition coordinator.
func (e *Engine) Move(ctx context.Context, req transition.MoveRequest) transition.Outcome {
	return e.coord.Move(ctx, req)
}

// MoveTicket moves id to column to, locating its current column first.
func (e *Engine) MoveTicket(ctx context.Context, id string, to models.Column, index int) transition.Outcome {
	from, ok := e.store.Locate(id)
	if !ok {
		return transition.Outcome{
			TicketID: id,
			Trace:    []transition.State{transition.Idle},
			Err:      &board.NotFoundError{ID: id, Column: to},
		}
	}
	return e.coord.Move(ctx, transition.MoveRequest{TicketID: id, From: from, To: to, Index: index})
}

// Reorder changes the position of id inside col without contacting the
// remote authority.
func (e *Engine) Reorder(id string, col models.Column, index int) (bool, error) {
	return e.store.MoveWithinColumn(id, col, index)
}

// Delete removes id remotely and then from the board.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if !e.store.Begin(id) {
		return fmt.Errorf("delete %s: %w", id, ErrBusy)
	}
	defer e.store.End(id)

	if err := e.authority.DeleteTicket(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	e.store.Remove(id)
	return nil
}

// MarkRead clears the unread signals of id locally so its badge contribution
// disappears before the next reload.
func (e *Engine) MarkRead(id string) bool {
	return e.store.MarkRead(id)
}

// Badges returns the new-items badge of every column of the current view.
func (e *Engine) Badges() map[models.Column]bool {
	return e.badges.All(e.store.Board())
}

func (e *Engine) MarkViewed(ctx context.Context, col models.Column) (time.Time, error) {
	return e.badges.MarkColumnViewed(ctx, col)
}

func (e *Engine) LastViewed(ctx context.Context, col models.Column) (time.Time, bool, error) {
	return e.badges.LastViewed(ctx, col)
}

// Wait blocks until background notifications have finished.
func (e *Engine) Wait() {
	e.coord.Wait()
}
