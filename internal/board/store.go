// Package board holds the column-grouped ticket view and the snapshot of the
// last full fetch. It is a pure in-memory reducer: callers decide when a move
// is committed.
package board

import (
	"fmt"
	"sync"

	"github.com/voicetel/helpdesk-board/internal/filter"
	"github.com/voicetel/helpdesk-board/internal/models"
	"github.com/voicetel/helpdesk-board/internal/status"
)

// NotFoundError is returned when an operation names a ticket that is not in
// the column it claims. It indicates a caller bug, not a remote failure.
type NotFoundError struct {
	ID     string
	Column models.Column
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ticket %s not found in column %s", e.ID, e.Column)
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	view     models.Board
	original models.Board
	updating map[string]bool
}

func New() *Store {
	return &Store{updating: make(map[string]bool)}
}

// Load replaces both the view and the original snapshot with tickets grouped
// by status. Updating markers for tickets that are gone are dropped.
func (s *Store) Load(tickets []models.Ticket) {
	b := filter.Group(tickets)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.original = b
	s.view = b.Clone()
	for id := range s.updating {
		if _, _, ok := s.original.Find(id); !ok {
			delete(s.updating, id)
		}
	}
}

// Board returns a copy of the current view with Updating flags set.
func (s *Store) Board() models.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.view.Clone()
	for col := range b {
		for i := range b[col] {
			b[col][i].Updating = s.updating[b[col][i].ID]
		}
	}
	return b
}

// Original returns a copy of the last full fetch.
func (s *Store) Original() models.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.original.Clone()
}

// SetView installs a filtered board. The original snapshot is untouched.
func (s *Store) SetView(b models.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = b.Clone()
}

// Restore reinstalls the original snapshot as the view.
func (s *Store) Restore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = s.original.Clone()
}

// Begin marks id as having a transition in flight. It returns false if one
// is already outstanding; the second request is then a stale no-op.
func (s *Store) Begin(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updating[id] {
		return false
	}
	s.updating[id] = true
	return true
}

func (s *Store) End(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.updating, id)
}

func (s *Store) IsUpdating(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updating[id]
}

// Locate returns the column of id in the current view.
func (s *Store) Locate(id string) (models.Column, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, _, ok := s.view.Find(id)
	return col, ok
}

// Ticket returns a copy of the ticket with id from the view.
func (s *Store) Ticket(id string) (models.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, idx, ok := s.view.Find(id)
	if !ok {
		return models.Ticket{}, false
	}
	return s.view[col][idx], true
}

// MoveWithinColumn moves id to newIndex inside col. newIndex counts
// positions before the ticket is removed, so dropping a ticket onto the slot
// below it resolves to its current position. It reports whether the order
// changed.
func (s *Store) MoveWithinColumn(id string, col models.Column, newIndex int) (bool, error) {
	if !col.Valid() {
		return false, &NotFoundError{ID: id, Column: col}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	moved, err := reorder(s.view[col], id, newIndex)
	if err != nil {
		return false, &NotFoundError{ID: id, Column: col}
	}
	if moved == nil {
		return false, nil
	}
	s.view[col] = moved

	// Keep the snapshot in step so clearing a filter does not undo the drag.
	s.original[col] = reorderToMatch(s.original[col], s.view[col])
	return true, nil
}

// MoveAcrossColumns commits a confirmed transition: the ticket leaves from,
// takes rawStatus and is inserted into to at insertIndex (appended when the
// index is negative or past the end).
func (s *Store) MoveAcrossColumns(id string, from, to models.Column, insertIndex int, rawStatus string) error {
	if !from.Valid() || !to.Valid() {
		return &NotFoundError{ID: id, Column: from}
	}
	if got := status.ToColumn(rawStatus); got != to {
		return fmt.Errorf("status %q belongs to column %s, not %s", rawStatus, got, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.view.Index(from, id)
	if idx < 0 {
		return &NotFoundError{ID: id, Column: from}
	}
	transfer(&s.view, idx, from, to, insertIndex, rawStatus)

	if oidx := s.original.Index(from, id); oidx >= 0 {
		transfer(&s.original, oidx, from, to, s.snapshotIndex(to, id), rawStatus)
	}
	return nil
}

// snapshotIndex maps the view position of id in col onto the snapshot, which
// may hold tickets the view filters out. The ticket goes right before its
// next view neighbour, else right after its previous one, else at the end.
func (s *Store) snapshotIndex(col models.Column, id string) int {
	list := s.view[col]
	pos := s.view.Index(col, id)
	if pos+1 < len(list) {
		if i := s.original.Index(col, list[pos+1].ID); i >= 0 {
			return i
		}
	}
	if pos > 0 {
		if i := s.original.Index(col, list[pos-1].ID); i >= 0 {
			return i + 1
		}
	}
	return -1
}

// Remove drops id from the view and the snapshot.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := removeFrom(&s.view, id)
	if removeFrom(&s.original, id) {
		removed = true
	}
	delete(s.updating, id)
	return removed
}

// MarkRead clears the unread signals of id on the client side.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, b := range []*models.Board{&s.view, &s.original} {
		if col, idx, ok := b.Find(id); ok {
			b[col][idx].IsReadByRecipient = true
			b[col][idx].UnreadChatCount = 0
			found = true
		}
	}
	return found
}

func transfer(b *models.Board, idx int, from, to models.Column, insertIndex int, rawStatus string) {
	t := b[from][idx]
	b[from] = append(b[from][:idx:idx], b[from][idx+1:]...)

	t.RawStatus = rawStatus
	t.Column = to
	b[to] = insertAt(b[to], t, insertIndex)
}

func insertAt(list []models.Ticket, t models.Ticket, i int) []models.Ticket {
	if i < 0 || i >= len(list) {
		return append(list, t)
	}
	out := make([]models.Ticket, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, t)
	return append(out, list[i:]...)
}

func removeFrom(b *models.Board, id string) bool {
	col, idx, ok := b.Find(id)
	if !ok {
		return false
	}
	b[col] = append(b[col][:idx:idx], b[col][idx+1:]...)
	return true
}

// reorder returns a new slice with id moved, or nil when the move resolves
// to the current position.
func reorder(list []models.Ticket, id string, newIndex int) ([]models.Ticket, error) {
	cur := -1
	for i := range list {
		if list[i].ID == id {
			cur = i
			break
		}
	}
	if cur < 0 {
		return nil, fmt.Errorf("ticket %s not in column", id)
	}

	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(list) {
		newIndex = len(list)
	}
	// Removing the ticket shifts everything after it up by one.
	if newIndex > cur {
		newIndex--
	}
	if newIndex == cur {
		return nil, nil
	}

	rest := make([]models.Ticket, 0, len(list)-1)
	rest = append(rest, list[:cur]...)
	rest = append(rest, list[cur+1:]...)

	out := make([]models.Ticket, 0, len(list))
	out = append(out, rest[:newIndex]...)
	out = append(out, list[cur])
	return append(out, rest[newIndex:]...), nil
}

// reorderToMatch orders list so that tickets also present in view follow the
// view's order. Tickets absent from view keep their slots.
func reorderToMatch(list, view []models.Ticket) []models.Ticket {
	pos := make(map[string]bool, len(view))
	for _, t := range view {
		pos[t.ID] = true
	}
	byID := make(map[string]models.Ticket, len(list))
	for _, t := range list {
		byID[t.ID] = t
	}
	var ordered []models.Ticket
	for _, t := range view {
		if ot, ok := byID[t.ID]; ok {
			ordered = append(ordered, ot)
		}
	}
	out := make([]models.Ticket, len(list))
	next := 0
	for i, t := range list {
		if pos[t.ID] {
			out[i] = ordered[next]
			next++
			continue
		}
		out[i] = t
	}
	return out
}
