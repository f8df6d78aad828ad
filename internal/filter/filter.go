// Package filter composes category, date-range, read-state and free-text
// predicates over a ticket set and regroups the survivors into columns.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/voicetel/helpdesk-board/internal/models"
	"github.com/voicetel/helpdesk-board/internal/status"
)

const dateLayout = "2006-01-02"

// ValidationError reports malformed filter input.
type ValidationError struct {
	Field string
	Value string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Msg)
}

// DateRange is an inclusive span from the start of Start's day to the end
// of End's day.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// ParseDateRange parses "YYYY-MM-DD - YYYY-MM-DD" in loc.
func ParseDateRange(s string, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.Local
	}
	parts := strings.Split(strings.TrimSpace(s), " - ")
	if len(parts) != 2 {
		return DateRange{}, &ValidationError{Field: "date range", Value: s, Msg: "expected YYYY-MM-DD - YYYY-MM-DD"}
	}
	start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(parts[0]), loc)
	if err != nil {
		return DateRange{}, &ValidationError{Field: "date range", Value: s, Msg: "bad start date"}
	}
	end, err := time.ParseInLocation(dateLayout, strings.TrimSpace(parts[1]), loc)
	if err != nil {
		return DateRange{}, &ValidationError{Field: "date range", Value: s, Msg: "bad end date"}
	}
	if end.Before(start) {
		return DateRange{}, &ValidationError{Field: "date range", Value: s, Msg: "end before start"}
	}
	return DateRange{
		Start: start,
		End:   end.AddDate(0, 0, 1).Add(-time.Nanosecond),
	}, nil
}

// Predicate reports whether a ticket passes one criterion.
type Predicate func(models.Ticket) bool

type options struct {
	loc       *time.Location
	adminRole models.Role
}

type Option func(*options)

// WithLocation sets the location date ranges are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

// WithAdminRole sets the role whose read flag also counts as read.
func WithAdminRole(r models.Role) Option {
	return func(o *options) { o.adminRole = r }
}

// Compile validates c and returns its predicates. Zero criteria compile to
// no predicates.
func Compile(c models.Criteria, opts ...Option) ([]Predicate, error) {
	o := options{loc: time.Local, adminRole: models.RoleAdmin}
	for _, opt := range opts {
		opt(&o)
	}

	var preds []Predicate
	if cat := strings.TrimSpace(c.Category); cat != "" {
		preds = append(preds, Category(cat))
	}
	if dr := strings.TrimSpace(c.DateRange); dr != "" {
		r, err := ParseDateRange(dr, o.loc)
		if err != nil {
			return nil, err
		}
		preds = append(preds, CreatedWithin(r))
	}
	switch c.ReadState {
	case models.ReadStateAny:
	case models.ReadStateUnread:
		preds = append(preds, Unread(o.adminRole))
	case models.ReadStateRead:
		unread := Unread(o.adminRole)
		preds = append(preds, func(t models.Ticket) bool { return !unread(t) })
	default:
		return nil, &ValidationError{Field: "read state", Value: string(c.ReadState), Msg: "expected read or unread"}
	}
	if q := strings.TrimSpace(c.Search); q != "" {
		preds = append(preds, Search(q))
	}
	return preds, nil
}

// Apply filters all by c and regroups the result by status.
func Apply(all []models.Ticket, c models.Criteria, opts ...Option) (models.Board, error) {
	preds, err := Compile(c, opts...)
	if err != nil {
		return models.Board{}, err
	}
	if len(preds) == 0 {
		return Group(all), nil
	}
	kept := make([]models.Ticket, 0, len(all))
	for _, t := range all {
		if matchAll(t, preds) {
			kept = append(kept, t)
		}
	}
	return Group(kept), nil
}

func matchAll(t models.Ticket, preds []Predicate) bool {
	for _, p := range preds {
		if !p(t) {
			return false
		}
	}
	return true
}

// Group distributes tickets into columns by their raw status, keeping input
// order within each column.
func Group(tickets []models.Ticket) models.Board {
	var b models.Board
	for _, t := range tickets {
		t.Column = status.ToColumn(t.RawStatus)
		b[t.Column] = append(b[t.Column], t)
	}
	return b
}

// Category matches the normalized label or the raw category name; the two
// diverge when the category list was renamed after the ticket was filed.
func Category(name string) Predicate {
	name = strings.TrimSpace(name)
	return func(t models.Ticket) bool {
		return strings.EqualFold(t.Category, name) || strings.EqualFold(t.CategoryRaw, name)
	}
}

func CreatedWithin(r DateRange) Predicate {
	return func(t models.Ticket) bool {
		return !t.CreatedAt.IsZero() && r.Contains(t.CreatedAt)
	}
}

// Unread matches tickets read neither by the recipient nor by adminRole.
func Unread(adminRole models.Role) Predicate {
	return func(t models.Ticket) bool {
		return !(t.IsReadByRecipient || t.ReadBy(adminRole))
	}
}

// Search is a case-insensitive substring match over the identifying fields.
func Search(q string) Predicate {
	q = strings.ToLower(strings.TrimSpace(q))
	return func(t models.Ticket) bool {
		for _, field := range []string{t.ID, t.Subject, t.Sender, t.StudentID, t.Email} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	}
}
