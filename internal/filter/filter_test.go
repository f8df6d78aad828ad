package filter

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/voicetel/helpdesk-board/internal/models"
	"github.com/voicetel/helpdesk-board/internal/status"
)

func ids(b models.Board) [models.NumColumns][]string {
	var out [models.NumColumns][]string
	for _, col := range models.Columns {
		out[col] = b.IDs(col)
	}
	return out
}

func TestApplyUnreadScenario(t *testing.T) {
	all := []models.Ticket{
		{ID: "A", RawStatus: "open", IsReadByRecipient: true},
		{ID: "B", RawStatus: "in_progress"},
		{ID: "C", RawStatus: "closed", IsReadByOtherRoles: []models.Role{models.RoleAdmin}},
	}
	got, err := Apply(all, models.Criteria{ReadState: models.ReadStateUnread})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := [models.NumColumns][]string{{}, {"B"}, {}}
	if !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v; got %v", want, ids(got))
	}

	got, err = Apply(all, models.Criteria{ReadState: models.ReadStateRead})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want = [models.NumColumns][]string{{"A"}, {}, {"C"}}
	if !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v; got %v", want, ids(got))
	}
}

func TestApplyCategoryMatchesLabelOrRawName(t *testing.T) {
	all := []models.Ticket{
		{ID: "1", Category: "Akademik", CategoryRaw: "akademik-lama"},
		{ID: "2", Category: "Keuangan", CategoryRaw: "Keuangan"},
		{ID: "3", Category: "Lainnya", CategoryRaw: "AKADEMIK"},
	}
	got, err := Apply(all, models.Criteria{Category: "akademik"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := got.IDs(models.ColumnNew); !reflect.DeepEqual(got, []string{"1", "3"}) {
		t.Fatalf("expected [1 3]; got %v", got)
	}
}

func TestApplyDateRangeInclusive(t *testing.T) {
	loc := time.UTC
	all := []models.Ticket{
		{ID: "before", CreatedAt: time.Date(2024, 2, 29, 23, 59, 59, 0, loc)},
		{ID: "start", CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, loc)},
		{ID: "end", CreatedAt: time.Date(2024, 3, 3, 23, 59, 59, 0, loc)},
		{ID: "after", CreatedAt: time.Date(2024, 3, 4, 0, 0, 0, 0, loc)},
		{ID: "undated"},
	}
	got, err := Apply(all, models.Criteria{DateRange: "2024-03-01 - 2024-03-03"}, WithLocation(loc))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := got.IDs(models.ColumnNew); !reflect.DeepEqual(got, []string{"start", "end"}) {
		t.Fatalf("expected [start end]; got %v", got)
	}
}

func TestApplyRejectsMalformedInput(t *testing.T) {
	for _, c := range []models.Criteria{
		{DateRange: "2024-03-01"},
		{DateRange: "2024-03-01 - soon"},
		{DateRange: "2024-03-05 - 2024-03-01"},
		{ReadState: "maybe"},
	} {
		_, err := Apply(nil, c)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("criteria %+v: expected ValidationError; got %v", c, err)
		}
	}
}

func TestApplySearchFields(t *testing.T) {
	all := []models.Ticket{
		{ID: "TK-100", Subject: "Wifi mati", Sender: "Sari"},
		{ID: "TK-101", Subject: "KRS", Sender: "Budi", StudentID: "13519001"},
		{ID: "TK-102", Subject: "Beasiswa", Email: "dewi@kampus.ac.id"},
	}
	cases := map[string][]string{
		"wifi":     {"TK-100"},
		"tk-101":   {"TK-101"},
		"135190":   {"TK-101"},
		"DEWI@":    {"TK-102"},
		"budi":     {"TK-101"},
		"nomatch!": {},
	}
	for q, want := range cases {
		got, err := Apply(all, models.Criteria{Search: q})
		if err != nil {
			t.Fatalf("Apply(%q): %v", q, err)
		}
		if ids := got.IDs(models.ColumnNew); !reflect.DeepEqual(ids, want) {
			t.Fatalf("search %q: expected %v; got %v", q, want, ids)
		}
	}
}

func TestApplyComposesWithAnd(t *testing.T) {
	all := []models.Ticket{
		{ID: "1", Category: "Akademik", Subject: "nilai"},
		{ID: "2", Category: "Akademik", Subject: "wifi", IsReadByRecipient: true},
		{ID: "3", Category: "Keuangan", Subject: "nilai"},
	}
	got, err := Apply(all, models.Criteria{Category: "Akademik", Search: "nilai", ReadState: models.ReadStateUnread})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.Len() != 1 || got[models.ColumnNew][0].ID != "1" {
		t.Fatalf("expected only ticket 1; got %v", ids(got))
	}
}

func genTickets() *rapid.Generator[[]models.Ticket] {
	statuses := []string{"", "open", "pending", "new", "in_progress", "assigned", "processing", "closed", "resolved", "completed", "weird"}
	return rapid.Custom(func(t *rapid.T) []models.Ticket {
		n := rapid.IntRange(0, 30).Draw(t, "n")
		out := make([]models.Ticket, n)
		for i := range out {
			out[i] = models.Ticket{
				ID:                fmt.Sprintf("T%d", i),
				RawStatus:         rapid.SampledFrom(statuses).Draw(t, "status"),
				Category:          rapid.SampledFrom([]string{"Akademik", "Keuangan"}).Draw(t, "category"),
				IsReadByRecipient: rapid.Bool().Draw(t, "read"),
			}
		}
		return out
	})
}

func TestApplyZeroCriteriaIsIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		all := genTickets().Draw(t, "tickets")
		got, err := Apply(all, models.Criteria{})
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if !reflect.DeepEqual(ids(got), ids(Group(all))) {
			t.Fatalf("zero criteria changed the grouping")
		}
	})
}

func TestApplyKeepsColumnsConsistent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		all := genTickets().Draw(t, "tickets")
		c := models.Criteria{
			Category:  rapid.SampledFrom([]string{"", "akademik"}).Draw(t, "cat"),
			ReadState: rapid.SampledFrom([]models.ReadState{"", "read", "unread"}).Draw(t, "rs"),
		}
		got, err := Apply(all, c)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		seen := map[string]bool{}
		for _, col := range models.Columns {
			for _, tk := range got[col] {
				if seen[tk.ID] {
					t.Fatalf("ticket %s in more than one column", tk.ID)
				}
				seen[tk.ID] = true
				if status.ToColumn(tk.RawStatus) != col || tk.Column != col {
					t.Fatalf("ticket %s with status %q sits in %s", tk.ID, tk.RawStatus, col)
				}
			}
		}
	})
}
