package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/voicetel/helpdesk-board/internal/database"
	"github.com/voicetel/helpdesk-board/internal/filter"
	"github.com/voicetel/helpdesk-board/internal/identity"
	"github.com/voicetel/helpdesk-board/internal/models"
	"github.com/voicetel/helpdesk-board/internal/session"
	"github.com/voicetel/helpdesk-board/internal/transition"
)

var wib = time.FixedZone("WIB", 7*3600)

func fixedNow() time.Time {
	return time.Date(2024, 3, 5, 14, 0, 0, 0, wib)
}

func sampleFixture() database.Fixture {
	return database.Fixture{
		Tickets: []models.RawTicket{
			{ID: "A", SenderName: "Budi", Status: "open", CategoryID: "1", CreatedAt: "2024-02-01 09:00:00", ReadByAdmin: true, OwnerID: "u1"},
			{ID: "B", SenderName: "Sari", Subject: "KRS error", Status: "in_progress", CategoryID: "2", CreatedAt: "2024-03-05 08:00:00", OwnerID: "u2"},
			{ID: "C", SenderName: "Dewi", Status: "closed", CategoryName: "Keuangan", CreatedAt: "2024-03-01 10:00:00", IsRead: true, OwnerID: "u1"},
		},
		Categories: []models.Category{
			{ID: "1", Name: "Akademik"},
			{ID: "2", Name: "Sistem"},
		},
		AcceptedStatuses: []string{"open", "in_progress", "resolved"},
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	reqs []models.NotificationRequest
}

func (n *recordingNotifier) Notify(_ context.Context, req models.NotificationRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reqs = append(n.reqs, req)
	return errors.New("notification service unavailable")
}

type fixture struct {
	engine   *Engine
	remote   *database.File
	state    session.State
	notifier *recordingNotifier
}

func newFixture(t *testing.T, fx database.Fixture, role models.Role, userID string) *fixture {
	t.Helper()
	ident, err := identity.NewStatic(userID, role, "admin-1")
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	f := &fixture{
		remote:   database.NewFile(fx),
		state:    session.NewMemory(),
		notifier: &recordingNotifier{},
	}
	f.engine = New(f.remote, Config{
		Identity:      ident,
		State:         f.state,
		Notifier:      f.notifier,
		Location:      wib,
		NotifyTimeout: time.Second,
		Now:           fixedNow,
	})
	if err := f.engine.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return f
}

func assertColumns(t *testing.T, b models.Board, want [models.NumColumns][]string) {
	t.Helper()
	for _, col := range models.Columns {
		got := b.IDs(col)
		if len(got) == 0 && len(want[col]) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, want[col]) {
			t.Fatalf("column %s: expected %v; got %v", col, want[col], got)
		}
	}
}

func TestLoadGroupsAndLabels(t *testing.T) {
	f := newFixture(t, sampleFixture(), models.RoleAdmin, "admin-1")
	b := f.engine.Board()
	assertColumns(t, b, [models.NumColumns][]string{{"A"}, {"B"}, {"C"}})

	if b[models.ColumnNew][0].Category != "Akademik" {
		t.Fatalf("expected category label from lookup; got %q", b[models.ColumnNew][0].Category)
	}
	if b[models.ColumnDone][0].Category != "Keuangan" {
		t.Fatalf("expected raw category name; got %q", b[models.ColumnDone][0].Category)
	}
}

func TestLoadScopesStudent(t *testing.T) {
	f := newFixture(t, sampleFixture(), models.RoleStudent, "u1")
	assertColumns(t, f.engine.Board(), [models.NumColumns][]string{{"A"}, nil, {"C"}})
}

func TestUnreadFilterAndPersistence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleFixture(), models.RoleAdmin, "admin-1")

	b, err := f.engine.ApplyFilter(ctx, models.Criteria{ReadState: models.ReadStateUnread})
	if err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	assertColumns(t, b, [models.NumColumns][]string{nil, {"B"}, nil})

	// A second engine sharing the session state starts filtered.
	ident, _ := identity.NewStatic("admin-1", models.RoleAdmin, "")
	other := New(f.remote, Config{Identity: ident, State: f.state, Location: wib})
	if err := other.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertColumns(t, other.Board(), [models.NumColumns][]string{nil, {"B"}, nil})
	if other.Criteria().ReadState != models.ReadStateUnread {
		t.Fatalf("expected persisted criteria; got %+v", other.Criteria())
	}

	// Clearing restores everything and forgets the saved filter.
	b, err = f.engine.ApplyFilter(ctx, models.Criteria{})
	if err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	assertColumns(t, b, [models.NumColumns][]string{{"A"}, {"B"}, {"C"}})
	saved, _ := session.LoadCriteria(ctx, f.state)
	if !saved.IsZero() {
		t.Fatalf("expected saved criteria cleared; got %+v", saved)
	}
}

func TestInvalidFilterLeavesBoard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleFixture(), models.RoleAdmin, "admin-1")
	if _, err := f.engine.ApplyFilter(ctx, models.Criteria{Category: "Akademik"}); err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	before := f.engine.Board()

	_, err := f.engine.ApplyFilter(ctx, models.Criteria{DateRange: "kemarin"})
	var verr *filter.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError; got %v", err)
	}
	if !reflect.DeepEqual(before, f.engine.Board()) {
		t.Fatalf("expected board unchanged after invalid filter")
	}
	if f.engine.Criteria().Category != "Akademik" {
		t.Fatalf("expected previous criteria kept; got %+v", f.engine.Criteria())
	}
}

func TestSearchCombinesWithFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleFixture(), models.RoleAdmin, "admin-1")
	if _, err := f.engine.ApplyFilter(ctx, models.Criteria{DateRange: "2024-03-01 - 2024-03-05"}); err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}

	b, applied, err := f.engine.Search(ctx, "krs")
	if err != nil || !applied {
		t.Fatalf("expected search applied; got applied=%v err=%v", applied, err)
	}
	assertColumns(t, b, [models.NumColumns][]string{nil, {"B"}, nil})

	b, _, _ = f.engine.Search(ctx, "")
	assertColumns(t, b, [models.NumColumns][]string{nil, {"B"}, {"C"}})
}

func TestMoveUsesFallbackAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleFixture(), models.RoleAdmin, "admin-1")

	out := f.engine.MoveTicket(ctx, "A", models.ColumnDone, 0)
	f.engine.Wait()
	if !out.Committed || out.RawStatus != "resolved" {
		t.Fatalf("expected commit with resolved; got %+v", out)
	}
	assertColumns(t, f.engine.Board(), [models.NumColumns][]string{nil, {"B"}, {"A", "C"}})

	raws, _ := f.remote.FetchTickets(ctx, models.RoleScope{Role: models.RoleAdmin})
	if raws[0].Status != "resolved" {
		t.Fatalf("expected remote status resolved; got %q", raws[0].Status)
	}

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.reqs) != 1 || f.notifier.reqs[0].RecipientID != "u1" {
		t.Fatalf("expected owner notified despite notifier error; got %+v", f.notifier.reqs)
	}
}

func TestMoveSurvivesClearingFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleFixture(), models.RoleAdmin, "admin-1")
	if _, err := f.engine.ApplyFilter(ctx, models.Criteria{ReadState: models.ReadStateUnread}); err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}

	out := f.engine.Move(ctx, transition.MoveRequest{TicketID: "B", From: models.ColumnInProgress, To: models.ColumnNew, Index: -1})
	if !out.Committed {
		t.Fatalf("expected commit; got %+v", out)
	}
	b, err := f.engine.ApplyFilter(ctx, models.Criteria{})
	if err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	assertColumns(t, b, [models.NumColumns][]string{{"A", "B"}, nil, {"C"}})
}

func TestSupersededFilterIsNotInstalled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleFixture(), models.RoleAdmin, "admin-1")
	before := f.engine.Board()

	crit := models.Criteria{ReadState: models.ReadStateUnread}
	token := f.engine.filterSeq.Add(1)
	b, err := f.engine.apply(crit)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	f.engine.filterSeq.Add(1) // a newer filter started while b was computed

	f.engine.mu.Lock()
	installed := f.engine.installIfCurrent(ctx, token, crit, b)
	f.engine.mu.Unlock()
	if installed {
		t.Fatalf("expected superseded filter to be dropped")
	}
	if !reflect.DeepEqual(before, f.engine.Board()) {
		t.Fatalf("expected board unchanged by superseded filter")
	}
	if !f.engine.Criteria().IsZero() {
		t.Fatalf("expected no active filter; got %+v", f.engine.Criteria())
	}
	if saved, _ := session.LoadCriteria(ctx, f.state); !saved.IsZero() {
		t.Fatalf("expected nothing persisted; got %+v", saved)
	}
}

func TestMoveMissingTicket(t *testing.T) {
	f := newFixture(t, sampleFixture(), models.RoleAdmin, "admin-1")
	out := f.engine.MoveTicket(context.Background(), "Z", models.ColumnDone, -1)
	if out.Err == nil || out.Committed {
		t.Fatalf("expected error for unknown ticket; got %+v", out)
	}
}

func TestDeleteManyReportsPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleFixture(), models.RoleAdmin, "admin-1")

	res := f.engine.DeleteMany(ctx, []string{"A", "missing", "C", "A"})
	if res.Total() != 3 {
		t.Fatalf("expected duplicates collapsed to 3 items; got %d", res.Total())
	}
	if !reflect.DeepEqual(res.Succeeded, []string{"A", "C"}) {
		t.Fatalf("expected A and C deleted; got %v", res.Succeeded)
	}
	if len(res.Failed) != 1 || res.Failed[0].ID != "missing" || res.Failed[0].Class != transition.ClassNotFound {
		t.Fatalf("unexpected failures %+v", res.Failed)
	}
	assertColumns(t, f.engine.Board(), [models.NumColumns][]string{nil, {"B"}, nil})
}

func TestDeleteRefusesTicketInFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleFixture(), models.RoleAdmin, "admin-1")

	if !f.engine.store.Begin("A") {
		t.Fatalf("expected to mark A in flight")
	}
	if err := f.engine.Delete(ctx, "A"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy; got %v", err)
	}
	f.engine.store.End("A")

	assertColumns(t, f.engine.Board(), [models.NumColumns][]string{{"A"}, {"B"}, {"C"}})
	raws, _ := f.remote.FetchTickets(ctx, models.RoleScope{Role: models.RoleAdmin})
	if len(raws) != 3 {
		t.Fatalf("expected remote untouched; got %d tickets", len(raws))
	}
}

type gatedAuthority struct {
	*database.File
	entered chan struct{}
	release chan struct{}
}

func (g *gatedAuthority) DeleteTicket(ctx context.Context, id string) error {
	close(g.entered)
	<-g.release
	return g.File.DeleteTicket(ctx, id)
}

func TestMoveDuringDeleteIsStale(t *testing.T) {
	ctx := context.Background()
	ident, _ := identity.NewStatic("admin-1", models.RoleAdmin, "")
	remote := &gatedAuthority{
		File:    database.NewFile(sampleFixture()),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := New(remote, Config{Identity: ident, State: session.NewMemory(), Location: wib})
	if err := e.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- e.Delete(ctx, "A") }()
	<-remote.entered

	out := e.MoveTicket(ctx, "A", models.ColumnDone, -1)
	if !out.Stale || out.Committed {
		t.Fatalf("expected move during delete to be stale; got %+v", out)
	}

	close(remote.release)
	if err := <-done; err != nil {
		t.Fatalf("Delete: %v", err)
	}
	assertColumns(t, e.Board(), [models.NumColumns][]string{nil, {"B"}, {"C"}})
}

func TestBadgesAndMarkRead(t *testing.T) {
	fx := sampleFixture()
	fx.Tickets = append(fx.Tickets, models.RawTicket{ID: "D", Status: "new", CreatedAt: "2024-03-05 07:30:00", OwnerID: "u3"})
	f := newFixture(t, fx, models.RoleAdmin, "admin-1")

	badges := f.engine.Badges()
	if !badges[models.ColumnNew] || badges[models.ColumnInProgress] || badges[models.ColumnDone] {
		t.Fatalf("expected only the new column badged; got %v", badges)
	}

	if !f.engine.MarkRead("D") {
		t.Fatalf("expected D to be marked read")
	}
	if f.engine.Badges()[models.ColumnNew] {
		t.Fatalf("expected badge cleared after reading D")
	}
}

func TestMarkViewed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sampleFixture(), models.RoleAdmin, "admin-1")
	at, err := f.engine.MarkViewed(ctx, models.ColumnInProgress)
	if err != nil {
		t.Fatalf("MarkViewed: %v", err)
	}
	got, ok, err := f.engine.LastViewed(ctx, models.ColumnInProgress)
	if err != nil || !ok || !got.Equal(at) {
		t.Fatalf("expected %v; got %v ok=%v err=%v", at, got, ok, err)
	}
}

func TestReorderIsLocal(t *testing.T) {
	fx := sampleFixture()
	fx.Tickets = append(fx.Tickets,
		models.RawTicket{ID: "E", Status: "open"},
		models.RawTicket{ID: "F", Status: "pending"},
	)
	f := newFixture(t, fx, models.RoleAdmin, "admin-1")

	moved, err := f.engine.Reorder("F", models.ColumnNew, 0)
	if err != nil || !moved {
		t.Fatalf("expected reorder; got moved=%v err=%v", moved, err)
	}
	assertColumns(t, f.engine.Board(), [models.NumColumns][]string{{"F", "A", "E"}, {"B"}, {"C"}})

	raws, _ := f.remote.FetchTickets(context.Background(), models.RoleScope{Role: models.RoleAdmin})
	if raws[4].Status != "pending" {
		t.Fatalf("expected remote status untouched; got %q", raws[4].Status)
	}
}
