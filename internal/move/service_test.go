package move

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YardLink/YardLink/internal/driver"
	"github.com/YardLink/YardLink/internal/ledger"
	"github.com/YardLink/YardLink/internal/registry"
	"gorm.io/gorm"
)

// ---- in-memory mocks ----

type memStore struct {
	moves map[string]*Move
}

func newMemStore(moves ...*Move) *memStore {
	s := &memStore{moves: make(map[string]*Move)}
	for _, m := range moves {
		cp := *m
		s.moves[m.ID] = &cp
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id string) (*Move, error) {
	m, ok := s.moves[id]
	if !ok {
		return nil, errors.New("move not found")
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) GetForUpdate(_ *gorm.DB, id string) (*Move, error) {
	return s.GetByID(context.Background(), id)
}

func (s *memStore) Create(_ context.Context, _ *gorm.DB, m *Move) error {
	cp := *m
	s.moves[m.ID] = &cp
	return nil
}

func (s *memStore) Save(_ context.Context, _ *gorm.DB, m *Move) error {
	cp := *m
	s.moves[m.ID] = &cp
	return nil
}

type trailerCall struct {
	op   string
	args []string
}

type fakeTrailers struct {
	calls      []trailerCall
	reserveErr error

	reservedUntil time.Time // ReservePair 写入
	heldUntil     time.Time // ExtendHold 写入
}

func (f *fakeTrailers) ReservePair(_ context.Context, driverID, newID, oldID string, _, until time.Time) error {
	f.calls = append(f.calls, trailerCall{"reserve", []string{driverID, newID, oldID}})
	if f.reserveErr == nil {
		f.reservedUntil = until
		f.heldUntil = until
	}
	return f.reserveErr
}

func (f *fakeTrailers) ReleasePair(_ context.Context, _ *gorm.DB, driverID string, ids ...string) error {
	f.calls = append(f.calls, trailerCall{"release_pair", append([]string{driverID}, ids...)})
	return nil
}

func (f *fakeTrailers) MarkInTransit(_ *gorm.DB, driverID string, ids ...string) error {
	f.calls = append(f.calls, trailerCall{"in_transit", append([]string{driverID}, ids...)})
	return nil
}

func (f *fakeTrailers) MarkDelivered(_ *gorm.DB, trailerID, locationID string) error {
	f.calls = append(f.calls, trailerCall{"delivered", []string{trailerID, locationID}})
	return nil
}

func (f *fakeTrailers) ReturnToBase(_ *gorm.DB, trailerID, baseID string) error {
	f.calls = append(f.calls, trailerCall{"return_to_base", []string{trailerID, baseID}})
	return nil
}

func (f *fakeTrailers) ReleaseTrailers(_ *gorm.DB, ids ...string) error {
	f.calls = append(f.calls, trailerCall{"release", ids})
	return nil
}

func (f *fakeTrailers) ExtendHold(_ *gorm.DB, driverID string, until time.Time, ids ...string) error {
	f.calls = append(f.calls, trailerCall{"extend_hold", append([]string{driverID}, ids...)})
	f.heldUntil = until
	return nil
}

func (f *fakeTrailers) BaseLocationID(_ context.Context) (string, error) {
	return "loc-base", nil
}

type historyRow struct {
	moveID, driverID, action, actionType, reason string
}

type memHistory struct {
	rows []historyRow
}

func (h *memHistory) Record(_ context.Context, _ *gorm.DB, moveID, driverID, action, actionType, reason string) error {
	h.rows = append(h.rows, historyRow{moveID, driverID, action, actionType, reason})
	return nil
}

type fakeActors struct {
	drivers map[string]*driver.Driver
}

func (f *fakeActors) FindByID(_ context.Context, id string) (*driver.Driver, error) {
	d, ok := f.drivers[id]
	if !ok {
		return nil, errors.New("driver not found")
	}
	return d, nil
}

func noTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func testActors() *fakeActors {
	return &fakeActors{drivers: map[string]*driver.Driver{
		"drv-1":   {ID: "drv-1", Name: "Amos", Roles: driver.RoleDriver, Active: true, MaxConcurrentMoves: 1},
		"drv-2":   {ID: "drv-2", Name: "Bela", Roles: driver.RoleDriver, Active: true, MaxConcurrentMoves: 1},
		"coord-1": {ID: "coord-1", Name: "Casey", Roles: "driver,coordinator", Active: true},
	}}
}

func testMove(status Status) *Move {
	return &Move{
		ID:                    "mv-1",
		SystemID:              "MOVE-20250815-abc123",
		NewTrailerID:          "tr-new",
		OldTrailerID:          "tr-old",
		OriginLocationID:      "loc-a",
		DestinationLocationID: "loc-b",
		DriverID:              "drv-1",
		Status:                status,
		AssignmentType:        AssignSelf,
		PaymentStatus:         PaymentPending,
	}
}

// ---- tests ----

func TestAdvanceHappyPath(t *testing.T) {
	store := newMemStore(testMove(StatusAssigned))
	trailers := &fakeTrailers{}
	history := &memHistory{}
	svc := NewService(store, trailers, history, testActors(), noTx)

	m, err := svc.Advance(context.Background(), "mv-1", StatusInTransit, "drv-1", nil)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if m.Status != StatusInTransit {
		t.Fatalf("expected in_transit, got %s", m.Status)
	}
	if m.StartedAt == nil {
		t.Fatalf("expected started_at set")
	}
	if len(trailers.calls) != 1 || trailers.calls[0].op != "in_transit" {
		t.Fatalf("expected one in_transit trailer call, got %#v", trailers.calls)
	}
	if len(history.rows) != 1 {
		t.Fatalf("expected exactly one history row, got %d", len(history.rows))
	}
	row := history.rows[0]
	if row.action != string(StatusInTransit) || row.actionType != ledger.ActionTypeSelf {
		t.Fatalf("unexpected history row %#v", row)
	}
}

func TestAdvanceRejectsSkip(t *testing.T) {
	store := newMemStore(testMove(StatusAssigned))
	svc := NewService(store, &fakeTrailers{}, &memHistory{}, testActors(), noTx)

	_, err := svc.Advance(context.Background(), "mv-1", StatusPickupComplete, "drv-1", []string{"pod-1"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got := store.moves["mv-1"].Status; got != StatusAssigned {
		t.Fatalf("expected status unchanged, got %s", got)
	}
}

func TestAdvanceRequiresEvidence(t *testing.T) {
	store := newMemStore(testMove(StatusInTransit))
	svc := NewService(store, &fakeTrailers{}, &memHistory{}, testActors(), noTx)

	_, err := svc.Advance(context.Background(), "mv-1", StatusPickupComplete, "drv-1", nil)
	if !errors.Is(err, ErrMissingEvidence) {
		t.Fatalf("expected ErrMissingEvidence, got %v", err)
	}

	m, err := svc.Advance(context.Background(), "mv-1", StatusPickupComplete, "drv-1", []string{"pod-7"})
	if err != nil {
		t.Fatalf("Advance with evidence: %v", err)
	}
	if m.EvidenceRefs != "pod-7" {
		t.Fatalf("expected evidence recorded, got %q", m.EvidenceRefs)
	}
}

func TestAdvanceCompletedSideEffects(t *testing.T) {
	store := newMemStore(testMove(StatusPickupComplete))
	trailers := &fakeTrailers{}
	svc := NewService(store, trailers, &memHistory{}, testActors(), noTx)

	m, err := svc.Advance(context.Background(), "mv-1", StatusCompleted, "drv-1", []string{"pod-9"})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if m.CompletedAt == nil {
		t.Fatalf("expected completed_at set")
	}
	if len(trailers.calls) != 2 {
		t.Fatalf("expected delivered + return_to_base, got %#v", trailers.calls)
	}
	if trailers.calls[0].op != "delivered" || trailers.calls[0].args[1] != "loc-b" {
		t.Fatalf("expected new trailer delivered at destination, got %#v", trailers.calls[0])
	}
	if trailers.calls[1].op != "return_to_base" || trailers.calls[1].args[1] != "loc-base" {
		t.Fatalf("expected old trailer returned to base, got %#v", trailers.calls[1])
	}
}

func TestAdvanceActorRules(t *testing.T) {
	store := newMemStore(testMove(StatusAssigned))
	history := &memHistory{}
	svc := NewService(store, &fakeTrailers{}, history, testActors(), noTx)

	// 别的司机不允许
	if _, err := svc.Advance(context.Background(), "mv-1", StatusInTransit, "drv-2", nil); !errors.Is(err, ErrActorNotAllowed) {
		t.Fatalf("expected ErrActorNotAllowed, got %v", err)
	}

	// 协调员可以，但记为 override
	if _, err := svc.Advance(context.Background(), "mv-1", StatusInTransit, "coord-1", nil); err != nil {
		t.Fatalf("Advance as coordinator: %v", err)
	}
	if history.rows[len(history.rows)-1].actionType != ledger.ActionTypeOverride {
		t.Fatalf("expected override action type, got %#v", history.rows)
	}
}

func TestAdvanceRejectsPaidAndCancelledTargets(t *testing.T) {
	store := newMemStore(testMove(StatusCompleted))
	svc := NewService(store, &fakeTrailers{}, &memHistory{}, testActors(), noTx)

	if _, err := svc.Advance(context.Background(), "mv-1", StatusPaid, "coord-1", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected paid via Advance rejected, got %v", err)
	}
	if _, err := svc.Advance(context.Background(), "mv-1", StatusCancelled, "coord-1", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected cancelled via Advance rejected, got %v", err)
	}
}

func TestCancelReleasesTrailers(t *testing.T) {
	store := newMemStore(testMove(StatusAssigned))
	trailers := &fakeTrailers{}
	history := &memHistory{}
	svc := NewService(store, trailers, history, testActors(), noTx)

	m, err := svc.Cancel(context.Background(), "mv-1", "coord-1", "driver unavailable")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if m.Status != StatusCancelled || m.CancelledAt == nil {
		t.Fatalf("expected cancelled move, got %s", m.Status)
	}
	if m.UnassignedReason != "driver unavailable" {
		t.Fatalf("expected reason recorded, got %q", m.UnassignedReason)
	}
	if len(trailers.calls) != 1 || trailers.calls[0].op != "release" {
		t.Fatalf("expected trailers released, got %#v", trailers.calls)
	}
	if len(history.rows) != 1 || history.rows[0].reason != "driver unavailable" {
		t.Fatalf("expected one history row with reason, got %#v", history.rows)
	}

	// 终态不可再取消
	if _, err := svc.Cancel(context.Background(), "mv-1", "coord-1", "again"); !errors.Is(err, ErrMoveTerminal) {
		t.Fatalf("expected ErrMoveTerminal, got %v", err)
	}
}

func TestAssignDriver(t *testing.T) {
	store := newMemStore(testMove(StatusPending))
	store.moves["mv-1"].DriverID = ""
	trailers := &fakeTrailers{}
	history := &memHistory{}
	svc := NewService(store, trailers, history, testActors(), noTx)

	m, err := svc.AssignDriver(context.Background(), "mv-1", "drv-2", "coord-1", 30*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("AssignDriver: %v", err)
	}
	if m.Status != StatusAssigned || m.DriverID != "drv-2" {
		t.Fatalf("expected assigned to drv-2, got %s / %s", m.Status, m.DriverID)
	}
	if m.AssignmentType != AssignCoordinator {
		t.Fatalf("expected coordinator assignment type, got %s", m.AssignmentType)
	}
	if len(trailers.calls) != 2 || trailers.calls[0].op != "reserve" || trailers.calls[1].op != "extend_hold" {
		t.Fatalf("expected reserve then extend_hold, got %#v", trailers.calls)
	}
	// pending->reserved 与 reserved->assigned 各一条流水
	if len(history.rows) != 2 {
		t.Fatalf("expected two history rows, got %d", len(history.rows))
	}
	if history.rows[0].action != string(StatusReserved) || history.rows[1].action != string(StatusAssigned) {
		t.Fatalf("unexpected history actions %#v", history.rows)
	}

	// 司机不可指派
	if _, err := svc.AssignDriver(context.Background(), "mv-1", "drv-2", "drv-1", 30*time.Minute, 7*24*time.Hour); !errors.Is(err, ErrActorNotAllowed) {
		t.Fatalf("expected ErrActorNotAllowed for driver actor, got %v", err)
	}
}

func TestAssignDriverExtendsHoldPastClaimWindow(t *testing.T) {
	store := newMemStore(testMove(StatusPending))
	store.moves["mv-1"].DriverID = ""
	trailers := &fakeTrailers{}
	base := time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)
	svc := NewService(store, trailers, &memHistory{}, testActors(), noTx).
		WithClock(func() time.Time { return base })

	if _, err := svc.AssignDriver(context.Background(), "mv-1", "drv-2", "coord-1", 30*time.Minute, 7*24*time.Hour); err != nil {
		t.Fatalf("AssignDriver: %v", err)
	}

	// 抢占窗口之后惰性过期守卫不得释放挂车：move 仍是 assigned
	later := base.Add(31 * time.Minute)
	tr := &registry.Trailer{
		Status:           registry.TrailerReserved,
		ReservedByDriver: "drv-2",
		ReservedUntil:    &trailers.heldUntil,
	}
	if registry.NormalizeReservation(tr, later) {
		t.Fatalf("trailers freed at %s while move is assigned (hold ends %s)", later, trailers.heldUntil)
	}
	if !trailers.heldUntil.After(trailers.reservedUntil) {
		t.Fatalf("expected hold extended past claim window, still %s", trailers.heldUntil)
	}
	if got, want := trailers.heldUntil, base.Add(7*24*time.Hour); !got.Equal(want) {
		t.Fatalf("expected hold until %s, got %s", want, got)
	}
}

func TestAssignDriverReservationConflict(t *testing.T) {
	store := newMemStore(testMove(StatusPending))
	store.moves["mv-1"].DriverID = ""
	trailers := &fakeTrailers{reserveErr: errors.New("pair held")}
	svc := NewService(store, trailers, &memHistory{}, testActors(), noTx)

	if _, err := svc.AssignDriver(context.Background(), "mv-1", "drv-2", "coord-1", 30*time.Minute, 7*24*time.Hour); err == nil {
		t.Fatalf("expected reservation conflict to surface")
	}
	if got := store.moves["mv-1"].Status; got != StatusPending {
		t.Fatalf("expected move still pending, got %s", got)
	}
}

func TestCreatePendingMove(t *testing.T) {
	store := newMemStore()
	history := &memHistory{}
	svc := NewService(store, &fakeTrailers{}, history, testActors(), noTx)

	m, err := svc.Create(context.Background(), CreateInput{
		NewTrailerID:          "tr-new",
		OldTrailerID:          "tr-old",
		OriginLocationID:      "loc-a",
		DestinationLocationID: "loc-b",
		EstimatedMiles:        95,
		GrossAmount:           200,
	}, "coord-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.Status != StatusPending {
		t.Fatalf("expected pending, got %s", m.Status)
	}
	if len(history.rows) != 1 || history.rows[0].action != "created" {
		t.Fatalf("expected created history row, got %#v", history.rows)
	}

	// 非协调员不可建单
	if _, err := svc.Create(context.Background(), CreateInput{NewTrailerID: "a", OldTrailerID: "b", OriginLocationID: "c", DestinationLocationID: "d"}, "drv-1"); !errors.Is(err, ErrActorNotAllowed) {
		t.Fatalf("expected ErrActorNotAllowed, got %v", err)
	}
}
