package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YardLink/YardLink/internal/driver"
	"github.com/YardLink/YardLink/internal/move"
	"gorm.io/gorm"
)

// ---- in-memory mocks ----

type memBatches struct {
	batches []*PaymentBatch
	records []*PaymentRecord
}

func (s *memBatches) CreateBatch(_ context.Context, _ *gorm.DB, b *PaymentBatch) error {
	cp := *b
	s.batches = append(s.batches, &cp)
	return nil
}

func (s *memBatches) CreateRecord(_ context.Context, _ *gorm.DB, r *PaymentRecord) error {
	cp := *r
	s.records = append(s.records, &cp)
	return nil
}

type memMoves struct {
	moves map[string]*move.Move
}

func (s *memMoves) GetForUpdate(_ *gorm.DB, id string) (*move.Move, error) {
	m, ok := s.moves[id]
	if !ok {
		return nil, errors.New("move not found")
	}
	cp := *m
	return &cp, nil
}

func (s *memMoves) Save(_ context.Context, _ *gorm.DB, m *move.Move) error {
	cp := *m
	s.moves[m.ID] = &cp
	return nil
}

type memHistory struct {
	rows []string
}

func (h *memHistory) Record(_ context.Context, _ *gorm.DB, moveID, driverID, action, actionType, reason string) error {
	h.rows = append(h.rows, moveID+":"+action)
	return nil
}

type memActors struct {
	drivers map[string]*driver.Driver
}

func (s *memActors) FindByID(_ context.Context, id string) (*driver.Driver, error) {
	d, ok := s.drivers[id]
	if !ok {
		return nil, errors.New("driver not found")
	}
	return d, nil
}

func noTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func completedMove(id, driverID string, gross float64) *move.Move {
	done := time.Date(2025, 8, 14, 18, 0, 0, 0, time.UTC)
	return &move.Move{
		ID:            id,
		DriverID:      driverID,
		Status:        move.StatusCompleted,
		PaymentStatus: move.PaymentPending,
		GrossAmount:   gross,
		CompletedAt:   &done,
	}
}

func fixture() (*Service, *memBatches, *memMoves, *memHistory) {
	batches := &memBatches{}
	moves := &memMoves{moves: map[string]*move.Move{
		"mv-a1": completedMove("mv-a1", "drv-a", 1960),
		"mv-b1": completedMove("mv-b1", "drv-b", 1960),
	}}
	history := &memHistory{}
	actors := &memActors{drivers: map[string]*driver.Driver{
		"coord-1": {ID: "coord-1", Name: "Casey", Roles: "coordinator", Active: true},
		"drv-a":   {ID: "drv-a", Name: "Amos", Roles: "driver", Active: true},
	}}
	svc := NewService(batches, moves, history, actors, noTx)
	return svc, batches, moves, history
}

func commitInput() BatchInput {
	return BatchInput{
		ClientPayment: 3920,
		ServiceFee:    4,
		Moves: []MoveGross{
			{MoveID: "mv-a1", DriverID: "drv-a", Gross: 1960},
			{MoveID: "mv-b1", DriverID: "drv-b", Gross: 1960},
		},
	}
}

// ---- tests ----

func TestCommitBatchSettlesMoves(t *testing.T) {
	svc, batches, moves, history := fixture()
	in := commitInput()
	bd, err := Calculate(in)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	paymentDate := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	batchID, err := svc.CommitBatch(context.Background(), in, bd, paymentDate, "coord-1")
	if err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	if batchID == "" {
		t.Fatalf("expected batch id")
	}

	if len(batches.batches) != 1 || !batches.batches[0].Processed {
		t.Fatalf("expected one processed batch, got %#v", batches.batches)
	}
	if got := batches.batches[0].FactoringFee; !almost(got, 3920*0.03) {
		t.Fatalf("expected derived factoring fee, got %.4f", got)
	}
	if len(batches.records) != 2 {
		t.Fatalf("expected one record per driver, got %d", len(batches.records))
	}

	m := moves.moves["mv-a1"]
	if m.Status != move.StatusPaid || m.PaymentStatus != move.PaymentPaid {
		t.Fatalf("expected move paid, got %s/%s", m.Status, m.PaymentStatus)
	}
	if m.NetPayment == nil || !almost(*m.NetPayment, 1960-58.8-2) {
		t.Fatalf("unexpected net payment %v", m.NetPayment)
	}
	if m.PaymentBatchID != batchID {
		t.Fatalf("expected move linked to batch")
	}
	if m.PaidAt == nil || m.PaymentDate == nil || !m.PaymentDate.Equal(paymentDate) {
		t.Fatalf("expected payment timestamps set")
	}

	// 每条 move 一条 paid 流水
	if len(history.rows) != 2 {
		t.Fatalf("expected two history rows, got %#v", history.rows)
	}
}

func TestCommitBatchRejectsNonCoordinator(t *testing.T) {
	svc, _, _, _ := fixture()
	in := commitInput()
	bd, _ := Calculate(in)

	if _, err := svc.CommitBatch(context.Background(), in, bd, time.Now(), "drv-a"); !errors.Is(err, move.ErrActorNotAllowed) {
		t.Fatalf("expected ErrActorNotAllowed, got %v", err)
	}
}

func TestCommitBatchToleranceGuard(t *testing.T) {
	svc, _, moves, _ := fixture()
	moves.moves["mv-a1"].GrossAmount = 1960

	in := commitInput()
	in.ClientPayment = 3000 // 偏差 920，超阈值
	bd, err := Calculate(in)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !bd.ToleranceExceeded {
		t.Fatalf("expected tolerance flag")
	}

	if _, err := svc.CommitBatch(context.Background(), in, bd, time.Now(), "coord-1"); !errors.Is(err, ErrToleranceUnconfirmed) {
		t.Fatalf("expected ErrToleranceUnconfirmed, got %v", err)
	}

	// 员工确认后可提交
	in.ToleranceConfirmed = true
	bd, _ = Calculate(in)
	if _, err := svc.CommitBatch(context.Background(), in, bd, time.Now(), "coord-1"); err != nil {
		t.Fatalf("CommitBatch with confirmation: %v", err)
	}
}

func TestCommitBatchBreakdownMismatch(t *testing.T) {
	svc, _, _, _ := fixture()
	in := commitInput()
	bd, _ := Calculate(in)

	stale := *bd
	stale.Drivers = append([]DriverBreakdown(nil), bd.Drivers...)
	stale.Drivers[0].NetPayment += 50

	if _, err := svc.CommitBatch(context.Background(), in, &stale, time.Now(), "coord-1"); !errors.Is(err, ErrBreakdownMismatch) {
		t.Fatalf("expected ErrBreakdownMismatch, got %v", err)
	}
}

func TestCommitBatchRejectsUnpayableMove(t *testing.T) {
	svc, _, moves, _ := fixture()
	moves.moves["mv-b1"].Status = move.StatusInTransit

	in := commitInput()
	bd, _ := Calculate(in)
	if _, err := svc.CommitBatch(context.Background(), in, bd, time.Now(), "coord-1"); !errors.Is(err, ErrMoveNotPayable) {
		t.Fatalf("expected ErrMoveNotPayable, got %v", err)
	}
}

func TestCommitBatchRejectsDoublePay(t *testing.T) {
	svc, _, moves, _ := fixture()
	in := commitInput()
	bd, _ := Calculate(in)

	if _, err := svc.CommitBatch(context.Background(), in, bd, time.Now(), "coord-1"); err != nil {
		t.Fatalf("first CommitBatch: %v", err)
	}
	if moves.moves["mv-a1"].PaymentStatus != move.PaymentPaid {
		t.Fatalf("expected move paid")
	}

	// 同一批 move 不可再次入账
	if _, err := svc.CommitBatch(context.Background(), in, bd, time.Now(), "coord-1"); !errors.Is(err, ErrMoveNotPayable) {
		t.Fatalf("expected ErrMoveNotPayable on double pay, got %v", err)
	}
}
