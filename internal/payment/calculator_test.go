package payment

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func almost(a, b float64) bool {
	return math.Abs(a-b) <= 0.01
}

// 三司机场景：6693 实付与标准线路价合计一致（因子为 1）。
func threeDriverInput() BatchInput {
	return BatchInput{
		ClientPayment: 6693.00,
		ServiceFee:    6.00,
		Moves: []MoveGross{
			{MoveID: "mv-a1", DriverID: "drv-a", Gross: 1960},
			{MoveID: "mv-a2", DriverID: "drv-a", Gross: 200},
			{MoveID: "mv-a3", DriverID: "drv-a", Gross: 200},
			{MoveID: "mv-b1", DriverID: "drv-b", Gross: 1960},
			{MoveID: "mv-c1", DriverID: "drv-c", Gross: 2373},
		},
	}
}

func TestCalculateThreeDriverBatch(t *testing.T) {
	bd, err := Calculate(threeDriverInput())
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if !almost(bd.FactoringFee, 200.79) {
		t.Fatalf("expected factoring fee 200.79, got %.4f", bd.FactoringFee)
	}
	if !almost(bd.AdjustmentFactor, 1.0) {
		t.Fatalf("expected adjustment factor 1, got %.6f", bd.AdjustmentFactor)
	}
	if !almost(bd.ServiceFeePerDriver, 2.00) {
		t.Fatalf("expected service fee 2 per driver, got %.4f", bd.ServiceFeePerDriver)
	}
	if bd.ToleranceExceeded || bd.ZeroGrossFallback {
		t.Fatalf("unexpected diagnostic flags: %+v", bd)
	}

	want := map[string]float64{
		"drv-a": 2287.20,
		"drv-b": 1899.20,
		"drv-c": 2299.81,
	}
	if len(bd.Drivers) != 3 {
		t.Fatalf("expected 3 drivers, got %d", len(bd.Drivers))
	}
	for _, d := range bd.Drivers {
		if !almost(d.NetPayment, want[d.DriverID]) {
			t.Fatalf("driver %s: expected net %.2f, got %.4f", d.DriverID, want[d.DriverID], d.NetPayment)
		}
	}
}

func TestCalculateConservation(t *testing.T) {
	in := threeDriverInput()
	bd, err := Calculate(in)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	totalFactoring := 0.0
	for _, d := range bd.Drivers {
		totalFactoring += d.FactoringShare
	}
	// 净额 + 保理分摊 + service fee 守恒
	got := bd.TotalNet() + totalFactoring + in.ServiceFee
	if !almost(got, in.ClientPayment) {
		t.Fatalf("conservation violated: %.4f vs %.4f", got, in.ClientPayment)
	}
}

func TestCalculatePerMoveShares(t *testing.T) {
	bd, err := Calculate(threeDriverInput())
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	for _, d := range bd.Drivers {
		sumNet := 0.0
		for _, m := range d.Moves {
			sumNet += m.Net
			// move 净额与毛额占比一致
			wantNet := d.NetPayment * (m.Gross / d.Gross)
			if !almost(m.Net, wantNet) {
				t.Fatalf("move %s: expected net %.4f, got %.4f", m.MoveID, wantNet, m.Net)
			}
		}
		if !almost(sumNet, d.NetPayment) {
			t.Fatalf("driver %s: move nets sum %.4f != driver net %.4f", d.DriverID, sumNet, d.NetPayment)
		}
	}
}

func TestCalculateIdempotent(t *testing.T) {
	in := threeDriverInput()
	a, err := Calculate(in)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	b, err := Calculate(in)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical breakdowns for identical input")
	}
}

func TestCalculateSingleMoveFactorOne(t *testing.T) {
	bd, err := Calculate(BatchInput{
		ClientPayment: 200,
		ServiceFee:    0,
		Moves:         []MoveGross{{MoveID: "mv-1", DriverID: "drv-a", Gross: 200}},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !almost(bd.AdjustmentFactor, 1.0) {
		t.Fatalf("expected factor 1, got %f", bd.AdjustmentFactor)
	}
	// 200 - 6 保理 = 194
	if !almost(bd.Drivers[0].NetPayment, 194.00) {
		t.Fatalf("expected net 194, got %.4f", bd.Drivers[0].NetPayment)
	}
}

func TestCalculateAdjustmentFactorScaling(t *testing.T) {
	// 实付是标准价合计的一半，所有份额等比缩半
	bd, err := Calculate(BatchInput{
		ClientPayment: 1000,
		ServiceFee:    10,
		Moves: []MoveGross{
			{MoveID: "mv-1", DriverID: "drv-a", Gross: 1500},
			{MoveID: "mv-2", DriverID: "drv-b", Gross: 500},
		},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !almost(bd.AdjustmentFactor, 0.5) {
		t.Fatalf("expected factor 0.5, got %f", bd.AdjustmentFactor)
	}
	if !bd.ToleranceExceeded {
		t.Fatalf("expected tolerance flag for 1000 gap")
	}
	// drv-a: 750 - 22.5 - 5 = 722.5
	if !almost(bd.Drivers[0].NetPayment, 722.50) {
		t.Fatalf("expected 722.50, got %.4f", bd.Drivers[0].NetPayment)
	}
	// drv-b: 250 - 7.5 - 5 = 237.5
	if !almost(bd.Drivers[1].NetPayment, 237.50) {
		t.Fatalf("expected 237.50, got %.4f", bd.Drivers[1].NetPayment)
	}
}

func TestCalculateToleranceFlagBoundary(t *testing.T) {
	// 偏差恰好 100 不触发
	bd, err := Calculate(BatchInput{
		ClientPayment: 1900,
		ServiceFee:    0,
		Moves:         []MoveGross{{MoveID: "mv-1", DriverID: "drv-a", Gross: 2000}},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if bd.ToleranceExceeded {
		t.Fatalf("expected no flag at exactly 100 diff")
	}

	bd, err = Calculate(BatchInput{
		ClientPayment: 1899,
		ServiceFee:    0,
		Moves:         []MoveGross{{MoveID: "mv-1", DriverID: "drv-a", Gross: 2000}},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !bd.ToleranceExceeded {
		t.Fatalf("expected flag above 100 diff")
	}
}

func TestCalculateZeroGrossFallback(t *testing.T) {
	bd, err := Calculate(BatchInput{
		ClientPayment: 900,
		ServiceFee:    0,
		Moves: []MoveGross{
			{MoveID: "mv-1", DriverID: "drv-a", Gross: 0},
			{MoveID: "mv-2", DriverID: "drv-b", Gross: 0},
			{MoveID: "mv-3", DriverID: "drv-c", Gross: 0},
		},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !bd.ZeroGrossFallback {
		t.Fatalf("expected zero-gross fallback flag")
	}
	for _, d := range bd.Drivers {
		// 300 - 9 保理 = 291
		if !almost(d.NetPayment, 291.00) {
			t.Fatalf("expected equal 291 share, got %.4f", d.NetPayment)
		}
	}
}

func TestCalculateInvalidInputs(t *testing.T) {
	if _, err := Calculate(BatchInput{ClientPayment: 100}); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}

	moves := []MoveGross{{MoveID: "mv-1", DriverID: "drv-a", Gross: 100}}
	if _, err := Calculate(BatchInput{ClientPayment: 0, Moves: moves}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero payment, got %v", err)
	}
	if _, err := Calculate(BatchInput{ClientPayment: -5, Moves: moves}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative payment, got %v", err)
	}
	if _, err := Calculate(BatchInput{ClientPayment: 100, ServiceFee: -1, Moves: moves}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative service fee, got %v", err)
	}
	if _, err := Calculate(BatchInput{ClientPayment: 100, Moves: []MoveGross{{MoveID: "mv-1", DriverID: "drv-a", Gross: -1}}}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative gross, got %v", err)
	}
}

func TestCalculateDriversSorted(t *testing.T) {
	bd, err := Calculate(BatchInput{
		ClientPayment: 600,
		ServiceFee:    0,
		Moves: []MoveGross{
			{MoveID: "mv-1", DriverID: "drv-z", Gross: 200},
			{MoveID: "mv-2", DriverID: "drv-a", Gross: 200},
			{MoveID: "mv-3", DriverID: "drv-m", Gross: 200},
		},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	got := []string{bd.Drivers[0].DriverID, bd.Drivers[1].DriverID, bd.Drivers[2].DriverID}
	want := []string{"drv-a", "drv-m", "drv-z"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected drivers sorted by id, got %v", got)
	}
}
