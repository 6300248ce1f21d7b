package rate

import "testing"

func defaultTable() *Table {
	return NewTable([]RouteRate{
		{Origin: "FedEx Memphis", Destination: "Fleet Memphis", Amount: 200, Miles: 95},
		{Origin: "Fleet Memphis", Destination: "FedEx Indy", Amount: 1960, Miles: 933},
		{Origin: "Fleet Memphis", Destination: "FedEx Chicago", Amount: 2373, Miles: 1130},
	})
}

func TestLookupForwardAndReverse(t *testing.T) {
	tbl := defaultTable()

	r, ok := tbl.Lookup("Fleet Memphis", "FedEx Indy")
	if !ok || r.Amount != 1960 {
		t.Fatalf("expected forward hit 1960, got %v %v", r, ok)
	}

	// 反向回退
	r, ok = tbl.Lookup("FedEx Indy", "Fleet Memphis")
	if !ok || r.Amount != 1960 {
		t.Fatalf("expected reverse hit 1960, got %v %v", r, ok)
	}

	if _, ok := tbl.Lookup("Fleet Memphis", "Nowhere"); ok {
		t.Fatalf("expected miss for unknown route")
	}
}

func TestEstimate(t *testing.T) {
	tbl := defaultTable()

	amount, miles := tbl.Estimate("Fleet Memphis", "FedEx Chicago", 0)
	if amount != 2373 || miles != 1130 {
		t.Fatalf("expected route rate 2373/1130, got %f/%f", amount, miles)
	}

	// 无标准线路价时按里程兜底
	amount, miles = tbl.Estimate("Fleet Memphis", "Nowhere", 100)
	if amount != 100*BaseRatePerMile || miles != 100 {
		t.Fatalf("expected mileage fallback, got %f/%f", amount, miles)
	}

	// nil 表也走兜底
	var empty *Table
	amount, _ = empty.Estimate("a", "b", 10)
	if amount != 10*BaseRatePerMile {
		t.Fatalf("expected fallback on nil table, got %f", amount)
	}
}
