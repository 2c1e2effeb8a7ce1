package repo

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"detailcrm/pkg/domain"
)

func TestFloorSubNeverGoesNegative(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)
	properties.Property("stock stays non-negative and never grows", prop.ForAll(
		func(stock float64, uses []float64) bool {
			cur := stock
			for _, u := range uses {
				next := floorSub(cur, u)
				if next < 0 || next > cur {
					return false
				}
				cur = next
			}
			return true
		},
		gen.Float64Range(0, 500),
		gen.SliceOf(gen.Float64Range(-10, 100)),
	))
	properties.TestingRun(t)
}

func stockOf(t *testing.T, inv *Inventory, id string) float64 {
	t.Helper()
	rows, err := inv.Chemicals(context.Background())
	if err != nil {
		t.Fatalf("chemicals: %v", err)
	}
	for _, c := range rows {
		if c.ID == id {
			return c.CurrentStock
		}
	}
	t.Fatalf("chemical %s missing", id)
	return 0
}

func TestApplyUsageFloorsAtZeroAndRecords(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	inv := NewInventory(h.env, NewAlerts(h.env))
	res, err := inv.ApplyUsage(ctx, []domain.UsageEvent{
		{ChemicalID: "chem_1_shampoo", QuantityUsed: 10, ServiceName: "Full Detail", Employee: "Alex"},
		{MaterialID: "mat_1_towels", QuantityUsed: 4, Employee: "Alex"},
		{ToolID: "tool_1_polisher", QuantityUsed: 1, Employee: "Sam"},
		{ChemicalID: "chem_missing", QuantityUsed: 1},
		{QuantityUsed: 1},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Applied != 3 || res.Unmatched != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := stockOf(t, inv, "chem_1_shampoo"); got != 0 {
		t.Fatalf("shampoo stock = %v, want 0", got)
	}
	mats, _ := inv.Materials(ctx)
	for _, m := range mats {
		if m.ID == "mat_1_towels" && m.Quantity != 44 {
			t.Fatalf("towels = %v, want 44", m.Quantity)
		}
	}
	tools, _ := inv.Tools(ctx)
	if len(tools) != 2 {
		t.Fatalf("tool usage must not change the tool table")
	}
	hist, err := inv.UsageHistory(ctx, UsageFilter{Employee: []string{"alex"}})
	if err != nil || len(hist) != 2 {
		t.Fatalf("history for alex: %v %+v", err, hist)
	}
	all, _ := inv.UsageHistory(ctx, UsageFilter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 usage records, got %d", len(all))
	}
	h.clock.Advance(30 * 24 * time.Hour)
	if n, err := inv.PruneUsage(ctx, h.clock.Now().Add(-24*time.Hour)); err != nil || n != 3 {
		t.Fatalf("prune: %v %v", n, err)
	}
}

func TestLowInventoryAlertsOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	alerts := NewAlerts(h.env)
	inv := NewInventory(h.env, alerts)
	wax := func(q float64) domain.UsageEvent {
		return domain.UsageEvent{ChemicalID: "chem_3_wax", QuantityUsed: q, ServiceName: "Wax"}
	}

	res, err := inv.ApplyUsage(ctx, []domain.UsageEvent{wax(2)})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Low.Alerted || len(res.Low.Items) != 1 || res.Low.Items[0].ID != "chem_3_wax" {
		t.Fatalf("expected a low alert for wax, got %+v", res.Low)
	}
	if got := alertsOfType(t, alerts, AlertLowInventory); len(got) != 1 {
		t.Fatalf("expected 1 low_inventory alert, got %d", len(got))
	}

	report, err := inv.EvaluateLowInventory(ctx)
	if err != nil || report.Changed || report.Alerted {
		t.Fatalf("unchanged state re-alerted: %+v %v", report, err)
	}
	if got := alertsOfType(t, alerts, AlertLowInventory); len(got) != 1 {
		t.Fatalf("expected still 1 alert, got %d", len(got))
	}

	if _, err := inv.ApplyUsage(ctx, []domain.UsageEvent{wax(0.5)}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := alertsOfType(t, alerts, AlertLowInventory); len(got) != 2 {
		t.Fatalf("a quantity change inside the low set should alert again, got %d", len(got))
	}

	// restocking clears the set without alerting
	if _, err := inv.SaveChemical(ctx, Patch{"id": "chem_3_wax", "currentStock": 10}); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if got := alertsOfType(t, alerts, AlertLowInventory); len(got) != 2 {
		t.Fatalf("restock should not alert, got %d", len(got))
	}
}

func TestSaveChemicalRejectsNegativeStock(t *testing.T) {
	h := newHarness(t)
	inv := NewInventory(h.env, nil)
	if _, err := inv.SaveChemical(context.Background(), Patch{"name": "Bad", "currentStock": -1}); domain.CodeOf(err) != domain.CodeInvalidRequest {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestLowHashIsOrderIndependent(t *testing.T) {
	a := []LowItem{{ID: "a", Quantity: 1}, {ID: "b", Quantity: 2.5}}
	b := []LowItem{{ID: "b", Quantity: 2.5}, {ID: "a", Quantity: 1}}
	if LowHash(a) != LowHash(b) {
		t.Fatalf("hash depends on order")
	}
	b[0].Quantity = 2
	if LowHash(a) == LowHash(b) {
		t.Fatalf("hash ignores quantity")
	}
}
