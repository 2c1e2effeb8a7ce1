package repo

import (
	"context"
	"errors"
	"testing"

	"detailcrm/internal/finance"
	"detailcrm/pkg/domain"
)

func newPayroll(h *harness) (*Payroll, *Alerts) {
	alerts := NewAlerts(h.env)
	return NewPayroll(h.env, NewEmployees(h.env), NewInvoices(h.env), NewExpenses(h.env), alerts), alerts
}

func TestPayrollSaveSettlesDueBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	payroll, alerts := newPayroll(h)

	if _, err := payroll.RecordJob(ctx, Patch{"employee": "Alex", "revenue": 120, "service": "Full Detail"}); err != nil {
		t.Fatalf("record job: %v", err)
	}
	total, count, err := payroll.DueTotal(ctx)
	if err != nil {
		t.Fatalf("due total: %v", err)
	}
	if total.StringFixed(2) != "120.00" || count != 1 {
		t.Fatalf("due = %s/%d, want 120.00/1", total.StringFixed(2), count)
	}

	saved, err := payroll.Save(ctx, PayrollSave{Employee: "Alex"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Entry.Amount != 120 || saved.Entry.Status != domain.LedgerPaid || saved.JobsPaid != 1 {
		t.Fatalf("unexpected save result %+v", saved)
	}
	total, count, err = payroll.DueTotal(ctx)
	if err != nil || !total.IsZero() || count != 0 {
		t.Fatalf("after save due = %s/%d %v, want 0/0", total, count, err)
	}
	if got := alertsOfType(t, alerts, AlertPayrollSaved); len(got) != 1 {
		t.Fatalf("expected one payroll_saved alert, got %d", len(got))
	}
}

func TestPayrollSaveSettlesPendingAndAdjustments(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	payroll, _ := newPayroll(h)
	employees := payroll.employees
	if _, _, err := employees.Upsert(ctx, Patch{"name": "Sam", "email": "sam@example.com"}); err != nil {
		t.Fatalf("employee: %v", err)
	}
	if _, err := payroll.AddEntry(ctx, Patch{"employee": "sam@example.com", "amount": 80, "type": "bonus"}); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if _, err := payroll.SetAdjustment(ctx, "Sam", 20); err != nil {
		t.Fatalf("adjustment: %v", err)
	}
	saved, err := payroll.Save(ctx, PayrollSave{Employee: "Sam"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Entry.Amount != 60 || !saved.MarkedPaid {
		t.Fatalf("expected a 60 payout stamped on the roster, got %+v", saved)
	}
	hist, _ := payroll.History(ctx)
	for _, e := range hist {
		want := domain.LedgerSettled
		if e.ID == saved.Entry.ID {
			want = domain.LedgerPaid
		}
		if e.Status != want {
			t.Fatalf("entry %s is %s, want %s", e.ID, e.Status, want)
		}
	}
	pl, err := payroll.ProfitLoss(ctx, finance.Period{})
	if err != nil {
		t.Fatalf("profit/loss: %v", err)
	}
	if pl.Payroll.StringFixed(2) != "60.00" || pl.Net.StringFixed(2) != "-60.00" {
		t.Fatalf("settled bonus counted twice: payroll %s net %s", pl.Payroll.StringFixed(2), pl.Net.StringFixed(2))
	}
	if adj, _ := payroll.Adjustments(); len(adj) != 0 {
		t.Fatalf("adjustments not cleared: %v", adj)
	}
	e, ok, _ := employees.Resolve(ctx, "Sam")
	if !ok || e.LastPaid == nil || !e.LastPaid.Equal(h.clock.Now()) {
		t.Fatalf("lastPaid not stamped: %+v", e)
	}
}

func TestPayrollValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	payroll, _ := newPayroll(h)
	if _, err := payroll.Save(ctx, PayrollSave{}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
	if _, err := payroll.Save(ctx, PayrollSave{Employee: "Alex", Amount: -5}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
	if _, err := payroll.AddEntry(ctx, Patch{"employee": "Alex", "status": "Void"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid_request for unknown status, got %v", err)
	}
}
