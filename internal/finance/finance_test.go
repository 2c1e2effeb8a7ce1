package finance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"detailcrm/pkg/domain"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestUnpaidJobMakesEmployeeDueUntilPaid(t *testing.T) {
	in := Ledger{
		Employees: []domain.Employee{{ID: "e_1", Name: "Alex", Email: "alex@example.com"}},
		Jobs:      []domain.CompletedJob{{ID: "j_1", Employee: "Alex", Revenue: 120}},
	}
	if got := DueCount(in, now); got != 1 {
		t.Fatalf("expected 1 due employee, got %d", got)
	}
	if got := DueTotal(in, now).StringFixed(2); got != "120.00" {
		t.Fatalf("expected 120.00, got %s", got)
	}

	in.Entries = append(in.Entries, domain.PayrollEntry{
		ID: "p_1", Employee: "Alex", Amount: 120, Date: now.Format("2006-01-02"), Status: domain.LedgerPaid,
	})
	if got := DueCount(in, now); got != 0 {
		t.Fatalf("expected 0 due after payment, got %d", got)
	}
	if got := DueTotal(in, now); !got.IsZero() {
		t.Fatalf("expected zero total after payment, got %s", got)
	}
}

func TestDueRules(t *testing.T) {
	recent := now.Add(-3 * 24 * time.Hour)
	old := now.Add(-10 * 24 * time.Hour)
	for _, tc := range []struct {
		name    string
		lastPd  *time.Time
		entries []domain.PayrollEntry
		want    bool
	}{
		{"never paid", nil, nil, true},
		{"paid long ago", &old, nil, true},
		{"lastPaid within period", &recent, nil, false},
		{"paid entry within period", nil, []domain.PayrollEntry{{Employee: "sam", Status: domain.LedgerPaid, Date: recent.Format(time.RFC3339)}}, false},
		{"paid entry too old", nil, []domain.PayrollEntry{{Employee: "Sam", Status: domain.LedgerPaid, Date: old.Format("2006-01-02")}}, true},
		{"pending entry does not count as paid", nil, []domain.PayrollEntry{{Employee: "Sam", Status: domain.LedgerPending, Date: recent.Format("2006-01-02")}}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			in := Ledger{Employees: []domain.Employee{{Name: "Sam", LastPaid: tc.lastPd}}, Entries: tc.entries}
			if got := DueCount(in, now) == 1; got != tc.want {
				t.Fatalf("due=%v want %v", got, tc.want)
			}
		})
	}
}

func TestOwedCombinesJobsPendingAndAdjustments(t *testing.T) {
	in := Ledger{
		Employees: []domain.Employee{{Name: "Jordan", Email: "jordan@example.com"}},
		Jobs: []domain.CompletedJob{
			{Employee: "Jordan", Revenue: 100.10},
			{Employee: "jordan@example.com", Revenue: 50},
			{Employee: "Jordan", Revenue: 999, Paid: true},
		},
		Entries: []domain.PayrollEntry{
			{Employee: "Jordan", Amount: 25.20, Status: domain.LedgerPending},
			{Employee: "Jordan", Amount: 500, Status: domain.LedgerPaid, Date: "2020-01-01"},
			{Employee: "Jordan", Amount: 70, Status: domain.LedgerSettled},
		},
		Adjustments: map[string]float64{"JORDAN@example.com": 10.30},
	}
	if got := Owed(in, "Jordan"); !got.Equal(decimal.RequireFromString("165")) {
		t.Fatalf("expected 165, got %s", got)
	}
	in.Adjustments["Jordan"] = 1000
	if got := Owed(in, "jordan"); !got.IsZero() {
		t.Fatalf("expected floor at zero, got %s", got)
	}
	if got := Owed(in, "nobody"); !got.IsZero() {
		t.Fatalf("unknown employee owes nothing, got %s", got)
	}
}

func TestRosterIncludesUnlistedJobOwners(t *testing.T) {
	in := Ledger{Jobs: []domain.CompletedJob{{Employee: "Casey", Revenue: 80}}}
	dues := DueEmployees(in, now)
	if len(dues) != 1 || dues[0].Employee != "Casey" || dues[0].Owed.StringFixed(2) != "80.00" {
		t.Fatalf("unexpected dues %+v", dues)
	}
}

func TestProfitLossReport(t *testing.T) {
	invoices := []domain.Invoice{
		{Total: 200, PaidAmount: 200, PaymentStatus: domain.PaymentPaid, Date: "2025-06-01"},
		{Total: 150, PaidAmount: 50, PaymentStatus: domain.PaymentPartial, Date: "2025-06-02"},
		{Total: 90, PaymentStatus: domain.PaymentPaid, Date: "2025-06-03"},
		{Total: 500, PaidAmount: 500, PaymentStatus: domain.PaymentPaid, Date: "2025-05-01"},
	}
	expenses := []domain.Expense{{Amount: 40, Date: "2025-06-05"}, {Amount: 1000, Date: "2024-01-01"}}
	entries := []domain.PayrollEntry{
		{Amount: 100, Status: domain.LedgerPaid, Date: "2025-06-07"},
		{Amount: 300, Status: domain.LedgerPending, Date: "2025-06-07"},
		{Amount: 60, Status: domain.LedgerSettled, Date: "2025-06-07"},
	}
	period := Period{From: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)}
	r := Report(invoices, expenses, entries, period)
	if r.Invoices != 3 {
		t.Fatalf("expected 3 invoices in period, got %d", r.Invoices)
	}
	if r.Revenue.StringFixed(2) != "340.00" || r.Receivable.StringFixed(2) != "100.00" {
		t.Fatalf("unexpected revenue/receivable %s %s", r.Revenue, r.Receivable)
	}
	if r.Net.StringFixed(2) != "200.00" {
		t.Fatalf("expected net 200.00, got %s", r.Net)
	}
	if all := Report(invoices, expenses, entries, Period{}); all.Invoices != 4 {
		t.Fatalf("open period should include everything, got %d", all.Invoices)
	}
}
