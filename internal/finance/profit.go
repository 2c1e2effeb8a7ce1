package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"detailcrm/pkg/domain"
)

// Period bounds a report. Zero bounds are open.
type Period struct {
	From time.Time
	To   time.Time
}

func (p Period) contains(date string) bool {
	if p.From.IsZero() && p.To.IsZero() {
		return true
	}
	at, ok := ParseDate(date)
	if !ok {
		return false
	}
	if !p.From.IsZero() && at.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && at.After(p.To) {
		return false
	}
	return true
}

// ProfitLoss is the derived income statement of a period.
type ProfitLoss struct {
	Revenue    decimal.Decimal `json:"revenue"`
	Receivable decimal.Decimal `json:"receivable"`
	Expenses   decimal.Decimal `json:"expenses"`
	Payroll    decimal.Decimal `json:"payroll"`
	Net        decimal.Decimal `json:"net"`
	Invoices   int             `json:"invoices"`
}

// Report computes collected revenue minus expenses minus paid payroll.
// Receivable is the unpaid remainder of the period's invoices.
func Report(invoices []domain.Invoice, expenses []domain.Expense, entries []domain.PayrollEntry, p Period) ProfitLoss {
	var out ProfitLoss
	for _, inv := range invoices {
		if !p.contains(inv.Date) {
			continue
		}
		out.Invoices++
		total := decimal.NewFromFloat(inv.Total)
		paid := decimal.NewFromFloat(inv.PaidAmount)
		if inv.PaymentStatus == domain.PaymentPaid && paid.IsZero() {
			paid = total
		}
		out.Revenue = out.Revenue.Add(paid)
		if rest := total.Sub(paid); rest.IsPositive() {
			out.Receivable = out.Receivable.Add(rest)
		}
	}
	for _, e := range expenses {
		if p.contains(e.Date) {
			out.Expenses = out.Expenses.Add(decimal.NewFromFloat(e.Amount))
		}
	}
	for _, e := range entries {
		if e.Status == domain.LedgerPaid && p.contains(e.Date) {
			out.Payroll = out.Payroll.Add(decimal.NewFromFloat(e.Amount))
		}
	}
	out.Net = out.Revenue.Sub(out.Expenses).Sub(out.Payroll)
	return out
}
