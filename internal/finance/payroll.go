// Package finance derives payroll and profit figures. Every caller that
// needs an owed balance, a due count or a profit figure goes through here;
// nothing in this package is stored or cached.
package finance

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"detailcrm/pkg/domain"
)

// PayPeriod is the interval after which an employee becomes due again.
const PayPeriod = 7 * 24 * time.Hour

// Ledger gathers the inputs of the due computation.
type Ledger struct {
	Employees   []domain.Employee
	Entries     []domain.PayrollEntry
	Jobs        []domain.CompletedJob
	Adjustments map[string]float64
}

// Due is one employee's derived balance.
type Due struct {
	Employee string          `json:"employee"`
	Email    string          `json:"email,omitempty"`
	Owed     decimal.Decimal `json:"owed"`
	IsDue    bool            `json:"isDue"`
}

type person struct {
	name     string
	email    string
	lastPaid *time.Time
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (p person) matches(ref string) bool {
	r := norm(ref)
	return r != "" && (r == norm(p.name) || (p.email != "" && r == norm(p.email)))
}

// people returns the employee roster plus anyone referenced by jobs or
// ledger entries who is missing from it.
func people(in Ledger) []person {
	var out []person
	known := func(ref string) bool {
		for _, p := range out {
			if p.matches(ref) {
				return true
			}
		}
		return false
	}
	for _, e := range in.Employees {
		if known(e.Name) || (e.Email != "" && known(e.Email)) {
			continue
		}
		out = append(out, person{name: e.Name, email: e.Email, lastPaid: e.LastPaid})
	}
	var refs []string
	for _, j := range in.Jobs {
		refs = append(refs, j.Employee)
	}
	for _, e := range in.Entries {
		refs = append(refs, e.Employee)
	}
	for _, ref := range refs {
		if strings.TrimSpace(ref) == "" || known(ref) {
			continue
		}
		out = append(out, person{name: ref})
	}
	return out
}

// ParseDate accepts YYYY-MM-DD or RFC 3339.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func paidRecently(p person, entries []domain.PayrollEntry, now time.Time) bool {
	for _, e := range entries {
		if e.Status != domain.LedgerPaid || !p.matches(e.Employee) {
			continue
		}
		at, ok := ParseDate(e.Date)
		if !ok {
			continue
		}
		if now.Sub(at) <= PayPeriod {
			return true
		}
	}
	return false
}

// isDue applies both conditions: no Paid entry within the pay period, and
// lastPaid older than the pay period (missing counts as due).
func isDue(p person, entries []domain.PayrollEntry, now time.Time) bool {
	if paidRecently(p, entries, now) {
		return false
	}
	return p.lastPaid == nil || now.Sub(*p.lastPaid) > PayPeriod
}

func owed(p person, in Ledger) decimal.Decimal {
	total := decimal.Zero
	for _, j := range in.Jobs {
		if !j.Paid && p.matches(j.Employee) {
			total = total.Add(decimal.NewFromFloat(j.Revenue))
		}
	}
	for _, e := range in.Entries {
		if e.Status == domain.LedgerPending && p.matches(e.Employee) {
			total = total.Add(decimal.NewFromFloat(e.Amount))
		}
	}
	for key, amount := range in.Adjustments {
		if p.matches(key) {
			total = total.Sub(decimal.NewFromFloat(amount))
		}
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Balances computes every employee's balance, sorted by name.
func Balances(in Ledger, now time.Time) []Due {
	ps := people(in)
	out := make([]Due, 0, len(ps))
	for _, p := range ps {
		out = append(out, Due{
			Employee: p.name,
			Email:    p.email,
			Owed:     owed(p, in),
			IsDue:    isDue(p, in.Entries, now),
		})
	}
	sort.Slice(out, func(i, j int) bool { return norm(out[i].Employee) < norm(out[j].Employee) })
	return out
}

// DueEmployees returns only the due balances.
func DueEmployees(in Ledger, now time.Time) []Due {
	var out []Due
	for _, d := range Balances(in, now) {
		if d.IsDue {
			out = append(out, d)
		}
	}
	return out
}

// DueCount is the number of due employees.
func DueCount(in Ledger, now time.Time) int { return len(DueEmployees(in, now)) }

// DueTotal sums the owed balance of due employees.
func DueTotal(in Ledger, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, d := range DueEmployees(in, now) {
		total = total.Add(d.Owed)
	}
	return total
}

// Owed returns the balance of the employee referenced by name or email,
// whether or not they are currently due.
func Owed(in Ledger, ref string) decimal.Decimal {
	for _, p := range people(in) {
		if p.matches(ref) {
			return owed(p, in)
		}
	}
	return decimal.Zero
}
