package repo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"detailcrm/internal/finance"
	"detailcrm/internal/kv"
	"detailcrm/pkg/domain"
)

// PayrollSave is a payout request. A zero Amount pays the current owed
// balance.
type PayrollSave struct {
	Employee    string  `json:"employee"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
}

// PayrollSaved is the outcome of a payout.
type PayrollSaved struct {
	Entry      domain.PayrollEntry `json:"entry"`
	JobsPaid   int                 `json:"jobsPaid"`
	MarkedPaid bool                `json:"markedPaid"`
}

// Payroll owns the ledger plus the completed-job and adjustment text items.
// Balances are derived through finance on every call.
type Payroll struct {
	env       Env
	history   *Table[domain.PayrollEntry]
	employees *Employees
	expenses  *Expenses
	invoices  *Invoices
	alerts    *Alerts

	// textMu serializes read-modify-write of the text-store items.
	textMu sync.Mutex
}

// NewPayroll builds the payroll repository.
func NewPayroll(env Env, employees *Employees, invoices *Invoices, expenses *Expenses, alerts *Alerts) *Payroll {
	return &Payroll{
		env: env,
		history: NewTable(env, domain.KeyPayrollHistory, "payroll_entry", "pay",
			func(p domain.PayrollEntry) string { return p.ID },
			WithoutTimestamps[domain.PayrollEntry](),
			WithValidator(func(_ []domain.PayrollEntry, _ int, p domain.PayrollEntry) error {
				switch p.Status {
				case domain.LedgerPaid, domain.LedgerPending, domain.LedgerSettled:
				default:
					return domain.Invalid("unknown ledger status %q", p.Status)
				}
				if strings.TrimSpace(p.Employee) == "" {
					return domain.Invalid("employee is required")
				}
				return nil
			})),
		employees: employees,
		invoices:  invoices,
		expenses:  expenses,
		alerts:    alerts,
	}
}

// History returns the ledger in write order.
func (r *Payroll) History(ctx context.Context) ([]domain.PayrollEntry, error) {
	return r.history.List(ctx)
}

// AddEntry appends a ledger row; status defaults to Pending.
func (r *Payroll) AddEntry(ctx context.Context, patch Patch) (domain.PayrollEntry, error) {
	if patch.String("status") == "" {
		patch["status"] = string(domain.LedgerPending)
	}
	if patch.String("date") == "" {
		patch["date"] = r.env.now().Format(time.RFC3339)
	}
	delete(patch, "id")
	e, _, err := r.history.Upsert(ctx, patch)
	return e, err
}

// UpdateEntry edits a ledger row.
func (r *Payroll) UpdateEntry(ctx context.Context, id string, patch Patch) (domain.PayrollEntry, error) {
	return r.history.Update(ctx, id, patch)
}

// DeleteEntry removes a ledger row.
func (r *Payroll) DeleteEntry(ctx context.Context, id string) (bool, error) {
	return r.history.Remove(ctx, id)
}

// Jobs returns the completed jobs.
func (r *Payroll) Jobs() ([]domain.CompletedJob, error) {
	jobs := []domain.CompletedJob{}
	if _, err := r.env.Text.GetJSON(domain.TextCompletedJobs, &jobs); err != nil {
		return []domain.CompletedJob{}, err
	}
	return jobs, nil
}

// RecordJob upserts a completed job by id.
func (r *Payroll) RecordJob(ctx context.Context, patch Patch) (domain.CompletedJob, error) {
	if patch.ID() == "" && patch.String("employee") == "" {
		return domain.CompletedJob{}, domain.Invalid("employee is required")
	}
	r.textMu.Lock()
	defer r.textMu.Unlock()
	jobs, err := r.Jobs()
	if err != nil {
		return domain.CompletedJob{}, err
	}
	id := patch.ID()
	idx := -1
	for i := range jobs {
		if id != "" && jobs[i].ID == id {
			idx = i
			break
		}
	}
	base := map[string]any{}
	if idx >= 0 {
		if base, err = toMap(jobs[idx]); err != nil {
			return domain.CompletedJob{}, err
		}
	} else if id == "" {
		id = NewID("job", r.env.now())
	}
	for k, v := range patch {
		base[k] = v
	}
	base["id"] = id
	if d, _ := base["date"].(string); d == "" {
		base["date"] = r.env.now().Format(time.RFC3339)
	}
	job, err := fromMap[domain.CompletedJob](base)
	if err != nil {
		return job, err
	}
	if idx >= 0 {
		jobs[idx] = job
	} else {
		jobs = append(jobs, job)
	}
	if err := r.env.Text.SetJSON(ctx, domain.TextCompletedJobs, jobs); err != nil {
		return job, domain.StorageFailure(err)
	}
	return job, nil
}

// Adjustments returns the adjustment map keyed by employee name or email.
func (r *Payroll) Adjustments() (map[string]float64, error) {
	adj := map[string]float64{}
	if _, err := r.env.Text.GetJSON(domain.TextPayrollAdjustments, &adj); err != nil {
		return map[string]float64{}, err
	}
	return adj, nil
}

// SetAdjustment records a deduction for ref. A zero amount clears it.
func (r *Payroll) SetAdjustment(ctx context.Context, ref string, amount float64) (map[string]float64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.Invalid("employee is required")
	}
	r.textMu.Lock()
	defer r.textMu.Unlock()
	adj, err := r.Adjustments()
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		delete(adj, ref)
	} else {
		adj[ref] = amount
	}
	if err := r.env.Text.SetJSON(ctx, domain.TextPayrollAdjustments, adj); err != nil {
		return nil, domain.StorageFailure(err)
	}
	return adj, nil
}

// Ledger gathers the current finance inputs.
func (r *Payroll) Ledger(ctx context.Context) (finance.Ledger, error) {
	var l finance.Ledger
	var err error
	if l.Employees, err = r.employees.List(ctx); err != nil {
		return l, err
	}
	if l.Entries, err = r.History(ctx); err != nil {
		return l, err
	}
	if l.Jobs, err = r.Jobs(); err != nil {
		return l, err
	}
	l.Adjustments, err = r.Adjustments()
	return l, err
}

// Balances returns every employee's derived balance.
func (r *Payroll) Balances(ctx context.Context) ([]finance.Due, error) {
	l, err := r.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	return finance.Balances(l, r.env.now()), nil
}

// DueCount is the number of employees currently due.
func (r *Payroll) DueCount(ctx context.Context) (int, error) {
	l, err := r.Ledger(ctx)
	if err != nil {
		return 0, err
	}
	return finance.DueCount(l, r.env.now()), nil
}

// DueTotal sums the owed balances of due employees.
func (r *Payroll) DueTotal(ctx context.Context) (decimal.Decimal, int, error) {
	l, err := r.Ledger(ctx)
	if err != nil {
		return decimal.Zero, 0, err
	}
	now := r.env.now()
	return finance.DueTotal(l, now), finance.DueCount(l, now), nil
}

// ProfitLoss reports the period's income statement.
func (r *Payroll) ProfitLoss(ctx context.Context, p finance.Period) (finance.ProfitLoss, error) {
	invoices, err := r.invoices.List(ctx)
	if err != nil {
		return finance.ProfitLoss{}, err
	}
	expenses, err := r.expenses.List(ctx)
	if err != nil {
		return finance.ProfitLoss{}, err
	}
	entries, err := r.History(ctx)
	if err != nil {
		return finance.ProfitLoss{}, err
	}
	return finance.Report(invoices, expenses, entries, p), nil
}

// Save pays an employee: it appends a Paid ledger row, marks their pending
// rows Settled since the payout amount already covers them, settles their
// completed jobs, stamps lastPaid and clears their adjustments, then raises
// payroll_saved.
func (r *Payroll) Save(ctx context.Context, in PayrollSave) (PayrollSaved, error) {
	in.Employee = strings.TrimSpace(in.Employee)
	if in.Employee == "" {
		return PayrollSaved{}, domain.Invalid("employee is required")
	}
	if in.Amount < 0 {
		return PayrollSaved{}, domain.Invalid("amount must not be negative")
	}
	now := r.env.now()
	ref := []string{in.Employee}
	if e, ok, err := r.employees.Resolve(ctx, in.Employee); err != nil {
		return PayrollSaved{}, err
	} else if ok {
		ref = []string{e.Name, e.Email}
	}
	if in.Amount == 0 {
		l, err := r.Ledger(ctx)
		if err != nil {
			return PayrollSaved{}, err
		}
		in.Amount = finance.Owed(l, in.Employee).InexactFloat64()
	}
	if in.Type == "" {
		in.Type = "payout"
	}
	if in.Date == "" {
		in.Date = now.Format(time.RFC3339)
	}
	var out PayrollSaved
	entry, _, err := r.history.Upsert(ctx, Patch{
		"employee":    in.Employee,
		"amount":      in.Amount,
		"type":        in.Type,
		"description": in.Description,
		"date":        in.Date,
		"status":      string(domain.LedgerPaid),
	})
	if err != nil {
		return out, err
	}
	out.Entry = entry
	if err := r.history.Mutate(ctx, func(rows []domain.PayrollEntry) ([]domain.PayrollEntry, error) {
		changed := false
		for i := range rows {
			if rows[i].Status == domain.LedgerPending && matchesAny(rows[i].Employee, ref) {
				rows[i].Status = domain.LedgerSettled
				changed = true
			}
		}
		if !changed {
			return nil, kv.ErrSkip
		}
		return rows, nil
	}); err != nil {
		r.env.logger().Warn("settle pending entries failed", "employee", in.Employee, "error", err)
	}
	if out.MarkedPaid, err = r.employees.MarkPaid(ctx, in.Employee, now); err != nil {
		r.env.logger().Warn("stamp lastPaid failed", "employee", in.Employee, "error", err)
	}
	if out.JobsPaid, err = r.settle(ctx, ref); err != nil {
		r.env.logger().Warn("settle completed jobs failed", "employee", in.Employee, "error", err)
	}
	r.alerts.Notify(ctx, AlertInput{
		Type:       AlertPayrollSaved,
		Message:    fmt.Sprintf("Payroll saved for %s: $%s", in.Employee, decimal.NewFromFloat(in.Amount).StringFixed(2)),
		Source:     "payroll",
		RecordType: "payroll_entry",
		Payload:    map[string]any{"id": entry.ID, "employee": in.Employee, "amount": in.Amount},
		Dedupe:     true,
	})
	return out, nil
}

// settle marks ref's unpaid jobs paid and drops ref's adjustments.
func (r *Payroll) settle(ctx context.Context, refs []string) (int, error) {
	r.textMu.Lock()
	defer r.textMu.Unlock()
	jobs, err := r.Jobs()
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range jobs {
		if !jobs[i].Paid && matchesAny(jobs[i].Employee, refs) {
			jobs[i].Paid = true
			n++
		}
	}
	if n > 0 {
		if err := r.env.Text.SetJSON(ctx, domain.TextCompletedJobs, jobs); err != nil {
			return 0, err
		}
	}
	adj, err := r.Adjustments()
	if err != nil {
		return n, err
	}
	changed := false
	for k := range adj {
		if matchesAny(k, refs) {
			delete(adj, k)
			changed = true
		}
	}
	if changed {
		err = r.env.Text.SetJSON(ctx, domain.TextPayrollAdjustments, adj)
	}
	return n, err
}
