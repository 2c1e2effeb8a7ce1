package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"detailcrm/internal/finance"
	"detailcrm/pkg/domain"
)

// Employees is the payroll roster (company-employees).
type Employees struct {
	*Table[domain.Employee]
	env Env
}

// NewEmployees builds the roster repository.
func NewEmployees(env Env) *Employees {
	return &Employees{
		env: env,
		Table: NewTable(env, domain.KeyEmployees, "employee", "emp",
			func(e domain.Employee) string { return e.ID }),
	}
}

// Resolve finds an employee by id, name or email.
func (r *Employees) Resolve(ctx context.Context, ref string) (domain.Employee, bool, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return domain.Employee{}, false, err
	}
	ref = strings.TrimSpace(ref)
	for _, e := range rows {
		if e.ID == ref || strings.EqualFold(e.Name, ref) || (e.Email != "" && strings.EqualFold(e.Email, ref)) {
			return e, true, nil
		}
	}
	return domain.Employee{}, false, nil
}

// MarkPaid stamps lastPaid on the employee referenced by name or email.
func (r *Employees) MarkPaid(ctx context.Context, ref string, at time.Time) (bool, error) {
	e, ok, err := r.Resolve(ctx, ref)
	if err != nil || !ok {
		return false, err
	}
	_, err = r.Update(ctx, e.ID, Patch{"lastPaid": at.UTC()})
	return err == nil, err
}

// Invoices is the invoice table.
type Invoices struct{ *Table[domain.Invoice] }

// NewInvoices builds the invoice repository.
func NewInvoices(env Env) *Invoices {
	return &Invoices{NewTable(env, domain.KeyInvoices, "invoice", "inv",
		func(i domain.Invoice) string { return i.ID },
		WithValidator(func(_ []domain.Invoice, _ int, i domain.Invoice) error {
			switch i.PaymentStatus {
			case "", domain.PaymentPaid, domain.PaymentUnpaid, domain.PaymentPartial:
				return nil
			}
			return domain.Invalid("unknown payment status %q", i.PaymentStatus)
		}))}
}

// RemoveMock deletes demo invoices.
func (r *Invoices) RemoveMock(ctx context.Context) (int, error) {
	return r.RemoveWhere(ctx, func(i domain.Invoice) bool { return i.IsStaticMock })
}

// Expenses is the expense table.
type Expenses struct{ *Table[domain.Expense] }

// NewExpenses builds the expense repository.
func NewExpenses(env Env) *Expenses {
	return &Expenses{NewTable(env, domain.KeyExpenses, "expense", "exp",
		func(e domain.Expense) string { return e.ID })}
}

// Bookings is the appointment table.
type Bookings struct {
	*Table[domain.Booking]
	alerts *Alerts
}

// NewBookings builds the booking repository.
func NewBookings(env Env, alerts *Alerts) *Bookings {
	return &Bookings{
		Table: NewTable(env, domain.KeyBookings, "booking", "bk",
			func(b domain.Booking) string { return b.ID },
			WithValidator(func(_ []domain.Booking, idx int, b domain.Booking) error {
				if idx < 0 && strings.TrimSpace(b.Date) == "" {
					return domain.Invalid("booking date is required")
				}
				return nil
			})),
		alerts: alerts,
	}
}

// Save upserts a booking; new bookings start pending and raise an alert.
func (r *Bookings) Save(ctx context.Context, patch Patch) (domain.Booking, error) {
	if patch.ID() == "" && patch.String("status") == "" {
		patch["status"] = "pending"
	}
	b, created, err := r.Upsert(ctx, patch)
	if err != nil {
		return b, err
	}
	if created {
		r.alerts.Notify(ctx, AlertInput{
			Type:       AlertBookingCreated,
			Message:    "New booking: " + b.CustomerName + " on " + b.Date,
			Source:     "bookings",
			RecordType: "booking",
			Payload:    map[string]string{"id": b.ID, "date": b.Date},
		})
	}
	return b, nil
}

// Tasks is the to-do table.
type Tasks struct{ *Table[domain.Task] }

// NewTasks builds the task repository.
func NewTasks(env Env) *Tasks {
	return &Tasks{NewTable(env, domain.KeyTasks, "task", "task",
		func(t domain.Task) string { return t.ID })}
}

// Coupons is the discount-code table. Codes are unique regardless of case.
type Coupons struct {
	*Table[domain.Coupon]
	env Env
}

// NewCoupons builds the coupon repository.
func NewCoupons(env Env) *Coupons {
	return &Coupons{
		env: env,
		Table: NewTable(env, domain.KeyCoupons, "coupon", "cpn",
			func(c domain.Coupon) string { return c.ID },
			WithValidator(func(rows []domain.Coupon, idx int, c domain.Coupon) error {
				if strings.TrimSpace(c.Code) == "" {
					return domain.Invalid("coupon code is required")
				}
				for i, other := range rows {
					if i != idx && strings.EqualFold(other.Code, c.Code) {
						return &domain.Error{Code: domain.CodeDuplicateCode, Entity: "coupon", ID: c.Code}
					}
				}
				return nil
			})),
	}
}

// Save upserts a coupon with its code upper-cased.
func (r *Coupons) Save(ctx context.Context, patch Patch) (domain.Coupon, error) {
	if code := patch.String("code"); code != "" {
		patch["code"] = strings.ToUpper(code)
	}
	if _, ok := patch["active"]; !ok && patch.ID() == "" {
		patch["active"] = true
	}
	c, _, err := r.Upsert(ctx, patch)
	return c, err
}

// Validate returns the active, unexpired coupon for code.
func (r *Coupons) Validate(ctx context.Context, code string) (domain.Coupon, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return domain.Coupon{}, err
	}
	for _, c := range rows {
		if !strings.EqualFold(c.Code, strings.TrimSpace(code)) {
			continue
		}
		if !c.Active {
			return domain.Coupon{}, domain.Invalid("coupon %s is inactive", c.Code)
		}
		if exp, ok := finance.ParseDate(c.ExpiresAt); ok && r.env.now().After(exp.Add(24*time.Hour)) {
			return domain.Coupon{}, domain.Invalid("coupon %s expired", c.Code)
		}
		return c, nil
	}
	return domain.Coupon{}, domain.NotFound("coupon", code)
}

// Emails is the simulated outbound mail log.
type Emails struct {
	env    Env
	table  *Table[domain.EmailRecord]
	alerts *Alerts
}

// NewEmails builds the outbox repository.
func NewEmails(env Env, alerts *Alerts) *Emails {
	return &Emails{
		env: env,
		table: NewTable(env, domain.KeyEmailOutbox, "email", "mail",
			func(e domain.EmailRecord) string { return e.ID }, WithoutTimestamps[domain.EmailRecord]()),
		alerts: alerts,
	}
}

// Send records an email instead of delivering it.
func (r *Emails) Send(ctx context.Context, to, subject, body string) (domain.EmailRecord, error) {
	if strings.TrimSpace(subject) == "" && strings.TrimSpace(body) == "" {
		return domain.EmailRecord{}, domain.Invalid("subject or body is required")
	}
	if strings.TrimSpace(to) == "" {
		to = "admin"
	}
	rec := domain.EmailRecord{ID: "mail_" + uuid.NewString(), To: to, Subject: subject, Body: body, SentAt: r.env.now()}
	err := r.table.Mutate(ctx, func(rows []domain.EmailRecord) ([]domain.EmailRecord, error) {
		return append(rows, rec), nil
	})
	if err != nil {
		return domain.EmailRecord{}, err
	}
	r.alerts.Notify(ctx, AlertInput{
		Type:       AlertEmailQueued,
		Message:    "Email to " + to + ": " + subject,
		Source:     "email",
		RecordType: "email",
		Payload:    map[string]string{"id": rec.ID},
		Dedupe:     true,
	})
	return rec, nil
}

// List returns the outbox in send order.
func (r *Emails) List(ctx context.Context) ([]domain.EmailRecord, error) {
	return r.table.List(ctx)
}
