package repo

import (
	"context"
	"strings"

	"detailcrm/pkg/domain"
)

// Customers is the customer repository.
type Customers struct {
	table  *Table[domain.Customer]
	alerts *Alerts
}

// NewCustomers builds the customer repository.
func NewCustomers(env Env, alerts *Alerts) *Customers {
	return &Customers{
		table: NewTable(env, domain.KeyCustomers, "customer", "c",
			func(c domain.Customer) string { return c.ID },
			WithValidator(func(_ []domain.Customer, idx int, c domain.Customer) error {
				if idx < 0 && strings.TrimSpace(c.Name) == "" {
					return domain.Invalid("customer name is required")
				}
				return nil
			})),
		alerts: alerts,
	}
}

// List returns every customer.
func (r *Customers) List(ctx context.Context) ([]domain.Customer, error) {
	return r.table.List(ctx)
}

// Find returns a customer by id.
func (r *Customers) Find(ctx context.Context, id string) (domain.Customer, bool, error) {
	return r.table.Find(ctx, id)
}

// Search matches q case-insensitively against name, phone and email. An
// empty query returns everyone.
func (r *Customers) Search(ctx context.Context, q string) ([]domain.Customer, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return rows, nil
	}
	out := []domain.Customer{}
	for _, c := range rows {
		hay := strings.ToLower(c.Name + " " + c.Phone + " " + c.Email)
		if strings.Contains(hay, q) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Upsert saves a customer; creating one raises a customer_added alert.
func (r *Customers) Upsert(ctx context.Context, patch Patch) (domain.Customer, error) {
	c, created, err := r.table.Upsert(ctx, patch)
	if err != nil {
		return domain.Customer{}, err
	}
	if created && !c.IsStaticMock {
		r.alerts.Notify(ctx, AlertInput{
			Type:       AlertCustomerAdded,
			Message:    "New customer: " + c.Name,
			Source:     "customers",
			RecordType: "customer",
			Payload:    map[string]string{"id": c.ID, "name": c.Name},
		})
	}
	return c, nil
}

// Remove deletes a customer. Invoices referencing it are left alone.
func (r *Customers) Remove(ctx context.Context, id string) (bool, error) {
	return r.table.Remove(ctx, id)
}

// RemoveMock deletes demo rows.
func (r *Customers) RemoveMock(ctx context.Context) (int, error) {
	return r.table.RemoveWhere(ctx, func(c domain.Customer) bool { return c.IsStaticMock })
}
