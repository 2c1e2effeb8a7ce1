package repo

import (
	"context"
	"strings"

	"detailcrm/pkg/domain"
)

// Checklists stores per-job checklists and forwards their consumables to
// the inventory.
type Checklists struct {
	table     *Table[domain.Checklist]
	inventory *Inventory
	alerts    *Alerts
}

// NewChecklists builds the checklist repository.
func NewChecklists(env Env, inv *Inventory, alerts *Alerts) *Checklists {
	return &Checklists{
		table: NewTable(env, domain.KeyChecklists, "checklist", "chk",
			func(c domain.Checklist) string { return c.ID }),
		inventory: inv,
		alerts:    alerts,
	}
}

// List returns every checklist.
func (r *Checklists) List(ctx context.Context) ([]domain.Checklist, error) {
	return r.table.List(ctx)
}

func complete(c domain.Checklist) bool {
	if len(c.Items) == 0 {
		return false
	}
	for _, it := range c.Items {
		if !it.Done {
			return false
		}
	}
	return true
}

// Save upserts a checklist. The transition to every item done raises one
// checklist_completed alert.
func (r *Checklists) Save(ctx context.Context, patch Patch) (domain.Checklist, error) {
	var wasComplete bool
	if id := patch.ID(); id != "" {
		prev, ok, err := r.table.Find(ctx, id)
		if err != nil {
			return domain.Checklist{}, err
		}
		wasComplete = ok && complete(prev)
	}
	c, _, err := r.table.Upsert(ctx, patch)
	if err != nil {
		return c, err
	}
	if complete(c) && !wasComplete {
		who := c.Employee
		if who == "" {
			who = "An employee"
		}
		r.alerts.Notify(ctx, AlertInput{
			Type:       AlertChecklistCompleted,
			Message:    who + " completed " + firstNonEmpty(c.ServiceName, "a checklist") + forCustomer(c.CustomerName),
			Source:     "checklist",
			RecordType: "checklist",
			Payload:    map[string]string{"id": c.ID, "employee": c.Employee},
			Dedupe:     true,
		})
	}
	return c, nil
}

// LinkCustomer attaches a customer to an existing checklist.
func (r *Checklists) LinkCustomer(ctx context.Context, id, customerID, customerName string) (domain.Checklist, error) {
	if strings.TrimSpace(customerID) == "" {
		return domain.Checklist{}, domain.Invalid("customerId is required")
	}
	patch := Patch{"customerId": customerID}
	if customerName != "" {
		patch["customerName"] = customerName
	}
	return r.table.Update(ctx, id, patch)
}

// RecordMaterials applies the consumables of a job to inventory,
// attributing each event to employee unless it names its own.
func (r *Checklists) RecordMaterials(ctx context.Context, employee, serviceName string, events []domain.UsageEvent) (UsageResult, error) {
	for i := range events {
		if events[i].Employee == "" {
			events[i].Employee = employee
		}
		if events[i].ServiceName == "" {
			events[i].ServiceName = serviceName
		}
	}
	return r.inventory.ApplyUsage(ctx, events)
}

// Remove deletes a checklist.
func (r *Checklists) Remove(ctx context.Context, id string) (bool, error) {
	return r.table.Remove(ctx, id)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func forCustomer(name string) string {
	if name == "" {
		return ""
	}
	return " for " + name
}
