package repo

import (
	"context"
	"fmt"
	"time"
)

// DemoResult counts rows touched by the demo injector.
type DemoResult struct {
	Customers int `json:"customers"`
	Invoices  int `json:"invoices"`
}

var demoCustomers = []Patch{
	{"name": "Jordan Demo", "phone": "555-0101", "email": "jordan@example.com", "vehicle": "Toyota", "model": "Camry", "year": "2019", "vehicleType": "midsize"},
	{"name": "Riley Demo", "phone": "555-0102", "vehicle": "Ford", "model": "F-150", "year": "2021", "vehicleType": "truck"},
	{"name": "Casey Demo", "phone": "555-0103", "vehicle": "BMW", "model": "M3", "year": "2022", "vehicleType": "luxury"},
}

// Demo injects and clears sample rows flagged isStaticMock. Real rows are
// never touched.
type Demo struct {
	env       Env
	customers *Customers
	invoices  *Invoices
}

// NewDemo builds the demo injector.
func NewDemo(env Env, customers *Customers, invoices *Invoices) *Demo {
	return &Demo{env: env, customers: customers, invoices: invoices}
}

// Inject adds one demo customer and one invoice per sample.
func (d *Demo) Inject(ctx context.Context) (DemoResult, error) {
	var res DemoResult
	now := d.env.now()
	for i, p := range demoCustomers {
		patch := Patch{"isStaticMock": true, "services": []string{"full-detail"}}
		for k, v := range p {
			patch[k] = v
		}
		c, err := d.customers.Upsert(ctx, patch)
		if err != nil {
			return res, err
		}
		res.Customers++
		total := 150.0 + float64(i)*50
		status, paid := "paid", total
		if i%2 == 1 {
			status, paid = "unpaid", 0
		}
		_, _, err = d.invoices.Upsert(ctx, Patch{
			"customerId":    c.ID,
			"customerName":  c.Name,
			"services":      []map[string]any{{"name": "Full Detail", "price": total}},
			"total":         total,
			"paidAmount":    paid,
			"paymentStatus": status,
			"invoiceNumber": fmt.Sprintf("DEMO-%03d", i+1),
			"date":          now.AddDate(0, 0, -i).Format(time.RFC3339),
			"isStaticMock":  true,
		})
		if err != nil {
			return res, err
		}
		res.Invoices++
	}
	return res, nil
}

// Clear removes every demo row.
func (d *Demo) Clear(ctx context.Context) (DemoResult, error) {
	var res DemoResult
	var err error
	if res.Customers, err = d.customers.RemoveMock(ctx); err != nil {
		return res, err
	}
	res.Invoices, err = d.invoices.RemoveMock(ctx)
	return res, err
}
