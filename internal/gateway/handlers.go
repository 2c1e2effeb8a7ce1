package gateway

import (
	"context"
	"strings"
	"time"

	"detailcrm/internal/archive"
	"detailcrm/internal/finance"
	"detailcrm/internal/repo"
	"detailcrm/internal/snapshot"
	"detailcrm/pkg/domain"
)

type handler struct {
	run   func(ctx context.Context, g *Gateway, c *call) (any, error)
	read  bool
	empty func() any
}

func emptyList() any { return []any{} }

func emptyObject() any { return map[string]any{} }

func read(fn func(ctx context.Context, g *Gateway, c *call) (any, error)) handler {
	return handler{run: fn, read: true, empty: emptyList}
}

func readObject(fn func(ctx context.Context, g *Gateway, c *call) (any, error), empty func() any) handler {
	return handler{run: fn, read: true, empty: empty}
}

func write(fn func(ctx context.Context, g *Gateway, c *call) (any, error)) handler {
	return handler{run: fn}
}

// withPatch adapts a patch-consuming write.
func withPatch(fn func(ctx context.Context, g *Gateway, c *call, p repo.Patch) (any, error)) handler {
	return write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		p, err := c.patch()
		if err != nil {
			return nil, err
		}
		return fn(ctx, g, c, p)
	})
}

func removed(ok bool, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "removed": ok}, nil
}

func unavailable(what string) error {
	return &domain.Error{Code: domain.CodeInternal, Entity: what, ID: "unconfigured"}
}

var handlers = map[Op]handler{
	OpCustomersList: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Customers.List(ctx)
	}),
	OpCustomersSearch: read(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return g.svc.Customers.Search(ctx, c.query.Get("q"))
	}),
	OpCustomersUpsert: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		cst, err := g.svc.Customers.Upsert(ctx, p)
		return ok("customer", cst), err
	}),
	OpCustomersDelete: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Customers.Remove(ctx, c.param("id")))
	}),

	OpUsersList: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Users.List(ctx)
	}),
	OpUsersCreate: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		in, err := decode[repo.NewUser](c.body)
		if err != nil {
			return nil, err
		}
		u, err := g.svc.Users.Create(ctx, in)
		return ok("user", u), err
	}),
	OpUsersSetRole: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		in, err := decode[struct {
			Role domain.Role `json:"role"`
		}](c.body)
		if err != nil {
			return nil, err
		}
		u, err := g.svc.Users.SetRole(ctx, c.param("id"), in.Role)
		return ok("user", u), err
	}),
	OpUsersImpersonate: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		if g.svc.Session == nil {
			return nil, unavailable("session")
		}
		u, err := g.svc.Session.Impersonate(ctx, c.param("id"))
		return ok("user", u), err
	}),
	OpUsersDelete: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Users.Remove(ctx, c.param("id")))
	}),

	OpVehicleTypesList: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Vehicles.List(ctx)
	}),
	OpVehicleTypesLive: readObject(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Vehicles.LiveSnapshot(ctx)
	}, func() any { return domain.VehicleTypesSnapshot{VehicleTypes: []domain.VehicleType{}} }),
	OpVehicleTypesCreate: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		vt, err := g.svc.Vehicles.Create(ctx, p)
		return ok("vehicleType", vt), err
	}),
	OpVehicleTypesUpdate: withPatch(func(ctx context.Context, g *Gateway, c *call, p repo.Patch) (any, error) {
		vt, err := g.svc.Vehicles.Update(ctx, c.param("id"), p)
		return ok("vehicleType", vt), err
	}),
	OpVehicleTypesDelete: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Vehicles.Delete(ctx, c.param("id")))
	}),

	OpPackagesFullSync: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		doc, err := decode[domain.PackagesSnapshot](c.body)
		if err != nil {
			return nil, err
		}
		v, err := g.svc.Pricing.FullSync(ctx, doc)
		return ok("version", v), err
	}),
	OpPackagesLive: readObject(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Pricing.Latest(ctx)
	}, emptyObject),
	OpPricingMultiplier: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		m, err := decode[snapshot.Multiplier](c.body)
		if err != nil {
			return nil, err
		}
		res, err := g.svc.Pricing.ApplyMultiplier(ctx, m)
		return ok("count", res.Count, "version", res.Version), err
	}),

	OpFAQsList: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.FAQs.List(ctx)
	}),
	OpFAQsCreate: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		f, err := g.svc.FAQs.Save(ctx, p)
		return ok("faq", f), err
	}),
	OpFAQsUpdate: withPatch(func(ctx context.Context, g *Gateway, c *call, p repo.Patch) (any, error) {
		f, err := g.svc.FAQs.Update(ctx, c.param("id"), p)
		return ok("faq", f), err
	}),
	OpFAQsDelete: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.FAQs.Remove(ctx, c.param("id")))
	}),

	OpContactGet: readObject(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Contact.Get(ctx)
	}, emptyObject),
	OpContactUpdate: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		info, err := g.svc.Contact.Update(ctx, p)
		return ok("contact", info), err
	}),

	OpAboutList: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.About.List(ctx)
	}),
	OpAboutCreate: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		a, err := g.svc.About.Save(ctx, p)
		return ok("section", a), err
	}),
	OpAboutUpdate: withPatch(func(ctx context.Context, g *Gateway, c *call, p repo.Patch) (any, error) {
		a, err := g.svc.About.Update(ctx, c.param("id"), p)
		return ok("section", a), err
	}),
	OpAboutDelete: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.About.Remove(ctx, c.param("id")))
	}),

	OpInventoryChemicals: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Inventory.Chemicals(ctx)
	}),
	OpInventorySaveChem: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		row, err := g.svc.Inventory.SaveChemical(ctx, p)
		return ok("chemical", row), err
	}),
	OpInventoryDelChem: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Inventory.RemoveChemical(ctx, c.param("id")))
	}),
	OpInventoryMaterials: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Inventory.Materials(ctx)
	}),
	OpInventorySaveMat: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		row, err := g.svc.Inventory.SaveMaterial(ctx, p)
		return ok("material", row), err
	}),
	OpInventoryDelMat: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Inventory.RemoveMaterial(ctx, c.param("id")))
	}),
	OpInventoryTools: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Inventory.Tools(ctx)
	}),
	OpInventorySaveTool: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		row, err := g.svc.Inventory.SaveTool(ctx, p)
		return ok("tool", row), err
	}),
	OpInventoryDelTool: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Inventory.RemoveTool(ctx, c.param("id")))
	}),
	OpInventoryAll: readObject(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Inventory.All(ctx)
	}, func() any {
		return repo.InventorySnapshot{Chemicals: []domain.Chemical{}, Materials: []domain.Material{}, Tools: []domain.Tool{}}
	}),
	OpInventoryUsage: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		in, err := decodeUsage(c.body)
		if err != nil {
			return nil, err
		}
		res, err := g.svc.Checklists.RecordMaterials(ctx, in.Employee, in.ServiceName, in.events())
		return usageResult(res), err
	}),

	OpChecklistSave: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		cl, err := g.svc.Checklists.Save(ctx, p)
		return ok("checklist", cl), err
	}),
	OpChecklistLink: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		in, err := decode[struct {
			CustomerID   string `json:"customerId"`
			CustomerName string `json:"customerName"`
		}](c.body)
		if err != nil {
			return nil, err
		}
		cl, err := g.svc.Checklists.LinkCustomer(ctx, c.param("id"), in.CustomerID, in.CustomerName)
		return ok("checklist", cl), err
	}),
	OpChecklistMaterials: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		in, err := decodeUsage(c.body)
		if err != nil {
			return nil, err
		}
		res, err := g.svc.Checklists.RecordMaterials(ctx, in.Employee, in.ServiceName, in.events())
		return usageResult(res), err
	}),
	OpEmployeeMaterials: read(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		ref := c.param("id")
		refs := []string{ref}
		if e, found, err := g.svc.Employees.Resolve(ctx, ref); err != nil {
			return nil, err
		} else if found {
			refs = append(refs, e.ID, e.Name, e.Email)
		}
		from, to := dateRange(c)
		return g.svc.Inventory.UsageHistory(ctx, repo.UsageFilter{Employee: refs, From: from, To: to})
	}),

	OpPayrollDueCount: readObject(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		n, err := g.svc.Payroll.DueCount(ctx)
		return ok("count", n), err
	}, func() any { return map[string]any{"ok": false, "count": 0} }),
	OpPayrollDueTotal: readObject(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		total, n, err := g.svc.Payroll.DueTotal(ctx)
		return ok("total", total.StringFixed(2), "amount", total.InexactFloat64(), "count", n), err
	}, func() any { return map[string]any{"ok": false, "total": "0.00", "amount": 0, "count": 0} }),
	OpPayrollHistory: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Payroll.History(ctx)
	}),
	OpPayrollHistoryUpdate: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		id := p.ID()
		if id == "" {
			return nil, domain.Invalid("id is required")
		}
		delete(p, "id")
		e, err := g.svc.Payroll.UpdateEntry(ctx, id, p)
		return ok("entry", e), err
	}),
	OpPayrollHistoryDelete: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		if p.ID() == "" {
			return nil, domain.Invalid("id is required")
		}
		return removed(g.svc.Payroll.DeleteEntry(ctx, p.ID()))
	}),
	OpPayrollSave: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		in, err := decode[repo.PayrollSave](c.body)
		if err != nil {
			return nil, err
		}
		out, err := g.svc.Payroll.Save(ctx, in)
		return ok("entry", out.Entry, "jobsPaid", out.JobsPaid, "markedPaid", out.MarkedPaid), err
	}),
	OpPayrollAdjustment: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		in, err := decode[struct {
			Employee string  `json:"employee"`
			Amount   float64 `json:"amount"`
		}](c.body)
		if err != nil {
			return nil, err
		}
		adj, err := g.svc.Payroll.SetAdjustment(ctx, in.Employee, in.Amount)
		return ok("adjustments", adj), err
	}),
	OpJobsList: read(func(_ context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Payroll.Jobs()
	}),
	OpJobsRecord: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		j, err := g.svc.Payroll.RecordJob(ctx, p)
		return ok("job", j), err
	}),

	OpEmailAdmin: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		in, err := decode[struct {
			To      string `json:"to"`
			Subject string `json:"subject"`
			Body    string `json:"body"`
			Message string `json:"message"`
		}](c.body)
		if err != nil {
			return nil, err
		}
		body := in.Body
		if body == "" {
			body = in.Message
		}
		rec, err := g.svc.Emails.Send(ctx, in.To, in.Subject, body)
		return ok("email", rec), err
	}),

	OpInvoicesList: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Invoices.List(ctx)
	}),
	OpInvoicesUpsert: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		inv, _, err := g.svc.Invoices.Upsert(ctx, p)
		return ok("invoice", inv), err
	}),
	OpInvoicesDelete: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Invoices.Remove(ctx, c.param("id")))
	}),
	OpExpensesList: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Expenses.List(ctx)
	}),
	OpExpensesUpsert: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		e, _, err := g.svc.Expenses.Upsert(ctx, p)
		return ok("expense", e), err
	}),
	OpExpensesDelete: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Expenses.Remove(ctx, c.param("id")))
	}),
	OpBookingsList: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Bookings.List(ctx)
	}),
	OpBookingsSave: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		b, err := g.svc.Bookings.Save(ctx, p)
		return ok("booking", b), err
	}),
	OpBookingsDelete: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Bookings.Remove(ctx, c.param("id")))
	}),
	OpTasksList: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Tasks.List(ctx)
	}),
	OpTasksUpsert: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		t, _, err := g.svc.Tasks.Upsert(ctx, p)
		return ok("task", t), err
	}),
	OpTasksDelete: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Tasks.Remove(ctx, c.param("id")))
	}),
	OpCouponsList: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Coupons.List(ctx)
	}),
	OpCouponsSave: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		cp, err := g.svc.Coupons.Save(ctx, p)
		return ok("coupon", cp), err
	}),
	OpCouponsDelete: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Coupons.Remove(ctx, c.param("id")))
	}),
	OpCouponValidate: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		cp, err := g.svc.Coupons.Validate(ctx, c.query.Get("code"))
		return ok("coupon", cp), err
	}),
	OpEmployeesList: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Employees.List(ctx)
	}),
	OpEmployeesSave: withPatch(func(ctx context.Context, g *Gateway, _ *call, p repo.Patch) (any, error) {
		e, _, err := g.svc.Employees.Upsert(ctx, p)
		return ok("employee", e), err
	}),
	OpEmployeesDel: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Employees.Remove(ctx, c.param("id")))
	}),

	OpAlertsList: read(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		return g.svc.Alerts.List(ctx)
	}),
	OpAlertRead: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return ok(), g.svc.Alerts.MarkRead(ctx, c.param("id"))
	}),
	OpAlertsReadAll: write(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		n, err := g.svc.Alerts.MarkAllRead(ctx)
		return ok("count", n), err
	}),
	OpAlertDismiss: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		return removed(g.svc.Alerts.Dismiss(ctx, c.param("id")))
	}),

	OpArchiveList: read(func(_ context.Context, g *Gateway, _ *call) (any, error) {
		if g.svc.Archive == nil {
			return nil, unavailable("archive")
		}
		return g.svc.Archive.List()
	}),
	OpArchiveSave: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		if g.svc.Archive == nil {
			return nil, unavailable("archive")
		}
		in, err := decode[struct {
			archive.Document
			Text string `json:"text"`
		}](c.body)
		if err != nil {
			return nil, err
		}
		doc := in.Document
		if len(doc.Content) == 0 && in.Text != "" {
			doc.Content = []byte(in.Text)
		}
		saved, err := g.svc.Archive.Save(ctx, doc)
		return ok("document", saved), err
	}),
	OpArchiveDelete: write(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		if g.svc.Archive == nil {
			return nil, unavailable("archive")
		}
		return removed(g.svc.Archive.Delete(ctx, c.param("id")))
	}),

	OpSession: readObject(func(_ context.Context, g *Gateway, _ *call) (any, error) {
		if g.svc.Session == nil {
			return nil, unavailable("session")
		}
		u, signedIn := g.svc.Session.Current()
		if !signedIn {
			return map[string]any{"authenticated": false, "user": nil}, nil
		}
		return map[string]any{"authenticated": true, "user": u}, nil
	}, func() any { return map[string]any{"authenticated": false, "user": nil} }),
	OpProfitLoss: readObject(func(ctx context.Context, g *Gateway, c *call) (any, error) {
		from, to := dateRange(c)
		return g.svc.Payroll.ProfitLoss(ctx, finance.Period{From: from, To: to})
	}, emptyObject),
	OpDemoInject: write(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		res, err := g.svc.Demo.Inject(ctx)
		return ok("customers", res.Customers, "invoices", res.Invoices), err
	}),
	OpDemoClear: write(func(ctx context.Context, g *Gateway, _ *call) (any, error) {
		res, err := g.svc.Demo.Clear(ctx)
		return ok("customers", res.Customers, "invoices", res.Invoices), err
	}),
}

// usageBody accepts either a bare event array or an object wrapping one.
type usageBody struct {
	Employee    string              `json:"employee"`
	ServiceName string              `json:"serviceName"`
	Usage       []domain.UsageEvent `json:"usage"`
	Materials   []domain.UsageEvent `json:"materials"`
	Items       []domain.UsageEvent `json:"items"`
}

func (u usageBody) events() []domain.UsageEvent {
	out := make([]domain.UsageEvent, 0, len(u.Usage)+len(u.Materials)+len(u.Items))
	out = append(out, u.Usage...)
	out = append(out, u.Materials...)
	return append(out, u.Items...)
}

func decodeUsage(body any) (usageBody, error) {
	if body == nil {
		return usageBody{}, domain.Invalid("usage events are required")
	}
	if list, isList := body.([]any); isList {
		events, err := decode[[]domain.UsageEvent](list)
		return usageBody{Usage: events}, err
	}
	if events, isEvents := body.([]domain.UsageEvent); isEvents {
		return usageBody{Usage: events}, nil
	}
	return decode[usageBody](body)
}

func usageResult(res repo.UsageResult) map[string]any {
	return ok("applied", res.Applied, "unmatched", res.Unmatched, "records", res.Records, "low", res.Low)
}

// dateRange reads from/to query bounds. A bare date as "to" covers the
// whole day.
func dateRange(c *call) (time.Time, time.Time) {
	var from, to time.Time
	if raw := strings.TrimSpace(c.query.Get("from")); raw != "" {
		from, _ = finance.ParseDate(raw)
	}
	if raw := strings.TrimSpace(c.query.Get("to")); raw != "" {
		if t, parsed := finance.ParseDate(raw); parsed {
			to = t
			if len(raw) == len("2006-01-02") {
				to = to.Add(24*time.Hour - time.Nanosecond)
			}
		}
	}
	return from, to
}
