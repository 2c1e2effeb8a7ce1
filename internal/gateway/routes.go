package gateway

import (
	"net/http"
	"net/url"
	"strings"
)

// Op names one locally handled operation.
type Op string

// Operations.
const (
	OpCustomersList   Op = "customers.list"
	OpCustomersUpsert Op = "customers.upsert"
	OpCustomersSearch Op = "customers.search"
	OpCustomersDelete Op = "customers.delete"

	OpUsersList        Op = "users.list"
	OpUsersCreate      Op = "users.create"
	OpUsersSetRole     Op = "users.set_role"
	OpUsersImpersonate Op = "users.impersonate"
	OpUsersDelete      Op = "users.delete"

	OpVehicleTypesList   Op = "vehicle_types.list"
	OpVehicleTypesCreate Op = "vehicle_types.create"
	OpVehicleTypesLive   Op = "vehicle_types.live"
	OpVehicleTypesUpdate Op = "vehicle_types.update"
	OpVehicleTypesDelete Op = "vehicle_types.delete"

	OpPackagesFullSync   Op = "packages.full_sync"
	OpPackagesLive       Op = "packages.live"
	OpPricingMultiplier  Op = "pricing.apply_multiplier"
	OpFAQsList           Op = "faqs.list"
	OpFAQsCreate         Op = "faqs.create"
	OpFAQsUpdate         Op = "faqs.update"
	OpFAQsDelete         Op = "faqs.delete"
	OpContactGet         Op = "contact.get"
	OpContactUpdate      Op = "contact.update"
	OpAboutList          Op = "about.list"
	OpAboutCreate        Op = "about.create"
	OpAboutUpdate        Op = "about.update"
	OpAboutDelete        Op = "about.delete"
	OpInventoryChemicals Op = "inventory.chemicals"
	OpInventorySaveChem  Op = "inventory.save_chemical"
	OpInventoryDelChem   Op = "inventory.delete_chemical"
	OpInventoryMaterials Op = "inventory.materials"
	OpInventorySaveMat   Op = "inventory.save_material"
	OpInventoryDelMat    Op = "inventory.delete_material"
	OpInventoryTools     Op = "inventory.tools"
	OpInventorySaveTool  Op = "inventory.save_tool"
	OpInventoryDelTool   Op = "inventory.delete_tool"
	OpInventoryAll       Op = "inventory.all"
	OpInventoryUsage     Op = "inventory.estimate_update"

	OpChecklistSave      Op = "checklist.save"
	OpChecklistLink      Op = "checklist.link_customer"
	OpChecklistMaterials Op = "checklist.materials"
	OpEmployeeMaterials  Op = "employees.materials"

	OpPayrollDueCount      Op = "payroll.due_count"
	OpPayrollDueTotal      Op = "payroll.due_total"
	OpPayrollHistory       Op = "payroll.history"
	OpPayrollHistoryUpdate Op = "payroll.history_update"
	OpPayrollHistoryDelete Op = "payroll.history_delete"
	OpPayrollSave          Op = "payroll.save"
	OpPayrollAdjustment    Op = "payroll.adjustment"
	OpJobsList             Op = "jobs.list"
	OpJobsRecord           Op = "jobs.record"

	OpEmailAdmin Op = "email.admin"

	OpInvoicesList   Op = "invoices.list"
	OpInvoicesUpsert Op = "invoices.upsert"
	OpInvoicesDelete Op = "invoices.delete"
	OpExpensesList   Op = "expenses.list"
	OpExpensesUpsert Op = "expenses.upsert"
	OpExpensesDelete Op = "expenses.delete"
	OpBookingsList   Op = "bookings.list"
	OpBookingsSave   Op = "bookings.save"
	OpBookingsDelete Op = "bookings.delete"
	OpTasksList      Op = "tasks.list"
	OpTasksUpsert    Op = "tasks.upsert"
	OpTasksDelete    Op = "tasks.delete"
	OpCouponsList    Op = "coupons.list"
	OpCouponsSave    Op = "coupons.save"
	OpCouponsDelete  Op = "coupons.delete"
	OpCouponValidate Op = "coupons.validate"
	OpEmployeesList  Op = "employees.list"
	OpEmployeesSave  Op = "employees.save"
	OpEmployeesDel   Op = "employees.delete"

	OpAlertsList    Op = "alerts.list"
	OpAlertRead     Op = "alerts.read"
	OpAlertsReadAll Op = "alerts.read_all"
	OpAlertDismiss  Op = "alerts.dismiss"

	OpArchiveList   Op = "pdf_archive.list"
	OpArchiveSave   Op = "pdf_archive.save"
	OpArchiveDelete Op = "pdf_archive.delete"

	OpSession    Op = "session.get"
	OpProfitLoss Op = "reports.profit_loss"
	OpDemoInject Op = "demo.inject"
	OpDemoClear  Op = "demo.clear"
)

type route struct {
	method   string
	segments []string
	op       Op
}

// routes is matched in order; literal paths precede the parameterized
// paths they would otherwise collide with.
var routes = buildRoutes([]struct {
	method, pattern string
	op              Op
}{
	{http.MethodGet, "/api/customers", OpCustomersList},
	{http.MethodPost, "/api/customers", OpCustomersUpsert},
	{http.MethodGet, "/api/customers/search", OpCustomersSearch},
	{http.MethodDelete, "/api/customers/:id", OpCustomersDelete},

	{http.MethodGet, "/api/users", OpUsersList},
	{http.MethodPost, "/api/users/create", OpUsersCreate},
	{http.MethodPost, "/api/users/impersonate/:id", OpUsersImpersonate},
	{http.MethodPut, "/api/users/:id/role", OpUsersSetRole},
	{http.MethodDelete, "/api/users/:id", OpUsersDelete},

	{http.MethodGet, "/api/vehicle-types", OpVehicleTypesList},
	{http.MethodPost, "/api/vehicle-types", OpVehicleTypesCreate},
	{http.MethodGet, "/api/vehicle-types/live", OpVehicleTypesLive},
	{http.MethodPut, "/api/vehicle-types/:id", OpVehicleTypesUpdate},
	{http.MethodDelete, "/api/vehicle-types/:id", OpVehicleTypesDelete},

	{http.MethodPost, "/api/packages/full-sync", OpPackagesFullSync},
	{http.MethodGet, "/api/packages/live", OpPackagesLive},
	{http.MethodPost, "/api/packages/apply-vehicle-multiplier", OpPricingMultiplier},
	{http.MethodPost, "/api/pricing/apply-vehicle-multiplier", OpPricingMultiplier},

	{http.MethodGet, "/api/faqs", OpFAQsList},
	{http.MethodPost, "/api/faqs", OpFAQsCreate},
	{http.MethodPut, "/api/faqs/:id", OpFAQsUpdate},
	{http.MethodDelete, "/api/faqs/:id", OpFAQsDelete},

	{http.MethodGet, "/api/contact", OpContactGet},
	{http.MethodGet, "/api/contact/live", OpContactGet},
	{http.MethodPost, "/api/contact", OpContactUpdate},
	{http.MethodPut, "/api/contact", OpContactUpdate},
	{http.MethodPost, "/api/contact/update", OpContactUpdate},
	{http.MethodPut, "/api/contact/update", OpContactUpdate},

	{http.MethodGet, "/api/about", OpAboutList},
	{http.MethodPost, "/api/about", OpAboutCreate},
	{http.MethodPut, "/api/about/:id", OpAboutUpdate},
	{http.MethodDelete, "/api/about/:id", OpAboutDelete},

	{http.MethodGet, "/api/inventory/chemicals", OpInventoryChemicals},
	{http.MethodPost, "/api/inventory/chemicals", OpInventorySaveChem},
	{http.MethodDelete, "/api/inventory/chemicals/:id", OpInventoryDelChem},
	{http.MethodGet, "/api/inventory/materials", OpInventoryMaterials},
	{http.MethodPost, "/api/inventory/materials", OpInventorySaveMat},
	{http.MethodDelete, "/api/inventory/materials/:id", OpInventoryDelMat},
	{http.MethodGet, "/api/inventory/tools", OpInventoryTools},
	{http.MethodPost, "/api/inventory/tools", OpInventorySaveTool},
	{http.MethodDelete, "/api/inventory/tools/:id", OpInventoryDelTool},
	{http.MethodGet, "/api/inventory/all", OpInventoryAll},
	{http.MethodPost, "/api/inventory/estimate-update", OpInventoryUsage},

	{http.MethodPost, "/api/checklist/generic", OpChecklistSave},
	{http.MethodPost, "/api/checklist/materials", OpChecklistMaterials},
	{http.MethodPut, "/api/checklist/:id/link-customer", OpChecklistLink},
	{http.MethodGet, "/api/employees/:id/materials", OpEmployeeMaterials},

	{http.MethodGet, "/api/payroll/due-count", OpPayrollDueCount},
	{http.MethodGet, "/api/payroll/due-total", OpPayrollDueTotal},
	{http.MethodGet, "/api/payroll/history", OpPayrollHistory},
	{http.MethodPost, "/api/payroll/history/update", OpPayrollHistoryUpdate},
	{http.MethodPost, "/api/payroll/history/delete", OpPayrollHistoryDelete},
	{http.MethodPost, "/api/payroll/save", OpPayrollSave},
	{http.MethodPost, "/api/payroll/adjustments", OpPayrollAdjustment},
	{http.MethodGet, "/api/jobs/completed", OpJobsList},
	{http.MethodPost, "/api/jobs/completed", OpJobsRecord},

	{http.MethodPost, "/api/email/admin", OpEmailAdmin},

	{http.MethodGet, "/api/invoices", OpInvoicesList},
	{http.MethodPost, "/api/invoices", OpInvoicesUpsert},
	{http.MethodDelete, "/api/invoices/:id", OpInvoicesDelete},
	{http.MethodGet, "/api/expenses", OpExpensesList},
	{http.MethodPost, "/api/expenses", OpExpensesUpsert},
	{http.MethodDelete, "/api/expenses/:id", OpExpensesDelete},
	{http.MethodGet, "/api/bookings", OpBookingsList},
	{http.MethodPost, "/api/bookings", OpBookingsSave},
	{http.MethodDelete, "/api/bookings/:id", OpBookingsDelete},
	{http.MethodGet, "/api/tasks", OpTasksList},
	{http.MethodPost, "/api/tasks", OpTasksUpsert},
	{http.MethodDelete, "/api/tasks/:id", OpTasksDelete},
	{http.MethodGet, "/api/coupons", OpCouponsList},
	{http.MethodPost, "/api/coupons", OpCouponsSave},
	{http.MethodGet, "/api/coupons/validate", OpCouponValidate},
	{http.MethodDelete, "/api/coupons/:id", OpCouponsDelete},
	{http.MethodGet, "/api/employees", OpEmployeesList},
	{http.MethodPost, "/api/employees", OpEmployeesSave},
	{http.MethodDelete, "/api/employees/:id", OpEmployeesDel},

	{http.MethodGet, "/api/admin/alerts", OpAlertsList},
	{http.MethodPost, "/api/admin/alerts/read-all", OpAlertsReadAll},
	{http.MethodPost, "/api/admin/alerts/:id/read", OpAlertRead},
	{http.MethodDelete, "/api/admin/alerts/:id", OpAlertDismiss},

	{http.MethodGet, "/api/pdf-archive", OpArchiveList},
	{http.MethodPost, "/api/pdf-archive", OpArchiveSave},
	{http.MethodDelete, "/api/pdf-archive/:id", OpArchiveDelete},

	{http.MethodGet, "/api/session", OpSession},
	{http.MethodGet, "/api/reports/profit-loss", OpProfitLoss},
	{http.MethodPost, "/api/demo/inject", OpDemoInject},
	{http.MethodPost, "/api/demo/clear", OpDemoClear},
})

func buildRoutes(defs []struct {
	method, pattern string
	op              Op
}) []route {
	out := make([]route, len(defs))
	for i, d := range defs {
		out[i] = route{method: d.method, segments: split(d.pattern), op: d.op}
	}
	return out
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Params holds the values of ":name" segments.
type Params map[string]string

func (r route) match(method string, segs []string) (Params, bool) {
	if r.method != method || len(r.segments) != len(segs) {
		return nil, false
	}
	var params Params
	for i, s := range r.segments {
		if strings.HasPrefix(s, ":") {
			if segs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = Params{}
			}
			params[s[1:]] = segs[i]
			continue
		}
		if s != segs[i] {
			return nil, false
		}
	}
	return params, true
}

// Resolve maps a method and an escaped path to its operation. Segments are
// unescaped after splitting, so an encoded slash stays inside its parameter.
func Resolve(method, path string) (Op, Params, bool) {
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}
	segs := split(path)
	for i, s := range segs {
		if u, err := url.PathUnescape(s); err == nil {
			segs[i] = u
		}
	}
	for _, r := range routes {
		if p, ok := r.match(method, segs); ok {
			return r.op, p, true
		}
	}
	return "", nil, false
}

// Routes lists every (method, pattern) pair, in match order.
func Routes() [][2]string {
	out := make([][2]string, len(routes))
	for i, r := range routes {
		out[i] = [2]string{r.method, "/" + strings.Join(r.segments, "/")}
	}
	return out
}
