package gateway

import (
	"net/http"
	"testing"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		method, path string
		op           Op
		params       Params
	}{
		{"", "/api/customers", OpCustomersList, nil},
		{"get", "/api/customers/search", OpCustomersSearch, nil},
		{http.MethodDelete, "/api/customers/cust_1", OpCustomersDelete, Params{"id": "cust_1"}},
		{http.MethodGet, "/api/vehicle-types/live", OpVehicleTypesLive, nil},
		{http.MethodPut, "/api/vehicle-types/exotic", OpVehicleTypesUpdate, Params{"id": "exotic"}},
		{http.MethodPost, "/api/admin/alerts/read-all", OpAlertsReadAll, nil},
		{http.MethodPost, "/api/admin/alerts/alert_9/read", OpAlertRead, Params{"id": "alert_9"}},
		{http.MethodGet, "/api/employees/Alex%20Smith/materials", OpEmployeeMaterials, Params{"id": "Alex Smith"}},
		{http.MethodPost, "/api/pricing/apply-vehicle-multiplier", OpPricingMultiplier, nil},
		{http.MethodPost, "/api/packages/apply-vehicle-multiplier", OpPricingMultiplier, nil},
		{http.MethodGet, "/api/coupons/validate/", OpCouponValidate, nil},
		{http.MethodDelete, "/api/faqs/a%2541", OpFAQsDelete, Params{"id": "a%41"}},
		{http.MethodDelete, "/api/customers/a%2Fb", OpCustomersDelete, Params{"id": "a/b"}},
		{http.MethodPut, "/api/contact", OpContactUpdate, nil},
	}
	for _, tc := range cases {
		op, params, ok := Resolve(tc.method, tc.path)
		if !ok || op != tc.op {
			t.Fatalf("%s %s: got %q %v", tc.method, tc.path, op, ok)
		}
		if len(params) != len(tc.params) {
			t.Fatalf("%s %s: params %v, want %v", tc.method, tc.path, params, tc.params)
		}
		for k, v := range tc.params {
			if params[k] != v {
				t.Fatalf("%s %s: param %s = %q, want %q", tc.method, tc.path, k, params[k], v)
			}
		}
	}
}

func TestResolveMisses(t *testing.T) {
	for _, tc := range [][2]string{
		{http.MethodGet, "/api/unknown"},
		{http.MethodPatch, "/api/customers"},
		{http.MethodDelete, "/api/customers/"},
		{http.MethodGet, "/api/customers/a/b"},
	} {
		if op, _, ok := Resolve(tc[0], tc[1]); ok {
			t.Fatalf("%s %s unexpectedly resolved to %s", tc[0], tc[1], op)
		}
	}
}

func TestEveryRouteHasHandler(t *testing.T) {
	for _, r := range routes {
		if _, ok := handlers[r.op]; !ok {
			t.Fatalf("route %s %v has no handler for %s", r.method, r.segments, r.op)
		}
	}
	if len(Routes()) != len(routes) {
		t.Fatalf("Routes() length mismatch")
	}
}
