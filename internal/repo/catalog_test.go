package repo

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"detailcrm/internal/snapshot"
	"detailcrm/pkg/domain"
)

func TestVehicleTypeCreateRejectsDuplicateSlug(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	alerts := NewAlerts(h.env)
	vehicles := NewVehicleTypes(h.env, alerts)

	vt, err := vehicles.Create(ctx, Patch{"name": "Exotic"})
	if err != nil || vt.ID != "exotic" {
		t.Fatalf("create: %+v %v", vt, err)
	}
	if _, err := vehicles.Create(ctx, Patch{"name": "  EXOTIC "}); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected duplicate_id, got %v", err)
	}
	rows, _ := vehicles.List(ctx)
	n := 0
	for _, r := range rows {
		if r.ID == "exotic" {
			n++
		}
	}
	if n != 1 || len(rows) != 5 {
		t.Fatalf("expected one exotic row among 5, got %d of %d", n, len(rows))
	}
	snap, err := vehicles.LiveSnapshot(ctx)
	if err != nil || len(snap.VehicleTypes) != 5 || snap.Version == 0 {
		t.Fatalf("live snapshot not republished: %+v %v", snap, err)
	}
	if got := alertsOfType(t, alerts, AlertVehicleTypeAdded); len(got) != 1 {
		t.Fatalf("expected one vehicle_type_added alert, got %d", len(got))
	}
}

func TestBaseVehicleTypesCannotBeDeleted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	vehicles := NewVehicleTypes(h.env, nil)
	for _, id := range []string{"compact", "midsize", "truck", "luxury"} {
		if _, err := vehicles.Delete(ctx, id); !errors.Is(err, domain.ErrProtectedBaseType) {
			t.Fatalf("delete %s: expected protected_base_type, got %v", id, err)
		}
	}
	rows, _ := vehicles.List(ctx)
	if len(rows) != 4 {
		t.Fatalf("base types changed: %d rows", len(rows))
	}
	if _, err := vehicles.Create(ctx, Patch{"name": "Van"}); err != nil {
		t.Fatalf("create van: %v", err)
	}
	if ok, err := vehicles.Delete(ctx, "van"); err != nil || !ok {
		t.Fatalf("delete van: %v %v", ok, err)
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Exotic":          "exotic",
		"  Sports Car!! ": "sports-car",
		"SUV / Crossover": "suv-crossover",
		"***":             "",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMultiplierSeedsMissingPricesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	vehicles := NewVehicleTypes(h.env, nil)
	pricing := NewPricing(h.env, vehicles)
	if _, err := vehicles.Create(ctx, Patch{"name": "Exotic"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	m := snapshot.Multiplier{Base: "midsize", Target: "exotic", Amount: 120}
	res, err := pricing.ApplyMultiplier(ctx, m)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Count != 6 {
		t.Fatalf("expected 6 prices written, got %d", res.Count)
	}
	snap, err := pricing.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got := snap.SavedPrices[domain.PriceKey("full-detail", "exotic")]; got != "252" {
		t.Fatalf("full-detail:exotic = %q, want 252", got)
	}
	if got := snap.SavedPrices[domain.PriceKey("express-wash", "midsize")]; got != "50" {
		t.Fatalf("base price changed: %q", got)
	}
	again, err := pricing.ApplyMultiplier(ctx, m)
	if err != nil || again.Count != 0 || again.Version != res.Version {
		t.Fatalf("second run should write nothing: %+v %v", again, err)
	}
	vt, ok, _ := vehicles.table.Find(ctx, "exotic")
	if !ok || !vt.HasPricing {
		t.Fatalf("target not marked priced: %+v", vt)
	}
	if _, err := pricing.ApplyMultiplier(ctx, snapshot.Multiplier{Base: "midsize", Target: "midsize", Amount: 100}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestFullSyncMirrorsSavedPrices(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pricing := NewPricing(h.env, nil)
	v, err := pricing.FullSync(ctx, domain.PackagesSnapshot{SavedPrices: map[string]string{"express-wash:compact": "45"}})
	if err != nil || v == 0 {
		t.Fatalf("full sync: %v %v", v, err)
	}
	// a fresh publisher falls back to the mirrored prices
	other := NewPricing(h.env, nil)
	snap, err := other.Latest(ctx)
	if err != nil || snap.SavedPrices["express-wash:compact"] != "45" {
		t.Fatalf("unexpected snapshot %+v %v", snap, err)
	}
}

var faqID = regexp.MustCompile(`^faq_\d+_[A-Za-z0-9]+$`)

func TestFAQsSortAndGenerateIDs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	faqs := NewFAQs(h.env)
	f, err := faqs.Save(ctx, Patch{"question": "Do you come to me?", "answer": "Yes.", "order": 0})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !faqID.MatchString(f.ID) {
		t.Fatalf("generated id %q has the wrong shape", f.ID)
	}
	if _, err := faqs.Save(ctx, Patch{"question": "No answer"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
	rows, _ := faqs.List(ctx)
	if len(rows) != 5 || rows[0].ID != f.ID {
		t.Fatalf("expected the order-0 entry first among 5, got %+v", rows)
	}
	if _, err := faqs.Update(ctx, "faq_missing", Patch{"answer": "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestContactUpdateMerges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	contact := NewContact(h.env)
	before, err := contact.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	after, err := contact.Update(ctx, Patch{"phone": "555-0000"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if after.Phone != "555-0000" || after.Email != before.Email {
		t.Fatalf("merge lost fields: %+v -> %+v", before, after)
	}
}
