package snapshot

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"detailcrm/pkg/domain"
)

// Multiplier seeds prices for Target by scaling Base. Amount is a
// percentage: 120 means 1.2x.
type Multiplier struct {
	Base   string  `json:"baseVehicleType"`
	Target string  `json:"vehicleTypeId"`
	Amount float64 `json:"amount"`
}

// Validate checks the request shape.
func (m Multiplier) Validate() error {
	switch {
	case strings.TrimSpace(m.Target) == "":
		return domain.Invalid("vehicleTypeId is required")
	case strings.TrimSpace(m.Base) == "":
		return domain.Invalid("baseVehicleType is required")
	case m.Base == m.Target:
		return domain.Invalid("base and target vehicle types must differ")
	case m.Amount <= 0:
		return domain.Invalid("amount must be positive")
	}
	return nil
}

// ItemIDs lists every package and add-on id known to snap, sorted.
func ItemIDs(snap domain.PackagesSnapshot) []string {
	seen := map[string]struct{}{}
	for id := range snap.PackageMeta {
		seen[id] = struct{}{}
	}
	for id := range snap.AddOnMeta {
		seen[id] = struct{}{}
	}
	for _, group := range [][]domain.CatalogItem{snap.CustomPackages, snap.CustomAddOns} {
		for _, item := range group {
			if item.ID != "" {
				seen[item.ID] = struct{}{}
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ApplyMultiplier writes round(base*amount/100) for every item that has a
// base price and no target price yet. Existing target prices are never
// overwritten. It returns the number of prices written.
func ApplyMultiplier(snap *domain.PackagesSnapshot, m Multiplier) (int, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	if snap.SavedPrices == nil {
		snap.SavedPrices = map[string]string{}
	}
	factor := decimal.NewFromFloat(m.Amount).Div(decimal.NewFromInt(100))
	count := 0
	for _, id := range ItemIDs(*snap) {
		if existing := strings.TrimSpace(snap.SavedPrices[domain.PriceKey(id, m.Target)]); existing != "" {
			continue
		}
		raw := strings.TrimSpace(snap.SavedPrices[domain.PriceKey(id, m.Base)])
		if raw == "" {
			continue
		}
		base, err := decimal.NewFromString(strings.TrimPrefix(raw, "$"))
		if err != nil {
			continue
		}
		snap.SavedPrices[domain.PriceKey(id, m.Target)] = base.Mul(factor).Round(0).String()
		count++
	}
	return count, nil
}
