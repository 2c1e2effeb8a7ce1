package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"detailcrm/internal/bus"
	"detailcrm/internal/finance"
	"detailcrm/internal/kv"
	"detailcrm/pkg/domain"
)

// InventorySnapshot is every inventory table at once.
type InventorySnapshot struct {
	Chemicals []domain.Chemical `json:"chemicals"`
	Materials []domain.Material `json:"materials"`
	Tools     []domain.Tool     `json:"tools"`
}

// LowItem is one row at or below its threshold.
type LowItem struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Quantity  float64 `json:"quantity"`
	Threshold float64 `json:"threshold"`
}

// LowReport is the result of a low-stock evaluation.
type LowReport struct {
	Items   []LowItem `json:"items"`
	Hash    string    `json:"hash"`
	Changed bool      `json:"changed"`
	Alerted bool      `json:"alerted"`
}

// UsageResult summarizes an applied usage batch.
type UsageResult struct {
	Applied   int                  `json:"applied"`
	Unmatched int                  `json:"unmatched"`
	Records   []domain.UsageRecord `json:"records"`
	Low       LowReport            `json:"low"`
}

// UsageFilter narrows usage history. Zero values match everything.
type UsageFilter struct {
	Employee []string
	From     time.Time
	To       time.Time
}

type lowHashDoc struct {
	Hash      string    `json:"hash"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Inventory owns chemicals, materials, tools and their usage history.
type Inventory struct {
	env       Env
	chemicals *Table[domain.Chemical]
	materials *Table[domain.Material]
	tools     *Table[domain.Tool]
	usage     *Table[domain.UsageRecord]
	toolUsage *Table[domain.UsageRecord]
	alerts    *Alerts
}

// NewInventory builds the inventory repository.
func NewInventory(env Env, alerts *Alerts) *Inventory {
	inv := &Inventory{env: env, alerts: alerts}
	nonNegative := func(v float64, field string) error {
		if v < 0 {
			return domain.Invalid("%s must not be negative", field)
		}
		return nil
	}
	inv.chemicals = NewTable(env, domain.KeyChemicals, "chemical", "chem",
		func(c domain.Chemical) string { return c.ID },
		WithSeed(func() []domain.Chemical {
			rows := append([]domain.Chemical(nil), env.catalog().Chemicals...)
			for i := range rows {
				rows[i].CreatedAt, rows[i].UpdatedAt = env.now(), env.now()
			}
			return rows
		}),
		WithValidator(func(_ []domain.Chemical, _ int, c domain.Chemical) error {
			return nonNegative(c.CurrentStock, "currentStock")
		}))
	inv.materials = NewTable(env, domain.KeyMaterials, "material", "mat",
		func(m domain.Material) string { return m.ID },
		WithSeed(func() []domain.Material {
			rows := append([]domain.Material(nil), env.catalog().Materials...)
			for i := range rows {
				rows[i].CreatedAt, rows[i].UpdatedAt = env.now(), env.now()
			}
			return rows
		}),
		WithValidator(func(_ []domain.Material, _ int, m domain.Material) error {
			return nonNegative(m.Quantity, "quantity")
		}))
	inv.tools = NewTable(env, domain.KeyTools, "tool", "tool",
		func(t domain.Tool) string { return t.ID },
		WithSeed(func() []domain.Tool {
			rows := append([]domain.Tool(nil), env.catalog().Tools...)
			for i := range rows {
				rows[i].CreatedAt, rows[i].UpdatedAt = env.now(), env.now()
			}
			return rows
		}))
	inv.usage = NewTable(env, domain.KeyChemicalUsage, "usage", "use",
		func(u domain.UsageRecord) string { return u.ID }, WithoutTimestamps[domain.UsageRecord]())
	inv.toolUsage = NewTable(env, domain.KeyToolUsage, "usage", "tuse",
		func(u domain.UsageRecord) string { return u.ID }, WithoutTimestamps[domain.UsageRecord]())
	return inv
}

// Chemicals lists chemicals.
func (r *Inventory) Chemicals(ctx context.Context) ([]domain.Chemical, error) {
	return r.chemicals.List(ctx)
}

// Materials lists materials.
func (r *Inventory) Materials(ctx context.Context) ([]domain.Material, error) {
	return r.materials.List(ctx)
}

// Tools lists tools.
func (r *Inventory) Tools(ctx context.Context) ([]domain.Tool, error) {
	return r.tools.List(ctx)
}

// All returns every inventory table.
func (r *Inventory) All(ctx context.Context) (InventorySnapshot, error) {
	var out InventorySnapshot
	var err error
	if out.Chemicals, err = r.Chemicals(ctx); err != nil {
		return out, err
	}
	if out.Materials, err = r.Materials(ctx); err != nil {
		return out, err
	}
	out.Tools, err = r.Tools(ctx)
	return out, err
}

// SaveChemical upserts a chemical, then re-evaluates low stock.
func (r *Inventory) SaveChemical(ctx context.Context, patch Patch) (domain.Chemical, error) {
	c, _, err := r.chemicals.Upsert(ctx, patch)
	if err != nil {
		return c, err
	}
	r.afterStockChange(ctx)
	return c, nil
}

// SaveMaterial upserts a material, then re-evaluates low stock.
func (r *Inventory) SaveMaterial(ctx context.Context, patch Patch) (domain.Material, error) {
	m, _, err := r.materials.Upsert(ctx, patch)
	if err != nil {
		return m, err
	}
	r.afterStockChange(ctx)
	return m, nil
}

// SaveTool upserts a tool.
func (r *Inventory) SaveTool(ctx context.Context, patch Patch) (domain.Tool, error) {
	t, _, err := r.tools.Upsert(ctx, patch)
	if err == nil {
		r.env.publish(ctx, bus.KindInventory, map[string]string{"tool": t.ID})
	}
	return t, err
}

// RemoveChemical deletes a chemical.
func (r *Inventory) RemoveChemical(ctx context.Context, id string) (bool, error) {
	ok, err := r.chemicals.Remove(ctx, id)
	if ok {
		r.afterStockChange(ctx)
	}
	return ok, err
}

// RemoveMaterial deletes a material.
func (r *Inventory) RemoveMaterial(ctx context.Context, id string) (bool, error) {
	ok, err := r.materials.Remove(ctx, id)
	if ok {
		r.afterStockChange(ctx)
	}
	return ok, err
}

// RemoveTool deletes a tool.
func (r *Inventory) RemoveTool(ctx context.Context, id string) (bool, error) {
	return r.tools.Remove(ctx, id)
}

func (r *Inventory) afterStockChange(ctx context.Context) {
	if _, err := r.EvaluateLowInventory(ctx); err != nil {
		r.env.logger().Warn("low inventory evaluation failed", "error", err)
	}
	r.env.publish(ctx, bus.KindInventory, nil)
}

func floorSub(stock, used float64) float64 {
	if used < 0 {
		used = 0
	}
	if next := stock - used; next > 0 {
		return next
	}
	return 0
}

// ApplyUsage decrements stock for every event (never below zero), appends
// one usage record per matched event and then evaluates low stock once for
// the whole batch.
func (r *Inventory) ApplyUsage(ctx context.Context, events []domain.UsageEvent) (UsageResult, error) {
	res := UsageResult{Records: []domain.UsageRecord{}}
	now := r.env.now()
	byChem := map[string][]int{}
	byMat := map[string][]int{}
	byTool := map[string][]int{}
	for i, ev := range events {
		switch {
		case ev.ChemicalID != "":
			byChem[ev.ChemicalID] = append(byChem[ev.ChemicalID], i)
		case ev.MaterialID != "":
			byMat[ev.MaterialID] = append(byMat[ev.MaterialID], i)
		case ev.ToolID != "":
			byTool[ev.ToolID] = append(byTool[ev.ToolID], i)
		default:
			res.Unmatched++
		}
	}
	record := func(ev domain.UsageEvent) domain.UsageRecord {
		date := ev.Date
		if date == "" {
			date = now.Format(time.RFC3339)
		}
		return domain.UsageRecord{
			ID:           NewID("use", now),
			QuantityUsed: ev.QuantityUsed,
			ServiceName:  ev.ServiceName,
			Employee:     ev.Employee,
			Date:         date,
		}
	}
	var stockRecords, toolRecords []domain.UsageRecord

	if len(byChem) > 0 {
		err := r.chemicals.Mutate(ctx, func(rows []domain.Chemical) ([]domain.Chemical, error) {
			stockRecords = stockRecords[:0]
			for i := range rows {
				for _, idx := range byChem[rows[i].ID] {
					ev := events[idx]
					rows[i].CurrentStock = floorSub(rows[i].CurrentStock, ev.QuantityUsed)
					rows[i].UpdatedAt = now
					rec := record(ev)
					rec.ChemicalID, rec.ChemicalName = rows[i].ID, rows[i].Name
					stockRecords = append(stockRecords, rec)
				}
			}
			return rows, nil
		})
		if err != nil {
			return res, err
		}
	}
	chemRecords := len(stockRecords)
	if len(byMat) > 0 {
		err := r.materials.Mutate(ctx, func(rows []domain.Material) ([]domain.Material, error) {
			stockRecords = stockRecords[:chemRecords]
			for i := range rows {
				for _, idx := range byMat[rows[i].ID] {
					ev := events[idx]
					rows[i].Quantity = floorSub(rows[i].Quantity, ev.QuantityUsed)
					rows[i].UpdatedAt = now
					rec := record(ev)
					rec.MaterialID, rec.MaterialName = rows[i].ID, rows[i].Name
					stockRecords = append(stockRecords, rec)
				}
			}
			return rows, nil
		})
		if err != nil {
			return res, err
		}
	}
	if len(byTool) > 0 {
		tools, err := r.tools.List(ctx)
		if err != nil {
			return res, err
		}
		for _, t := range tools {
			for _, idx := range byTool[t.ID] {
				rec := record(events[idx])
				rec.ToolID, rec.ToolName = t.ID, t.Name
				toolRecords = append(toolRecords, rec)
			}
		}
	}

	if len(stockRecords) > 0 {
		if err := r.usage.Mutate(ctx, func(rows []domain.UsageRecord) ([]domain.UsageRecord, error) {
			return append(rows, stockRecords...), nil
		}); err != nil {
			return res, err
		}
	}
	if len(toolRecords) > 0 {
		if err := r.toolUsage.Mutate(ctx, func(rows []domain.UsageRecord) ([]domain.UsageRecord, error) {
			return append(rows, toolRecords...), nil
		}); err != nil {
			return res, err
		}
	}
	res.Records = append(append(res.Records, stockRecords...), toolRecords...)
	res.Applied = len(res.Records)
	res.Unmatched = len(events) - res.Applied

	low, err := r.EvaluateLowInventory(ctx)
	if err != nil {
		r.env.logger().Warn("low inventory evaluation failed", "error", err)
	}
	res.Low = low
	r.env.publish(ctx, bus.KindInventory, map[string]int{"applied": res.Applied})
	return res, nil
}

// LowItems returns the rows at or below threshold, sorted by id. Materials
// participate only when they carry a lowThreshold.
func (r *Inventory) LowItems(ctx context.Context) ([]LowItem, error) {
	chems, err := r.Chemicals(ctx)
	if err != nil {
		return nil, err
	}
	mats, err := r.Materials(ctx)
	if err != nil {
		return nil, err
	}
	items := []LowItem{}
	for _, c := range chems {
		if c.CurrentStock <= c.Threshold {
			items = append(items, LowItem{ID: c.ID, Name: c.Name, Kind: "chemical", Quantity: c.CurrentStock, Threshold: c.Threshold})
		}
	}
	for _, m := range mats {
		if m.LowThreshold != nil && m.Quantity <= *m.LowThreshold {
			items = append(items, LowItem{ID: m.ID, Name: m.Name, Kind: "material", Quantity: m.Quantity, Threshold: *m.LowThreshold})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// LowHash fingerprints a low set by its sorted "id:quantity" pairs, so a
// quantity change inside an unchanged set still changes the hash.
func LowHash(items []LowItem) string {
	pairs := make([]string, len(items))
	for i, it := range items {
		pairs[i] = it.ID + ":" + strconv.FormatFloat(it.Quantity, 'f', -1, 64)
	}
	sort.Strings(pairs)
	sum := sha256.Sum256([]byte(strings.Join(pairs, "|")))
	return hex.EncodeToString(sum[:])
}

// EvaluateLowInventory recomputes the low set and emits exactly one
// low_inventory alert when its hash differs from the last evaluation and
// the set is non-empty. An unchanged state never re-alerts.
func (r *Inventory) EvaluateLowInventory(ctx context.Context) (LowReport, error) {
	items, err := r.LowItems(ctx)
	if err != nil {
		return LowReport{}, err
	}
	report := LowReport{Items: items, Hash: LowHash(items)}
	if len(items) == 0 {
		report.Hash = ""
	}
	err = r.env.Store.Update(ctx, domain.KeyLowInventoryHash, func(current json.RawMessage, ok bool) (json.RawMessage, error) {
		var prev lowHashDoc
		if ok {
			if err := json.Unmarshal(current, &prev); err != nil {
				return nil, fmt.Errorf("decode %s: %w", domain.KeyLowInventoryHash, err)
			}
		}
		if ok && prev.Hash == report.Hash {
			return nil, kv.ErrSkip
		}
		report.Changed = true
		return json.Marshal(lowHashDoc{Hash: report.Hash, Count: len(items), UpdatedAt: r.env.now()})
	})
	if err != nil {
		return report, classify(domain.KeyLowInventoryHash, err)
	}
	if report.Changed && len(items) > 0 {
		names := make([]string, 0, len(items))
		for _, it := range items {
			names = append(names, it.Name)
		}
		r.alerts.Notify(ctx, AlertInput{
			Type:       AlertLowInventory,
			Message:    fmt.Sprintf("%d inventory item(s) at or below threshold: %s", len(items), strings.Join(names, ", ")),
			Source:     "inventory",
			RecordType: "inventory",
			Payload:    items,
			Dedupe:     true,
		})
		report.Alerted = true
	}
	return report, nil
}

// UsageHistory returns stock and tool usage matching f, oldest first.
func (r *Inventory) UsageHistory(ctx context.Context, f UsageFilter) ([]domain.UsageRecord, error) {
	stock, err := r.usage.List(ctx)
	if err != nil {
		return nil, err
	}
	tools, err := r.toolUsage.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.UsageRecord{}
	for _, u := range append(stock, tools...) {
		if len(f.Employee) > 0 && !matchesAny(u.Employee, f.Employee) {
			continue
		}
		if !f.From.IsZero() || !f.To.IsZero() {
			at, ok := finance.ParseDate(u.Date)
			if !ok {
				continue
			}
			if !f.From.IsZero() && at.Before(f.From) {
				continue
			}
			if !f.To.IsZero() && at.After(f.To) {
				continue
			}
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// PruneUsage deletes usage records dated before cutoff.
func (r *Inventory) PruneUsage(ctx context.Context, cutoff time.Time) (int, error) {
	old := func(u domain.UsageRecord) bool {
		at, ok := finance.ParseDate(u.Date)
		return ok && at.Before(cutoff)
	}
	n, err := r.usage.RemoveWhere(ctx, old)
	if err != nil {
		return n, err
	}
	m, err := r.toolUsage.RemoveWhere(ctx, old)
	return n + m, err
}

func matchesAny(v string, refs []string) bool {
	for _, ref := range refs {
		if ref != "" && strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(ref)) {
			return true
		}
	}
	return false
}
