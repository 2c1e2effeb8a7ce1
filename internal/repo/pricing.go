package repo

import (
	"context"
	"fmt"
	"sync"

	"detailcrm/internal/bus"
	"detailcrm/internal/kv"
	"detailcrm/internal/snapshot"
	"detailcrm/pkg/domain"
)

// MultiplierResult reports a multiplier run.
type MultiplierResult struct {
	Count   int   `json:"count"`
	Version int64 `json:"version"`
}

// Pricing owns the packagesLive snapshot and the savedPrices map behind it.
type Pricing struct {
	env      Env
	live     *snapshot.Publisher[domain.PackagesSnapshot]
	vehicles *VehicleTypes

	// mu orders read-modify-publish cycles issued by this process.
	mu sync.Mutex
}

// NewPricing builds the pricing repository.
func NewPricing(env Env, vehicles *VehicleTypes) *Pricing {
	r := &Pricing{env: env, vehicles: vehicles}
	opts := []snapshot.Option[domain.PackagesSnapshot]{
		snapshot.WithLogger[domain.PackagesSnapshot](env.logger()),
	}
	if env.Events != nil {
		opts = append(opts, snapshot.WithBroadcaster[domain.PackagesSnapshot](env.Events))
	}
	if env.Now != nil {
		opts = append(opts, snapshot.WithClock[domain.PackagesSnapshot](env.Now))
	}
	r.live = snapshot.New(env.Store, domain.KeyPackagesLive, bus.KindPackages,
		snapshot.Versioner[domain.PackagesSnapshot]{
			Get: func(s domain.PackagesSnapshot) int64 { return s.Version },
			Set: func(s *domain.PackagesSnapshot, v int64) { s.Version = v },
		},
		r.fallback, opts...)
	return r
}

// Live is the packagesLive publisher.
func (r *Pricing) Live() *snapshot.Publisher[domain.PackagesSnapshot] { return r.live }

// fallback rebuilds the snapshot from the last saved prices, or from the
// seed catalog when nothing was ever saved.
func (r *Pricing) fallback(ctx context.Context) (domain.PackagesSnapshot, error) {
	cat := r.env.catalog()
	snap := domain.PackagesSnapshot{
		PackageMeta:    cat.PackageMeta(),
		AddOnMeta:      cat.AddOnMeta(),
		CustomPackages: []domain.CatalogItem{},
		CustomAddOns:   []domain.CatalogItem{},
	}
	saved, ok, err := kv.LoadDoc[map[string]string](ctx, r.env.Store, domain.KeySavedPrices)
	if err != nil {
		return snap, err
	}
	if ok && len(saved) > 0 {
		snap.SavedPrices = saved
	} else {
		snap.SavedPrices = cat.SavedPrices()
	}
	return snap, nil
}

// Latest returns the live snapshot.
func (r *Pricing) Latest(ctx context.Context) (domain.PackagesSnapshot, error) {
	snap, err := r.live.FetchLatest(ctx)
	if err != nil {
		return snap, fmt.Errorf("fetch %s: %w", domain.KeyPackagesLive, domain.StorageFailure(err))
	}
	return snap, nil
}

// FullSync replaces the whole snapshot with doc and mirrors its prices into
// savedPrices.
func (r *Pricing) FullSync(ctx context.Context, doc domain.PackagesSnapshot) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publish(ctx, doc)
}

func (r *Pricing) publish(ctx context.Context, doc domain.PackagesSnapshot) (int64, error) {
	if doc.SavedPrices == nil {
		doc.SavedPrices = map[string]string{}
	}
	if doc.PackageMeta == nil {
		doc.PackageMeta = map[string]domain.CatalogItem{}
	}
	if doc.AddOnMeta == nil {
		doc.AddOnMeta = map[string]domain.CatalogItem{}
	}
	if doc.CustomPackages == nil {
		doc.CustomPackages = []domain.CatalogItem{}
	}
	if doc.CustomAddOns == nil {
		doc.CustomAddOns = []domain.CatalogItem{}
	}
	v, err := r.live.Publish(ctx, doc)
	if err != nil {
		return 0, domain.StorageFailure(err)
	}
	if err := kv.SaveDoc(ctx, r.env.Store, domain.KeySavedPrices, doc.SavedPrices); err != nil {
		r.env.logger().Warn("mirror saved prices failed", "error", err)
	}
	return v, nil
}

// ApplyMultiplier seeds prices for a new vehicle type from a base type and
// marks the target as priced when anything was written.
func (r *Pricing) ApplyMultiplier(ctx context.Context, m snapshot.Multiplier) (MultiplierResult, error) {
	if err := m.Validate(); err != nil {
		return MultiplierResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, err := r.Latest(ctx)
	if err != nil {
		return MultiplierResult{}, err
	}
	n, err := snapshot.ApplyMultiplier(&snap, m)
	if err != nil {
		return MultiplierResult{}, err
	}
	res := MultiplierResult{Count: n, Version: snap.Version}
	if n == 0 {
		return res, nil
	}
	if res.Version, err = r.publish(ctx, snap); err != nil {
		return MultiplierResult{}, err
	}
	if r.vehicles != nil {
		if err := r.vehicles.MarkPriced(ctx, m.Target); err != nil && domain.CodeOf(err) != domain.CodeNotFound {
			r.env.logger().Warn("mark vehicle type priced failed", "vehicleType", m.Target, "error", err)
		}
	}
	return res, nil
}
