package repo

import (
	"context"
	"regexp"
	"strings"

	"detailcrm/internal/bus"
	"detailcrm/internal/snapshot"
	"detailcrm/pkg/domain"
)

var slugRun = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a vehicle-type id from its display name.
func Slug(name string) string {
	return strings.Trim(slugRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-"), "-")
}

// VehicleTypes owns the vehicle-type table and its live snapshot. The four
// base types can be edited but never deleted.
type VehicleTypes struct {
	env    Env
	table  *Table[domain.VehicleType]
	live   *snapshot.Publisher[domain.VehicleTypesSnapshot]
	alerts *Alerts
}

// NewVehicleTypes builds the vehicle-type repository.
func NewVehicleTypes(env Env, alerts *Alerts) *VehicleTypes {
	r := &VehicleTypes{env: env, alerts: alerts}
	r.table = NewTable(env, domain.KeyVehicleTypes, "vehicle_type", "vt",
		func(v domain.VehicleType) string { return v.ID },
		WithSeed(func() []domain.VehicleType {
			return append([]domain.VehicleType(nil), env.catalog().VehicleTypes...)
		}),
		WithoutTimestamps[domain.VehicleType]())
	opts := []snapshot.Option[domain.VehicleTypesSnapshot]{
		snapshot.WithLogger[domain.VehicleTypesSnapshot](env.logger()),
	}
	if env.Events != nil {
		opts = append(opts, snapshot.WithBroadcaster[domain.VehicleTypesSnapshot](env.Events))
	}
	if env.Now != nil {
		opts = append(opts, snapshot.WithClock[domain.VehicleTypesSnapshot](env.Now))
	}
	r.live = snapshot.New(env.Store, domain.KeyVehicleTypesLive, bus.KindVehicleTypes,
		snapshot.Versioner[domain.VehicleTypesSnapshot]{
			Get: func(s domain.VehicleTypesSnapshot) int64 { return s.Version },
			Set: func(s *domain.VehicleTypesSnapshot, v int64) { s.Version = v },
		},
		r.snapshotFromTable, opts...)
	return r
}

// Live is the vehicleTypesLive publisher.
func (r *VehicleTypes) Live() *snapshot.Publisher[domain.VehicleTypesSnapshot] { return r.live }

func (r *VehicleTypes) snapshotFromTable(ctx context.Context) (domain.VehicleTypesSnapshot, error) {
	rows, err := r.table.List(ctx)
	return domain.VehicleTypesSnapshot{VehicleTypes: rows}, err
}

// List returns every vehicle type.
func (r *VehicleTypes) List(ctx context.Context) ([]domain.VehicleType, error) {
	return r.table.List(ctx)
}

// LiveSnapshot returns the published snapshot, synthesizing it on demand.
func (r *VehicleTypes) LiveSnapshot(ctx context.Context) (domain.VehicleTypesSnapshot, error) {
	return r.live.FetchLatest(ctx)
}

func (r *VehicleTypes) republish(ctx context.Context) {
	snap, err := r.snapshotFromTable(ctx)
	if err == nil {
		_, err = r.live.Publish(ctx, snap)
	}
	if err != nil {
		r.env.logger().Warn("vehicle type snapshot publish failed", "error", err)
	}
}

// Create adds a vehicle type whose id is the slug of its name. A clash with
// an existing id is rejected without writing.
func (r *VehicleTypes) Create(ctx context.Context, patch Patch) (domain.VehicleType, error) {
	name := patch.String("name")
	if name == "" {
		return domain.VehicleType{}, domain.Invalid("vehicle type name is required")
	}
	id := patch.ID()
	if id == "" {
		id = Slug(name)
	}
	if id == "" {
		return domain.VehicleType{}, domain.Invalid("vehicle type name %q has no usable characters", name)
	}
	var created domain.VehicleType
	err := r.table.Mutate(ctx, func(rows []domain.VehicleType) ([]domain.VehicleType, error) {
		for _, v := range rows {
			if v.ID == id {
				return nil, &domain.Error{Code: domain.CodeDuplicateID, Entity: "vehicle_type", ID: id}
			}
		}
		merged := map[string]any{}
		for k, v := range patch {
			merged[k] = v
		}
		merged["id"], merged["name"] = id, name
		vt, err := fromMap[domain.VehicleType](merged)
		if err != nil {
			return nil, err
		}
		created = vt
		return append(rows, vt), nil
	})
	if err != nil {
		return domain.VehicleType{}, err
	}
	r.republish(ctx)
	r.alerts.Notify(ctx, AlertInput{
		Type:       AlertVehicleTypeAdded,
		Message:    "New vehicle type: " + created.Name,
		Source:     "vehicle-types",
		RecordType: "vehicle_type",
		Payload:    map[string]string{"id": created.ID},
	})
	return created, nil
}

// Update edits an existing vehicle type, base types included.
func (r *VehicleTypes) Update(ctx context.Context, id string, patch Patch) (domain.VehicleType, error) {
	vt, err := r.table.Update(ctx, id, patch)
	if err != nil {
		return vt, err
	}
	r.republish(ctx)
	return vt, nil
}

// MarkPriced sets hasPricing on id.
func (r *VehicleTypes) MarkPriced(ctx context.Context, id string) error {
	_, err := r.Update(ctx, id, Patch{"hasPricing": true})
	return err
}

// Delete removes a custom vehicle type. Base types fail with
// protected_base_type and leave the table unchanged.
func (r *VehicleTypes) Delete(ctx context.Context, id string) (bool, error) {
	if domain.IsBaseVehicleType(id) {
		return false, &domain.Error{Code: domain.CodeProtectedBaseType, Entity: "vehicle_type", ID: id}
	}
	ok, err := r.table.Remove(ctx, id)
	if ok {
		r.republish(ctx)
	}
	return ok, err
}
