package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"detailcrm/internal/bus"
	"detailcrm/internal/kv"
	"detailcrm/pkg/domain"
)

// Alert types.
const (
	AlertCustomerAdded      = "customer_added"
	AlertUserCreated        = "user_created"
	AlertLowInventory       = "low_inventory"
	AlertVehicleTypeAdded   = "vehicle_type_added"
	AlertChecklistCompleted = "checklist_completed"
	AlertPayrollSaved       = "payroll_saved"
	AlertBookingCreated     = "booking_created"
	AlertEmailQueued        = "email_queued"
)

// AlertInput describes an alert to push. Dedupe suppresses the push while
// an unread alert with the same content hash exists.
type AlertInput struct {
	Type       string
	Message    string
	Source     string
	RecordType string
	Payload    any
	Dedupe     bool
}

// Alerts is the admin alert repository. Alerts are stored newest first.
type Alerts struct {
	env   Env
	table *Table[domain.AdminAlert]
}

// NewAlerts builds the alert repository.
func NewAlerts(env Env) *Alerts {
	return &Alerts{
		env: env,
		table: NewTable(env, domain.KeyAdminAlerts, "alert", "alert",
			func(a domain.AdminAlert) string { return a.ID }, WithoutTimestamps[domain.AdminAlert]()),
	}
}

// ContentHash fingerprints an alert by type, message and payload.
func ContentHash(alertType, message string, payload json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(alertType))
	h.Write([]byte{0})
	h.Write([]byte(message))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Push stores an alert. The boolean is false when Dedupe suppressed it.
func (a *Alerts) Push(ctx context.Context, in AlertInput) (domain.AdminAlert, bool, error) {
	var payload json.RawMessage
	if in.Payload != nil {
		raw, err := json.Marshal(in.Payload)
		if err != nil {
			return domain.AdminAlert{}, false, domain.Invalid("alert payload: %v", err)
		}
		payload = raw
	}
	alert := domain.AdminAlert{
		ID:         "alert_" + uuid.NewString(),
		Type:       in.Type,
		Message:    in.Message,
		Source:     in.Source,
		RecordType: in.RecordType,
		Payload:    payload,
		Hash:       ContentHash(in.Type, in.Message, payload),
		Timestamp:  a.env.now(),
	}
	if alert.Source == "" {
		alert.Source = "system"
	}
	pushed := true
	err := a.table.Mutate(ctx, func(rows []domain.AdminAlert) ([]domain.AdminAlert, error) {
		if in.Dedupe {
			for _, r := range rows {
				if !r.Read && r.Hash == alert.Hash {
					pushed = false
					return nil, kv.ErrSkip
				}
			}
		}
		return append([]domain.AdminAlert{alert}, rows...), nil
	})
	if err != nil {
		a.env.Metrics.Alert(in.Type, "failed")
		return domain.AdminAlert{}, false, err
	}
	if !pushed {
		a.env.Metrics.Alert(in.Type, "deduplicated")
		return domain.AdminAlert{}, false, nil
	}
	a.env.Metrics.Alert(in.Type, "pushed")
	a.env.publish(ctx, bus.KindAlert, alert)
	return alert, true, nil
}

// Notify pushes best-effort: failures are logged and swallowed so the
// triggering write never fails because of its alert.
func (a *Alerts) Notify(ctx context.Context, in AlertInput) {
	if a == nil {
		return
	}
	if _, _, err := a.Push(ctx, in); err != nil {
		a.env.logger().Warn("admin alert push failed", "type", in.Type, "error", err)
	}
}

// List returns alerts newest first.
func (a *Alerts) List(ctx context.Context) ([]domain.AdminAlert, error) {
	return a.table.List(ctx)
}

// UnreadCount counts unread alerts.
func (a *Alerts) UnreadCount(ctx context.Context) (int, error) {
	rows, err := a.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		if !r.Read {
			n++
		}
	}
	return n, nil
}

// MarkRead flags one alert as read.
func (a *Alerts) MarkRead(ctx context.Context, id string) error {
	found := false
	err := a.table.Mutate(ctx, func(rows []domain.AdminAlert) ([]domain.AdminAlert, error) {
		for i := range rows {
			if rows[i].ID == id {
				found = true
				if rows[i].Read {
					return nil, kv.ErrSkip
				}
				rows[i].Read = true
				return rows, nil
			}
		}
		return nil, kv.ErrSkip
	})
	if err != nil {
		return err
	}
	if !found {
		return domain.NotFound("alert", id)
	}
	a.env.publish(ctx, bus.KindAlert, map[string]string{"read": id})
	return nil
}

// MarkAllRead flags every alert as read and returns how many changed.
func (a *Alerts) MarkAllRead(ctx context.Context) (int, error) {
	n := 0
	err := a.table.Mutate(ctx, func(rows []domain.AdminAlert) ([]domain.AdminAlert, error) {
		for i := range rows {
			if !rows[i].Read {
				rows[i].Read = true
				n++
			}
		}
		if n == 0 {
			return nil, kv.ErrSkip
		}
		return rows, nil
	})
	if err == nil && n > 0 {
		a.env.publish(ctx, bus.KindAlert, map[string]int{"readAll": n})
	}
	return n, err
}

// Dismiss deletes an alert.
func (a *Alerts) Dismiss(ctx context.Context, id string) (bool, error) {
	return a.table.Remove(ctx, id)
}

// PruneRead deletes read alerts older than cutoff.
func (a *Alerts) PruneRead(ctx context.Context, cutoff time.Time) (int, error) {
	return a.table.RemoveWhere(ctx, func(r domain.AdminAlert) bool {
		return r.Read && r.Timestamp.Before(cutoff)
	})
}
