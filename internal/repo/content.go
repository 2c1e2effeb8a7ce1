package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"detailcrm/internal/bus"
	"detailcrm/internal/seed"
	"detailcrm/pkg/domain"
)

// FAQs is the published question list.
type FAQs struct {
	env   Env
	table *Table[domain.FAQ]
}

// NewFAQs builds the FAQ repository.
func NewFAQs(env Env) *FAQs {
	return &FAQs{
		env: env,
		table: NewTable(env, domain.KeyFAQs, "faq", "faq",
			func(f domain.FAQ) string { return f.ID },
			WithSeed(func() []domain.FAQ { return append([]domain.FAQ(nil), env.catalog().FAQs...) }),
			WithoutTimestamps[domain.FAQ](),
			WithValidator(func(_ []domain.FAQ, idx int, f domain.FAQ) error {
				if idx < 0 && (strings.TrimSpace(f.Question) == "" || strings.TrimSpace(f.Answer) == "") {
					return domain.Invalid("question and answer are required")
				}
				return nil
			})),
	}
}

// List returns FAQs by order, then id.
func (r *FAQs) List(ctx context.Context) ([]domain.FAQ, error) {
	rows, err := r.table.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Order != rows[j].Order {
			return rows[i].Order < rows[j].Order
		}
		return rows[i].ID < rows[j].ID
	})
	return rows, nil
}

// Save upserts an FAQ.
func (r *FAQs) Save(ctx context.Context, patch Patch) (domain.FAQ, error) {
	f, _, err := r.table.Upsert(ctx, patch)
	if err == nil {
		r.env.publish(ctx, bus.KindFAQs, map[string]string{"id": f.ID})
	}
	return f, err
}

// Update changes an existing FAQ.
func (r *FAQs) Update(ctx context.Context, id string, patch Patch) (domain.FAQ, error) {
	f, err := r.table.Update(ctx, id, patch)
	if err == nil {
		r.env.publish(ctx, bus.KindFAQs, map[string]string{"id": f.ID})
	}
	return f, err
}

// Remove deletes an FAQ.
func (r *FAQs) Remove(ctx context.Context, id string) (bool, error) {
	ok, err := r.table.Remove(ctx, id)
	if ok {
		r.env.publish(ctx, bus.KindFAQs, map[string]string{"removed": id})
	}
	return ok, err
}

// About holds the about-page sections.
type About struct {
	env   Env
	table *Table[domain.AboutSection]
}

// NewAbout builds the about-section repository.
func NewAbout(env Env) *About {
	return &About{
		env: env,
		table: NewTable(env, domain.KeyAboutSections, "about", "about",
			func(a domain.AboutSection) string { return a.ID },
			WithSeed(func() []domain.AboutSection {
				return append([]domain.AboutSection(nil), env.catalog().AboutSections...)
			}),
			WithoutTimestamps[domain.AboutSection]()),
	}
}

// List returns sections by order.
func (r *About) List(ctx context.Context) ([]domain.AboutSection, error) {
	rows, err := r.table.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Order < rows[j].Order })
	return rows, nil
}

// Save upserts a section.
func (r *About) Save(ctx context.Context, patch Patch) (domain.AboutSection, error) {
	a, _, err := r.table.Upsert(ctx, patch)
	if err == nil {
		r.env.publish(ctx, bus.KindAbout, map[string]string{"id": a.ID})
	}
	return a, err
}

// Update changes an existing section.
func (r *About) Update(ctx context.Context, id string, patch Patch) (domain.AboutSection, error) {
	a, err := r.table.Update(ctx, id, patch)
	if err == nil {
		r.env.publish(ctx, bus.KindAbout, map[string]string{"id": a.ID})
	}
	return a, err
}

// Remove deletes a section.
func (r *About) Remove(ctx context.Context, id string) (bool, error) {
	ok, err := r.table.Remove(ctx, id)
	if ok {
		r.env.publish(ctx, bus.KindAbout, map[string]string{"removed": id})
	}
	return ok, err
}

// Contact is the contact-info singleton.
type Contact struct{ env Env }

// NewContact builds the contact repository.
func NewContact(env Env) *Contact { return &Contact{env: env} }

// Get returns the contact document, seeding it on first read.
func (r *Contact) Get(ctx context.Context) (domain.ContactInfo, error) {
	doc, err := seed.EnsureDoc(ctx, r.env.Store, r.env.Policy, domain.KeyContactInfo, func() domain.ContactInfo {
		return r.env.catalog().ContactInfo
	})
	if err != nil {
		return doc, fmt.Errorf("load %s: %w", domain.KeyContactInfo, domain.StorageFailure(err))
	}
	return doc, nil
}

// Update merges patch onto the stored document.
func (r *Contact) Update(ctx context.Context, patch Patch) (domain.ContactInfo, error) {
	if _, err := r.Get(ctx); err != nil {
		return domain.ContactInfo{}, err
	}
	var saved domain.ContactInfo
	err := r.env.Store.Update(ctx, domain.KeyContactInfo, func(current json.RawMessage, ok bool) (json.RawMessage, error) {
		base := map[string]any{}
		if ok {
			if err := json.Unmarshal(current, &base); err != nil {
				return nil, fmt.Errorf("decode %s: %w", domain.KeyContactInfo, err)
			}
		}
		for k, v := range patch {
			base[k] = v
		}
		doc, err := fromMap[domain.ContactInfo](base)
		if err != nil {
			return nil, err
		}
		now := r.env.now()
		doc.UpdatedAt = &now
		saved = doc
		return json.Marshal(doc)
	})
	if err != nil {
		return domain.ContactInfo{}, classify(domain.KeyContactInfo, err)
	}
	r.env.publish(ctx, bus.KindContact, saved)
	return saved, nil
}
