package seed

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"detailcrm/pkg/domain"
)

//go:embed seeds.yaml
var seedsYAML []byte

// PricedItem is a package or add-on with base prices per vehicle type.
type PricedItem struct {
	domain.CatalogItem
	Prices map[string]float64 `json:"prices"`
}

// SeedUser is a user row with its initial password in clear text; the user
// repository hashes it when materializing the seed.
type SeedUser struct {
	domain.User
	Password string `json:"password"`
}

// Catalog is the decoded seed document.
type Catalog struct {
	VehicleTypes  []domain.VehicleType  `json:"vehicleTypes"`
	Packages      []PricedItem          `json:"packages"`
	AddOns        []PricedItem          `json:"addOns"`
	FAQs          []domain.FAQ          `json:"faqs"`
	AboutSections []domain.AboutSection `json:"aboutSections"`
	ContactInfo   domain.ContactInfo    `json:"contactInfo"`
	Chemicals     []domain.Chemical     `json:"chemicals"`
	Materials     []domain.Material     `json:"materials"`
	Tools         []domain.Tool         `json:"tools"`
	Users         []SeedUser            `json:"users"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog. Callers receive a fresh copy.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(seedsYAML)
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultCatalog.clone()
}

// MustDefault is Default for callers that cannot proceed without seeds.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes a YAML seed document. YAML is converted to JSON first so
// the domain json tags drive field mapping.
func Parse(doc []byte) (*Catalog, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(doc, &tree); err != nil {
		return nil, fmt.Errorf("parse seeds: %w", err)
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("convert seeds: %w", err)
	}
	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode seeds: %w", err)
	}
	return &c, nil
}

func (c *Catalog) clone() (*Catalog, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var out Catalog
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SavedPrices flattens package and add-on base prices into the snapshot
// price map, keyed by domain.PriceKey.
func (c *Catalog) SavedPrices() map[string]string {
	out := make(map[string]string)
	for _, items := range [][]PricedItem{c.Packages, c.AddOns} {
		for _, item := range items {
			for vt, price := range item.Prices {
				out[domain.PriceKey(item.ID, vt)] = formatPrice(price)
			}
		}
	}
	return out
}

// PackageMeta returns package metadata keyed by id.
func (c *Catalog) PackageMeta() map[string]domain.CatalogItem { return meta(c.Packages) }

// AddOnMeta returns add-on metadata keyed by id.
func (c *Catalog) AddOnMeta() map[string]domain.CatalogItem { return meta(c.AddOns) }

func meta(items []PricedItem) map[string]domain.CatalogItem {
	out := make(map[string]domain.CatalogItem, len(items))
	for _, item := range items {
		out[item.ID] = item.CatalogItem
	}
	return out
}

func formatPrice(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
