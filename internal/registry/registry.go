// Package registry holds the closed catalog of relations that participate
// in synchronization. The catalog is built once at startup; every sync
// request resolves names against it and unknown names are dropped rather
// than failing the request.
package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyName indicates a descriptor with a blank relation name.
	ErrEmptyName = errors.New("registry: descriptor name is required")
	// ErrDuplicateName indicates the same relation registered twice.
	ErrDuplicateName = errors.New("registry: duplicate descriptor name")
)

// Descriptor describes one syncable relation.
type Descriptor struct {
	// Name is the relation (table) name exposed to sync clients.
	Name string
	// CompanyScoped marks relations whose rows belong to one company and
	// must be filtered by the caller's company id. Global reference data
	// (units of measurement) is not scoped.
	CompanyScoped bool
}

// Catalog is an immutable set of descriptors with order-preserving lookup.
type Catalog struct {
	byName  map[string]Descriptor
	ordered []Descriptor
}

// New validates the descriptors and builds a catalog.
func New(descriptors ...Descriptor) (*Catalog, error) {
	catalog := &Catalog{
		byName:  make(map[string]Descriptor, len(descriptors)),
		ordered: make([]Descriptor, 0, len(descriptors)),
	}
	for _, descriptor := range descriptors {
		name := strings.TrimSpace(descriptor.Name)
		if name == "" {
			return nil, ErrEmptyName
		}
		if _, exists := catalog.byName[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		descriptor.Name = name
		catalog.byName[name] = descriptor
		catalog.ordered = append(catalog.ordered, descriptor)
	}
	return catalog, nil
}

// Default returns the catalog of business relations shipped with the server.
func Default() *Catalog {
	catalog, err := New(
		Descriptor{Name: "customers", CompanyScoped: true},
		Descriptor{Name: "vendors", CompanyScoped: true},
		Descriptor{Name: "items", CompanyScoped: true},
		Descriptor{Name: "uoms", CompanyScoped: false},
		Descriptor{Name: "sales_orders", CompanyScoped: true},
		Descriptor{Name: "invoices", CompanyScoped: true},
		Descriptor{Name: "purchase_orders", CompanyScoped: true},
		Descriptor{Name: "goods_receipts", CompanyScoped: true},
		Descriptor{Name: "stock_entries", CompanyScoped: true},
		Descriptor{Name: "payment_receipts", CompanyScoped: true},
		Descriptor{Name: "approvals", CompanyScoped: true},
	)
	if err != nil {
		panic(err)
	}
	return catalog
}

// Lookup returns the descriptor for the given relation name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	descriptor, ok := c.byName[strings.TrimSpace(name)]
	return descriptor, ok
}

// Resolve maps requested relation names to descriptors in catalog order.
// An empty request selects the whole catalog. Names that do not resolve
// are silently dropped.
func (c *Catalog) Resolve(names []string) []Descriptor {
	if len(names) == 0 {
		return c.All()
	}
	requested := make(map[string]struct{}, len(names))
	for _, name := range names {
		requested[strings.TrimSpace(name)] = struct{}{}
	}
	selected := make([]Descriptor, 0, len(requested))
	for _, descriptor := range c.ordered {
		if _, ok := requested[descriptor.Name]; ok {
			selected = append(selected, descriptor)
		}
	}
	return selected
}

// All returns every descriptor in registration order.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Names returns every relation name in registration order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.ordered))
	for _, descriptor := range c.ordered {
		names = append(names, descriptor.Name)
	}
	return names
}
