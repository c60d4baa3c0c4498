package badge

import (
	"errors"
	"fmt"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/account"
)

// Kind describes how a badge is earned.
type Kind string

const (
	// KindDemo is earned by completing its demo.
	KindDemo Kind = "DEMO"
	// KindComposite is earned by an explicit claim once its required badges are held.
	KindComposite Kind = "COMPOSITE"
)

var (
	ErrUnknownBadge   = errors.New("unknown badge")
	ErrDuplicateBadge = errors.New("duplicate badge")
	ErrInvalidBadge   = errors.New("invalid badge definition")
)

// Badge is an achievement with a point value.
type Badge struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Rarity      string   `yaml:"rarity" json:"rarity,omitempty"`
	PointValue  int64    `yaml:"points" json:"pointValue"`
	Kind        Kind     `yaml:"kind" json:"kind"`
	DemoID      string   `yaml:"demo" json:"demoId,omitempty"`
	Requires    []string `yaml:"requires" json:"requires,omitempty"`
}

// Missing lists the required badges not yet held.
func (b *Badge) Missing(held account.Set) []string {
	return held.Missing(b.Requires)
}

// Eligible reports whether a composite badge may be claimed with held badges.
func (b *Badge) Eligible(held account.Set) bool {
	return len(b.Missing(held)) == 0
}

// Catalog indexes badges by id and by the demo that awards them.
type Catalog struct {
	order  []string
	byID   map[string]*Badge
	byDemo map[string]string
}

// NewCatalog validates and indexes badges.
func NewCatalog(badges []*Badge) (*Catalog, error) {
	c := &Catalog{
		byID:   make(map[string]*Badge, len(badges)),
		byDemo: make(map[string]string, len(badges)),
	}
	for _, b := range badges {
		if b.ID == "" {
			return nil, fmt.Errorf("%w: missing id", ErrInvalidBadge)
		}
		if _, ok := c.byID[b.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBadge, b.ID)
		}
		if b.Kind == "" {
			b.Kind = KindDemo
		}
		if b.PointValue < 0 {
			return nil, fmt.Errorf("%w: %s has negative points", ErrInvalidBadge, b.ID)
		}
		if b.Kind == KindComposite && len(b.Requires) == 0 {
			return nil, fmt.Errorf("%w: composite %s requires nothing", ErrInvalidBadge, b.ID)
		}
		if b.DemoID != "" {
			if prev, ok := c.byDemo[b.DemoID]; ok {
				return nil, fmt.Errorf("%w: demo %s maps to %s and %s", ErrInvalidBadge, b.DemoID, prev, b.ID)
			}
			c.byDemo[b.DemoID] = b.ID
		}
		c.byID[b.ID] = b
		c.order = append(c.order, b.ID)
	}
	for _, b := range c.byID {
		for _, req := range b.Requires {
			if _, ok := c.byID[req]; !ok {
				return nil, fmt.Errorf("%w: %s requires unknown badge %s", ErrInvalidBadge, b.ID, req)
			}
		}
	}
	return c, nil
}

func (c *Catalog) Get(id string) (*Badge, bool) {
	b, ok := c.byID[id]
	return b, ok
}

// ForDemo returns the badge awarded by completing demoID.
func (c *Catalog) ForDemo(demoID string) (*Badge, bool) {
	id, ok := c.byDemo[demoID]
	if !ok {
		return nil, false
	}
	return c.byID[id], true
}

// Composite returns the composite badge, if the catalog defines one.
func (c *Catalog) Composite() (*Badge, bool) {
	for _, id := range c.order {
		if b := c.byID[id]; b.Kind == KindComposite {
			return b, true
		}
	}
	return nil, false
}

// All returns badges in declaration order.
func (c *Catalog) All() []*Badge {
	out := make([]*Badge, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
