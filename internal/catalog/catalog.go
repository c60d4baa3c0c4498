// Package catalog loads the demo, badge and gating definitions.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/badge"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/demo"
	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/gating"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type file struct {
	Demos  []*demo.Definition `yaml:"demos"`
	Badges []*badge.Badge     `yaml:"badges"`
	Gating []gating.Rule      `yaml:"gating"`
}

// Catalog is the validated set of definitions the engine runs on.
type Catalog struct {
	order  []string
	demos  map[string]*demo.Definition
	Badges *badge.Catalog
	Rules  []gating.Rule
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile parses a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f.Demos, f.Badges, f.Gating)
}

// New validates definitions and cross references between them.
func New(demos []*demo.Definition, badges []*badge.Badge, rules []gating.Rule) (*Catalog, error) {
	c := &Catalog{demos: make(map[string]*demo.Definition, len(demos)), Rules: rules}
	for _, d := range demos {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, ok := c.demos[d.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate demo %s", demo.ErrInvalidDemo, d.ID)
		}
		c.demos[d.ID] = d
		c.order = append(c.order, d.ID)
	}
	bc, err := badge.NewCatalog(badges)
	if err != nil {
		return nil, err
	}
	for _, b := range bc.All() {
		if b.DemoID == "" {
			continue
		}
		if _, ok := c.demos[b.DemoID]; !ok {
			return nil, fmt.Errorf("badge %s maps to unknown demo %s", b.ID, b.DemoID)
		}
	}
	for _, d := range demos {
		if !d.Pseudo {
			continue
		}
		if b, ok := bc.ForDemo(d.ID); !ok || b.Kind != badge.KindComposite {
			return nil, fmt.Errorf("pseudo demo %s must award a composite badge", d.ID)
		}
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("gating rule %s: %w", r.Feature, err)
		}
		for _, id := range r.RequiredBadges {
			if _, ok := bc.Get(id); !ok {
				return nil, fmt.Errorf("gating rule %s requires unknown badge %s", r.Feature, id)
			}
		}
	}
	c.Badges = bc
	return c, nil
}

// Demo returns the definition for id.
func (c *Catalog) Demo(id string) (*demo.Definition, bool) {
	d, ok := c.demos[id]
	return d, ok
}

// Demos returns definitions in declaration order.
func (c *Catalog) Demos() []*demo.Definition {
	out := make([]*demo.Definition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.demos[id])
	}
	return out
}

// CapstoneDemo returns the pseudo demo whose completion awards the composite badge.
func (c *Catalog) CapstoneDemo() (*demo.Definition, bool) {
	comp, ok := c.Badges.Composite()
	if !ok {
		return nil, false
	}
	return c.Demo(comp.DemoID)
}
