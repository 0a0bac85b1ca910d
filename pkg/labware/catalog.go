// Package labware provides the catalog of known labware layouts and pipettes.
//
// A Catalog is plain data: Default returns a fresh copy parsed from the embedded
// definitions, so custom labware added for one run never leaks into another.
package labware

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/wellplan/pkg/core"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtin []byte

// Definition describes a labware layout as written in catalog or config files.
type Definition struct {
	Name      string  `yaml:"name" koanf:"name"`
	Kind      string  `yaml:"kind" koanf:"kind"`
	Rows      int     `yaml:"rows" koanf:"rows"`
	Columns   int     `yaml:"columns" koanf:"columns"`
	MaxVolume float64 `yaml:"max_volume" koanf:"max_volume"`
}

// Type converts the definition into a core labware type.
func (d Definition) Type() (core.LabwareType, error) {
	kind := core.LabwareKind(strings.ToLower(d.Kind))
	switch kind {
	case core.KindPlate, core.KindTubeRack, core.KindReservoir, core.KindTipRack:
	case "":
		kind = core.KindPlate
	default:
		return core.LabwareType{}, fmt.Errorf("labware %s: unknown kind %q", d.Name, d.Kind)
	}
	t := core.LabwareType{
		Name:      d.Name,
		Kind:      kind,
		Rows:      d.Rows,
		Columns:   d.Columns,
		MaxVolume: d.MaxVolume,
	}
	if err := t.Validate(); err != nil {
		return core.LabwareType{}, err
	}
	return t, nil
}

// Pipette describes a pipette model.
type Pipette struct {
	Name      string  `yaml:"name"`
	Channels  int     `yaml:"channels"`
	MinVolume float64 `yaml:"min_volume"`
	MaxVolume float64 `yaml:"max_volume"`
	Tiprack   string  `yaml:"tiprack"`
}

// Multichannel reports whether the pipette moves more than one channel at a time.
func (p Pipette) Multichannel() bool {
	return p.Channels > 1
}

type catalogFile struct {
	Labware  []Definition `yaml:"labware"`
	Pipettes []Pipette    `yaml:"pipettes"`
}

// Catalog resolves labware and pipette names.
type Catalog struct {
	labware  map[string]core.LabwareType
	pipettes map[string]Pipette
}

// Default returns a fresh catalog holding the built-in definitions.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("labware: embedded catalog is invalid: %v", err))
	}
	return c
}

// Parse builds a catalog from YAML data.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse labware catalog: %w", err)
	}

	c := &Catalog{
		labware:  make(map[string]core.LabwareType, len(f.Labware)),
		pipettes: make(map[string]Pipette, len(f.Pipettes)),
	}
	for _, def := range f.Labware {
		if err := c.Add(def); err != nil {
			return nil, err
		}
	}
	for _, p := range f.Pipettes {
		if p.Name == "" || p.Channels < 1 {
			return nil, fmt.Errorf("pipette %q: name and a positive channel count are required", p.Name)
		}
		c.pipettes[p.Name] = p
	}
	return c, nil
}

// Add registers a labware definition, replacing any existing one with the same name.
func (c *Catalog) Add(def Definition) error {
	t, err := def.Type()
	if err != nil {
		return err
	}
	c.labware[t.Name] = t
	return nil
}

// Labware looks up a labware type by name.
func (c *Catalog) Labware(name string) (core.LabwareType, error) {
	t, ok := c.labware[name]
	if !ok {
		return core.LabwareType{}, &UnknownLabwareError{Name: name, Available: c.labwareNames()}
	}
	return t, nil
}

// Pipette looks up a pipette by name.
func (c *Catalog) Pipette(name string) (Pipette, error) {
	p, ok := c.pipettes[name]
	if !ok {
		names := make([]string, 0, len(c.pipettes))
		for n := range c.pipettes {
			names = append(names, n)
		}
		sort.Strings(names)
		return Pipette{}, &UnknownPipetteError{Name: name, Available: names}
	}
	return p, nil
}

// InferTiprack returns the tiprack type matching a pipette.
func (c *Catalog) InferTiprack(pipette string) (core.LabwareType, error) {
	p, err := c.Pipette(pipette)
	if err != nil {
		return core.LabwareType{}, err
	}
	return c.Labware(p.Tiprack)
}

// List returns all labware types sorted by name.
func (c *Catalog) List() []core.LabwareType {
	out := make([]core.LabwareType, 0, len(c.labware))
	for _, name := range c.labwareNames() {
		out = append(out, c.labware[name])
	}
	return out
}

// Pipettes returns all pipettes sorted by name.
func (c *Catalog) Pipettes() []Pipette {
	out := make([]Pipette, 0, len(c.pipettes))
	for _, p := range c.pipettes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) labwareNames() []string {
	names := make([]string, 0, len(c.labware))
	for name := range c.labware {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownLabwareError is returned when a labware name is not in the catalog.
type UnknownLabwareError struct {
	Name      string
	Available []string
}

func (e *UnknownLabwareError) Error() string {
	return fmt.Sprintf("unknown labware %q\nHint: run `wellplan labware` for the %d known names or add a definition under labware: in wellplan.yaml", e.Name, len(e.Available))
}

// UnknownPipetteError is returned when a pipette name is not in the catalog.
type UnknownPipetteError struct {
	Name      string
	Available []string
}

func (e *UnknownPipetteError) Error() string {
	return fmt.Sprintf("unknown pipette %q\nAvailable pipettes: %v", e.Name, e.Available)
}
