// Package planner turns plate maps and reagent volumes into transfer plans.
//
// A Planner runs the assembly lifecycle: reagents are mapped, then products,
// then every top-up volume is computed, and only when all of them are valid are
// instructions emitted. Each stage must follow the previous one; calling them out
// of order returns a *core.StageError and leaves the planner unchanged.
package planner

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/wellplan/internal/platemap"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/leapstack-labs/wellplan/pkg/labware"
)

// Construct is one product well and the parts assembled into it.
type Construct struct {
	Name  string   `json:"name" mapstructure:"name"`
	Parts []string `json:"parts" mapstructure:"parts"`
}

// Reagent is a named component added at a fixed volume.
type Reagent struct {
	Name   string  `json:"name" mapstructure:"name"`
	Volume float64 `json:"volume" mapstructure:"volume"`
}

// Recipe describes an assembly run.
type Recipe struct {
	Constructs []Construct
	// PartVolume applies to every part without an entry in PartVolumes.
	PartVolume  float64
	PartVolumes map[string]float64
	// Shared reagents go into every construct.
	Shared       []Reagent
	Diluent      string
	TargetVolume float64
	MixAfter     *core.Mix
	TouchTip     bool
}

// Parts returns the unique parts in order of first appearance.
func (r Recipe) Parts() []string {
	seen := make(map[string]bool)
	var parts []string
	for _, c := range r.Constructs {
		for _, p := range c.Parts {
			if !seen[p] {
				seen[p] = true
				parts = append(parts, p)
			}
		}
	}
	return parts
}

// VolumeOf returns the per-construct volume of a part or shared reagent.
func (r Recipe) VolumeOf(name string) float64 {
	for _, s := range r.Shared {
		if s.Name == name {
			return s.Volume
		}
	}
	if v, ok := r.PartVolumes[name]; ok {
		return v
	}
	return r.PartVolume
}

// Planner plans one assembly run. It is not safe for concurrent use.
type Planner struct {
	recipe   Recipe
	pipette  labware.Pipette
	reagents platemap.Source
	products platemap.Source
	logger   *slog.Logger

	life       Lifecycle
	reagentMap *platemap.PlateMap
	productMap *platemap.PlateMap
	diluent    []Target
	plan       *core.Plan
}

// New creates a planner drawing reagent and product wells from the given sources.
func New(recipe Recipe, pipette labware.Pipette, reagents, products platemap.Source, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Planner{
		recipe:   recipe,
		pipette:  pipette,
		reagents: reagents,
		products: products,
		logger:   logger,
	}
}

// Stage returns the current lifecycle stage.
func (p *Planner) Stage() Stage { return p.life.Stage() }

// MapReagents assigns wells to parts, shared reagents and the diluent, in that order.
func (p *Planner) MapReagents() error {
	if err := p.expect(StageReagentsMapped); err != nil {
		return err
	}
	names := p.recipe.Parts()
	for _, s := range p.recipe.Shared {
		names = append(names, s.Name)
	}
	names = append(names, p.recipe.Diluent)

	m, err := platemap.Build(platemap.Auto(names), p.reagents)
	if err != nil {
		return fmt.Errorf("mapping reagents: %w", err)
	}
	p.reagentMap = m
	p.logger.Debug("reagents mapped", slog.Int("count", m.Len()))
	return p.life.Advance(StageReagentsMapped)
}

// MapProducts assigns one product well per construct.
func (p *Planner) MapProducts() error {
	if err := p.expect(StageProductsMapped); err != nil {
		return err
	}
	names := make([]string, len(p.recipe.Constructs))
	for i, c := range p.recipe.Constructs {
		names[i] = c.Name
	}
	m, err := platemap.Build(platemap.Auto(names), p.products)
	if err != nil {
		return fmt.Errorf("mapping products: %w", err)
	}
	p.productMap = m
	p.logger.Debug("products mapped", slog.Int("count", m.Len()))
	return p.life.Advance(StageProductsMapped)
}

// ComputeVolumes computes the diluent top-up for every construct.
// Nothing is recorded unless every volume is valid.
func (p *Planner) ComputeVolumes() error {
	if err := p.expect(StageVolumesComputed); err != nil {
		return err
	}
	shared := make([]float64, len(p.recipe.Shared))
	for i, s := range p.recipe.Shared {
		shared[i] = s.Volume
	}

	targets := make([]Target, 0, len(p.recipe.Constructs))
	for _, c := range p.recipe.Constructs {
		components := append([]float64(nil), shared...)
		for _, part := range c.Parts {
			components = append(components, p.recipe.VolumeOf(part))
		}
		v, err := topUpFor(c.Name, p.recipe.TargetVolume, components...)
		if err != nil {
			return fmt.Errorf("computing volumes: %w", err)
		}
		w, _ := p.productMap.Well(c.Name)
		targets = append(targets, Target{Well: w, Volume: v})
	}
	p.diluent = targets
	return p.life.Advance(StageVolumesComputed)
}

// Emit builds the instruction list.
func (p *Planner) Emit() (*core.Plan, error) {
	if err := p.expect(StageInstructionsEmitted); err != nil {
		return nil, err
	}
	b := NewBuilder("assembly")
	b.Comment("**CHECK BEFORE RUNNING**")
	b.Comment("Ensure you have matched the expected reagent platemap:")
	for _, a := range p.reagentMap.Assignments() {
		b.Comment("    REAGENT | %s -> %s", a.Name, a.Well)
	}

	diluent, _ := p.reagentMap.Well(p.recipe.Diluent)
	b.Distribute(p.pipette, p.recipe.Diluent, diluent, p.diluent, WithTouchTip(p.recipe.TouchTip))

	for _, c := range p.recipe.Constructs {
		dst, _ := p.productMap.Well(c.Name)
		components := append([]string(nil), c.Parts...)
		for _, s := range p.recipe.Shared {
			components = append(components, s.Name)
		}
		for _, name := range components {
			src, _ := p.reagentMap.Well(name)
			b.Transfer(p.pipette, name, src, dst, p.recipe.VolumeOf(name),
				WithTouchTip(p.recipe.TouchTip), WithMix(p.recipe.MixAfter))
		}
	}

	b.Comment("Loading complete. Thermocycle the product plate according to the protocol schedule, then transform to confirm assembly.")
	b.Comment("Construct platemap is as follows:")
	for _, a := range p.productMap.Assignments() {
		b.Comment("    CONSTRUCT | %s -> %s", a.Name, a.Well)
	}

	if err := p.life.Advance(StageInstructionsEmitted); err != nil {
		return nil, err
	}
	p.plan = b.Plan()
	return p.plan, nil
}

// Run executes the whole lifecycle on a fresh planner.
func (p *Planner) Run() (*core.Plan, error) {
	for _, step := range []func() error{p.MapReagents, p.MapProducts, p.ComputeVolumes} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return p.Emit()
}

// ReagentMap returns the reagent map once reagents are mapped.
func (p *Planner) ReagentMap() *platemap.PlateMap { return p.reagentMap }

// ProductMap returns the product map once products are mapped.
func (p *Planner) ProductMap() *platemap.PlateMap { return p.productMap }

// DiluentVolumes returns the computed top-up per construct, keyed by name.
func (p *Planner) DiluentVolumes() map[string]float64 {
	out := make(map[string]float64, len(p.diluent))
	for i, t := range p.diluent {
		out[p.recipe.Constructs[i].Name] = t.Volume
	}
	return out
}

func (p *Planner) expect(next Stage) error {
	if p.life.Stage()+1 != next {
		return &core.StageError{Current: p.life.Stage().String(), Want: next.String()}
	}
	return nil
}
