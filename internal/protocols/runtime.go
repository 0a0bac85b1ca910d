package protocols

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/wellplan/internal/deck"
	"github.com/leapstack-labs/wellplan/internal/wellpool"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/leapstack-labs/wellplan/pkg/labware"
)

// mounts lists pipette mounts in assignment order.
var mounts = []string{"left", "right"}

// Options configures the runtime of one generation.
type Options struct {
	// Slots is the deck placement order; empty uses deck.DefaultSlots.
	Slots []core.Slot
	// Labware holds custom definitions added on top of the built-in catalog.
	Labware []labware.Definition
	Logger  *slog.Logger
}

// PipetteLoad records a mounted pipette and the tip racks placed for it.
type PipetteLoad struct {
	Pipette labware.Pipette `json:"-"`
	Name    string          `json:"pipette"`
	Mount   string          `json:"mount"`
	Tiprack string          `json:"tiprack"`
	Tips    int             `json:"tips"`
	Racks   []core.Slot     `json:"tiprack_slots"`
}

// Runtime is the per-run object graph: one deck, one catalog, one logger.
type Runtime struct {
	Deck    *deck.Allocator
	Catalog *labware.Catalog
	Logger  *slog.Logger

	pipettes []*PipetteLoad
}

// NewRuntime creates a fresh runtime.
func NewRuntime(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	slots := opts.Slots
	if len(slots) == 0 {
		slots = deck.DefaultSlots()
	}
	alloc, err := deck.NewAllocator(slots, logger)
	if err != nil {
		return nil, &core.ConfigError{Field: "deck.slots", Message: err.Error()}
	}
	catalog := labware.Default()
	for _, def := range opts.Labware {
		if err := catalog.Add(def); err != nil {
			return nil, &core.ConfigError{Field: "labware", Message: err.Error()}
		}
	}
	return &Runtime{Deck: alloc, Catalog: catalog, Logger: logger}, nil
}

// Pool creates a well pool for a role on the named labware.
func (rt *Runtime) Pool(labwareName, role string, opts ...wellpool.Option) (*wellpool.Pool, error) {
	lt, err := rt.Catalog.Labware(labwareName)
	if err != nil {
		return nil, err
	}
	return wellpool.New(rt.Deck, lt, role, opts...), nil
}

// Load places a single unit of the named labware, e.g. a reservoir.
func (rt *Runtime) Load(labwareName, role string) (*core.LabwareUnit, error) {
	lt, err := rt.Catalog.Labware(labwareName)
	if err != nil {
		return nil, err
	}
	return rt.Deck.Load(lt, role)
}

// Pipette mounts a pipette. An empty tiprack is inferred from the catalog.
// Mounting the same pipette twice returns the existing mount.
func (rt *Runtime) Pipette(name, tiprack string) (labware.Pipette, error) {
	p, err := rt.Catalog.Pipette(name)
	if err != nil {
		return labware.Pipette{}, err
	}
	for _, load := range rt.pipettes {
		if load.Name == name {
			return load.Pipette, nil
		}
	}
	if len(rt.pipettes) >= len(mounts) {
		return labware.Pipette{}, &core.ConfigError{
			Field:   "pipette",
			Message: fmt.Sprintf("cannot mount %s: only %d mounts are available", name, len(mounts)),
		}
	}

	var lt core.LabwareType
	if tiprack == "" {
		lt, err = rt.Catalog.InferTiprack(name)
		tiprack = lt.Name
		rt.Logger.Info("inferring tiprack from pipette", slog.String("pipette", name), slog.String("tiprack", tiprack))
	} else {
		lt, err = rt.Catalog.Labware(tiprack)
	}
	if err != nil {
		return labware.Pipette{}, err
	}
	if lt.Kind != core.KindTipRack {
		return labware.Pipette{}, &core.ConfigError{Field: "tiprack", Message: fmt.Sprintf("%s is a %s, not a tip rack", tiprack, lt.Kind)}
	}

	rt.pipettes = append(rt.pipettes, &PipetteLoad{
		Pipette: p,
		Name:    name,
		Mount:   mounts[len(rt.pipettes)],
		Tiprack: tiprack,
	})
	return p, nil
}

// LoadTipracks places enough tip racks for every mounted pipette to cover plan.
// A pipette that needs no tips gets no rack.
func (rt *Runtime) LoadTipracks(plan *core.Plan) ([]PipetteLoad, error) {
	used := plan.TipsUsed()
	out := make([]PipetteLoad, 0, len(rt.pipettes))
	for _, load := range rt.pipettes {
		tips := used[load.Name]
		lt, err := rt.Catalog.Labware(load.Tiprack)
		if err != nil {
			return nil, err
		}
		per := lt.WellsPerUnit()
		racks := (tips + per - 1) / per
		load.Tips = tips
		load.Racks = nil
		for i := 0; i < racks; i++ {
			unit, err := rt.Deck.Load(lt, "tips:"+load.Name)
			if err != nil {
				return nil, fmt.Errorf("placing tip racks for %s: %w", load.Name, err)
			}
			load.Racks = append(load.Racks, unit.Slot)
		}
		rt.Logger.Debug("tip racks placed",
			slog.String("pipette", load.Name),
			slog.Int("tips", tips),
			slog.Int("racks", racks))
		out = append(out, *load)
	}
	return out, nil
}
