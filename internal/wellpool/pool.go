// Package wellpool yields wells from a growing set of labware units.
//
// A Pool is a forward-only cursor over the wells of one labware type. When the
// current unit runs out it asks its Loader for a fresh unit on the next deck slot
// and continues from that unit's first well, so callers never track plate/offset
// arithmetic themselves.
package wellpool

import (
	"fmt"

	"github.com/leapstack-labs/wellplan/pkg/core"
)

// Loader places labware units on the deck.
type Loader interface {
	Load(lt core.LabwareType, role string) (*core.LabwareUnit, error)
}

// Order is the enumeration order of wells within a unit.
type Order int

const (
	// ByColumn walks each column top to bottom (A1, B1, ... H1, A2), matching
	// how a multichannel pipette addresses a plate.
	ByColumn Order = iota
	// ByRow walks each row left to right (A1, A2, ... A12, B1).
	ByRow
)

// Option configures a Pool.
type Option func(*Pool)

// WithOrder sets the enumeration order.
func WithOrder(o Order) Option {
	return func(p *Pool) { p.order = o }
}

// Pool hands out wells one at a time across unit boundaries.
type Pool struct {
	loader  Loader
	labware core.LabwareType
	role    string
	order   Order

	units  []*core.LabwareUnit
	cursor int
	drawn  int
}

// New creates a pool; no unit is provisioned until the first request.
func New(loader Loader, lt core.LabwareType, role string, opts ...Option) *Pool {
	p := &Pool{
		loader:  loader,
		labware: lt,
		role:    role,
		order:   ByColumn,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Labware returns the pool's labware type.
func (p *Pool) Labware() core.LabwareType { return p.labware }

// Role returns the logical role the pool serves.
func (p *Pool) Role() string { return p.role }

// Next returns the next unused well, provisioning a new unit when needed.
func (p *Pool) Next() (core.Well, error) {
	if len(p.units) == 0 || p.cursor >= p.labware.WellsPerUnit() {
		if err := p.provision(); err != nil {
			return core.Well{}, err
		}
	}
	unit := p.units[len(p.units)-1]
	w := p.wellAt(unit, p.cursor)
	p.cursor++
	p.drawn++
	return w, nil
}

// Take returns the next n wells.
func (p *Pool) Take(n int) ([]core.Well, error) {
	wells := make([]core.Well, 0, n)
	for i := 0; i < n; i++ {
		w, err := p.Next()
		if err != nil {
			return nil, err
		}
		wells = append(wells, w)
	}
	return wells, nil
}

// Unit returns the current unit, provisioning the first one if necessary.
// It does not consume any well.
func (p *Pool) Unit() (*core.LabwareUnit, error) {
	if len(p.units) == 0 {
		if err := p.provision(); err != nil {
			return nil, err
		}
	}
	return p.units[len(p.units)-1], nil
}

// Units returns the units provisioned so far.
func (p *Pool) Units() []*core.LabwareUnit {
	return append([]*core.LabwareUnit(nil), p.units...)
}

// Drawn returns how many wells have been handed out.
func (p *Pool) Drawn() int { return p.drawn }

// Capacity returns the number of wells across all provisioned units.
func (p *Pool) Capacity() int {
	return len(p.units) * p.labware.WellsPerUnit()
}

func (p *Pool) provision() error {
	unit, err := p.loader.Load(p.labware, p.role)
	if err != nil {
		return fmt.Errorf("no wells left for role %q: %w", p.role, err)
	}
	p.units = append(p.units, unit)
	p.cursor = 0
	return nil
}

func (p *Pool) wellAt(unit *core.LabwareUnit, i int) core.Well {
	if p.order == ByRow {
		return core.Well{Row: i / p.labware.Columns, Column: i % p.labware.Columns, Unit: unit}
	}
	return core.Well{Row: i % p.labware.Rows, Column: i / p.labware.Rows, Unit: unit}
}
