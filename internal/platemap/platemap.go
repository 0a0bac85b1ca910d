// Package platemap assigns logical entities to wells.
//
// A map is built either automatically, consuming wells from a source in input
// order, or explicitly from name -> label pairs. Explicit maps are ordered by
// physical position (row first, then column as an integer) so that downstream
// transfers walk the plate predictably regardless of how the pairs were written.
package platemap

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/wellplan/pkg/core"
)

// Mode records how a map was built.
type Mode string

// Build modes.
const (
	ModeAuto     Mode = "auto"
	ModeExplicit Mode = "explicit"
	ModeMirrored Mode = "mirrored"
)

// Source provides wells for a map, typically a *wellpool.Pool.
type Source interface {
	Next() (core.Well, error)
	Unit() (*core.LabwareUnit, error)
	Role() string
}

// Entry requests a well for a named entity. An empty Position asks the
// source for the next free well.
type Entry struct {
	Name     string
	Position string
}

// Assignment is a resolved entity -> well pair.
type Assignment struct {
	Name string    `json:"name"`
	Well core.Well `json:"well"`
}

// PlateMap is an ordered, duplicate-free mapping of entity names to wells.
type PlateMap struct {
	role  string
	mode  Mode
	order []Assignment
	index map[string]int
}

// Auto returns entries that request automatic placement for each name.
func Auto(names []string) []Entry {
	entries := make([]Entry, len(names))
	for i, n := range names {
		entries[i] = Entry{Name: n}
	}
	return entries
}

// FromLabels returns explicit entries for a name -> label mapping.
// Entries are returned sorted by name; Build reorders them by position.
func FromLabels(labels map[string]string) []Entry {
	entries := make([]Entry, 0, len(labels))
	for name, label := range labels {
		entries = append(entries, Entry{Name: name, Position: label})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Build resolves entries against a source.
func Build(entries []Entry, src Source) (*PlateMap, error) {
	role := src.Role()
	explicit := 0
	unplaced := ""
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Name] {
			return nil, &core.DuplicateEntityError{Name: e.Name, Map: role}
		}
		seen[e.Name] = true
		if e.Position != "" {
			explicit++
		} else if unplaced == "" {
			unplaced = e.Name
		}
	}

	switch explicit {
	case 0:
		return buildAuto(entries, src)
	case len(entries):
		return buildExplicit(entries, src)
	default:
		return nil, &core.InvalidWellLabelError{
			Reason: fmt.Sprintf("%s map mixes explicit positions with automatic placement (%q has no position)", role, unplaced),
		}
	}
}

func buildAuto(entries []Entry, src Source) (*PlateMap, error) {
	m := newMap(src.Role(), ModeAuto, len(entries))
	for _, e := range entries {
		w, err := src.Next()
		if err != nil {
			return nil, fmt.Errorf("placing %s: %w", e.Name, err)
		}
		m.add(e.Name, w)
	}
	return m, nil
}

type parsed struct {
	entry    Entry
	row, col int
}

func buildExplicit(entries []Entry, src Source) (*PlateMap, error) {
	items := make([]parsed, 0, len(entries))
	for _, e := range entries {
		row, col, err := core.ParseWellLabel(e.Position)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		items = append(items, parsed{entry: e, row: row, col: col})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].row != items[j].row {
			return items[i].row < items[j].row
		}
		return items[i].col < items[j].col
	})

	unit, err := src.Unit()
	if err != nil {
		return nil, err
	}

	m := newMap(src.Role(), ModeExplicit, len(items))
	for i, it := range items {
		if i > 0 && items[i-1].row == it.row && items[i-1].col == it.col {
			return nil, &core.InvalidWellLabelError{
				Label:   it.entry.Position,
				Labware: unit.Type.Name,
				Reason:  fmt.Sprintf("assigned to both %s and %s", items[i-1].entry.Name, it.entry.Name),
			}
		}
		w, err := core.WellOn(unit, it.entry.Position)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", it.entry.Name, err)
		}
		m.add(it.entry.Name, w)
	}
	return m, nil
}

// Mirror places every entity of m at the same row and column on the source's
// current unit. Maps spanning more than one unit cannot be mirrored.
func Mirror(m *PlateMap, src Source) (*PlateMap, error) {
	unit, err := src.Unit()
	if err != nil {
		return nil, err
	}
	out := newMap(src.Role(), ModeMirrored, m.Len())
	var first *core.LabwareUnit
	for _, a := range m.order {
		if first == nil {
			first = a.Well.Unit
		} else if a.Well.Unit != first {
			return nil, fmt.Errorf("cannot mirror %s map onto %s: entities span more than one %s unit",
				m.role, unit.Type.Name, first.Type.Name)
		}
		if !unit.Type.Contains(a.Well.Row, a.Well.Column) {
			return nil, &core.InvalidWellLabelError{
				Label:   a.Well.Label(),
				Labware: unit.Type.Name,
				Reason:  fmt.Sprintf("outside the %dx%d grid", unit.Type.Rows, unit.Type.Columns),
			}
		}
		out.add(a.Name, core.Well{Row: a.Well.Row, Column: a.Well.Column, Unit: unit})
	}
	return out, nil
}

// Columns groups the map's wells by unit and column, in column order.
// Wells inside a group are sorted top to bottom.
func Columns(m *PlateMap) [][]Assignment {
	type key struct {
		unit *core.LabwareUnit
		col  int
	}
	groups := make(map[key][]Assignment)
	var keys []key
	for _, a := range m.order {
		k := key{unit: a.Well.Unit, col: a.Well.Column}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], a)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		ui, uj := unitOrder(keys[i].unit), unitOrder(keys[j].unit)
		if ui != uj {
			return ui < uj
		}
		return keys[i].col < keys[j].col
	})

	out := make([][]Assignment, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		sort.SliceStable(g, func(i, j int) bool { return g[i].Well.Row < g[j].Well.Row })
		out = append(out, g)
	}
	return out
}

func unitOrder(u *core.LabwareUnit) int {
	if u == nil {
		return 0
	}
	return u.Index
}

func newMap(role string, mode Mode, n int) *PlateMap {
	return &PlateMap{
		role:  role,
		mode:  mode,
		order: make([]Assignment, 0, n),
		index: make(map[string]int, n),
	}
}

func (m *PlateMap) add(name string, w core.Well) {
	m.index[name] = len(m.order)
	m.order = append(m.order, Assignment{Name: name, Well: w})
}

// Role returns the role of the source the map was built from.
func (m *PlateMap) Role() string { return m.role }

// Mode returns how the map was built.
func (m *PlateMap) Mode() Mode { return m.mode }

// Len returns the number of entities.
func (m *PlateMap) Len() int { return len(m.order) }

// Names returns entity names in map order.
func (m *PlateMap) Names() []string {
	names := make([]string, len(m.order))
	for i, a := range m.order {
		names[i] = a.Name
	}
	return names
}

// Well returns the well assigned to name.
func (m *PlateMap) Well(name string) (core.Well, bool) {
	i, ok := m.index[name]
	if !ok {
		return core.Well{}, false
	}
	return m.order[i].Well, true
}

// Assignments returns the resolved pairs in map order.
func (m *PlateMap) Assignments() []Assignment {
	return append([]Assignment(nil), m.order...)
}
