package core

import "fmt"

// Slot identifies one deck position.
type Slot int

// LabwareKind classifies a labware type.
type LabwareKind string

// Labware kinds.
const (
	KindPlate     LabwareKind = "plate"
	KindTubeRack  LabwareKind = "tuberack"
	KindReservoir LabwareKind = "reservoir"
	KindTipRack   LabwareKind = "tiprack"
)

// LabwareType describes the fixed well layout of a named labware.
type LabwareType struct {
	Name    string
	Kind    LabwareKind
	Rows    int
	Columns int
	// MaxVolume is the working volume of a single well in µL.
	MaxVolume float64
}

// WellsPerUnit returns the number of wells one unit of this labware owns.
func (t LabwareType) WellsPerUnit() int {
	return t.Rows * t.Columns
}

// Contains reports whether a 0-based (row, column) is addressable on this labware.
func (t LabwareType) Contains(row, col int) bool {
	return row >= 0 && row < t.Rows && col >= 0 && col < t.Columns
}

// Validate checks the layout is usable.
func (t LabwareType) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("labware name is required")
	}
	if t.Rows <= 0 || t.Columns <= 0 {
		return fmt.Errorf("labware %s: rows and columns must be positive (got %dx%d)", t.Name, t.Rows, t.Columns)
	}
	if t.Rows > maxRows {
		return fmt.Errorf("labware %s: at most %d rows are addressable (got %d)", t.Name, maxRows, t.Rows)
	}
	if t.MaxVolume < 0 {
		return fmt.Errorf("labware %s: max volume cannot be negative", t.Name)
	}
	return nil
}

// LabwareUnit is one physical instance of a labware type placed on a slot.
type LabwareUnit struct {
	Type LabwareType
	Slot Slot
	// Role is the logical purpose of the unit (e.g. "reagents", "tips:p20_single_gen2").
	Role string
	// Index counts units provisioned for the same role, starting at 0.
	Index int
}

func (u *LabwareUnit) String() string {
	return fmt.Sprintf("%s on %d", u.Type.Name, u.Slot)
}
