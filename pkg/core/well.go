package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// maxRows is the number of single-letter row labels (A..Z).
const maxRows = 26

// Well is an addressable position inside a labware unit.
// Unit is a back reference; the unit does not own a list of its wells.
type Well struct {
	Row    int
	Column int
	Unit   *LabwareUnit
}

// Label returns the row-letter/column-number label, e.g. "B7".
func (w Well) Label() string {
	return FormatWellLabel(w.Row, w.Column)
}

// Position returns the label, suffixed with the unit number when the well
// does not live on the first unit of its role.
func (w Well) Position() string {
	if w.Unit == nil || w.Unit.Index == 0 {
		return w.Label()
	}
	return fmt.Sprintf("%s (unit %d)", w.Label(), w.Unit.Index+1)
}

// String mirrors the robot SDK's well naming, e.g. "A1 of nest_96_wellplate_200ul_flat on 9".
func (w Well) String() string {
	if w.Unit == nil {
		return w.Label()
	}
	return fmt.Sprintf("%s of %s", w.Label(), w.Unit)
}

// Slot returns the deck slot of the well's unit, or 0 when detached.
func (w Well) Slot() Slot {
	if w.Unit == nil {
		return 0
	}
	return w.Unit.Slot
}

// Same reports whether two wells address the same position of the same unit.
func (w Well) Same(o Well) bool {
	return w.Row == o.Row && w.Column == o.Column && w.Unit == o.Unit
}

type wellJSON struct {
	Well    string `json:"well"`
	Labware string `json:"labware,omitempty"`
	Slot    Slot   `json:"slot,omitempty"`
}

// MarshalJSON encodes the well by label and placement.
func (w Well) MarshalJSON() ([]byte, error) {
	out := wellJSON{Well: w.Label()}
	if w.Unit != nil {
		out.Labware = w.Unit.Type.Name
		out.Slot = w.Unit.Slot
	}
	return json.Marshal(out)
}

// FormatWellLabel renders a 0-based (row, column) as a label.
func FormatWellLabel(row, col int) string {
	if row < 0 || row >= maxRows {
		return fmt.Sprintf("R%dC%d", row+1, col+1)
	}
	return string(rune('A'+row)) + strconv.Itoa(col+1)
}

// ParseWellLabel parses a label such as "A1" or "h12" into a 0-based (row, column).
func ParseWellLabel(label string) (row, col int, err error) {
	s := strings.TrimSpace(label)
	if len(s) < 2 {
		return 0, 0, &InvalidWellLabelError{Label: label, Reason: "expected a row letter followed by a column number"}
	}
	letter := s[0]
	switch {
	case letter >= 'A' && letter <= 'Z':
		row = int(letter - 'A')
	case letter >= 'a' && letter <= 'z':
		row = int(letter - 'a')
	default:
		return 0, 0, &InvalidWellLabelError{Label: label, Reason: "row must be a letter A-Z"}
	}
	if s[1] < '0' || s[1] > '9' {
		return 0, 0, &InvalidWellLabelError{Label: label, Reason: "column must be a positive integer"}
	}
	n, convErr := strconv.Atoi(s[1:])
	if convErr != nil || n < 1 {
		return 0, 0, &InvalidWellLabelError{Label: label, Reason: "column must be a positive integer"}
	}
	return row, n - 1, nil
}

// WellOn resolves a label against a unit's grid.
func WellOn(unit *LabwareUnit, label string) (Well, error) {
	row, col, err := ParseWellLabel(label)
	if err != nil {
		return Well{}, err
	}
	if !unit.Type.Contains(row, col) {
		return Well{}, &InvalidWellLabelError{
			Label:   label,
			Labware: unit.Type.Name,
			Reason:  fmt.Sprintf("outside the %dx%d grid", unit.Type.Rows, unit.Type.Columns),
		}
	}
	return Well{Row: row, Column: col, Unit: unit}, nil
}
