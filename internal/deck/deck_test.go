package deck

import (
	"testing"

	"github.com/leapstack-labs/wellplan/internal/testutil"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var plate = core.LabwareType{Name: "nest_96_wellplate_200ul_flat", Kind: core.KindPlate, Rows: 8, Columns: 12}

func TestDefaultSlots(t *testing.T) {
	slots := DefaultSlots()
	require.Len(t, slots, 11)
	assert.Equal(t, core.Slot(11), slots[0])
	assert.Equal(t, core.Slot(1), slots[10])
}

func TestNewAllocator_Validation(t *testing.T) {
	tests := []struct {
		name  string
		slots []core.Slot
	}{
		{"empty", nil},
		{"zero slot", []core.Slot{3, 0}},
		{"duplicate", []core.Slot{3, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAllocator(tt.slots, nil)
			assert.Error(t, err)
		})
	}
}

func TestAllocator_NextUntilExhausted(t *testing.T) {
	a, err := NewAllocator([]core.Slot{5, 2, 8}, testutil.NewTestLogger(t))
	require.NoError(t, err)

	var got []core.Slot
	for i := 0; i < 3; i++ {
		s, err := a.Next()
		require.NoError(t, err)
		got = append(got, s)
	}
	assert.Equal(t, []core.Slot{5, 2, 8}, got)
	assert.Equal(t, 0, a.Remaining())

	_, err = a.Next()
	var exhausted *core.DeckExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Slots)
}

func TestAllocator_Load(t *testing.T) {
	a, err := NewAllocator(DefaultSlots(), nil)
	require.NoError(t, err)

	u1, err := a.Load(plate, "reagents")
	require.NoError(t, err)
	u2, err := a.Load(plate, "products")
	require.NoError(t, err)
	u3, err := a.Load(plate, "reagents")
	require.NoError(t, err)

	assert.Equal(t, core.Slot(11), u1.Slot)
	assert.Equal(t, core.Slot(10), u2.Slot)
	assert.Equal(t, core.Slot(9), u3.Slot)
	assert.Equal(t, 0, u1.Index)
	assert.Equal(t, 0, u2.Index)
	assert.Equal(t, 1, u3.Index, "unit index counts per role")

	layout := a.Layout()
	require.Len(t, layout, 3)
	assert.Same(t, u1, layout[0])
	assert.Same(t, u3, layout[2])
	assert.Equal(t, 8, a.Remaining())
}

func TestAllocator_LoadExhaustedNamesLabware(t *testing.T) {
	a, err := NewAllocator([]core.Slot{1}, nil)
	require.NoError(t, err)

	_, err = a.Load(plate, "vectors")
	require.NoError(t, err)

	_, err = a.Load(plate, "cells")
	var exhausted *core.DeckExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, plate.Name, exhausted.Labware)
	assert.Equal(t, "cells", exhausted.Role)
	assert.Len(t, a.Layout(), 1, "failed loads must not be placed")
}

func TestAllocator_Deterministic(t *testing.T) {
	run := func() []core.Slot {
		a, err := NewAllocator(DefaultSlots(), nil)
		require.NoError(t, err)
		var out []core.Slot
		for _, role := range []string{"a", "b", "a", "c"} {
			u, err := a.Load(plate, role)
			require.NoError(t, err)
			out = append(out, u.Slot)
		}
		return out
	}
	assert.Equal(t, run(), run())
}
