package planner

import (
	"testing"

	"github.com/leapstack-labs/wellplan/internal/deck"
	"github.com/leapstack-labs/wellplan/internal/wellpool"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/leapstack-labs/wellplan/pkg/labware"
	"github.com/stretchr/testify/require"
)

var (
	plate96 = core.LabwareType{Name: "nest_96_wellplate_100ul_pcr_full_skirt", Kind: core.KindPlate, Rows: 8, Columns: 12}
	p20     = labware.Pipette{Name: "p20_single_gen2", Channels: 1, MinVolume: 1, MaxVolume: 20, Tiprack: "opentrons_96_tiprack_20ul"}
	p20m    = labware.Pipette{Name: "p20_multi_gen2", Channels: 8, MinVolume: 1, MaxVolume: 20, Tiprack: "opentrons_96_tiprack_20ul"}
)

func newSources(t *testing.T, slots ...core.Slot) (*wellpool.Pool, *wellpool.Pool) {
	t.Helper()
	if len(slots) == 0 {
		slots = deck.DefaultSlots()
	}
	a, err := deck.NewAllocator(slots, nil)
	require.NoError(t, err)
	return wellpool.New(a, plate96, "reagents"), wellpool.New(a, plate96, "products")
}
