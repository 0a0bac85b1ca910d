package planner

import (
	"encoding/json"
	"testing"

	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_Advance(t *testing.T) {
	var l Lifecycle
	assert.Equal(t, StageInit, l.Stage())

	for _, next := range []Stage{StageReagentsMapped, StageProductsMapped, StageVolumesComputed, StageInstructionsEmitted} {
		require.NoError(t, l.Advance(next))
		assert.Equal(t, next, l.Stage())
	}
}

func TestLifecycle_RejectsSkipping(t *testing.T) {
	tests := []struct {
		name string
		from []Stage
		next Stage
	}{
		{"skip to products", nil, StageProductsMapped},
		{"skip volumes", []Stage{StageReagentsMapped, StageProductsMapped}, StageInstructionsEmitted},
		{"repeat", []Stage{StageReagentsMapped}, StageReagentsMapped},
		{"backwards", []Stage{StageReagentsMapped}, StageInit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l Lifecycle
			for _, s := range tt.from {
				require.NoError(t, l.Advance(s))
			}
			before := l.Stage()

			err := l.Advance(tt.next)

			var stageErr *core.StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, before.String(), stageErr.Current)
			assert.Equal(t, tt.next.String(), stageErr.Want)
			assert.Equal(t, before, l.Stage())
		})
	}
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "INIT", StageInit.String())
	assert.Equal(t, "VOLUMES_COMPUTED", StageVolumesComputed.String())
	assert.Equal(t, "UNKNOWN", Stage(42).String())
}

func TestTopUp(t *testing.T) {
	tests := []struct {
		name       string
		target     float64
		components []float64
		want       float64
	}{
		{"assembly defaults", 10, []float64{0.5, 0.5, 0.5, 1.0, 0.5}, 7},
		{"no components", 10, nil, 10},
		{"exact fill", 2, []float64{1, 1}, 0},
		{"float noise rounded", 1, []float64{0.1, 0.2}, 0.7},
		{"tiny remainder", 1, []float64{0.9999999}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TopUp(tt.target, tt.components...)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
		})
	}
}

func TestTopUp_ExactJSON(t *testing.T) {
	got, err := TopUp(10, 0.3, 0.3, 0.5, 1.0, 0.5)
	require.NoError(t, err)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Equal(t, "7.4", string(data))
}

func TestTopUp_Negative(t *testing.T) {
	_, err := TopUp(10, 5, 5, 2)

	var neg *core.NegativeVolumeError
	require.ErrorAs(t, err, &neg)
	assert.InDelta(t, -2, neg.Volume, 1e-9)
	assert.InDelta(t, 12, neg.Components, 1e-9)
	assert.InDelta(t, 10, neg.Target, 1e-9)

	_, err = topUpFor("c1", 10, 11)
	require.ErrorAs(t, err, &neg)
	assert.Equal(t, "c1", neg.Entity)
}
