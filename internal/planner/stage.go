package planner

import (
	"errors"
	"math"

	"github.com/leapstack-labs/wellplan/pkg/core"
)

// Stage is a step of the planning lifecycle.
type Stage int

// Lifecycle stages, in the only order they may be reached.
const (
	StageInit Stage = iota
	StageReagentsMapped
	StageProductsMapped
	StageVolumesComputed
	StageInstructionsEmitted
)

var stageNames = [...]string{
	StageInit:                "INIT",
	StageReagentsMapped:      "REAGENTS_MAPPED",
	StageProductsMapped:      "PRODUCTS_MAPPED",
	StageVolumesComputed:     "VOLUMES_COMPUTED",
	StageInstructionsEmitted: "INSTRUCTIONS_EMITTED",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "UNKNOWN"
	}
	return stageNames[s]
}

// Lifecycle tracks the current stage of one planning run.
type Lifecycle struct {
	stage Stage
}

// Stage returns the current stage.
func (l *Lifecycle) Stage() Stage { return l.stage }

// Advance moves to next, which must directly follow the current stage.
func (l *Lifecycle) Advance(next Stage) error {
	if next != l.stage+1 {
		return &core.StageError{Current: l.stage.String(), Want: next.String()}
	}
	l.stage = next
	return nil
}

// volumeScale rounds computed volumes to 1e-6 µL.
const volumeScale = 1e6

// TopUp returns the volume needed to bring the components up to target.
// A negative result is an error; it is never clipped to zero.
func TopUp(target float64, components ...float64) (float64, error) {
	sum := 0.0
	for _, c := range components {
		sum += c
	}
	v := math.Round((target-sum)*volumeScale) / volumeScale
	if v == 0 {
		v = 0 // normalise -0
	}
	if v < 0 {
		return 0, &core.NegativeVolumeError{Target: target, Components: sum, Volume: v}
	}
	return v, nil
}

// topUpFor is TopUp with the offending entity recorded on failure.
func topUpFor(entity string, target float64, components ...float64) (float64, error) {
	v, err := TopUp(target, components...)
	var neg *core.NegativeVolumeError
	if errors.As(err, &neg) {
		neg.Entity = entity
	}
	return v, err
}
