package core

import (
	"errors"
	"fmt"
)

// ErrStoreNotOpen is returned by Store implementations used before Open.
var ErrStoreNotOpen = errors.New("database not opened")

// DeckExhaustedError is returned when a labware unit needs a slot and none is left.
// A protocol missing a labware placement cannot run, so this is always fatal.
type DeckExhaustedError struct {
	Labware string
	Role    string
	Slots   int
}

func (e *DeckExhaustedError) Error() string {
	return fmt.Sprintf("deck exhausted: no free slot for %s (%s) after placing %d units\nHint: split the samples across two runs or free deck slots", e.Labware, e.Role, e.Slots)
}

// DuplicateEntityError is returned when a logical entity name appears twice in a map.
type DuplicateEntityError struct {
	Name string
	Map  string
}

func (e *DuplicateEntityError) Error() string {
	if e.Map == "" {
		return fmt.Sprintf("duplicate entity %q", e.Name)
	}
	return fmt.Sprintf("duplicate entity %q in %s map", e.Name, e.Map)
}

// InvalidWellLabelError is returned for labels that do not parse or fall outside a grid.
type InvalidWellLabelError struct {
	Label   string
	Labware string
	Reason  string
}

func (e *InvalidWellLabelError) Error() string {
	if e.Label == "" {
		return "invalid well layout: " + e.Reason
	}
	if e.Labware == "" {
		return fmt.Sprintf("invalid well label %q: %s", e.Label, e.Reason)
	}
	return fmt.Sprintf("invalid well label %q on %s: %s", e.Label, e.Labware, e.Reason)
}

// NegativeVolumeError is returned when dilution arithmetic yields a sub-zero top-up.
// It signals too many (or too concentrated) components for the target volume.
type NegativeVolumeError struct {
	Entity     string
	Target     float64
	Components float64
	Volume     float64
}

func (e *NegativeVolumeError) Error() string {
	return fmt.Sprintf("negative volume for %s: target %g µL minus components %g µL = %g µL\nHint: lower component volumes or raise the target volume",
		e.Entity, e.Target, e.Components, e.Volume)
}

// StageError is returned when a planning lifecycle step runs out of order.
type StageError struct {
	Current string
	Want    string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("planner stage %s cannot follow %s", e.Want, e.Current)
}

// ConfigError reports an invalid parameter set.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Message
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}
