// Package protocols generates complete protocol runs.
//
// Each protocol flow lives in its own subpackage and registers a factory here
// from init(). Generate builds a fresh Runtime (deck, labware catalog, pipette
// mounts) for every call, so nothing allocated for one run is visible to another
// and runs may proceed concurrently.
package protocols

import (
	"github.com/leapstack-labs/wellplan/internal/manifest"
	"github.com/leapstack-labs/wellplan/internal/platemap"
	"github.com/leapstack-labs/wellplan/pkg/core"
)

// Protocol is one liquid-handling flow.
type Protocol interface {
	Name() string
	Description() string
	// Defaults returns the parameter defaults, keyed like the config file.
	Defaults() map[string]any
	// Prompts lists values an operator can be asked for when they are missing.
	Prompts() []Prompt
	// Generate builds the plan. params already has defaults merged in.
	Generate(rt *Runtime, params map[string]any) (*Output, error)
}

// Prompt describes a parameter that can be collected interactively.
type Prompt struct {
	Key      string
	Question string
	// Needed reports whether params lack a usable value for Key.
	Needed func(params map[string]any) bool
}

// Output is what a protocol produces before tip racks are placed.
type Output struct {
	Plan     *core.Plan
	Maps     []*platemap.PlateMap
	Manifest *manifest.Manifest
}
