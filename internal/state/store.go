// Package state records protocol generations in a SQLite run ledger.
//
// Every recorded run carries a digest of its effective parameters and of the
// plan it produced, so that two runs with the same parameters can be checked
// for identical output.
package state

import (
	"github.com/leapstack-labs/wellplan/pkg/core"
)

// Type aliases so callers can stay inside this package for ledger types.
type (
	// Store is an alias for core.Store.
	Store = core.Store

	// RunStatus is an alias for core.RunStatus.
	RunStatus = core.RunStatus

	// Run is an alias for core.Run.
	Run = core.Run
)

// Re-exported status constants.
const (
	RunStatusCompleted = core.RunStatusCompleted
	RunStatusFailed    = core.RunStatusFailed
)

// Reproducible reports whether every completed run in runs produced the same plan.
func Reproducible(runs []*Run) bool {
	plan := ""
	for _, r := range runs {
		if r.Status != RunStatusCompleted {
			continue
		}
		if plan == "" {
			plan = r.PlanDigest
			continue
		}
		if r.PlanDigest != plan {
			return false
		}
	}
	return true
}
