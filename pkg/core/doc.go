// Package core defines the shared language of the wellplan system.
//
// This package contains:
//   - Deck entities (Slot, LabwareType, LabwareUnit, Well)
//   - Plan entities (TransferInstruction, Step, Plan)
//   - The error taxonomy shared by the allocators and planners
//   - Run ledger types and the Store interface
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
