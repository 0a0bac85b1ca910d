// Package deck hands out deck slots for labware units.
package deck

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/wellplan/pkg/core"
)

// DefaultSlots returns the standard placement order: slot 11 down to slot 1.
func DefaultSlots() []core.Slot {
	slots := make([]core.Slot, 0, 11)
	for s := 11; s >= 1; s-- {
		slots = append(slots, core.Slot(s))
	}
	return slots
}

// Allocator consumes slots from a fixed ordered pool, each at most once.
type Allocator struct {
	slots  []core.Slot
	next   int
	placed []*core.LabwareUnit
	counts map[string]int
	logger *slog.Logger
}

// NewAllocator creates an allocator over the given slot order.
// A nil logger discards output.
func NewAllocator(slots []core.Slot, logger *slog.Logger) (*Allocator, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("deck needs at least one slot")
	}
	seen := make(map[core.Slot]bool, len(slots))
	for _, s := range slots {
		if s <= 0 {
			return nil, fmt.Errorf("invalid deck slot %d", s)
		}
		if seen[s] {
			return nil, fmt.Errorf("deck slot %d listed twice", s)
		}
		seen[s] = true
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Allocator{
		slots:  append([]core.Slot(nil), slots...),
		counts: make(map[string]int),
		logger: logger,
	}, nil
}

// Next consumes the next unused slot.
func (a *Allocator) Next() (core.Slot, error) {
	if a.next >= len(a.slots) {
		return 0, &core.DeckExhaustedError{Slots: len(a.slots)}
	}
	s := a.slots[a.next]
	a.next++
	return s, nil
}

// Load places a new unit of the labware type on the next free slot.
func (a *Allocator) Load(lt core.LabwareType, role string) (*core.LabwareUnit, error) {
	slot, err := a.Next()
	if err != nil {
		if exhausted, ok := err.(*core.DeckExhaustedError); ok {
			exhausted.Labware = lt.Name
			exhausted.Role = role
		}
		return nil, err
	}
	unit := &core.LabwareUnit{
		Type:  lt,
		Slot:  slot,
		Role:  role,
		Index: a.counts[role],
	}
	a.counts[role]++
	a.placed = append(a.placed, unit)
	a.logger.Debug("loaded labware",
		slog.String("labware", lt.Name),
		slog.String("role", role),
		slog.Int("slot", int(slot)),
		slog.Int("unit", unit.Index))
	return unit, nil
}

// Remaining returns the number of free slots.
func (a *Allocator) Remaining() int {
	return len(a.slots) - a.next
}

// Layout returns the placed units in placement order.
func (a *Allocator) Layout() []*core.LabwareUnit {
	return append([]*core.LabwareUnit(nil), a.placed...)
}
