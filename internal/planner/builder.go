package planner

import (
	"fmt"

	"github.com/leapstack-labs/wellplan/internal/platemap"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/leapstack-labs/wellplan/pkg/labware"
)

// Option adjusts a transfer or distribute instruction.
type Option func(*core.TransferInstruction)

// WithTouchTip touches the tip to the well wall after dispensing.
func WithTouchTip(on bool) Option {
	return func(in *core.TransferInstruction) { in.TouchTip = on }
}

// WithMix mixes after dispensing. A nil mix leaves the instruction unmixed.
func WithMix(m *core.Mix) Option {
	return func(in *core.TransferInstruction) {
		if m == nil {
			in.MixAfter = nil
			return
		}
		mix := *m
		in.MixAfter = &mix
	}
}

// WithDisposalVolume sets the extra volume aspirated by a distribute.
func WithDisposalVolume(v float64) Option {
	return func(in *core.TransferInstruction) { in.DisposalVolume = &v }
}

// Target is one destination of a distribute.
type Target struct {
	Well   core.Well
	Volume float64
}

// Builder appends steps to a plan in execution order.
type Builder struct {
	plan core.Plan
}

// NewBuilder starts an empty plan for protocol.
func NewBuilder(protocol string) *Builder {
	return &Builder{plan: core.Plan{Protocol: protocol}}
}

// Comment adds an operator-facing message.
func (b *Builder) Comment(format string, args ...any) {
	b.plan.Steps = append(b.plan.Steps, core.Step{Kind: core.StepComment, Message: fmt.Sprintf(format, args...)})
}

// Pause halts the run until the operator resumes it.
func (b *Builder) Pause(format string, args ...any) {
	b.plan.Steps = append(b.plan.Steps, core.Step{Kind: core.StepPause, Message: fmt.Sprintf(format, args...)})
}

// Transfer moves volume from src to dst with a fresh tip.
func (b *Builder) Transfer(p labware.Pipette, entity string, src, dst core.Well, volume float64, opts ...Option) {
	in := newInstruction(p, entity, src, dst, volume, core.TipAlways, opts)
	b.plan.Steps = append(b.plan.Steps, core.Step{Kind: core.StepTransfer, Instructions: []core.TransferInstruction{in}})
}

// Distribute dispenses from one source into many destinations with a single tip.
// Destinations whose volume is zero are skipped.
func (b *Builder) Distribute(p labware.Pipette, entity string, src core.Well, targets []Target, opts ...Option) {
	step := core.Step{Kind: core.StepDistribute}
	for _, t := range targets {
		if t.Volume == 0 {
			continue
		}
		step.Instructions = append(step.Instructions, newInstruction(p, entity, src, t.Well, t.Volume, core.TipOnce, opts))
	}
	if len(step.Instructions) == 0 {
		return
	}
	b.plan.Steps = append(b.plan.Steps, step)
}

// DistributeColumns dispenses one batch per column with a multichannel pipette.
// Each instruction addresses row A of its column and moves volume per channel.
func (b *Builder) DistributeColumns(p labware.Pipette, entity string, src core.Well, columns [][]platemap.Assignment, volume float64, opts ...Option) {
	step := core.Step{Kind: core.StepDistribute}
	for _, col := range columns {
		if len(col) == 0 {
			continue
		}
		step.Instructions = append(step.Instructions, newInstruction(p, entity, src, ColumnHead(col[0].Well), volume, core.TipOnce, opts))
	}
	if len(step.Instructions) == 0 {
		return
	}
	b.plan.Steps = append(b.plan.Steps, step)
}

// ColumnHead returns the row A well of w's column, where a multichannel head aligns.
func ColumnHead(w core.Well) core.Well {
	return core.Well{Row: 0, Column: w.Column, Unit: w.Unit}
}

// Plan returns the steps built so far. The returned plan shares nothing with the builder.
func (b *Builder) Plan() *core.Plan {
	out := core.Plan{Protocol: b.plan.Protocol, Steps: make([]core.Step, len(b.plan.Steps))}
	for i, s := range b.plan.Steps {
		s.Instructions = append([]core.TransferInstruction(nil), s.Instructions...)
		out.Steps[i] = s
	}
	return &out
}

func newInstruction(p labware.Pipette, entity string, src, dst core.Well, volume float64, tips core.TipPolicy, opts []Option) core.TransferInstruction {
	channels := p.Channels
	if channels < 1 {
		channels = 1
	}
	in := core.TransferInstruction{
		Entity:      entity,
		Pipette:     p.Name,
		Channels:    channels,
		Source:      src,
		Destination: dst,
		Volume:      volume,
		Tips:        tips,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in
}
