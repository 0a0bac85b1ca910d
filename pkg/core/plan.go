package core

// TipPolicy controls tip replacement for an instruction.
type TipPolicy string

// Tip policies, named after the robot SDK's new_tip values.
const (
	TipAlways TipPolicy = "always"
	TipOnce   TipPolicy = "once"
)

// Mix describes a mix-after-dispense cycle.
type Mix struct {
	Repetitions int     `json:"repetitions"`
	Volume      float64 `json:"volume_ul"`
}

// TransferInstruction moves a volume of one logical entity between two wells.
// Instructions are values; once a Plan is built nothing mutates them.
type TransferInstruction struct {
	Entity      string    `json:"entity"`
	Pipette     string    `json:"pipette"`
	Channels    int       `json:"channels"`
	Source      Well      `json:"source"`
	Destination Well      `json:"destination"`
	Volume      float64   `json:"volume_ul"`
	Tips        TipPolicy `json:"new_tip"`
	TouchTip    bool      `json:"touch_tip,omitempty"`
	MixAfter    *Mix      `json:"mix_after,omitempty"`
	// DisposalVolume is the extra volume aspirated by a distribute; nil keeps the SDK default.
	DisposalVolume *float64 `json:"disposal_volume_ul,omitempty"`
}

// StepKind classifies a plan step.
type StepKind string

// Step kinds.
const (
	StepTransfer   StepKind = "transfer"
	StepDistribute StepKind = "distribute"
	StepComment    StepKind = "comment"
	StepPause      StepKind = "pause"
)

// Step is one unit of work for the execution layer.
// Transfer steps hold exactly one instruction with a fresh tip; distribute steps
// share one tip across all their instructions.
type Step struct {
	Kind         StepKind              `json:"kind"`
	Message      string                `json:"message,omitempty"`
	Instructions []TransferInstruction `json:"instructions,omitempty"`
}

// Plan is the ordered output of a protocol generation.
type Plan struct {
	Protocol string `json:"protocol"`
	Steps    []Step `json:"steps"`
}

// Instructions flattens all transfer instructions in execution order.
func (p *Plan) Instructions() []TransferInstruction {
	var out []TransferInstruction
	for _, s := range p.Steps {
		out = append(out, s.Instructions...)
	}
	return out
}

// Comments returns the comment and pause messages in order.
func (p *Plan) Comments() []string {
	var out []string
	for _, s := range p.Steps {
		if s.Kind == StepComment || s.Kind == StepPause {
			out = append(out, s.Message)
		}
	}
	return out
}

// TipsUsed counts tips consumed per pipette.
func (p *Plan) TipsUsed() map[string]int {
	used := make(map[string]int)
	for _, s := range p.Steps {
		switch s.Kind {
		case StepDistribute:
			if len(s.Instructions) > 0 {
				first := s.Instructions[0]
				used[first.Pipette] += channels(first)
			}
		case StepTransfer:
			for _, in := range s.Instructions {
				if in.Tips == TipAlways {
					used[in.Pipette] += channels(in)
				}
			}
		}
	}
	return used
}

func channels(in TransferInstruction) int {
	if in.Channels < 1 {
		return 1
	}
	return in.Channels
}
