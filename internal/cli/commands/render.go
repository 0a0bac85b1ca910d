package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/wellplan/internal/cli/output"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/leapstack-labs/wellplan/pkg/core"
)

// renderResult reports a generation in the renderer's mode.
func renderResult(r *output.Renderer, res *protocols.Result, written []string) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}

	r.Header(1, output.Title(res.Protocol)+" plan")
	r.KeyValue("Steps", len(res.Plan.Steps))
	r.KeyValue("Instructions", len(res.Plan.Instructions()))
	r.KeyValue("Params digest", shortDigest(res.ParamsDigest))
	r.KeyValue("Plan digest", shortDigest(res.PlanDigest))
	r.Println("")

	r.Header(2, "Deck layout")
	rows := make([][]string, 0, len(res.Layout))
	for _, p := range res.Layout {
		rows = append(rows, []string{strconv.Itoa(int(p.Slot)), p.Labware, p.Role, strconv.Itoa(p.Unit + 1)})
	}
	r.Table([]string{"Slot", "Labware", "Role", "Unit"}, rows)

	if len(res.Pipettes) > 0 {
		r.Header(2, "Pipettes")
		rows = rows[:0]
		for _, p := range res.Pipettes {
			rows = append(rows, []string{p.Name, p.Mount, p.Tiprack, strconv.Itoa(p.Tips), joinSlots(p.Racks)})
		}
		r.Table([]string{"Pipette", "Mount", "Tip rack", "Tips", "Rack slots"}, rows)
	}

	for _, m := range res.Maps {
		r.Header(2, fmt.Sprintf("%s map (%s)", output.Title(m.Role), m.Mode))
		rows = rows[:0]
		for _, a := range m.Assignments {
			rows = append(rows, []string{a.Name, a.Well.Position()})
		}
		r.Table([]string{"Name", "Well"}, rows)
	}

	r.Header(2, "Steps")
	for i, step := range res.Plan.Steps {
		r.Printf("%d. %s\n", i+1, describeStep(step))
		for _, in := range step.Instructions {
			r.Printf("   - %s\n", describeInstruction(in))
		}
	}
	r.Println("")

	for _, path := range written {
		r.StatusLine(path, "success", "written")
	}
	return nil
}

func describeStep(step core.Step) string {
	switch step.Kind {
	case core.StepComment:
		return "comment: " + step.Message
	case core.StepPause:
		return "pause: " + step.Message
	case core.StepDistribute:
		if len(step.Instructions) == 0 {
			return "distribute"
		}
		first := step.Instructions[0]
		return fmt.Sprintf("distribute %s from %s (one tip)", first.Entity, first.Source)
	}
	return string(step.Kind)
}

func describeInstruction(in core.TransferInstruction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%g µL %s: %s -> %s [%s", in.Volume, in.Entity, in.Source.Position(), in.Destination.Position(), in.Pipette)
	if in.Tips == core.TipAlways {
		b.WriteString(", new tip")
	}
	if in.TouchTip {
		b.WriteString(", touch tip")
	}
	if in.MixAfter != nil {
		fmt.Fprintf(&b, ", mix %dx %g µL", in.MixAfter.Repetitions, in.MixAfter.Volume)
	}
	b.WriteString("]")
	return b.String()
}

func joinSlots(slots []core.Slot) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = strconv.Itoa(int(s))
	}
	return strings.Join(parts, ", ")
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
