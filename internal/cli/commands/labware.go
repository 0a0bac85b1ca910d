package commands

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/wellplan/internal/cli/output"
	"github.com/leapstack-labs/wellplan/pkg/labware"
	"github.com/spf13/cobra"
)

// LabwareInfo is the listing form of a labware type.
type LabwareInfo struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Rows      int     `json:"rows"`
	Columns   int     `json:"columns"`
	Wells     int     `json:"wells"`
	MaxVolume float64 `json:"max_volume_ul"`
	Custom    bool    `json:"custom,omitempty"`
}

// PipetteInfo is the listing form of a pipette.
type PipetteInfo struct {
	Name      string  `json:"name"`
	Channels  int     `json:"channels"`
	MinVolume float64 `json:"min_volume_ul"`
	MaxVolume float64 `json:"max_volume_ul"`
	Tiprack   string  `json:"tiprack"`
}

// LabwareOutput is the JSON output of the labware command.
type LabwareOutput struct {
	Labware  []LabwareInfo `json:"labware"`
	Pipettes []PipetteInfo `json:"pipettes"`
}

// NewLabwareCommand creates the labware command.
func NewLabwareCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "labware",
		Short: "List known labware and pipettes",
		Long: `List the labware layouts and pipettes wellplan can place.

Custom labware defined under labware: in wellplan.yaml is listed alongside the
built-in catalog and marked as custom.`,
		Example: `  wellplan labware
  wellplan labware --kind tiprack
  wellplan labware -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLabware(NewCommandContext(cmd), kind)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only list labware of this kind (plate, tuberack, reservoir, tiprack)")
	return cmd
}

func runLabware(cmdCtx *CommandContext, kind string) error {
	catalog := labware.Default()
	custom := make(map[string]bool, len(cmdCtx.Cfg.Labware))
	for _, def := range cmdCtx.Cfg.Labware {
		if err := catalog.Add(def); err != nil {
			return fmt.Errorf("invalid custom labware: %w", err)
		}
		custom[def.Name] = true
	}

	var out LabwareOutput
	for _, t := range catalog.List() {
		if kind != "" && string(t.Kind) != kind {
			continue
		}
		out.Labware = append(out.Labware, LabwareInfo{
			Name:      t.Name,
			Kind:      string(t.Kind),
			Rows:      t.Rows,
			Columns:   t.Columns,
			Wells:     t.WellsPerUnit(),
			MaxVolume: t.MaxVolume,
			Custom:    custom[t.Name],
		})
	}
	for _, p := range catalog.Pipettes() {
		out.Pipettes = append(out.Pipettes, PipetteInfo(p))
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Labware (%d)", len(out.Labware)))
	rows := make([][]string, 0, len(out.Labware))
	for _, l := range out.Labware {
		name := l.Name
		if l.Custom {
			name += " (custom)"
		}
		rows = append(rows, []string{
			name, output.Title(l.Kind), fmt.Sprintf("%dx%d", l.Rows, l.Columns),
			strconv.Itoa(l.Wells), strconv.FormatFloat(l.MaxVolume, 'g', -1, 64),
		})
	}
	r.Table([]string{"Name", "Kind", "Layout", "Wells", "Max µL"}, rows)

	r.Header(1, fmt.Sprintf("Pipettes (%d)", len(out.Pipettes)))
	rows = rows[:0]
	for _, p := range out.Pipettes {
		rows = append(rows, []string{
			p.Name, strconv.Itoa(p.Channels),
			fmt.Sprintf("%g-%g", p.MinVolume, p.MaxVolume), p.Tiprack,
		})
	}
	r.Table([]string{"Name", "Channels", "Range µL", "Tip rack"}, rows)
	return nil
}
