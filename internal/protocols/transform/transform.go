// Package transform generates E. coli heat-shock transformation runs.
//
// In single-channel mode every vector gets the next free transformation well
// and competent cells and SOC come from tubes. In multichannel mode the
// transformation plate mirrors the vector plate position for position, cells
// are pre-loaded by the operator into column 1 of the cells plate, and every
// liquid moves one column at a time.
package transform

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/leapstack-labs/wellplan/internal/manifest"
	"github.com/leapstack-labs/wellplan/internal/planner"
	"github.com/leapstack-labs/wellplan/internal/platemap"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/leapstack-labs/wellplan/pkg/labware"
)

// Name is the registry name of the protocol.
const Name = "transform"

// ManifestHeader is the header row of the transformation manifest.
var ManifestHeader = []string{"Vector", "Vector Plate Well", "Transformed Cell Plate Well"}

func init() {
	protocols.Register(Name, func() protocols.Protocol { return &Protocol{} })
}

// Labware and pipettes chosen when a parameter is left empty.
const (
	defaultCellsTubes   = "opentrons_24_tuberack_nest_1.5ml_snapcap"
	defaultCellsPlate   = "nest_96_wellplate_100ul_pcr_full_skirt"
	defaultSOCTubes     = "opentrons_6_tuberack_falcon_50ml_conical"
	defaultSOCReservoir = "nest_12_reservoir_15ml"
	defaultSmallSingle  = "p20_single_gen2"
	defaultLargeSingle  = "p300_single_gen2"
	defaultSmallMulti   = "p20_multi_gen2"
	defaultLargeMulti   = "p300_multi_gen2"
)

// Params are the decoded transformation parameters.
type Params struct {
	VectorMap            map[string]string `mapstructure:"vector_map"`
	NumVectors           int               `mapstructure:"num_vectors"`
	VectorPlate          string            `mapstructure:"vector_plate"`
	TransformationPlate  string            `mapstructure:"transformation_plate"`
	CellsPlate           string            `mapstructure:"cells_plate"`
	SOCPlate             string            `mapstructure:"soc_plate"`
	SmallPipette         string            `mapstructure:"small_pipette"`
	LargePipette         string            `mapstructure:"large_pipette"`
	SmallTiprack         string            `mapstructure:"small_tiprack"`
	LargeTiprack         string            `mapstructure:"large_tiprack"`
	Multichannel         bool              `mapstructure:"multichannel"`
	CellsVolume          float64           `mapstructure:"cells_volume"`
	VectorVolume         float64           `mapstructure:"vector_volume"`
	SOCVolume            float64           `mapstructure:"soc_volume"`
	VectorMixRepetitions int               `mapstructure:"vector_mix_repetitions"`
}

// applyModeDefaults fills labware and pipettes left empty with the mode's defaults.
func (p *Params) applyModeDefaults() {
	pick := func(v *string, single, multi string) {
		if *v != "" {
			return
		}
		if p.Multichannel {
			*v = multi
		} else {
			*v = single
		}
	}
	pick(&p.CellsPlate, defaultCellsTubes, defaultCellsPlate)
	pick(&p.SOCPlate, defaultSOCTubes, defaultSOCReservoir)
	pick(&p.SmallPipette, defaultSmallSingle, defaultSmallMulti)
	pick(&p.LargePipette, defaultLargeSingle, defaultLargeMulti)
}

// Validate checks the parameters before anything is placed on the deck.
func (p *Params) Validate() error {
	if len(p.VectorMap) == 0 && p.NumVectors <= 0 {
		return &core.ConfigError{Field: "num_vectors", Message: "no vector info was provided: set vector_map or a positive num_vectors"}
	}
	if err := protocols.Positive("cells_volume", p.CellsVolume); err != nil {
		return err
	}
	if err := protocols.Positive("vector_volume", p.VectorVolume); err != nil {
		return err
	}
	if err := protocols.Positive("soc_volume", p.SOCVolume); err != nil {
		return err
	}
	if p.VectorMixRepetitions < 0 {
		return &core.ConfigError{Field: "vector_mix_repetitions", Message: "cannot be negative"}
	}
	return nil
}

// entries returns the vector map entries: explicit when vector_map is set,
// otherwise "Vector N" names placed automatically.
func (p *Params) entries() []platemap.Entry {
	if len(p.VectorMap) > 0 {
		return platemap.FromLabels(p.VectorMap)
	}
	names := make([]string, p.NumVectors)
	for i := range names {
		names[i] = fmt.Sprintf("Vector %d", i+1)
	}
	return platemap.Auto(names)
}

// Protocol implements protocols.Protocol.
type Protocol struct{}

// Name implements protocols.Protocol.
func (*Protocol) Name() string { return Name }

// Description implements protocols.Protocol.
func (*Protocol) Description() string {
	return "Chemically-competent cell transformation: cells, vector, ice, heat shock, SOC recovery"
}

// Defaults implements protocols.Protocol.
// Empty labware and pipette names are resolved per mode when generating.
func (*Protocol) Defaults() map[string]any {
	return map[string]any{
		"num_vectors":            0,
		"vector_plate":           "nest_96_wellplate_100ul_pcr_full_skirt",
		"transformation_plate":   "nest_96_wellplate_200ul_flat",
		"cells_plate":            "",
		"soc_plate":              "",
		"small_pipette":          "",
		"large_pipette":          "",
		"small_tiprack":          "",
		"large_tiprack":          "",
		"multichannel":           false,
		"cells_volume":           10.0,
		"vector_volume":          2.0,
		"soc_volume":             170.0,
		"vector_mix_repetitions": 3,
	}
}

// Prompts implements protocols.Protocol.
func (*Protocol) Prompts() []protocols.Prompt {
	return []protocols.Prompt{{
		Key:      "num_vectors",
		Question: "Number of vectors? ",
		Needed: func(params map[string]any) bool {
			return protocols.Missing(params, "vector_map") && protocols.Missing(params, "num_vectors")
		},
	}}
}

// Generate implements protocols.Protocol.
func (*Protocol) Generate(rt *protocols.Runtime, params map[string]any) (*protocols.Output, error) {
	var p Params
	if err := protocols.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	p.applyModeDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(p.VectorMap) > 0 && p.NumVectors > 0 && p.NumVectors != len(p.VectorMap) {
		rt.Logger.Warn("num_vectors ignored in favour of vector_map",
			slog.Int("num_vectors", p.NumVectors),
			slog.Int("vector_map", len(p.VectorMap)))
	}

	small, err := rt.Pipette(p.SmallPipette, p.SmallTiprack)
	if err != nil {
		return nil, err
	}
	large, err := rt.Pipette(p.LargePipette, p.LargeTiprack)
	if err != nil {
		return nil, err
	}
	if err := matchMode("small_pipette", small, p.Multichannel); err != nil {
		return nil, err
	}
	if err := matchMode("large_pipette", large, p.Multichannel); err != nil {
		return nil, err
	}

	g := &generator{rt: rt, p: p, small: small, large: large, b: planner.NewBuilder(Name)}
	if p.Multichannel {
		err = g.multichannel()
	} else {
		err = g.singleChannel()
	}
	if err != nil {
		return nil, err
	}

	man := manifest.New(ManifestHeader...)
	for _, a := range g.vectors.Assignments() {
		dst, _ := g.transformation.Well(a.Name)
		if err := man.Add(a.Name, a.Well.String(), dst.String()); err != nil {
			return nil, err
		}
	}
	return &protocols.Output{
		Plan:     g.b.Plan(),
		Maps:     []*platemap.PlateMap{g.vectors, g.transformation},
		Manifest: man,
	}, nil
}

func matchMode(field string, pip labware.Pipette, multichannel bool) error {
	if pip.Multichannel() == multichannel {
		return nil
	}
	return &core.ConfigError{
		Field:   field,
		Message: fmt.Sprintf("%s has %d channels, which does not match multichannel=%t", pip.Name, pip.Channels, multichannel),
	}
}

type generator struct {
	rt    *protocols.Runtime
	p     Params
	small labware.Pipette
	large labware.Pipette
	b     *planner.Builder

	vectors        *platemap.PlateMap
	transformation *platemap.PlateMap
}

func (g *generator) mapVectors() error {
	pool, err := g.rt.Pool(g.p.VectorPlate, "vectors")
	if err != nil {
		return err
	}
	m, err := platemap.Build(g.p.entries(), pool)
	if err != nil {
		return fmt.Errorf("mapping vectors: %w", err)
	}
	g.vectors = m
	return nil
}

func (g *generator) checkHeader() {
	g.b.Comment("**CHECK BEFORE RUNNING**")
	g.b.Comment("Ensure you have matched the expected vector platemap:")
	for _, a := range g.vectors.Assignments() {
		g.b.Comment("    VECTOR | %s -> %s", a.Name, a.Well)
	}
}

func (g *generator) mix() *core.Mix {
	if g.p.VectorMixRepetitions == 0 {
		return nil
	}
	return &core.Mix{Repetitions: g.p.VectorMixRepetitions, Volume: (g.p.CellsVolume + g.p.VectorVolume) / 2}
}

func (g *generator) heatShock() {
	g.b.Pause("Hold the transformation plate on ice for 30 minutes.")
	g.b.Pause("Heat shock at 42 °C for 30 seconds, then return to ice for 2 minutes.")
}

func (g *generator) recovery() {
	g.b.Pause("Incubate at 37 °C for 15 minutes.")
	g.b.Comment("Plate each transformation onto selective media for its vector.")
	g.b.Comment("Transformation platemap is as follows:")
	for _, a := range g.transformation.Assignments() {
		g.b.Comment("    TRANSFORMATION | %s -> %s", a.Name, a.Well)
	}
}

// tubes assigns destinations to as many source wells as their working volume requires.
func (g *generator) tubes(labwareName, role string, volume float64, dests []platemap.Assignment) ([]core.Well, [][]planner.Target, error) {
	pool, err := g.rt.Pool(labwareName, role)
	if err != nil {
		return nil, nil, err
	}
	perTube := len(dests)
	if capacity := pool.Labware().MaxVolume; capacity > 0 {
		perTube = int(math.Floor(capacity / volume))
		if perTube < 1 {
			return nil, nil, &core.ConfigError{
				Field:   role + "_volume",
				Message: fmt.Sprintf("%g µL does not fit in one well of %s (%g µL)", volume, labwareName, capacity),
			}
		}
	}

	var sources []core.Well
	var batches [][]planner.Target
	for start := 0; start < len(dests); start += perTube {
		end := min(start+perTube, len(dests))
		w, err := pool.Next()
		if err != nil {
			return nil, nil, fmt.Errorf("placing %s: %w", role, err)
		}
		batch := make([]planner.Target, 0, end-start)
		for _, d := range dests[start:end] {
			batch = append(batch, planner.Target{Well: d.Well, Volume: volume})
		}
		sources = append(sources, w)
		batches = append(batches, batch)
	}
	return sources, batches, nil
}

func (g *generator) singleChannel() error {
	if err := g.mapVectors(); err != nil {
		return err
	}
	pool, err := g.rt.Pool(g.p.TransformationPlate, "transformation")
	if err != nil {
		return err
	}
	m, err := platemap.Build(platemap.Auto(g.vectors.Names()), pool)
	if err != nil {
		return fmt.Errorf("mapping transformations: %w", err)
	}
	g.transformation = m

	dests := m.Assignments()
	cellSources, cellBatches, err := g.tubes(g.p.CellsPlate, "cells", g.p.CellsVolume, dests)
	if err != nil {
		return err
	}
	socSources, socBatches, err := g.tubes(g.p.SOCPlate, "soc", g.p.SOCVolume, dests)
	if err != nil {
		return err
	}

	g.checkHeader()
	for i, w := range cellSources {
		g.b.Comment("    CELLS | %g µL -> %s", g.p.CellsVolume*float64(len(cellBatches[i])), w)
	}
	for i, w := range socSources {
		g.b.Comment("    SOC | %g µL -> %s", g.p.SOCVolume*float64(len(socBatches[i])), w)
	}

	for i, src := range cellSources {
		g.b.Distribute(g.small, "competent cells", src, cellBatches[i])
	}
	for _, a := range g.vectors.Assignments() {
		dst, _ := m.Well(a.Name)
		g.b.Transfer(g.small, a.Name, a.Well, dst, g.p.VectorVolume, planner.WithMix(g.mix()))
	}
	g.heatShock()
	for i, src := range socSources {
		g.b.Distribute(g.large, "SOC", src, socBatches[i])
	}
	g.recovery()
	return nil
}

func (g *generator) multichannel() error {
	if err := g.mapVectors(); err != nil {
		return err
	}
	pool, err := g.rt.Pool(g.p.TransformationPlate, "transformation")
	if err != nil {
		return err
	}
	m, err := platemap.Mirror(g.vectors, pool)
	if err != nil {
		return fmt.Errorf("mapping transformations: %w", err)
	}
	g.transformation = m

	cells, err := g.rt.Load(g.p.CellsPlate, "cells")
	if err != nil {
		return err
	}
	soc, err := g.rt.Load(g.p.SOCPlate, "soc")
	if err != nil {
		return err
	}
	cellsWell, err := core.WellOn(cells, "A1")
	if err != nil {
		return err
	}
	socWell, err := core.WellOn(soc, "A1")
	if err != nil {
		return err
	}

	vectorCols := platemap.Columns(g.vectors)
	destCols := platemap.Columns(m)
	for _, col := range vectorCols {
		if len(col) < g.small.Channels {
			g.rt.Logger.Warn("partial column: the multichannel head also dispenses into empty rows",
				slog.String("column", planner.ColumnHead(col[0].Well).Label()),
				slog.Int("vectors", len(col)))
		}
	}

	g.checkHeader()
	g.b.Comment("    SOC | %g µL -> %s", g.p.SOCVolume*float64(g.large.Channels*len(destCols)), socWell)
	g.b.Comment("Pre-load %g µL of competent cells into every well of column 1 of %s before continuing.",
		g.p.CellsVolume*float64(len(destCols)), cells)
	g.b.DistributeColumns(g.small, "competent cells", cellsWell, destCols, g.p.CellsVolume)

	for _, col := range vectorCols {
		src := planner.ColumnHead(col[0].Well)
		dst, _ := m.Well(col[0].Name)
		g.b.Transfer(g.small, fmt.Sprintf("vectors column %d", src.Column+1), src, planner.ColumnHead(dst), g.p.VectorVolume, planner.WithMix(g.mix()))
	}
	g.heatShock()
	g.b.DistributeColumns(g.large, "SOC", socWell, destCols, g.p.SOCVolume)
	g.recovery()
	return nil
}
