// Package glycerol generates glycerol stock runs: every culture is split into
// one or more cryo tubes pre-filled with glycerol.
package glycerol

import (
	"fmt"

	"github.com/leapstack-labs/wellplan/internal/manifest"
	"github.com/leapstack-labs/wellplan/internal/planner"
	"github.com/leapstack-labs/wellplan/internal/platemap"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/leapstack-labs/wellplan/pkg/core"
)

// Name is the registry name of the protocol.
const Name = "glycerol"

// ManifestHeader is the header row of the stock manifest.
var ManifestHeader = []string{"Sample", "Culture Well", "Cryo Tube Well"}

func init() {
	protocols.Register(Name, func() protocols.Protocol { return &Protocol{} })
}

// Params are the decoded glycerol stock parameters.
type Params struct {
	NumSamples     int     `mapstructure:"num_samples"`
	Repeats        int     `mapstructure:"repeats"`
	CryoRack       string  `mapstructure:"cryo_rack"`
	SamplePlate    string  `mapstructure:"sample_plate"`
	GlycerolRes    string  `mapstructure:"glycerol_res"`
	Pipette        string  `mapstructure:"pipette"`
	Tiprack        string  `mapstructure:"tiprack"`
	GlycerolVolume float64 `mapstructure:"glycerol_volume"`
	CultureVolume  float64 `mapstructure:"culture_volume"`
}

// Validate checks the parameters before anything is placed on the deck.
func (p *Params) Validate() error {
	if p.NumSamples <= 0 {
		return &core.ConfigError{Field: "num_samples", Message: "must be positive"}
	}
	if p.Repeats <= 0 {
		return &core.ConfigError{Field: "repeats", Message: "must be positive"}
	}
	if err := protocols.Positive("glycerol_volume", p.GlycerolVolume); err != nil {
		return err
	}
	return protocols.Positive("culture_volume", p.CultureVolume)
}

// Protocol implements protocols.Protocol.
type Protocol struct{}

// Name implements protocols.Protocol.
func (*Protocol) Name() string { return Name }

// Description implements protocols.Protocol.
func (*Protocol) Description() string {
	return "Glycerol stocks: glycerol into every cryo tube, then each culture into its repeats"
}

// Defaults implements protocols.Protocol.
func (*Protocol) Defaults() map[string]any {
	return map[string]any{
		"num_samples":     0,
		"repeats":         0,
		"cryo_rack":       "cryo_tube_rack",
		"sample_plate":    "nest_96_wellplate_2ml_deep",
		"glycerol_res":    "agilent_1_reservoir_290ml",
		"pipette":         "p1000_single_gen2",
		"tiprack":         "",
		"glycerol_volume": 500.0,
		"culture_volume":  500.0,
	}
}

// Prompts implements protocols.Protocol.
func (*Protocol) Prompts() []protocols.Prompt {
	return []protocols.Prompt{
		{
			Key:      "num_samples",
			Question: "Number of samples? ",
			Needed:   func(params map[string]any) bool { return protocols.Missing(params, "num_samples") },
		},
		{
			Key:      "repeats",
			Question: "Stocks per sample? ",
			Needed:   func(params map[string]any) bool { return protocols.Missing(params, "repeats") },
		},
	}
}

// Generate implements protocols.Protocol.
func (*Protocol) Generate(rt *protocols.Runtime, params map[string]any) (*protocols.Output, error) {
	var p Params
	if err := protocols.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	pipette, err := rt.Pipette(p.Pipette, p.Tiprack)
	if err != nil {
		return nil, err
	}
	if pipette.Multichannel() {
		return nil, &core.ConfigError{Field: "pipette", Message: "glycerol stocks run with a single-channel pipette"}
	}

	samplePool, err := rt.Pool(p.SamplePlate, "samples")
	if err != nil {
		return nil, err
	}
	names := make([]string, p.NumSamples)
	for i := range names {
		names[i] = fmt.Sprintf("Sample %d", i+1)
	}
	samples, err := platemap.Build(platemap.Auto(names), samplePool)
	if err != nil {
		return nil, fmt.Errorf("mapping samples: %w", err)
	}

	cryoPool, err := rt.Pool(p.CryoRack, "cryo")
	if err != nil {
		return nil, err
	}
	stockNames := make([]string, 0, p.NumSamples*p.Repeats)
	for _, name := range names {
		for r := 1; r <= p.Repeats; r++ {
			stockNames = append(stockNames, stockName(name, r))
		}
	}
	stocks, err := platemap.Build(platemap.Auto(stockNames), cryoPool)
	if err != nil {
		return nil, fmt.Errorf("mapping cryo tubes: %w", err)
	}

	res, err := rt.Load(p.GlycerolRes, "glycerol")
	if err != nil {
		return nil, err
	}
	glycerol, err := core.WellOn(res, "A1")
	if err != nil {
		return nil, err
	}

	b := planner.NewBuilder(Name)
	b.Comment("**CHECK BEFORE RUNNING**")
	b.Comment("Ensure you have enough glycerol (%g µL for each cryo tube, %g µL in total) in %s",
		p.GlycerolVolume, p.GlycerolVolume*float64(stocks.Len()), glycerol)
	b.Comment("Ensure you have matched the expected culture platemap:")
	for _, a := range samples.Assignments() {
		b.Comment("    SAMPLE | %s -> %s", a.Name, a.Well)
	}

	all := make([]planner.Target, 0, stocks.Len())
	for _, a := range stocks.Assignments() {
		all = append(all, planner.Target{Well: a.Well, Volume: p.GlycerolVolume})
	}
	b.Distribute(pipette, "glycerol", glycerol, all, planner.WithDisposalVolume(0))

	man := manifest.New(ManifestHeader...)
	for _, a := range samples.Assignments() {
		targets := make([]planner.Target, 0, p.Repeats)
		for r := 1; r <= p.Repeats; r++ {
			w, _ := stocks.Well(stockName(a.Name, r))
			targets = append(targets, planner.Target{Well: w, Volume: p.CultureVolume})
			if err := man.Add(a.Name, a.Well.String(), w.String()); err != nil {
				return nil, err
			}
		}
		b.Distribute(pipette, a.Name, a.Well, targets, planner.WithDisposalVolume(0))
	}

	b.Comment("Stocks complete. Cap the cryo tubes and store at -80 °C.")
	for _, a := range stocks.Assignments() {
		b.Comment("    STOCK | %s -> %s", a.Name, a.Well)
	}

	return &protocols.Output{
		Plan:     b.Plan(),
		Maps:     []*platemap.PlateMap{samples, stocks},
		Manifest: man,
	}, nil
}

func stockName(sample string, repeat int) string {
	return fmt.Sprintf("%s #%d", sample, repeat)
}
