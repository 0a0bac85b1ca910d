// Package assembly generates Golden Gate (MoClo) assembly runs.
package assembly

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/wellplan/internal/planner"
	"github.com/leapstack-labs/wellplan/internal/platemap"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/leapstack-labs/wellplan/pkg/core"
)

// Name is the registry name of the protocol.
const Name = "assembly"

func init() {
	protocols.Register(Name, func() protocols.Protocol { return &Protocol{} })
}

// Params are the decoded assembly parameters.
type Params struct {
	Constructs     []planner.Construct `mapstructure:"constructs"`
	ReagentPlate   string              `mapstructure:"reagent_plate"`
	ProductPlate   string              `mapstructure:"product_plate"`
	Pipette        string              `mapstructure:"pipette"`
	Tiprack        string              `mapstructure:"tiprack"`
	PartVolume     float64             `mapstructure:"part_volume"`
	PartVolumes    map[string]float64  `mapstructure:"part_volumes"`
	SharedReagents []planner.Reagent   `mapstructure:"shared_reagents"`
	Diluent        string              `mapstructure:"diluent"`
	TargetVolume   float64             `mapstructure:"target_volume"`
	MixRepetitions int                 `mapstructure:"mix_repetitions"`
	MixVolume      float64             `mapstructure:"mix_volume"`
	TouchTip       bool                `mapstructure:"touch_tip"`
}

// Validate checks the parameters before anything is placed on the deck.
func (p *Params) Validate() error {
	if len(p.Constructs) == 0 {
		return &core.ConfigError{Field: "constructs", Message: "at least one construct is required"}
	}
	for i, c := range p.Constructs {
		if strings.TrimSpace(c.Name) == "" {
			return &core.ConfigError{Field: fmt.Sprintf("constructs[%d]", i), Message: "name is required"}
		}
		if len(c.Parts) == 0 {
			return &core.ConfigError{Field: "constructs." + c.Name, Message: "at least one part is required"}
		}
	}
	if p.Diluent == "" {
		return &core.ConfigError{Field: "diluent", Message: "is required"}
	}
	if err := protocols.Positive("target_volume", p.TargetVolume); err != nil {
		return err
	}
	if err := protocols.Positive("part_volume", p.PartVolume); err != nil {
		return err
	}
	for name, v := range p.PartVolumes {
		if err := protocols.Positive("part_volumes."+name, v); err != nil {
			return err
		}
	}
	for _, s := range p.SharedReagents {
		if err := protocols.Positive("shared_reagents."+s.Name, s.Volume); err != nil {
			return err
		}
	}
	if p.MixRepetitions < 0 {
		return &core.ConfigError{Field: "mix_repetitions", Message: "cannot be negative"}
	}
	if p.MixRepetitions > 0 {
		return protocols.Positive("mix_volume", p.MixVolume)
	}
	return nil
}

// Recipe converts the parameters into a planner recipe.
func (p *Params) Recipe() planner.Recipe {
	r := planner.Recipe{
		Constructs:   p.Constructs,
		PartVolume:   p.PartVolume,
		PartVolumes:  p.PartVolumes,
		Shared:       p.SharedReagents,
		Diluent:      p.Diluent,
		TargetVolume: p.TargetVolume,
		TouchTip:     p.TouchTip,
	}
	if p.MixRepetitions > 0 {
		r.MixAfter = &core.Mix{Repetitions: p.MixRepetitions, Volume: p.MixVolume}
	}
	return r
}

// Protocol implements protocols.Protocol.
type Protocol struct{}

// Name implements protocols.Protocol.
func (*Protocol) Name() string { return Name }

// Description implements protocols.Protocol.
func (*Protocol) Description() string {
	return "Golden Gate MoClo assembly: parts, ligase, buffer and enzyme topped up with water per construct"
}

// Defaults implements protocols.Protocol.
func (*Protocol) Defaults() map[string]any {
	return map[string]any{
		"reagent_plate": "nest_96_wellplate_100ul_pcr_full_skirt",
		"product_plate": "nest_96_wellplate_100ul_pcr_full_skirt",
		"pipette":       "p20_single_gen2",
		"tiprack":       "",
		"part_volume":   0.5,
		"shared_reagents": []any{
			map[string]any{"name": "T4_DNA_Ligase", "volume": 0.5},
			map[string]any{"name": "T4_DNA_Ligase_buffer", "volume": 1.0},
			map[string]any{"name": "BsaI-HFv2", "volume": 0.5},
		},
		"diluent":         "water",
		"target_volume":   10.0,
		"mix_repetitions": 2,
		"mix_volume":      3.0,
		"touch_tip":       true,
	}
}

// Prompts implements protocols.Protocol. Constructs are too structured to ask for.
func (*Protocol) Prompts() []protocols.Prompt { return nil }

// Generate implements protocols.Protocol.
func (*Protocol) Generate(rt *protocols.Runtime, params map[string]any) (*protocols.Output, error) {
	var p Params
	if err := protocols.DecodeParams(params, &p, ConstructHook(), ReagentHook()); err != nil {
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
		return nil, &core.ConfigError{Field: "pipette", Message: "assembly runs with a single-channel pipette"}
	}
	reagents, err := rt.Pool(p.ReagentPlate, "reagents")
	if err != nil {
		return nil, err
	}
	products, err := rt.Pool(p.ProductPlate, "products")
	if err != nil {
		return nil, err
	}

	pl := planner.New(p.Recipe(), pipette, reagents, products, rt.Logger)
	plan, err := pl.Run()
	if err != nil {
		return nil, err
	}
	return &protocols.Output{
		Plan: plan,
		Maps: []*platemap.PlateMap{pl.ReagentMap(), pl.ProductMap()},
	}, nil
}

var (
	constructType  = reflect.TypeOf(planner.Construct{})
	constructsType = reflect.TypeOf([]planner.Construct{})
	reagentType    = reflect.TypeOf(planner.Reagent{})
)

// ParseConstruct parses "name=part1,part2".
func ParseConstruct(s string) (planner.Construct, error) {
	name, parts, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return planner.Construct{}, fmt.Errorf("construct %q: expected name=part1,part2", s)
	}
	c := planner.Construct{Name: name}
	for _, part := range strings.Split(parts, ",") {
		if part = strings.TrimSpace(part); part != "" {
			c.Parts = append(c.Parts, part)
		}
	}
	return c, nil
}

// ConstructHook decodes constructs written as "name=p1,p2" strings, as a
// ";"-separated list of those, or as a JSON object of name -> parts. Object
// entries are ordered by name.
func ConstructHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		switch {
		case to == constructType && from.Kind() == reflect.String:
			return ParseConstruct(data.(string))
		case to == constructsType && from.Kind() == reflect.String:
			var out []planner.Construct
			for _, entry := range strings.Split(data.(string), ";") {
				if strings.TrimSpace(entry) == "" {
					continue
				}
				c, err := ParseConstruct(entry)
				if err != nil {
					return nil, err
				}
				out = append(out, c)
			}
			return out, nil
		case to == constructsType && from.Kind() == reflect.Map:
			m, ok := data.(map[string]any)
			if !ok {
				return data, nil
			}
			names := make([]string, 0, len(m))
			for name := range m {
				names = append(names, name)
			}
			sort.Strings(names)
			out := make([]any, 0, len(names))
			for _, name := range names {
				out = append(out, map[string]any{"name": name, "parts": m[name]})
			}
			return out, nil
		}
		return data, nil
	}
}

// ReagentHook decodes reagents written as "name=volume".
func ReagentHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != reagentType || from.Kind() != reflect.String {
			return data, nil
		}
		s := data.(string)
		name, vol, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("reagent %q: expected name=volume", s)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(vol), 64)
		if err != nil {
			return nil, fmt.Errorf("reagent %q: invalid volume: %w", s, err)
		}
		return planner.Reagent{Name: strings.TrimSpace(name), Volume: v}, nil
	}
}
