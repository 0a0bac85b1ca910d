package protocols

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/wellplan/internal/manifest"
	"github.com/leapstack-labs/wellplan/internal/platemap"
	"github.com/leapstack-labs/wellplan/pkg/core"
)

// Placement is one labware unit on the deck.
type Placement struct {
	Slot    core.Slot `json:"slot"`
	Labware string    `json:"labware"`
	Role    string    `json:"role"`
	Unit    int       `json:"unit"`
}

// MapView is a plate map in output form.
type MapView struct {
	Role        string                `json:"role"`
	Mode        platemap.Mode         `json:"mode"`
	Assignments []platemap.Assignment `json:"assignments"`
}

// Result is a complete, immutable generation result.
type Result struct {
	Protocol     string             `json:"protocol"`
	Params       map[string]any     `json:"params"`
	Layout       []Placement        `json:"layout"`
	Pipettes     []PipetteLoad      `json:"pipettes"`
	Maps         []MapView          `json:"maps"`
	Plan         *core.Plan         `json:"plan"`
	Manifest     *manifest.Manifest `json:"manifest,omitempty"`
	ParamsDigest string             `json:"params_digest"`
	PlanDigest   string             `json:"plan_digest"`
}

// Generate runs the named protocol on a fresh runtime.
// Any error aborts the run; no partial result is returned.
func Generate(ctx context.Context, name string, params map[string]any, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := Get(name)
	if err != nil {
		return nil, err
	}
	rt, err := NewRuntime(opts)
	if err != nil {
		return nil, err
	}
	effective := Merge(p.Defaults(), params)
	logger := rt.Logger.With(slog.String("protocol", name))

	out, err := p.Generate(rt, effective)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	loads, err := rt.LoadTipracks(out.Plan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	res := &Result{
		Protocol: name,
		Params:   effective,
		Pipettes: loads,
		Plan:     out.Plan,
		Manifest: out.Manifest,
	}
	for _, u := range rt.Deck.Layout() {
		res.Layout = append(res.Layout, Placement{Slot: u.Slot, Labware: u.Type.Name, Role: u.Role, Unit: u.Index})
	}
	for _, m := range out.Maps {
		res.Maps = append(res.Maps, MapView{Role: m.Role(), Mode: m.Mode(), Assignments: m.Assignments()})
	}

	res.ParamsDigest, err = paramsDigest(effective, opts.Slots)
	if err != nil {
		return nil, fmt.Errorf("failed to digest parameters: %w", err)
	}
	res.PlanDigest, err = digest(struct {
		Layout []Placement   `json:"layout"`
		Plan   *core.Plan    `json:"plan"`
		Tips   []PipetteLoad `json:"pipettes"`
	}{res.Layout, res.Plan, res.Pipettes})
	if err != nil {
		return nil, fmt.Errorf("failed to digest plan: %w", err)
	}

	logger.Info("protocol generated",
		slog.Int("steps", len(res.Plan.Steps)),
		slog.Int("instructions", len(res.Plan.Instructions())),
		slog.Int("labware", len(res.Layout)))
	return res, nil
}

// ParamsDigest returns the digest Generate would record for params, without
// generating. Failed runs are recorded under it.
func ParamsDigest(name string, params map[string]any, opts Options) (string, error) {
	p, err := Get(name)
	if err != nil {
		return "", err
	}
	return paramsDigest(Merge(p.Defaults(), params), opts.Slots)
}

func paramsDigest(effective map[string]any, slots []core.Slot) (string, error) {
	return digest(struct {
		Params map[string]any `json:"params"`
		Slots  []core.Slot    `json:"slots"`
	}{effective, slots})
}

func digest(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// RunRecord builds the ledger entry for one generation. A failed run is
// recorded under the digest its parameters would have produced.
func RunRecord(name string, params map[string]any, opts Options, res *Result, genErr error) *core.Run {
	run := &core.Run{Protocol: name, Status: core.RunStatusCompleted}
	if genErr != nil {
		run.Status = core.RunStatusFailed
		run.Error = genErr.Error()
		run.ParamsDigest, _ = ParamsDigest(name, params, opts)
		return run
	}
	run.ParamsDigest = res.ParamsDigest
	run.PlanDigest = res.PlanDigest
	run.Instructions = len(res.Plan.Instructions())
	return run
}
