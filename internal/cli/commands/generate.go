package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/wellplan/internal/cli/config"
	"github.com/leapstack-labs/wellplan/internal/cli/output"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/leapstack-labs/wellplan/internal/protocols/assembly"
	"github.com/leapstack-labs/wellplan/internal/protocols/glycerol"
	"github.com/leapstack-labs/wellplan/internal/protocols/transform"
	"github.com/spf13/cobra"
)

// GenerateOptions holds the non-parameter flags of a protocol command.
type GenerateOptions struct {
	Out      string // plan JSON path
	Manifest string // manifest CSV path
	Watch    bool   // regenerate when the config file changes
	NoPrompt bool   // never ask for missing values
}

// protocolCommand describes one protocol subcommand.
type protocolCommand struct {
	protocol string
	use      string
	short    string
	long     string
	example  string
	// extra lists parameters without a default, with their help text.
	extra map[string]string
	// help overrides the generated help text of defaulted parameters.
	help map[string]string
}

// NewAssembleCommand creates the assemble command.
func NewAssembleCommand() *cobra.Command {
	return newProtocolCommand(protocolCommand{
		protocol: assembly.Name,
		use:      "assemble",
		short:    "Plan a Golden Gate assembly",
		long: `Plan a Golden Gate (MoClo) assembly.

Every distinct part gets a well on the reagent plate, every construct a well on
the product plate. Each construct receives its parts and the shared reagents,
and is topped up with the diluent to the target volume.`,
		example: `  # Two constructs from the command line
  wellplan assemble --constructs "gfp=pPro,pGFP,pTerm;rfp=pPro,pRFP,pTerm"

  # Constructs from wellplan.yaml, plan written to disk
  wellplan assemble --out plan.json`,
		extra: map[string]string{
			"constructs":   `Constructs as "name=part,part;name=part" or JSON`,
			"part_volumes": `Per-part volumes as JSON, e.g. {"pGFP": 1.5}`,
		},
		help: map[string]string{
			"shared_reagents": `Shared reagents as "name=volume;name=volume" or JSON`,
		},
	})
}

// NewTransformCommand creates the transform command.
func NewTransformCommand() *cobra.Command {
	return newProtocolCommand(protocolCommand{
		protocol: transform.Name,
		use:      "transform",
		short:    "Plan a heat-shock transformation",
		long: `Plan a heat-shock transformation of vectors into competent cells.

Cells are distributed into the transformation plate, vectors are added and
mixed, and SOC recovery medium follows the heat shock. With --multichannel the
vector map is mirrored onto the transformation plate and handled column by column.`,
		example: `  # Eight vectors laid out automatically
  wellplan transform --num-vectors 8

  # Explicit vector layout with a multichannel pipette
  wellplan transform --multichannel --vector-map '{"pUC19": "A1", "pET28": "B1"}' --manifest transform.csv`,
		extra: map[string]string{
			"vector_map": `Vector wells as JSON, e.g. {"pUC19": "A1"}`,
		},
	})
}

// NewGlycerolCommand creates the glycerol command.
func NewGlycerolCommand() *cobra.Command {
	return newProtocolCommand(protocolCommand{
		protocol: glycerol.Name,
		use:      "glycerol",
		short:    "Plan glycerol stocks",
		long: `Plan glycerol stocks from a culture plate.

Every cryo tube receives glycerol first, then each sample's culture is split
across its stock tubes.`,
		example: `  wellplan glycerol --num-samples 12 --repeats 2`,
	})
}

func newProtocolCommand(spec protocolCommand) *cobra.Command {
	opts := &GenerateOptions{}
	cmd := &cobra.Command{
		Use:         spec.use,
		Short:       spec.short,
		Long:        spec.long,
		Example:     spec.example,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{ProtocolAnnotation: spec.protocol},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Watch {
				return watchAndGenerate(cmd, spec.protocol, opts)
			}
			return generateOnce(cmd, NewCommandContext(cmd), spec.protocol, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "Write the plan as JSON to this file")
	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "Write the manifest CSV to this file")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Regenerate whenever the config file changes")
	cmd.Flags().BoolVar(&opts.NoPrompt, "no-prompt", false, "Never ask for missing values")

	p, err := protocols.Get(spec.protocol)
	if err != nil {
		panic(err) // the protocol package is imported above
	}
	addParamFlags(cmd, p.Defaults(), spec.extra, spec.help)
	return cmd
}

// addParamFlags adds one annotated flag per protocol parameter. Scalar
// defaults become typed flags; lists and maps are passed as strings and
// decoded by the protocol.
func addParamFlags(cmd *cobra.Command, defaults map[string]any, extra, help map[string]string) {
	keys := make([]string, 0, len(defaults)+len(extra))
	for k := range defaults {
		keys = append(keys, k)
	}
	for k := range extra {
		if _, ok := defaults[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	fs := cmd.Flags()
	for _, key := range keys {
		name := strings.ReplaceAll(key, "_", "-")
		usage := help[key]
		if usage == "" {
			usage = extra[key]
		}
		if usage == "" {
			usage = output.Title(key)
		}
		switch v := defaults[key].(type) {
		case string:
			fs.String(name, v, usage)
		case float64:
			fs.Float64(name, v, usage)
		case int:
			fs.Int(name, v, usage)
		case bool:
			fs.Bool(name, v, usage)
		default:
			fs.String(name, "", usage)
		}
		_ = fs.SetAnnotation(name, config.ParamAnnotation, []string{key})
	}
}

// generateOnce runs one generation with the loaded config and reports it.
func generateOnce(cmd *cobra.Command, cmdCtx *CommandContext, name string, opts *GenerateOptions) error {
	p, err := protocols.Get(name)
	if err != nil {
		return err
	}

	params := cmdCtx.Cfg.ProtocolParams(name)
	if !opts.NoPrompt && output.IsTerminal(os.Stdin) {
		asker, closeAsker, err := newReadlineAsker(cmd)
		if err != nil {
			return err
		}
		err = collectPrompts(p, params, asker)
		closeAsker()
		if err != nil {
			return err
		}
	}

	rtOpts := cmdCtx.RuntimeOptions()
	res, genErr := protocols.Generate(cmd.Context(), name, params, rtOpts)
	if err := recordRun(cmdCtx, name, params, rtOpts, res, genErr); err != nil {
		if genErr != nil {
			return errors.Join(genErr, err)
		}
		return err
	}
	if genErr != nil {
		return genErr
	}

	written, err := writeOutputs(cmdCtx, res, opts)
	if err != nil {
		return err
	}
	return renderResult(cmdCtx.Renderer, res, written)
}

// recordRun writes the outcome of a generation to the run ledger when one is configured.
func recordRun(cmdCtx *CommandContext, name string, params map[string]any, opts protocols.Options, res *protocols.Result, genErr error) error {
	if !cmdCtx.Cfg.ShouldRecord() {
		return nil
	}
	store, cleanup, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer cleanup()

	run := protocols.RunRecord(name, params, opts, res, genErr)
	if err := store.RecordRun(run); err != nil {
		return err
	}
	cmdCtx.Logger.Debug("run recorded", "id", run.ID, "status", run.Status)
	return nil
}

// writeOutputs writes the plan and manifest files and returns their paths.
// Without explicit paths, a configured output directory receives
// <protocol>.json and <protocol>-manifest.csv.
func writeOutputs(cmdCtx *CommandContext, res *protocols.Result, opts *GenerateOptions) ([]string, error) {
	dir := cmdCtx.Cfg.OutputDir
	planPath := opts.Out
	manifestPath := opts.Manifest
	if dir != "" {
		if planPath == "" {
			planPath = res.Protocol + ".json"
		}
		if manifestPath == "" && res.Manifest != nil {
			manifestPath = res.Protocol + "-manifest.csv"
		}
	}

	var written []string
	if planPath != "" {
		path := resolveOutput(dir, planPath)
		if err := writePlan(path, res); err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	if manifestPath != "" {
		if res.Manifest == nil {
			cmdCtx.Renderer.Warning(fmt.Sprintf("%s produces no manifest; %s not written", res.Protocol, manifestPath))
			return written, nil
		}
		path := resolveOutput(dir, manifestPath)
		if err := res.Manifest.WriteFile(path); err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	return written, nil
}

func resolveOutput(dir, path string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func writePlan(path string, res *protocols.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	return nil
}
