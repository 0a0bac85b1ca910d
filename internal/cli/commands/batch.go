package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leapstack-labs/wellplan/internal/cli/output"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/leapstack-labs/wellplan/internal/state"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// BatchJob is one generation described in a batch file.
type BatchJob struct {
	Protocol string         `yaml:"protocol"`
	Params   map[string]any `yaml:"params"`
	Deck     struct {
		Slots []core.Slot `yaml:"slots"`
	} `yaml:"deck"`
}

// BatchResult is the outcome of one batch job.
type BatchResult struct {
	File         string `json:"file"`
	Protocol     string `json:"protocol"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	Instructions int    `json:"instructions"`
	ParamsDigest string `json:"params_digest,omitempty"`
	PlanDigest   string `json:"plan_digest,omitempty"`
	Output       string `json:"output,omitempty"`

	result *protocols.Result
	params map[string]any
	opts   protocols.Options
}

// NewBatchCommand creates the batch command.
func NewBatchCommand() *cobra.Command {
	var jobs int

	cmd := &cobra.Command{
		Use:   "batch <job.yaml>...",
		Short: "Generate several protocols concurrently",
		Long: `Generate one plan per job file, running jobs concurrently.

A job file names a protocol and its parameters:

  protocol: glycerol
  params:
    num_samples: 12
    repeats: 2
  deck:
    slots: [11, 10, 9, 8]

Job parameters are laid over the protocol section of wellplan.yaml. Every job
runs on its own deck, so jobs never share labware. When output_dir is set, each
plan is written there as <job>.json.`,
		Example: `  wellplan batch jobs/*.yaml --jobs 4`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, jobs)
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "Maximum number of concurrent generations")
	return cmd
}

func runBatch(cmd *cobra.Command, files []string, limit int) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	results := make([]*BatchResult, len(files))
	for i, f := range files {
		res, err := prepareJob(cmdCtx, f)
		if err != nil {
			return err
		}
		results[i] = res
	}

	if limit < 1 {
		limit = 1
	}
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(limit)
	for _, res := range results {
		g.Go(func() error {
			runJob(ctx, cmdCtx, res)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Record and write in file order so the ledger order is stable.
	failed := 0
	for _, res := range results {
		var genErr error
		if res.Status == string(state.RunStatusFailed) {
			failed++
			genErr = fmt.Errorf("%s", res.Error)
		}
		if err := recordRun(cmdCtx, res.Protocol, res.params, res.opts, res.result, genErr); err != nil {
			return err
		}
		if res.result != nil && cmdCtx.Cfg.OutputDir != "" {
			path := filepath.Join(cmdCtx.Cfg.OutputDir, jobName(res.File)+".json")
			if err := writePlan(path, res.result); err != nil {
				return err
			}
			res.Output = path
		}
	}

	if err := renderBatch(r, results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d batch jobs failed", failed, len(results))
	}
	return nil
}

// prepareJob reads a job file and resolves its parameters and options.
func prepareJob(cmdCtx *CommandContext, file string) (*BatchResult, error) {
	data, err := os.ReadFile(file) //nolint:gosec // job files are named by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", file, err)
	}
	var job BatchJob
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job %s: %w", file, err)
	}
	if job.Protocol == "" {
		return nil, fmt.Errorf("job %s: protocol is required", file)
	}
	if !protocols.IsRegistered(job.Protocol) {
		return nil, fmt.Errorf("job %s: %w", file, &protocols.UnknownProtocolError{Name: job.Protocol, Available: protocols.List()})
	}

	opts := cmdCtx.RuntimeOptions()
	if len(job.Deck.Slots) > 0 {
		opts.Slots = job.Deck.Slots
	}
	opts.Logger = cmdCtx.Logger.With("job", file)

	return &BatchResult{
		File:     file,
		Protocol: job.Protocol,
		params:   protocols.Merge(cmdCtx.Cfg.ProtocolParams(job.Protocol), job.Params),
		opts:     opts,
	}, nil
}

func runJob(ctx context.Context, cmdCtx *CommandContext, res *BatchResult) {
	out, err := protocols.Generate(ctx, res.Protocol, res.params, res.opts)
	if err != nil {
		res.Status = string(state.RunStatusFailed)
		res.Error = err.Error()
		res.ParamsDigest, _ = protocols.ParamsDigest(res.Protocol, res.params, res.opts)
		cmdCtx.Logger.Warn("batch job failed", "job", res.File, "error", err)
		return
	}
	res.Status = string(state.RunStatusCompleted)
	res.result = out
	res.Instructions = len(out.Plan.Instructions())
	res.ParamsDigest = out.ParamsDigest
	res.PlanDigest = out.PlanDigest
}

func renderBatch(r *output.Renderer, results []*BatchResult) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(results)
	}

	r.Header(1, fmt.Sprintf("Batch (%d jobs)", len(results)))
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		detail := shortDigest(res.PlanDigest)
		if res.Error != "" {
			detail = res.Error
		}
		rows = append(rows, []string{res.File, res.Protocol, res.Status, strconv.Itoa(res.Instructions), detail})
	}
	r.Table([]string{"Job", "Protocol", "Status", "Instructions", "Plan digest / error"}, rows)
	for _, res := range results {
		if res.Output != "" {
			r.StatusLine(res.Output, "success", "written")
		}
	}
	return nil
}

func jobName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
