package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/wellplan/internal/cli/output"
	"github.com/leapstack-labs/wellplan/internal/state"
	"github.com/spf13/cobra"
)

// RunInfo is the listing form of a recorded run.
type RunInfo struct {
	ID           string    `json:"id"`
	Protocol     string    `json:"protocol"`
	Status       string    `json:"status"`
	Instructions int       `json:"instructions"`
	ParamsDigest string    `json:"params_digest"`
	PlanDigest   string    `json:"plan_digest,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	// Reproducible is false when another completed run with the same
	// parameters produced a different plan.
	Reproducible bool `json:"reproducible"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int
	var params string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded generations",
		Long: `List generations recorded in the run ledger, newest first.

Every run is checked against the other runs with the same parameter digest: a
run is flagged as not reproducible when an identical parameter set produced a
different plan.`,
		Example: `  wellplan runs
  wellplan runs --limit 5
  wellplan runs --params 3f9a...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRuns(NewCommandContext(cmd), limit, params)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().StringVar(&params, "params", "", "Only list runs with this parameter digest")
	return cmd
}

func runRuns(cmdCtx *CommandContext, limit int, paramsDigest string) error {
	store, cleanup, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer cleanup()

	var runs []*state.Run
	if paramsDigest != "" {
		runs, err = store.RunsWithParams(paramsDigest)
	} else {
		runs, err = store.ListRuns(limit)
	}
	if err != nil {
		return err
	}

	reproducible := make(map[string]bool)
	infos := make([]RunInfo, 0, len(runs))
	for _, run := range runs {
		ok, seen := reproducible[run.ParamsDigest]
		if !seen {
			same, err := store.RunsWithParams(run.ParamsDigest)
			if err != nil {
				return err
			}
			ok = state.Reproducible(same)
			reproducible[run.ParamsDigest] = ok
		}
		infos = append(infos, RunInfo{
			ID:           run.ID,
			Protocol:     run.Protocol,
			Status:       string(run.Status),
			Instructions: run.Instructions,
			ParamsDigest: run.ParamsDigest,
			PlanDigest:   run.PlanDigest,
			Error:        run.Error,
			CreatedAt:    run.CreatedAt,
			Reproducible: ok,
		})
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}

	r.Header(1, fmt.Sprintf("Runs (%d)", len(infos)))
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		repro := "yes"
		if !info.Reproducible {
			repro = "NO"
		}
		rows = append(rows, []string{
			shortDigest(info.ID), info.CreatedAt.Local().Format("2006-01-02 15:04:05"), info.Protocol, info.Status,
			strconv.Itoa(info.Instructions), shortDigest(info.ParamsDigest), shortDigest(info.PlanDigest), repro,
		})
	}
	r.Table([]string{"ID", "Created", "Protocol", "Status", "Instructions", "Params", "Plan", "Reproducible"}, rows)

	for _, info := range infos {
		if !info.Reproducible {
			r.Warning(fmt.Sprintf("parameters %s produced different plans", shortDigest(info.ParamsDigest)))
			break
		}
	}
	return nil
}
