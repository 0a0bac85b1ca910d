package commands

import (
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/wellplan/internal/server"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve protocol generation over HTTP",
		Long: `Serve protocol generation and the run ledger as a JSON API.

  GET  /api/protocols               registered protocols
  GET  /api/protocols/{name}        configured parameters of one protocol
  POST /api/protocols/{name}/plan   generate; body {"params": {...}, "slots": [...]}
  GET  /api/runs                    recorded runs (?limit=, ?params=)
  GET  /api/runs/{id}               one run and whether its parameters reproduce
  GET  /api/runs/events             recorded runs as a datastar signal stream

Request parameters are laid over the protocol section of wellplan.yaml. When a
run ledger is configured every request is recorded.`,
		Example: `  wellplan serve --addr :8080
  curl -X POST localhost:8080/api/protocols/glycerol/plan -d '{"params": {"num_samples": 4, "repeats": 2}}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)

			var store core.Store
			if cmdCtx.Cfg.ShouldRecord() {
				s, cleanup, err := cmdCtx.OpenStore()
				if err != nil {
					return err
				}
				defer cleanup()
				store = s
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(server.Config{
				Addr:    addr,
				Store:   store,
				Params:  cmdCtx.Cfg.ProtocolParams,
				Options: cmdCtx.RuntimeOptions(),
				Logger:  cmdCtx.Logger,
			})
			cmdCtx.Renderer.Success("serving on " + addr)
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "Address to listen on")
	return cmd
}
