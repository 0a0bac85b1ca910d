package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/wellplan/internal/cli/config"
	"github.com/leapstack-labs/wellplan/internal/cli/output"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/leapstack-labs/wellplan/internal/state"
	"github.com/spf13/cobra"
)

// ProtocolAnnotation is the command annotation naming the protocol a command
// generates. The root command uses it to load protocol flags into config.
const ProtocolAnnotation = "wellplan/protocol"

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext for cmd.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// RuntimeOptions returns the generation options for the loaded config.
func (c *CommandContext) RuntimeOptions() protocols.Options {
	return protocols.Options{
		Slots:   c.Cfg.Deck.Slots,
		Labware: c.Cfg.Labware,
		Logger:  c.Logger,
	}
}

// OpenStore opens and migrates the run ledger.
// Returns the store and a cleanup function that must be called (typically via defer).
func (c *CommandContext) OpenStore() (*state.SQLiteStore, func(), error) {
	if c.Cfg.StatePath == "" {
		return nil, nil, fmt.Errorf("no run ledger configured\nHint: set state_path in wellplan.yaml or pass --state")
	}
	return openStore(c.Cfg.StatePath, c.Logger)
}

func openStore(path string, logger *slog.Logger) (*state.SQLiteStore, func(), error) {
	// Ensure state directory exists
	stateDir := filepath.Dir(path)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(path); err != nil {
		return nil, nil, fmt.Errorf("failed to open run ledger: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to migrate run ledger: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// getConfig returns the current configuration.
// Commands built outside the root command (tests) get the defaults.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		OutputFormat: os.Getenv(config.EnvPrefix + "OUTPUT"),
		Record:       true,
	}
}
