package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/wellplan/internal/cli/config"
	"github.com/leapstack-labs/wellplan/internal/cli/output"
	"github.com/leapstack-labs/wellplan/internal/deck"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/leapstack-labs/wellplan/internal/protocols/assembly"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const starterHeader = `# wellplan configuration.
#
# Values here can be overridden with WELLPLAN_ environment variables
# (WELLPLAN_DECK__SLOTS=11,10,9) or command flags.
`

type starterDeck struct {
	Slots []core.Slot `yaml:"slots"`
}

type starterConfig struct {
	Output    string                    `yaml:"output"`
	OutputDir string                    `yaml:"output_dir"`
	StatePath string                    `yaml:"state_path"`
	Record    bool                      `yaml:"record"`
	Deck      starterDeck               `yaml:"deck"`
	Protocols map[string]map[string]any `yaml:"protocols"`
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a starter wellplan.yaml",
		Long: `Write a starter wellplan.yaml holding every protocol's defaults.

The file also enables the run ledger (.wellplan/runs.db) and writes plans
into plans/. Edit the protocols section to describe your run.`,
		Example: `  # Initialize in current directory
  wellplan init

  # Initialize in a new directory
  wellplan init my-lab

  # Force overwrite existing config
  wellplan init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			// Create renderer
			cfg := getConfig()
			mode := output.Mode(cfg.OutputFormat)
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	// Create directory if specified and doesn't exist
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Check if config already exists
	configPath := filepath.Join(dir, config.DefaultConfigName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.DefaultConfigName)
	}

	data, err := starterYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	r.StatusLine(configPath, "success", "")
	r.Println("")
	r.Success("wellplan project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Describe your run under protocols: in " + config.DefaultConfigName)
	r.Println("  2. Run 'wellplan protocols <name>' to see what each parameter does")
	r.Println("  3. Run 'wellplan assemble', 'wellplan transform' or 'wellplan glycerol'")
	r.Println("  4. Run 'wellplan runs' to review recorded generations")

	return nil
}

// starterYAML renders the starter configuration.
func starterYAML() ([]byte, error) {
	cfg := starterConfig{
		Output:    config.DefaultOutput,
		OutputDir: "plans",
		StatePath: config.DefaultStateFile,
		Record:    true,
		Deck:      starterDeck{Slots: deck.DefaultSlots()},
		Protocols: make(map[string]map[string]any),
	}
	for _, name := range protocols.List() {
		p, err := protocols.Get(name)
		if err != nil {
			return nil, err
		}
		cfg.Protocols[name] = p.Defaults()
	}
	if params, ok := cfg.Protocols[assembly.Name]; ok {
		params["constructs"] = []map[string]any{
			{"name": "example", "parts": []string{"promoter", "cds", "terminator"}},
		}
	}

	var buf bytes.Buffer
	buf.WriteString(starterHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode starter config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode starter config: %w", err)
	}
	return buf.Bytes(), nil
}
