package config

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/wellplan/pkg/core"
)

// OutputModes lists the accepted values for the output key.
var OutputModes = []string{"auto", "text", "markdown", "json"}

// Validate checks the configuration for values no command can work with.
// Deck slots and protocol parameters are checked when a run starts.
func (c *Config) Validate() error {
	if c.OutputFormat != "" && !slices.Contains(OutputModes, c.OutputFormat) {
		return &core.ConfigError{
			Field:   "output",
			Message: fmt.Sprintf("unknown output format %q (want one of %v)", c.OutputFormat, OutputModes),
		}
	}
	seen := make(map[string]bool, len(c.Labware))
	for i, def := range c.Labware {
		if def.Name == "" {
			return &core.ConfigError{Field: fmt.Sprintf("labware[%d]", i), Message: "name is required"}
		}
		if seen[def.Name] {
			return &core.ConfigError{Field: "labware", Message: fmt.Sprintf("%s is defined twice", def.Name)}
		}
		seen[def.Name] = true
		if _, err := def.Type(); err != nil {
			return &core.ConfigError{Field: "labware", Message: err.Error()}
		}
	}
	return nil
}
