// Package config provides configuration management for the wellplan CLI.
//
// Configuration is layered with koanf: built-in defaults, then wellplan.yaml,
// then WELLPLAN_ environment variables, then explicitly set flags. Protocol
// parameters live under protocols.<name> and are handed to the protocol
// untouched; decoding and validation happen in the protocol itself.
package config

import (
	"maps"

	"github.com/leapstack-labs/wellplan/pkg/core"
	"github.com/leapstack-labs/wellplan/pkg/labware"
)

// DeckConfig holds deck layout settings.
type DeckConfig struct {
	// Slots is the placement order. Empty means 11 down to 1.
	Slots []core.Slot `koanf:"slots"`
}

// Config holds all CLI configuration options.
type Config struct {
	OutputFormat string                    `koanf:"output"`
	OutputDir    string                    `koanf:"output_dir"`
	StatePath    string                    `koanf:"state_path"`
	Record       bool                      `koanf:"record"`
	Verbose      bool                      `koanf:"verbose"`
	Deck         DeckConfig                `koanf:"deck"`
	Labware      []labware.Definition      `koanf:"labware"`
	Protocols    map[string]map[string]any `koanf:"protocols"`

	// ProjectRoot is the directory holding the config file, or the working
	// directory when none was found.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultConfigName = "wellplan.yaml"
	DefaultStateFile  = ".wellplan/runs.db"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	EnvPrefix         = "WELLPLAN_"
)

// ProtocolParams returns a copy of the configured parameters for a protocol.
// The result is never nil.
func (c *Config) ProtocolParams(name string) map[string]any {
	out := make(map[string]any)
	if c == nil {
		return out
	}
	maps.Copy(out, c.Protocols[name])
	return out
}

// ShouldRecord reports whether generations are written to the run ledger.
func (c *Config) ShouldRecord() bool {
	return c.Record && c.StatePath != ""
}
