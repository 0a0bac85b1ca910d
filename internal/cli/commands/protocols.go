package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/wellplan/internal/cli/output"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ProtocolInfo describes a registered protocol.
type ProtocolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Prompts     []string       `json:"prompts,omitempty"`
	Defaults    map[string]any `json:"defaults,omitempty"`
}

// NewProtocolsCommand creates the protocols command.
func NewProtocolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "protocols [name]",
		Short: "List protocols and their parameters",
		Long: `List the registered protocols, or show the parameters and defaults of one.

Parameters are set under protocols.<name> in wellplan.yaml, through
WELLPLAN_PROTOCOLS__<NAME>__<KEY> environment variables or as flags on the
protocol's command.`,
		Example: `  wellplan protocols
  wellplan protocols transform`,
		Args: cobra.MaximumNArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return protocols.List(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			if len(args) == 1 {
				return showProtocol(cmdCtx.Renderer, args[0])
			}
			return listProtocols(cmdCtx.Renderer)
		},
	}
}

func protocolInfo(p protocols.Protocol, withDefaults bool) ProtocolInfo {
	info := ProtocolInfo{Name: p.Name(), Description: p.Description()}
	for _, pr := range p.Prompts() {
		info.Prompts = append(info.Prompts, pr.Key)
	}
	if withDefaults {
		info.Defaults = p.Defaults()
	}
	return info
}

func listProtocols(r *output.Renderer) error {
	var infos []ProtocolInfo
	for _, name := range protocols.List() {
		p, err := protocols.Get(name)
		if err != nil {
			return err
		}
		infos = append(infos, protocolInfo(p, false))
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}

	r.Header(1, fmt.Sprintf("Protocols (%d)", len(infos)))
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{info.Name, info.Description, strings.Join(info.Prompts, ", ")})
	}
	r.Table([]string{"Name", "Description", "Asks for"}, rows)
	return nil
}

func showProtocol(r *output.Renderer, name string) error {
	p, err := protocols.Get(name)
	if err != nil {
		return err
	}
	info := protocolInfo(p, true)

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(info)
	}

	r.Header(1, output.Title(info.Name))
	r.Println(info.Description)
	r.Println("")

	r.Header(2, "Defaults")
	keys := make([]string, 0, len(info.Defaults))
	for k := range info.Defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, "--" + strings.ReplaceAll(k, "_", "-"), formatDefault(info.Defaults[k])})
	}
	r.Table([]string{"Key", "Flag", "Default"}, rows)
	return nil
}

// formatDefault renders a default on one line; lists and maps use YAML flow style.
func formatDefault(v any) string {
	switch x := v.(type) {
	case string:
		if x == "" {
			return "(inferred)"
		}
		return x
	case []any, map[string]any:
		var node yaml.Node
		if err := node.Encode(x); err != nil {
			return fmt.Sprint(x)
		}
		node.Style = yaml.FlowStyle
		for _, c := range node.Content {
			c.Style = yaml.FlowStyle
		}
		data, err := yaml.Marshal(&node)
		if err != nil {
			return fmt.Sprint(x)
		}
		return strings.TrimSpace(string(data))
	}
	return fmt.Sprint(v)
}
