// Package main provides tests for the wellplan CLI.
package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/leapstack-labs/wellplan/internal/cli"
	"github.com/leapstack-labs/wellplan/internal/cli/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	config.ResetConfig()
	t.Chdir(t.TempDir())

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	output, err := run(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(output, "wellplan") {
		t.Errorf("version output should contain 'wellplan', got: %s", output)
	}
}

func TestHelpCommand(t *testing.T) {
	output, err := run(t, "--help")
	if err != nil {
		t.Errorf("help command error = %v", err)
	}

	expectedCommands := []string{"assemble", "transform", "glycerol", "batch", "labware", "protocols", "runs", "init"}
	for _, expected := range expectedCommands {
		if !strings.Contains(output, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, output)
		}
	}
}

func TestGlycerolCommandJSON(t *testing.T) {
	output, err := run(t, "glycerol", "--num-samples", "2", "--repeats", "3", "--output", "json")
	if err != nil {
		t.Fatalf("glycerol command error = %v", err)
	}

	var res struct {
		Protocol string `json:"protocol"`
		Manifest struct {
			Rows [][]string `json:"rows"`
		} `json:"manifest"`
	}
	if err := json.Unmarshal([]byte(output), &res); err != nil {
		t.Fatalf("glycerol output is not JSON: %v\n%s", err, output)
	}
	if res.Protocol != "glycerol" {
		t.Errorf("protocol = %q, want glycerol", res.Protocol)
	}
	if len(res.Manifest.Rows) != 6 {
		t.Errorf("manifest rows = %d, want 6", len(res.Manifest.Rows))
	}
}

func TestTransformCommandMarkdown(t *testing.T) {
	output, err := run(t, "transform", "--num-vectors", "4", "--output", "markdown")
	if err != nil {
		t.Fatalf("transform command error = %v", err)
	}
	if !strings.Contains(output, "# Transform plan") {
		t.Errorf("transform output should contain a plan header, got: %s", output)
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := run(t, "miniprep"); err == nil {
		t.Error("expected an error for an unknown command")
	}
}
