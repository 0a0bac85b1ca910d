package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T, dir string) // setup before running
		args      []string
		wantErr   bool
		wantFiles []string
	}{
		{
			name:      "init empty directory",
			args:      []string{},
			wantFiles: []string{"wellplan.yaml"},
		},
		{
			name:      "init into new directory",
			args:      []string{"lab"},
			wantFiles: []string{"lab/wellplan.yaml"},
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "wellplan.yaml"), []byte("existing"), 0600)
			},
			args:    []string{},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "wellplan.yaml"), []byte("existing"), 0600)
			},
			args:      []string{"--force"},
			wantFiles: []string{"wellplan.yaml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Chdir(tmpDir)

			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "Use --force to overwrite")
				return
			}
			require.NoError(t, err)
			assert.Contains(t, buf.String(), "wellplan project initialized!")

			for _, f := range tt.wantFiles {
				path := filepath.Join(tmpDir, f)
				_, err := os.Stat(path)
				assert.False(t, os.IsNotExist(err), "expected file %q to exist", f)
			}
		})
	}
}

func TestInitCommandMetadata(t *testing.T) {
	cmd := NewInitCommand()

	assert.Equal(t, "init [directory]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("force"), "--force flag should exist")
}

func TestInitCreatesValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	require.NoError(t, cmd.Execute())

	content, err := os.ReadFile("wellplan.yaml")
	require.NoError(t, err, "failed to read wellplan.yaml")

	expectedContents := []string{
		"# wellplan configuration.",
		"output: auto",
		"output_dir: plans",
		"state_path: .wellplan/runs.db",
		"record: true",
		"protocols:",
	}
	for _, expected := range expectedContents {
		assert.Contains(t, string(content), expected, "config should contain %q", expected)
	}
}

func TestStarterYAML(t *testing.T) {
	data, err := starterYAML()
	require.NoError(t, err)

	var cfg struct {
		Deck struct {
			Slots []int `yaml:"slots"`
		} `yaml:"deck"`
		Protocols map[string]map[string]any `yaml:"protocols"`
	}
	require.NoError(t, yaml.Unmarshal(data, &cfg))

	assert.Equal(t, []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, cfg.Deck.Slots)
	for _, name := range protocols.List() {
		assert.Contains(t, cfg.Protocols, name)
	}

	constructs, ok := cfg.Protocols["assembly"]["constructs"].([]any)
	require.True(t, ok, "assembly should carry an example construct")
	require.Len(t, constructs, 1)
	assert.Equal(t, "example", constructs[0].(map[string]any)["name"])

	assert.Equal(t, 0, cfg.Protocols["glycerol"]["num_samples"])
}
