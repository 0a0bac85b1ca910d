package commands

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/wellplan/internal/cli/config"
	"github.com/leapstack-labs/wellplan/internal/cli/testutil"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/leapstack-labs/wellplan/internal/protocols/glycerol"
	"github.com/leapstack-labs/wellplan/internal/protocols/transform"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(cfg *config.Config, tr *testutil.TestRenderer) *CommandContext {
	return &CommandContext{
		Cfg:      cfg,
		Logger:   slog.New(slog.DiscardHandler),
		Renderer: tr.Renderer,
	}
}

func TestProtocolCommands(t *testing.T) {
	tests := []struct {
		cmd      *cobra.Command
		use      string
		protocol string
		flags    []string
	}{
		{NewAssembleCommand(), "assemble", "assembly", []string{"constructs", "part-volumes", "shared-reagents", "target-volume", "touch-tip"}},
		{NewTransformCommand(), "transform", "transform", []string{"vector-map", "num-vectors", "multichannel", "soc-volume"}},
		{NewGlycerolCommand(), "glycerol", "glycerol", []string{"num-samples", "repeats", "cryo-rack", "culture-volume"}},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, tt.cmd.Example, "Example should not be empty")
			assert.Equal(t, tt.protocol, tt.cmd.Annotations[ProtocolAnnotation])

			for _, flag := range append([]string{"out", "manifest", "watch", "no-prompt"}, tt.flags...) {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestAddParamFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addParamFlags(cmd, map[string]any{
		"num_samples": 0,
		"volume":      2.5,
		"pipette":     "p20_single_gen2",
		"touch_tip":   true,
		"reagents":    []any{"a"},
	}, map[string]string{"vector_map": "Vector wells"}, map[string]string{"pipette": "Pipette name"})

	tests := []struct {
		flag, typ, def, key, usage string
	}{
		{"num-samples", "int", "0", "num_samples", "Num Samples"},
		{"volume", "float64", "2.5", "volume", "Volume"},
		{"pipette", "string", "p20_single_gen2", "pipette", "Pipette name"},
		{"touch-tip", "bool", "true", "touch_tip", "Touch Tip"},
		{"reagents", "string", "", "reagents", "Reagents"},
		{"vector-map", "string", "", "vector_map", "Vector wells"},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			f := cmd.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.typ, f.Value.Type())
			assert.Equal(t, tt.def, f.DefValue)
			assert.Equal(t, tt.usage, f.Usage)
			assert.Equal(t, []string{tt.key}, f.Annotations[config.ParamAnnotation])
		})
	}
}

func TestCollectPrompts(t *testing.T) {
	p, err := protocols.Get(glycerol.Name)
	require.NoError(t, err)

	t.Run("asks only for missing values", func(t *testing.T) {
		var asked []string
		ask := func(q string) (string, error) {
			asked = append(asked, q)
			return "4", nil
		}
		params := map[string]any{"repeats": 2}
		require.NoError(t, collectPrompts(p, params, ask))
		assert.Equal(t, []string{"Number of samples? "}, asked)
		assert.Equal(t, "4", params["num_samples"])
		assert.Equal(t, 2, params["repeats"])
	})

	t.Run("nothing missing", func(t *testing.T) {
		ask := func(string) (string, error) {
			t.Fatal("should not ask")
			return "", nil
		}
		require.NoError(t, collectPrompts(p, map[string]any{"num_samples": 1, "repeats": 1}, ask))
	})

	t.Run("empty answer", func(t *testing.T) {
		ask := func(string) (string, error) { return "", nil }
		err := collectPrompts(p, map[string]any{}, ask)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no value given for num_samples")
	})

	t.Run("asker failure", func(t *testing.T) {
		ask := func(string) (string, error) { return "", errors.New("prompt cancelled") }
		err := collectPrompts(p, map[string]any{}, ask)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "asking for num_samples: prompt cancelled")
	})

	t.Run("vector map satisfies transform", func(t *testing.T) {
		tp, err := protocols.Get(transform.Name)
		require.NoError(t, err)
		ask := func(string) (string, error) {
			t.Fatal("should not ask")
			return "", nil
		}
		require.NoError(t, collectPrompts(tp, map[string]any{"vector_map": `{"pUC19": "A1"}`}, ask))
	})
}

func TestFormatDefault(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"empty string", "", "(inferred)"},
		{"string", "p20_single_gen2", "p20_single_gen2"},
		{"int", 3, "3"},
		{"float", 2.5, "2.5"},
		{"bool", false, "false"},
		{"list", []any{"a", "b"}, "[a, b]"},
		{"map", map[string]any{"x": 1}, "{x: 1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDefault(tt.in))
		})
	}
}

func TestPrepareJob(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	cfg := &config.Config{
		Protocols: map[string]map[string]any{
			"glycerol": {"num_samples": 8, "repeats": 1},
		},
	}
	cmdCtx := testContext(cfg, testutil.NewTestRendererJSON())

	t.Run("job params laid over config", func(t *testing.T) {
		path := write("stocks.yaml", "protocol: glycerol\nparams:\n  repeats: 3\ndeck:\n  slots: [1, 2, 3, 4]\n")
		res, err := prepareJob(cmdCtx, path)
		require.NoError(t, err)
		assert.Equal(t, "glycerol", res.Protocol)
		assert.Equal(t, 8, res.params["num_samples"])
		assert.Equal(t, 3, res.params["repeats"])
		require.Len(t, res.opts.Slots, 4)
		assert.EqualValues(t, 1, res.opts.Slots[0])
	})

	errTests := []struct {
		name, file, body, want string
	}{
		{"no protocol", "empty.yaml", "params: {}\n", "protocol is required"},
		{"unknown protocol", "mini.yaml", "protocol: miniprep\n", `unknown protocol "miniprep"`},
		{"bad yaml", "bad.yaml", "protocol: [\n", "failed to parse job"},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := prepareJob(cmdCtx, write(tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := prepareJob(cmdCtx, filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read job")
	})
}

func TestJobName(t *testing.T) {
	assert.Equal(t, "stocks", jobName("jobs/stocks.yaml"))
	assert.Equal(t, "a.b", jobName("/tmp/a.b.yml"))
	assert.Equal(t, "plain", jobName("plain"))
}

func generateGlycerol(t *testing.T) *protocols.Result {
	t.Helper()
	res, err := protocols.Generate(context.Background(), glycerol.Name,
		map[string]any{"num_samples": 3, "repeats": 2}, protocols.Options{})
	require.NoError(t, err)
	return res
}

func TestWriteOutputs(t *testing.T) {
	res := generateGlycerol(t)

	t.Run("output dir defaults", func(t *testing.T) {
		dir := t.TempDir()
		cmdCtx := testContext(&config.Config{OutputDir: dir}, testutil.NewTestRendererMarkdown())

		written, err := writeOutputs(cmdCtx, res, &GenerateOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "glycerol.json"),
			filepath.Join(dir, "glycerol-manifest.csv"),
		}, written)

		data, err := os.ReadFile(written[1])
		require.NoError(t, err)
		assert.Contains(t, string(data), "Sample,Culture Well,Cryo Tube Well")
	})

	t.Run("explicit paths", func(t *testing.T) {
		dir := t.TempDir()
		cmdCtx := testContext(&config.Config{}, testutil.NewTestRendererMarkdown())
		plan := filepath.Join(dir, "nested", "plan.json")

		written, err := writeOutputs(cmdCtx, res, &GenerateOptions{Out: plan})
		require.NoError(t, err)
		assert.Equal(t, []string{plan}, written)
	})

	t.Run("nothing requested", func(t *testing.T) {
		cmdCtx := testContext(&config.Config{}, testutil.NewTestRendererMarkdown())
		written, err := writeOutputs(cmdCtx, res, &GenerateOptions{})
		require.NoError(t, err)
		assert.Empty(t, written)
	})

	t.Run("manifest without one", func(t *testing.T) {
		noManifest := *res
		noManifest.Manifest = nil
		tr := testutil.NewTestRendererMarkdown()
		cmdCtx := testContext(&config.Config{}, tr)

		written, err := writeOutputs(cmdCtx, &noManifest, &GenerateOptions{Manifest: filepath.Join(t.TempDir(), "m.csv")})
		require.NoError(t, err)
		assert.Empty(t, written)
		assert.Contains(t, tr.ErrorOutput(), "produces no manifest")
	})
}

func TestRenderResult(t *testing.T) {
	res := generateGlycerol(t)

	t.Run("markdown", func(t *testing.T) {
		tr := testutil.NewTestRendererMarkdown()
		require.NoError(t, renderResult(tr.Renderer, res, []string{"plans/glycerol.json"}))

		out := tr.Output()
		testutil.AssertNoANSI(t, out)
		testutil.AssertValidMarkdown(t, out)
		testutil.AssertContains(t, out, "# Glycerol plan")
		testutil.AssertContains(t, out, "- **Instructions**: 12")
		testutil.AssertContains(t, out, "## Samples map (auto)")
		testutil.AssertContains(t, out, "| Sample 1 |")
		testutil.AssertContains(t, out, "- [x] plans/glycerol.json (written)")
	})

	t.Run("json", func(t *testing.T) {
		tr := testutil.NewTestRendererJSON()
		require.NoError(t, renderResult(tr.Renderer, res, nil))
		assert.True(t, json.Valid([]byte(tr.Output())))
		testutil.AssertContains(t, tr.Output(), `"protocol": "glycerol"`)
	})
}

func TestOpenStore_RequiresStatePath(t *testing.T) {
	cmdCtx := testContext(&config.Config{}, testutil.NewTestRendererJSON())
	_, _, err := cmdCtx.OpenStore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no run ledger configured")
}

func TestRecordRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "runs.db")
	cmdCtx := testContext(&config.Config{StatePath: path, Record: true}, testutil.NewTestRendererJSON())
	res := generateGlycerol(t)

	require.NoError(t, recordRun(cmdCtx, glycerol.Name, res.Params, protocols.Options{}, res, nil))
	require.NoError(t, recordRun(cmdCtx, glycerol.Name, map[string]any{"num_samples": 0}, protocols.Options{}, nil, errors.New("glycerol: invalid")))

	store, cleanup, err := cmdCtx.OpenStore()
	require.NoError(t, err)
	defer cleanup()

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	statuses := map[string]bool{}
	for _, r := range runs {
		statuses[string(r.Status)] = true
		assert.NotEmpty(t, r.ParamsDigest)
	}
	assert.True(t, statuses["completed"])
	assert.True(t, statuses["failed"])
}

func TestRecordRun_Disabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	cmdCtx := testContext(&config.Config{StatePath: path, Record: false}, testutil.NewTestRendererJSON())
	require.NoError(t, recordRun(cmdCtx, glycerol.Name, nil, protocols.Options{}, generateGlycerol(t), nil))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRunInit_Renders(t *testing.T) {
	tr := testutil.NewTestRendererMarkdown()
	dir := filepath.Join(t.TempDir(), "lab")
	require.NoError(t, runInit(tr.Renderer, dir, false))
	assert.Contains(t, tr.Output(), "wellplan project initialized!")

	err := runInit(tr.Renderer, dir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestListProtocols(t *testing.T) {
	tr := testutil.NewTestRendererJSON()
	require.NoError(t, listProtocols(tr.Renderer))
	assert.True(t, json.Valid([]byte(tr.Output())))
	for _, name := range []string{"assembly", "glycerol", "transform"} {
		assert.Contains(t, tr.Output(), `"name": "`+name+`"`)
	}
}

func TestShowProtocol_Unknown(t *testing.T) {
	tr := testutil.NewTestRendererMarkdown()
	err := showProtocol(tr.Renderer, "miniprep")
	var unknown *protocols.UnknownProtocolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "miniprep", unknown.Name)
}
