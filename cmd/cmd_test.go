package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/Norgate-AV/glyphd/internal/cache"
	"github.com/Norgate-AV/glyphd/internal/generator"
	"github.com/Norgate-AV/glyphd/internal/params"
)

const fakeGenerator = `#!/bin/sh
shift
while [ $# -gt 0 ]; do
  case "$1" in
    --image) printf '\211PNG\r\n\032\n' > "$2"; shift ;;
    --fnt) echo 'info face="Test"' > "$2"; shift ;;
  esac
  shift
done
`

const failingGenerator = `#!/bin/sh
echo "font not found" >&2
exit 3
`

// resetFlags restores every flag of cmd and its children to its default
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}

		f.Changed = false
	}

	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)

	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

// execute runs the root command in an isolated directory
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())

	return out.String(), err
}

func setup(t *testing.T) string {
	t.Helper()

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	return filepath.Join(t.TempDir(), "cache")
}

func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "atlasgen")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))

	return path
}

func TestRequestFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    *params.Request
		wantErr string
	}{
		{
			name: "preset and font name",
			args: []string{"--preset", "ascii", "--fontname", "DejaVu Sans", "--fontsize", "32"},
			want: &params.Request{Preset: "ascii", FontName: "DejaVu Sans", FontSize: params.Int(32)},
		},
		{
			name: "char codes and flags",
			args: []string{"--charcodes", "65 66 U+0043", "--fontname", "Sans", "--fnt", "--nocache"},
			want: &params.Request{CharCodes: []int{65, 66, 67}, FontName: "Sans", Metrics: true, NoCache: true},
		},
		{
			name: "dynamic range",
			args: []string{"--glyphs", "abc", "--fontname", "Sans", "--dynamic-range=-4,4"},
			want: &params.Request{Glyphs: "abc", FontName: "Sans", DynamicRange: &[2]int{-4, 4}},
		},
		{
			name:    "missing font",
			args:    []string{"--preset", "ascii"},
			wantErr: "one of fontname or fontfile is required",
		},
		{
			name:    "font file must be a font",
			args:    []string{"--preset", "ascii", "--fontfile", "/nonexistent/font.ttf"},
			wantErr: "fontfile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			addBuildFlags(cmd.Flags())
			require.NoError(t, cmd.Flags().Parse(tt.args))

			req, err := requestFromFlags(cmd, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, req)
		})
	}
}

func TestBuild_PrintKey(t *testing.T) {
	setup(t)

	out, err := execute(t, "build", "--preset", "ascii", "--fontname", "Sans", "--print-key")
	require.NoError(t, err)

	norm := params.Normalize(&params.Request{Preset: "ascii", FontName: "Sans"})
	assert.Contains(t, out, "key: "+norm.Key)
	assert.Contains(t, out, "args: --df edt --preset ascii --fontname Sans")
}

func TestBuild_InvalidRequest(t *testing.T) {
	setup(t)

	_, err := execute(t, "build", "--fontsize=-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fontsize must be a non-negative integer")
	assert.Contains(t, err.Error(), "one of glyphs, preset or charcodes is required")
}

func TestBuild_RequiresGenerator(t *testing.T) {
	cacheDir := setup(t)

	_, err := execute(t, "build", "--preset", "ascii", "--fontname", "Sans", "--cache-dir", cacheDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generator_path")
}

func TestBuild_AndCacheCommands(t *testing.T) {
	cacheDir := setup(t)
	gen := writeScript(t, fakeGenerator)
	dest := filepath.Join(t.TempDir(), "out", "atlas.png")

	out, err := execute(t, "build", "--preset", "ascii", "--fontname", "Sans",
		"--cache-dir", cacheDir, "--generator", gen, "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "built ")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	key := params.Normalize(&params.Request{Preset: "ascii", FontName: "Sans"}).Key

	// the metrics file is served from the same entry without rebuilding
	out, err = execute(t, "build", "--preset", "ascii", "--fontname", "Sans", "--fnt",
		"--cache-dir", cacheDir, "--generator", "/nonexistent/atlasgen")
	require.NoError(t, err)
	assert.Contains(t, out, "cached "+key)
	assert.Contains(t, out, cache.MetricsFile)

	out, err = execute(t, "cache", "list", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, key)
	assert.Contains(t, out, "ready")

	out, err = execute(t, "cache", "show", key, "--cache-dir", cacheDir)
	require.NoError(t, err)

	var report entryReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "ready", report.State)
	require.NotNil(t, report.Record)
	assert.True(t, report.Record.Success)
	assert.Equal(t, []string{"--df", "edt", "--preset", "ascii", "--fontname", "Sans"}, report.Record.Args)

	out, err = execute(t, "cache", "stats", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Entries:")
	assert.Contains(t, out, "Build records:")

	out, err = execute(t, "cache", "clear", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 entries")

	out, err = execute(t, "cache", "show", key, "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "absent"`)
}

func TestBuild_GeneratorFailure(t *testing.T) {
	cacheDir := setup(t)
	gen := writeScript(t, failingGenerator)

	_, err := execute(t, "build", "--preset", "ascii", "--fontname", "Missing",
		"--cache-dir", cacheDir, "--generator", gen)
	require.Error(t, err)

	var genErr *generator.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, 3, genErr.ExitCode)
	assert.Contains(t, genErr.Stderr, "font not found")
	assert.Equal(t, 3, exitCode(err))

	// the failed entry was discarded
	store, err := cache.NewDirStore(cacheDir)
	require.NoError(t, err)

	entries, err := store.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCache_ClearForceSweepsLeftovers(t *testing.T) {
	cacheDir := setup(t)

	// a memory-store build whose process died before commit
	mem, err := cache.NewMemoryStore(cacheDir)
	require.NoError(t, err)

	h, err := mem.BeginBuild("crashedentry", cache.BuildOptions{})
	require.NoError(t, err)

	out, err := execute(t, "cache", "clear", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.NotContains(t, out, "leftover")
	assert.DirExists(t, h.Dir)

	out, err = execute(t, "cache", "clear", "--force", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 leftover build directories")
	assert.NoDirExists(t, h.Dir)
}

func TestCache_Unlock(t *testing.T) {
	cacheDir := setup(t)

	store, err := cache.NewDirStore(cacheDir)
	require.NoError(t, err)

	h, err := store.BeginBuild("stuckentry", cache.BuildOptions{})
	require.NoError(t, err)

	_, err = execute(t, "cache", "clear", "--cache-dir", cacheDir)
	require.NoError(t, err)

	out, err := execute(t, "cache", "unlock", "stuckentry", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Unlocked stuckentry (build "+h.BuildID)

	_, err = execute(t, "cache", "unlock", "stuckentry", "--cache-dir", cacheDir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrNotBuilding))
}

func TestCache_RemoveBuildingNeedsForce(t *testing.T) {
	cacheDir := setup(t)

	store, err := cache.NewDirStore(cacheDir)
	require.NoError(t, err)

	_, err = store.BeginBuild("stuckentry", cache.BuildOptions{})
	require.NoError(t, err)

	_, err = execute(t, "cache", "rm", "stuckentry", "--cache-dir", cacheDir)
	assert.True(t, errors.Is(err, cache.ErrAlreadyBuilding))

	out, err := execute(t, "cache", "rm", "stuckentry", "--force", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed stuckentry")
}

func TestFontsInspect(t *testing.T) {
	setup(t)

	path := filepath.Join(t.TempDir(), "Go-Regular.ttf")
	require.NoError(t, os.WriteFile(path, goregular.TTF, 0o644))

	out, err := execute(t, "fonts", "inspect", "--json", path)
	require.NoError(t, err)

	var infos []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "Go", infos[0]["family"])
}

func TestFonts_List(t *testing.T) {
	setup(t)
	t.Setenv("GLYPHD_FONT_LIST_COMMAND", "echo")

	out, err := execute(t, "fonts")
	require.NoError(t, err)
	assert.Equal(t, "\n", out)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "glyphd "))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 7, exitCode(&generator.GenerationError{ExitCode: 7}))
	assert.Equal(t, 1, exitCode(&generator.GenerationError{ExitCode: -1}))
}
