package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Norgate-AV/glyphd/internal/cache"
	"github.com/Norgate-AV/glyphd/internal/fonts"
	"github.com/Norgate-AV/glyphd/internal/params"
	"github.com/Norgate-AV/glyphd/internal/respond"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Generate an atlas once",
	Long: `Generate an atlas through the same cache as the server and copy the
result to --output. Flags mirror the /generate query parameters.`,
	Example: `  glyphd build --preset ascii --fontname "DejaVu Sans" --fontsize 32 -o atlas.png
  glyphd build --preset ascii --fontname "DejaVu Sans" --fnt -o atlas.fnt
  glyphd build --charcodes 65,66,0x43 --fontfile ./Font.ttf --print-key`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

// requestFlags maps build flags to their query parameter names
var requestFlags = []struct {
	flag  string
	query string
}{
	{"df", params.QueryDistanceField},
	{"packing", params.QueryPacking},
	{"glyphs", params.QueryGlyphs},
	{"preset", params.QueryPreset},
	{"charcodes", params.QueryCharCodes},
	{"fontsize", params.QueryFontSize},
	{"fontname", params.QueryFontName},
	{"fontfile", params.QueryFontFile},
	{"padding", params.QueryPadding},
	{"downsample", params.QueryDownsample},
	{"downsample-algorithm", params.QueryDownsampleAlgorithm},
	{"dynamic-range", params.QueryDynamicRange},
	{"fnt", params.QueryMetrics},
	{"nocache", params.QueryNoCache},
	{"ignorelock", params.QueryIgnoreLock},
}

func init() {
	addBuildFlags(buildCmd.Flags())
}

func addBuildFlags(f *pflag.FlagSet) {
	f.String("df", "", "Distance field: none, edt, 8ssedt or sweep (default edt)")
	f.String("packing", "", "Packing: skyline, maxrects, guillotine or shelf")
	f.String("glyphs", "", "Literal glyphs to include")
	f.String("preset", "", "Glyph preset: ascii, latin1, latin-ext, digits, alnum, cyrillic or greek")
	f.String("charcodes", "", "Character codes, e.g. 65,66,0x43,U+0044")
	f.String("fontsize", "", "Font size in pixels")
	f.String("fontname", "", "Installed font name")
	f.String("fontfile", "", "Path to a TrueType/OpenType file")
	f.String("padding", "", "Padding around glyphs")
	f.String("downsample", "", "Downsample factor")
	f.String("downsample-algorithm", "", "Downsample algorithm: box, bilinear or lanczos")
	f.String("dynamic-range", "", "Distance field range as min,max")
	f.Bool("fnt", false, "Output the .fnt metrics file instead of the image")
	f.Bool("nocache", false, "Rebuild even if cached")
	f.Bool("ignorelock", false, "Build even if another build holds the lock")

	f.StringP("output", "o", "", "Copy the artifact to this path")
	f.Bool("print-key", false, "Print the cache key and generator arguments without building")
	f.String("generator", "", "Path to the atlas generator")
	f.String("workdir", "", "Working directory for the generator process")
	f.StringSlice("font-dir", nil, "Directories --fontfile may read from")
}

// requestFromFlags turns the changed request flags into query values so
// that parsing and validation match the HTTP endpoint exactly
func requestFromFlags(cmd *cobra.Command, fontDirs []string) (*params.Request, error) {
	values := url.Values{}

	for _, rf := range requestFlags {
		flag := cmd.Flags().Lookup(rf.flag)
		if flag != nil && flag.Changed {
			values.Set(rf.query, flag.Value.String())
		}
	}

	return params.ParseQuery(values, func(req *params.Request, verr *params.ValidationError) {
		if req.FontFile == "" {
			return
		}

		info, err := fonts.CheckFontFile(req.FontFile, fontDirs)
		if err != nil {
			verr.Add(fmt.Sprintf("fontfile: %v", err))
			return
		}

		req.FontFile = info.Path
	})
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	req, err := requestFromFlags(cmd, cfg.FontDirs)
	if err != nil {
		var verr *params.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid request:\n  %s", strings.Join(verr.Violations, "\n  "))
		}

		return err
	}

	out := cmd.OutOrStdout()

	if printKey, _ := cmd.Flags().GetBool("print-key"); printKey {
		norm := params.Normalize(req)
		fmt.Fprintf(out, "key: %s\nargs: %s\n", norm.Key, strings.Join(norm.Args, " "))
		return nil
	}

	if err := cfg.RequireGenerator(); err != nil {
		return err
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	idx := openIndexOptional(cmd.Context(), cfg, log)
	defer closeIndex(idx)

	outcome, err := newService(cfg, log, store, idx).Generate(cmd.Context(), req)
	if err != nil {
		return err
	}

	src := filepath.Join(outcome.Dir, respond.FileName(outcome.Format))

	if _, err := respond.Open(outcome.Dir, outcome.Format); err != nil {
		return err
	}

	status := "built"
	if outcome.Cached {
		status = "cached"
	}

	dest, _ := cmd.Flags().GetString("output")
	if dest == "" {
		fmt.Fprintf(out, "%s %s %s\n", status, outcome.Key, src)
		return nil
	}

	if err := cache.CopyArtifact(src, dest); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s -> %s\n", status, outcome.Key, dest)

	return nil
}
