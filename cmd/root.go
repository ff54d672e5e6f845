package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/glyphd/internal/generator"
	"github.com/Norgate-AV/glyphd/internal/logger"
	"github.com/Norgate-AV/glyphd/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "glyphd",
	Short: "Glyph atlas generation service",
	Long: `glyphd serves font glyph atlases and bitmap-font metrics produced by an
external atlas generator, caching every build by its parameters.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, logger.FormatError(err))
		os.Exit(exitCode(err))
	}
}

// exitCode passes the generator's exit status through for failed builds
func exitCode(err error) int {
	var genErr *generator.GenerationError
	if errors.As(err, &genErr) && genErr.ExitCode > 0 {
		return genErr.ExitCode
	}

	return 1
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	rootCmd.PersistentFlags().String("cache-dir", "", "Cache directory (default .glyphd-cache)")
	rootCmd.PersistentFlags().String("cache-store", "", "Lock backend: dir or memory")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(fontsCmd)
	rootCmd.AddCommand(versionCmd)
}
