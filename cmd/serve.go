package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/glyphd/internal/cache"
	"github.com/Norgate-AV/glyphd/internal/fonts"
	"github.com/Norgate-AV/glyphd/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Serve GET /generate, /fonts, /healthz and /metrics until interrupted.
In-flight builds are allowed to finish during shutdown.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (default 127.0.0.1:8080)")
	serveCmd.Flags().String("generator", "", "Path to the atlas generator")
	serveCmd.Flags().String("workdir", "", "Working directory for generator processes")
	serveCmd.Flags().StringSlice("font-dir", nil, "Directories fontfile requests may read from")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.RequireGenerator(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	// the server owns the index for its lifetime
	idx, err := cache.OpenIndex(cfg.CacheDir, indexTimeout)
	if err != nil {
		return err
	}
	defer closeIndex(idx)

	log.Info("starting glyphd",
		slog.String("cache_dir", cfg.CacheDir),
		slog.String("cache_store", cfg.CacheStore),
		slog.String("generator", cfg.GeneratorPath),
	)

	srv := server.New(server.Config{
		Addr:      cfg.ListenAddr,
		Generator: newService(cfg, log, store, idx),
		Fonts:     fonts.NewLister(cfg.FontListCommand, cfg.FontListArgs),
		Logger:    log,
		FontDirs:  cfg.FontDirs,
	})

	return srv.Run(ctx)
}
