package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/glyphd/internal/cache"
	"github.com/Norgate-AV/glyphd/internal/config"
	"github.com/Norgate-AV/glyphd/internal/generator"
	"github.com/Norgate-AV/glyphd/internal/logger"
	"github.com/Norgate-AV/glyphd/internal/orchestrator"
)

// indexTimeout is how long CLI commands wait for the index lock. A running
// server holds it, so commands fall back to working without the index.
const indexTimeout = time.Second

// loadConfig loads the configuration for cmd and builds its logger
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.NewLoader().LoadForCommand(cmd)
	if err != nil {
		return nil, nil, err
	}

	log := logger.New(logger.Options{
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Verbose: cfg.Verbose,
		Output:  cmd.ErrOrStderr(),
	})

	return cfg, log, nil
}

// newStore creates the configured lock backend
func newStore(cfg *config.Config) (cache.Store, error) {
	if cfg.CacheStore == config.CacheStoreMemory {
		return cache.NewMemoryStore(cfg.CacheDir)
	}

	return cache.NewDirStore(cfg.CacheDir)
}

// openIndexOptional opens the build index, returning nil with a warning if
// another process holds it
func openIndexOptional(ctx context.Context, cfg *config.Config, log *slog.Logger) *cache.Index {
	idx, err := cache.OpenIndex(cfg.CacheDir, indexTimeout)
	if err != nil {
		log.WarnContext(ctx, "build index unavailable, continuing without it",
			slog.String("error", err.Error()))
		return nil
	}

	return idx
}

// newService wires the orchestrator. idx may be nil.
func newService(cfg *config.Config, log *slog.Logger, store cache.Store, idx *cache.Index) *orchestrator.Service {
	invoker := generator.NewInvoker(generator.Options{
		Path:       cfg.GeneratorPath,
		Subcommand: cfg.GeneratorSubcommand,
		WorkDir:    cfg.GeneratorWorkDir,
		Logger:     log,
	})

	opts := orchestrator.Options{
		Store:            store,
		Generator:        invoker,
		Logger:           log,
		StaleLockWarning: cfg.StaleLockWarning,
	}

	// a nil *Index must not become a non-nil Recorder
	if idx != nil {
		opts.Recorder = idx
	}

	return orchestrator.New(opts)
}

func closeIndex(idx *cache.Index) {
	if idx != nil {
		_ = idx.Close()
	}
}
