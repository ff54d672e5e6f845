// Package orchestrator drives a generation request through the cache state
// machine: look the key up, serve a hit, or take the build lock, run the
// generator, and commit or abandon the entry.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"go.trai.ch/zerr"

	"github.com/Norgate-AV/glyphd/internal/cache"
	"github.com/Norgate-AV/glyphd/internal/codes"
	"github.com/Norgate-AV/glyphd/internal/generator"
	"github.com/Norgate-AV/glyphd/internal/metrics"
	"github.com/Norgate-AV/glyphd/internal/params"
)

// ErrLockConflict is returned when another build holds the entry's lock
var ErrLockConflict = zerr.New("another build for this request is in progress")

// DefaultStaleLockWarning is how old a lock marker must be before a
// conflict on it is logged as a warning
const DefaultStaleLockWarning = 10 * time.Minute

// Outcome describes a served request
type Outcome struct {
	Key     string
	Dir     string
	Args    []string
	Cached  bool
	BuildID string
	Format  params.Format
}

// Options configures a Service
type Options struct {
	Store     cache.Store
	Generator Generator
	Recorder  Recorder
	Logger    *slog.Logger

	// StaleLockWarning is the marker age above which a conflict is logged
	// as a warning. It never changes the decision.
	StaleLockWarning time.Duration
}

// Service coordinates the cache and the generator
type Service struct {
	store     cache.Store
	generator Generator
	recorder  Recorder
	logger    *slog.Logger
	staleLock time.Duration
	now       func() time.Time
}

// New creates a new service
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.StaleLockWarning <= 0 {
		opts.StaleLockWarning = DefaultStaleLockWarning
	}

	return &Service{
		store:     opts.Store,
		generator: opts.Generator,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		staleLock: opts.StaleLockWarning,
		now:       time.Now,
	}
}

// Plan returns the normalized arguments and key without touching the cache
func (s *Service) Plan(req *params.Request) params.Normalized {
	return params.Normalize(req)
}

// Generate serves req from the cache or builds it. The request must be valid.
//
// Errors: ErrLockConflict when another build holds the lock;
// *generator.GenerationError when the generator fails.
func (s *Service) Generate(ctx context.Context, req *params.Request) (*Outcome, error) {
	norm := params.Normalize(req)
	logger := s.logger.With(slog.String("key", norm.Key))

	outcome := &Outcome{
		Key:    norm.Key,
		Dir:    s.store.Dir(norm.Key),
		Args:   norm.Args,
		Format: req.Format(),
	}

	state, err := s.store.Lookup(norm.Key)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	switch {
	case state == cache.Ready && !req.NoCache:
		logger.DebugContext(ctx, "cache hit")
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeHit).Inc()

		outcome.Cached = true
		return outcome, nil

	case state == cache.Building && !req.IgnoreLock:
		return nil, s.lockConflict(ctx, logger, norm.Key)
	}

	h, err := s.store.BeginBuild(norm.Key, cache.BuildOptions{IgnoreLock: req.IgnoreLock})
	if err != nil {
		if errors.Is(err, cache.ErrAlreadyBuilding) {
			// lost the race between Lookup and BeginBuild
			return nil, s.lockConflict(ctx, logger, norm.Key)
		}

		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	if h.Overrode {
		logger.WarnContext(ctx, "overriding existing build lock", slog.String("build_id", h.BuildID))
		metrics.LockOverridesTotal.Inc()
	}

	if err := s.build(ctx, logger, norm, h); err != nil {
		return nil, err
	}

	outcome.BuildID = h.BuildID
	return outcome, nil
}

// build runs the generator for a locked entry and commits or abandons it.
// It is not cancelled by the caller's context.
func (s *Service) build(ctx context.Context, logger *slog.Logger, norm params.Normalized, h *cache.Handle) error {
	ctx = context.WithoutCancel(ctx)
	logger = logger.With(slog.String("build_id", h.BuildID))

	logger.InfoContext(ctx, "building atlas", slog.Any("args", norm.Args))

	rec := &cache.Record{
		Key:       norm.Key,
		BuildID:   h.BuildID,
		Args:      norm.Args,
		StartedAt: s.now().UTC(),
		ExitCode:  -1,
		Overrode:  h.Overrode,
	}

	metrics.BuildsInFlight.Inc()
	res, err := s.generator.Invoke(ctx, norm.Args, h.Dir)
	metrics.BuildsInFlight.Dec()

	rec.FinishedAt = s.now().UTC()
	duration := rec.FinishedAt.Sub(rec.StartedAt).Seconds()

	if err != nil {
		metrics.BuildDuration.WithLabelValues(metrics.ResultFailure).Observe(duration)
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeBuildFailed).Inc()

		var genErr *generator.GenerationError
		if errors.As(err, &genErr) {
			rec.ExitCode = genErr.ExitCode
			logger.ErrorContext(ctx, "generator failed",
				slog.Int("exit_code", genErr.ExitCode),
				slog.String("description", genErr.Description),
				slog.String("stdout", genErr.Stdout),
				slog.String("stderr", genErr.Stderr),
			)
		} else {
			zerr.Log(ctx, logger, err)
		}

		if abandonErr := s.store.AbandonBuild(h); abandonErr != nil {
			zerr.Log(ctx, logger, abandonErr)
		}

		s.record(ctx, logger, rec)

		return err
	}

	if err := s.store.CommitBuild(h); err != nil {
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()

		if abandonErr := s.store.AbandonBuild(h); abandonErr != nil {
			zerr.Log(ctx, logger, abandonErr)
		}

		return err
	}

	metrics.BuildDuration.WithLabelValues(metrics.ResultSuccess).Observe(duration)
	metrics.RequestsTotal.WithLabelValues(metrics.OutcomeBuilt).Inc()

	rec.ExitCode = res.ExitCode
	rec.Success = codes.IsSuccess(res.ExitCode)
	rec.Artifacts = s.checksums(s.store.Dir(norm.Key), res.Artifacts)

	logger.InfoContext(ctx, "atlas built",
		slog.Duration("duration", res.Duration),
		slog.Any("artifacts", res.Artifacts),
	)

	s.record(ctx, logger, rec)

	return nil
}

func (s *Service) lockConflict(ctx context.Context, logger *slog.Logger, key string) error {
	metrics.RequestsTotal.WithLabelValues(metrics.OutcomeLockConflict).Inc()

	if info, err := s.store.LockInfo(key); err == nil && info != nil && !info.StartedAt.IsZero() {
		age := info.Age(s.now())
		if age > s.staleLock {
			// nothing expires markers; a crashed build needs ignorelock or `cache unlock`
			logger.WarnContext(ctx, "rejecting request on old build lock",
				slog.String("build_id", info.BuildID),
				slog.Int("pid", info.PID),
				slog.String("host", info.Host),
				slog.Duration("age", age),
			)
		}
	}

	return zerr.With(zerr.Wrap(ErrLockConflict, "lock conflict"), "key", key)
}

func (s *Service) checksums(dir string, artifacts []string) map[string]string {
	if len(artifacts) == 0 {
		return nil
	}

	sums := make(map[string]string, len(artifacts))
	for _, name := range artifacts {
		if sum, err := cache.HashFile(filepath.Join(dir, name)); err == nil {
			sums[name] = sum
		}
	}

	return sums
}

func (s *Service) record(ctx context.Context, logger *slog.Logger, rec *cache.Record) {
	if s.recorder == nil {
		return
	}

	if err := s.recorder.Record(rec); err != nil {
		logger.WarnContext(ctx, "failed to record build", slog.String("error", err.Error()))
	}
}
