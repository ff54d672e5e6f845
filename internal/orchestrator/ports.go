package orchestrator

import (
	"context"

	"github.com/Norgate-AV/glyphd/internal/cache"
	"github.com/Norgate-AV/glyphd/internal/generator"
)

// Generator runs one build, writing artifacts into dir.
//
//go:generate mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks
type Generator interface {
	Invoke(ctx context.Context, args []string, dir string) (*generator.Result, error)
}

// Recorder persists build records. It is optional.
type Recorder interface {
	Record(r *cache.Record) error
}
