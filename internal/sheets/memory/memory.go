package memory

import (
	"context"
	"slices"
	"sync"

	"ricorrenti/internal/core"
	ports "ricorrenti/internal/sheets"
)

var _ ports.TimelineExporter = (*Exporter)(nil)

// Exporter keeps the most recent export in memory. It backs local runs
// without Google credentials and the tests.
type Exporter struct {
	mu      sync.Mutex
	points  []core.TimelinePoint
	version int64
	exports int
}

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ExportTimeline(ctx context.Context, points []core.TimelinePoint, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.points = slices.Clone(points)
	e.version = version
	e.exports++
	return nil
}

// Last returns the latest export and its version.
func (e *Exporter) Last() ([]core.TimelinePoint, int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.points), e.version
}

// Exports counts calls to ExportTimeline that succeeded.
func (e *Exporter) Exports() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exports
}
