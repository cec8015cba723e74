package sheets

import (
	"context"

	"ricorrenti/internal/core"
)

// Ports for outbound adapters.
type (
	// TimelineExporter publishes the monthly cost timeline outside the app.
	// Each call replaces the previous export; version is the event-log
	// version the points were built from.
	TimelineExporter interface {
		ExportTimeline(ctx context.Context, points []core.TimelinePoint, version int64) error
	}
)
