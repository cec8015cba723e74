package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"ricorrenti/internal/cache"
	"ricorrenti/internal/core"
)

// EventSource exposes the event log and its current version.
type EventSource interface {
	ListEvents(ctx context.Context) ([]core.ExpenseEvent, error)
	EventLogVersion(ctx context.Context) (int64, error)
}

// TimelineService rebuilds the monthly cost timeline from the event log.
// Results are memoized per log version, so any append invalidates them.
type TimelineService struct {
	source EventSource
	opts   core.TimelineOptions
	cache  cache.Cache[[]core.TimelinePoint]
}

// NewTimelineService wires a timeline reader; c may be nil to disable caching.
func NewTimelineService(source EventSource, opts core.TimelineOptions, c cache.Cache[[]core.TimelinePoint]) *TimelineService {
	return &TimelineService{source: source, opts: opts, cache: c}
}

// Timeline returns the reconstructed points and the log version they reflect.
func (s *TimelineService) Timeline(ctx context.Context) ([]core.TimelinePoint, int64, error) {
	version, err := s.source.EventLogVersion(ctx)
	if err != nil {
		return nil, 0, err
	}

	key := fmt.Sprintf("timeline:v%d", version)
	if s.cache != nil {
		if points, ok := s.cache.Get(key); ok {
			return slices.Clone(points), version, nil
		}
	}

	events, err := s.source.ListEvents(ctx)
	if err != nil {
		return nil, 0, err
	}
	points, err := core.ReconstructWith(events, s.opts)
	if err != nil {
		return nil, 0, fmt.Errorf("reconstruct timeline: %w", err)
	}

	slog.DebugContext(ctx, "Timeline reconstructed",
		"events", len(events),
		"months", len(points),
		"version", version)

	// only cache when no write landed while reading
	if s.cache != nil {
		if after, err := s.source.EventLogVersion(ctx); err == nil && after == version {
			s.cache.Set(key, points)
		}
	}
	return slices.Clone(points), version, nil
}
