package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ricorrenti/internal/amqp"
	"ricorrenti/internal/core"
	"ricorrenti/internal/sheets"

	"golang.org/x/sync/errgroup"
)

// SnapshotStore persists the computed timeline.
type SnapshotStore interface {
	ReplaceSnapshots(ctx context.Context, points []core.TimelinePoint, version int64, at time.Time) error
	ListSnapshots(ctx context.Context) ([]core.TimelinePoint, int64, error)
}

// SnapshotProcessorConfig holds configuration for the snapshot processor.
type SnapshotProcessorConfig struct {
	// RefreshInterval is how often the timeline is rebuilt without a message (default: 5m)
	RefreshInterval time.Duration
}

func DefaultSnapshotProcessorConfig() SnapshotProcessorConfig {
	return SnapshotProcessorConfig{RefreshInterval: 5 * time.Minute}
}

// SnapshotProcessor keeps stored snapshots and the external export in step
// with the event log.
type SnapshotProcessor struct {
	timeline *TimelineService
	store    SnapshotStore
	exporter sheets.TimelineExporter
	config   SnapshotProcessorConfig
	now      func() time.Time

	// serializes refreshes
	refreshMu sync.Mutex
	exported  int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSnapshotProcessor creates a processor; exporter may be nil.
func NewSnapshotProcessor(timeline *TimelineService, store SnapshotStore, exporter sheets.TimelineExporter, config SnapshotProcessorConfig) *SnapshotProcessor {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultSnapshotProcessorConfig().RefreshInterval
	}
	return &SnapshotProcessor{
		timeline: timeline,
		store:    store,
		exporter: exporter,
		config:   config,
		now:      time.Now,
		exported: -1,
	}
}

// HandleMessage reacts to an event notification. Messages for events already
// covered by the last refresh are acknowledged without work.
func (p *SnapshotProcessor) HandleMessage(ctx context.Context, msg *amqp.ExpenseEventMessage) error {
	p.refreshMu.Lock()
	done := p.exported
	p.refreshMu.Unlock()

	if msg.EventID <= done {
		slog.DebugContext(ctx, "Event already reflected in snapshots",
			"event_id", msg.EventID,
			"version", done)
		return nil
	}

	slog.InfoContext(ctx, "Processing expense event",
		"event_id", msg.EventID,
		"expense_id", msg.ExpenseID,
		"event_type", msg.EventType)

	_, err := p.Refresh(ctx)
	return err
}

// Refresh rebuilds the timeline and, concurrently, stores and exports it.
// It reports whether anything was written.
func (p *SnapshotProcessor) Refresh(ctx context.Context) (bool, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	points, version, err := p.timeline.Timeline(ctx)
	if err != nil {
		return false, fmt.Errorf("build timeline: %w", err)
	}

	_, stored, err := p.store.ListSnapshots(ctx)
	if err != nil {
		return false, fmt.Errorf("read snapshots: %w", err)
	}
	if stored == version && p.exported == version {
		return false, nil
	}

	at := p.now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.store.ReplaceSnapshots(gctx, points, version, at); err != nil {
			return fmt.Errorf("store snapshots: %w", err)
		}
		return nil
	})
	if p.exporter != nil {
		g.Go(func() error {
			if err := p.exporter.ExportTimeline(gctx, points, version); err != nil {
				return fmt.Errorf("export timeline: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	p.exported = version
	slog.InfoContext(ctx, "Timeline snapshots refreshed",
		"version", version,
		"months", len(points))
	return true, nil
}

// Start runs an initial refresh and then refreshes on a timer.
func (p *SnapshotProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("snapshot processor is already running")
	}
	p.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	p.stopCh, p.doneCh = stopCh, doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Snapshot processor started", "refresh_interval", p.config.RefreshInterval)
	return nil
}

// Stop signals the loop and waits for it, bounded by ctx.
func (p *SnapshotProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Snapshot processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Snapshot processor stop timed out")
		return ctx.Err()
	}
}

func (p *SnapshotProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// runLoop owns the channels of one Start; a later Start gets its own pair.
func (p *SnapshotProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.RefreshInterval)
	defer ticker.Stop()

	p.refreshLogged(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshLogged(ctx)
		}
	}
}

func (p *SnapshotProcessor) refreshLogged(ctx context.Context) {
	if _, err := p.Refresh(ctx); err != nil {
		slog.ErrorContext(ctx, "Periodic timeline refresh failed", "error", err)
	}
}
