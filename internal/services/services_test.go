package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ricorrenti/internal/amqp"
	"ricorrenti/internal/cache"
	"ricorrenti/internal/core"
	"ricorrenti/internal/sheets/memory"
	"ricorrenti/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ExpenseEventMessage
	err  error
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, msg *amqp.ExpenseEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func input(desc, amount string, freq core.Frequency) ExpenseInput {
	return ExpenseInput{Description: desc, Category: "Casa", Amount: decimal.RequireFromString(amount), Frequency: freq}
}

func TestExpenseService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	pub := &recordingPublisher{}
	clock := &stepClock{t: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	svc := NewExpenseService(repo, pub)
	svc.now = clock.now

	rent, err := svc.Create(ctx, input("  Affitto ", "800", core.Monthly))
	require.NoError(t, err)
	assert.Equal(t, "Affitto", rent.Description)
	assert.True(t, rent.IsActive)
	assert.NotEmpty(t, rent.ID)

	clock.t = clock.t.AddDate(0, 1, 0)
	updated, err := svc.Update(ctx, rent.ID, input("Affitto", "850", core.Monthly))
	require.NoError(t, err)
	assert.Equal(t, "850.00", updated.Amount.StringFixed(2))

	clock.t = clock.t.AddDate(0, 1, 0)
	paused, err := svc.Pause(ctx, rent.ID)
	require.NoError(t, err)
	assert.False(t, paused.IsActive)

	clock.t = clock.t.AddDate(0, 1, 0)
	_, err = svc.Activate(ctx, rent.ID)
	require.NoError(t, err)

	clock.t = clock.t.AddDate(0, 1, 0)
	require.NoError(t, svc.Delete(ctx, rent.ID))

	_, err = svc.Get(ctx, rent.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.Len(t, pub.msgs, 5)
	for i, want := range []string{"created", "updated", "paused", "activated", "deleted"} {
		assert.Equal(t, want, pub.msgs[i].EventType)
		assert.Equal(t, int64(i+1), pub.msgs[i].EventID)
		assert.Equal(t, rent.ID, pub.msgs[i].ExpenseID)
	}
}

func TestExpenseService_ValidationAndNotFound(t *testing.T) {
	ctx := context.Background()
	svc := NewExpenseService(newRepo(t), nil)

	_, err := svc.Create(ctx, input("", "10", core.Monthly))
	assert.ErrorIs(t, err, core.ErrEmptyDescription)

	_, err = svc.Create(ctx, ExpenseInput{Description: "x", Amount: decimal.NewFromInt(1), Frequency: "daily"})
	assert.ErrorIs(t, err, core.ErrUnknownFrequency)

	_, err = svc.Pause(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.Update(ctx, "missing", input("x", "1", core.Monthly))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExpenseService_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewExpenseService(newRepo(t), pub)

	e, err := svc.Create(ctx, input("Palestra", "40", core.Monthly))
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, e.ID, list[0].ID)
	assert.Len(t, pub.msgs, 1)
}

func TestExpenseService_RecordEvent(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewExpenseService(newRepo(t), pub)

	id, err := svc.RecordEvent(ctx, core.ExpenseEvent{
		ExpenseID: "imported",
		Type:      core.EventCreated,
		Amount:    decimal.NewFromInt(90),
		Frequency: core.Quarterly,
		IsActive:  true,
		ChangedAt: time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = svc.RecordEvent(ctx, core.ExpenseEvent{ExpenseID: "x", Type: "archived", Frequency: core.Monthly, ChangedAt: time.Now()})
	assert.ErrorIs(t, err, core.ErrUnknownEventType)
	assert.Len(t, pub.msgs, 1)
}

type countingSource struct {
	EventSource
	lists int
}

func (s *countingSource) ListEvents(ctx context.Context) ([]core.ExpenseEvent, error) {
	s.lists++
	return s.EventSource.ListEvents(ctx)
}

func TestTimelineService_CachesPerVersion(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	svc := NewExpenseService(repo, nil)
	clock := &stepClock{t: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	svc.now = clock.now

	src := &countingSource{EventSource: repo}
	tl := NewTimelineService(src, core.TimelineOptions{}, cache.NewLRUCache[[]core.TimelinePoint](4, time.Minute))

	points, version, err := tl.Timeline(ctx)
	require.NoError(t, err)
	assert.Empty(t, points)
	assert.Zero(t, version)

	_, err = svc.Create(ctx, input("Netflix", "12.99", core.Monthly))
	require.NoError(t, err)

	points, version, err = tl.Timeline(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	require.Len(t, points, 1)
	assert.Equal(t, "2024-02", points[0].Month)
	assert.Equal(t, "12.99", points[0].Total.StringFixed(2))

	_, _, err = tl.Timeline(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.lists, "second read at the same version should hit the cache")

	clock.t = clock.t.AddDate(0, 1, 0)
	_, err = svc.Create(ctx, input("Spotify", "10.99", core.Monthly))
	require.NoError(t, err)

	points, _, err = tl.Timeline(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, src.lists)
	require.Len(t, points, 2)
	assert.Equal(t, "23.98", points[1].Total.StringFixed(2))
}

func TestSnapshotProcessor_Refresh(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	svc := NewExpenseService(repo, nil)
	svc.now = (&stepClock{t: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)}).now

	exporter := memory.New()
	tl := NewTimelineService(repo, core.TimelineOptions{}, nil)
	p := NewSnapshotProcessor(tl, repo, exporter, SnapshotProcessorConfig{})
	assert.Equal(t, 5*time.Minute, p.config.RefreshInterval)

	_, err := svc.Create(ctx, input("Assicurazione", "1200", core.Annual))
	require.NoError(t, err)

	wrote, err := p.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)

	stored, version, err := repo.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	require.Len(t, stored, 1)
	assert.Equal(t, "100.00", stored[0].Total.StringFixed(2))

	exported, exportedVersion := exporter.Last()
	assert.Equal(t, int64(1), exportedVersion)
	assert.Equal(t, stored[0].Month, exported[0].Month)

	wrote, err = p.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, wrote, "unchanged log should not rewrite snapshots")
	assert.Equal(t, 1, exporter.Exports())

	// message for an already covered event is a no-op
	require.NoError(t, p.HandleMessage(ctx, amqp.NewExpenseEventMessage(1, "x", "created", time.Now())))
	assert.Equal(t, 1, exporter.Exports())

	_, err = svc.Create(ctx, input("Luce", "60", core.Monthly))
	require.NoError(t, err)
	require.NoError(t, p.HandleMessage(ctx, amqp.NewExpenseEventMessage(2, "y", "created", time.Now())))
	assert.Equal(t, 2, exporter.Exports())

	stored, _, err = repo.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, "160.00", stored[0].Total.StringFixed(2))
}

type failingExporter struct{}

func (failingExporter) ExportTimeline(context.Context, []core.TimelinePoint, int64) error {
	return errors.New("quota exceeded")
}

func TestSnapshotProcessor_ExportFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	_, err := NewExpenseService(repo, nil).Create(ctx, input("Acqua", "30", core.Quarterly))
	require.NoError(t, err)

	tl := NewTimelineService(repo, core.TimelineOptions{}, nil)
	p := NewSnapshotProcessor(tl, repo, failingExporter{}, DefaultSnapshotProcessorConfig())

	_, err = p.Refresh(ctx)
	assert.ErrorContains(t, err, "quota exceeded")

	p.exporter = memory.New()
	wrote, err := p.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)
}

func TestSnapshotProcessor_StartStop(t *testing.T) {
	repo := newRepo(t)
	tl := NewTimelineService(repo, core.TimelineOptions{}, nil)
	p := NewSnapshotProcessor(tl, repo, nil, SnapshotProcessorConfig{RefreshInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.False(t, p.IsRunning())
	require.NoError(t, p.Start(ctx))
	assert.Error(t, p.Start(ctx))
	assert.True(t, p.IsRunning())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
	require.NoError(t, p.Stop(stopCtx))
}

type gatedExporter struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedExporter) ExportTimeline(ctx context.Context, _ []core.TimelinePoint, _ int64) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSnapshotProcessor_RestartDuringRefresh(t *testing.T) {
	repo := newRepo(t)
	svc := NewExpenseService(repo, nil)
	_, err := svc.Create(context.Background(), input("Rent", "800", core.Monthly))
	require.NoError(t, err)

	exp := &gatedExporter{entered: make(chan struct{}, 1), release: make(chan struct{})}
	tl := NewTimelineService(repo, core.TimelineOptions{}, nil)
	p := NewSnapshotProcessor(tl, repo, exp, SnapshotProcessorConfig{RefreshInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Start(ctx))
	firstDone := p.doneCh
	<-exp.entered

	// the first loop is stuck exporting, so Stop gives up waiting
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer shortCancel()
	assert.ErrorIs(t, p.Stop(shortCtx), context.DeadlineExceeded)

	require.NoError(t, p.Start(ctx))
	close(exp.release)

	select {
	case <-firstDone:
	case <-time.After(5 * time.Second):
		t.Fatal("first loop did not exit after its stop signal")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
}
