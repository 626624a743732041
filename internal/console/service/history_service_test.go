package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/demonlist-history/internal/connectors"
	"github.com/xela07ax/demonlist-history/internal/domain"
	"github.com/xela07ax/demonlist-history/internal/infra"
)

type memStore struct {
	mu        sync.Mutex
	snapshots map[int]domain.MovementSnapshot
	err       error
}

func (m *memStore) Latest(ctx context.Context, demonID int) (domain.MovementSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.MovementSnapshot{}, m.err
	}
	snap, ok := m.snapshots[demonID]
	if !ok {
		return domain.MovementSnapshot{}, domain.ErrSnapshotNotFound
	}
	return snap, nil
}

type recorderStub struct {
	mu        sync.Mutex
	snapshots []domain.MovementSnapshot
}

func (r *recorderStub) Record(snapshot domain.MovementSnapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshot)
	return true
}

func (r *recorderStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func pos(v int) *int { return &v }

func sampleLog() []domain.AuditEvent {
	return []domain.AuditEvent{
		{Time: domain.ParseTimestamp("2021-03-04T18:22:01"), NewPosition: pos(5), Reason: domain.Added{}},
		{Time: domain.ParseTimestamp("2021-04-01T10:00:00"), NewPosition: pos(3), Reason: domain.Moved{}},
	}
}

type fixture struct {
	source   *connectors.FixtureSource
	store    *memStore
	recorder *recorderStub
	rdb      *redis.Client
	mr       *miniredis.Miniredis
	svc      *HistoryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		source:   connectors.NewFixtureSource(map[int][]domain.AuditEvent{42: sampleLog()}),
		store:    &memStore{snapshots: map[int]domain.MovementSnapshot{}},
		recorder: &recorderStub{},
		rdb:      rdb,
		mr:       mr,
	}
	cache := NewMovementCache(rdb, time.Minute, nil, zap.NewNop())
	f.svc = NewHistoryService(f.source, cache, f.store, f.recorder,
		domain.ListInfo{ListSize: 75, ExtendedListSize: 150}, nil, zap.NewNop())
	return f
}

func TestHistoryService_History(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.History(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, 42, res.DemonID)
	assert.Equal(t, 150, res.ExtendedListSize)
	assert.False(t, res.Stale)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "↑ 2", res.Rows[1].Delta.Text())
	assert.Equal(t, 1, f.recorder.count())
}

func TestHistoryService_SecondCallIsServedFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Movements(ctx, 42)
	require.NoError(t, err)
	_, err = f.svc.Movements(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, 1, f.source.Calls())
	assert.True(t, f.mr.Exists(infra.MovementsKey(42)))
}

func TestHistoryService_L2IsSharedBetweenInstances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Movements(ctx, 42)
	require.NoError(t, err)

	// Второй инстанс с пустым L1, но тем же Redis
	other := NewHistoryService(f.source, NewMovementCache(f.rdb, time.Minute, nil, zap.NewNop()),
		nil, nil, domain.ListInfo{ExtendedListSize: 150}, nil, zap.NewNop())
	log, err := other.Movements(ctx, 42)
	require.NoError(t, err)

	assert.Len(t, log.Events, 2)
	assert.Equal(t, 1, f.source.Calls())
}

func TestHistoryService_InvalidateForcesRefetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Movements(ctx, 42)
	require.NoError(t, err)
	require.NoError(t, f.svc.Invalidate(ctx, 42))
	assert.False(t, f.mr.Exists(infra.MovementsKey(42)))

	_, err = f.svc.Movements(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, f.source.Calls())
}

func TestHistoryService_NotFoundIsNotMaskedBySnapshot(t *testing.T) {
	f := newFixture(t)
	f.store.snapshots[7] = domain.MovementSnapshot{DemonID: 7, Events: sampleLog()}

	_, err := f.svc.History(context.Background(), 7)
	assert.ErrorIs(t, err, domain.ErrDemonNotFound)
}

func TestHistoryService_InvalidID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.History(context.Background(), -1)
	assert.ErrorIs(t, err, domain.ErrInvalidDemonID)
	assert.Equal(t, 0, f.source.Calls())

	assert.ErrorIs(t, f.svc.Invalidate(context.Background(), 0), domain.ErrInvalidDemonID)
}

func TestHistoryService_FallsBackToSnapshot(t *testing.T) {
	f := newFixture(t)
	fetchedAt := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f.store.snapshots[42] = domain.MovementSnapshot{DemonID: 42, Events: sampleLog()[:1], FetchedAt: fetchedAt}
	f.source.SetErr(domain.ErrUpstreamUnavailable)

	res, err := f.svc.History(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, fetchedAt, res.FetchedAt)
	assert.Len(t, res.Rows, 1)

	// Устаревший ответ не кэшируется
	assert.False(t, f.mr.Exists(infra.MovementsKey(42)))
	assert.Equal(t, 0, f.recorder.count())
}

func TestHistoryService_UpstreamDownWithoutSnapshot(t *testing.T) {
	f := newFixture(t)
	f.source.SetErr(domain.ErrUpstreamUnavailable)

	_, err := f.svc.History(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestHistoryService_WorksWithoutRedis(t *testing.T) {
	source := connectors.NewFixtureSource(map[int][]domain.AuditEvent{42: sampleLog()})
	svc := NewHistoryService(source, NewMovementCache(nil, time.Minute, nil, zap.NewNop()),
		nil, nil, domain.ListInfo{ExtendedListSize: 150}, nil, zap.NewNop())

	chart, err := svc.Chart(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 5, 3}, chart.Data)

	require.NoError(t, svc.Invalidate(context.Background(), 42))
	_, err = svc.Movements(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 2, source.Calls())
}

func TestHistoryService_InvalidationSignalDropsL1(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Movements(ctx, 42)
	require.NoError(t, err)

	// Другой инстанс удалил L2 и прислал сигнал
	f.mr.Del(infra.MovementsKey(42))
	f.svc.handleInvalidation("42")
	f.svc.handleInvalidation("garbage")

	_, err = f.svc.Movements(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, f.source.Calls())
}

func TestHistoryService_ConcurrentMissesShareOneFetch(t *testing.T) {
	f := newFixture(t)
	f.source.SetLatency(50 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Movements(context.Background(), 42)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, f.source.Calls(), 2)
}

func TestHistoryService_ContextCancelled(t *testing.T) {
	f := newFixture(t)
	f.source.SetLatency(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.svc.Movements(ctx, 42)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHistoryService_SharedFetchSurvivesFirstCallerCancel(t *testing.T) {
	f := newFixture(t)
	f.source.SetLatency(200 * time.Millisecond)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.svc.Movements(ctxA, 42)
		errA <- err
	}()
	require.Eventually(t, func() bool { return f.source.Calls() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		log MovementLog
		err error
	}
	resB := make(chan result, 1)
	go func() {
		log, err := f.svc.Movements(context.Background(), 42)
		resB <- result{log: log, err: err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelA()

	assert.ErrorIs(t, <-errA, context.Canceled)

	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.Len(t, res.log.Events, 2)
		assert.False(t, res.log.Stale)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not get the shared result")
	}
	assert.Equal(t, 1, f.source.Calls())
}

func TestHistoryService_SharedFetchHasOwnTimeout(t *testing.T) {
	f := newFixture(t)
	f.source.SetLatency(time.Second)
	f.svc.SetFetchTimeout(30 * time.Millisecond)

	_, err := f.svc.Movements(context.Background(), 42)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
