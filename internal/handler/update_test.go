package handler

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/goindexq/internal/dispatch"
	"github.com/dbsmedya/goindexq/internal/events"
	"github.com/dbsmedya/goindexq/internal/logger"
	"github.com/dbsmedya/goindexq/internal/monitoring"
	"github.com/dbsmedya/goindexq/internal/queue"
)

type itemKey struct {
	table string
	uid   int64
	root  int64
}

// memoryStore mimics the unique (table, uid, root) key of the queue table.
type memoryStore struct {
	items       map[itemKey]queue.Item
	upsertErr   error
	upsertCalls [][]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: make(map[itemKey]queue.Item)}
}

func (s *memoryStore) UpsertItems(_ context.Context, table string, uid int64, roots []int64, changed time.Time) error {
	s.upsertCalls = append(s.upsertCalls, roots)
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, root := range roots {
		key := itemKey{table, uid, root}
		item := s.items[key]
		item.TableName, item.TableUID, item.RootPageID = table, uid, root
		item.Changed = changed
		item.Errors = ""
		s.items[key] = item
	}
	return nil
}

func (s *memoryStore) DeleteItems(_ context.Context, table string, uid int64) (int64, error) {
	var n int64
	for key := range s.items {
		if key.table == table && key.uid == uid {
			delete(s.items, key)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) DeleteItem(_ context.Context, table string, uid, root int64) error {
	delete(s.items, itemKey{table, uid, root})
	return nil
}

func (s *memoryStore) FindItems(_ context.Context, table string, uid int64) ([]queue.Item, error) {
	var items []queue.Item
	for key, item := range s.items {
		if key.table == table && key.uid == uid {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].RootPageID < items[j].RootPageID })
	return items, nil
}

type staticResolver struct {
	roots map[string][]int64
	err   error
	calls int
}

func (r *staticResolver) RootPages(_ context.Context, table string, uid int64) ([]int64, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.roots[events.RecordRef{Table: table, UID: uid}.String()], nil
}

type fixture struct {
	handler  *UpdateHandler
	store    *memoryStore
	resolver *staticResolver
	clock    time.Time
}

func newFixture(t *testing.T, monitored ...string) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemoryStore(),
		resolver: &staticResolver{roots: map[string][]int64{}},
		clock:    time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	h, err := NewUpdateHandler(f.store, f.resolver, monitoring.NewPolicy(monitored), logger.NewNop())
	require.NoError(t, err)
	h.now = func() time.Time { return f.clock }
	f.handler = h
	return f
}

func TestNewUpdateHandler_Validation(t *testing.T) {
	store := newMemoryStore()
	resolver := &staticResolver{}
	policy := monitoring.NewPolicy(nil)

	_, err := NewUpdateHandler(nil, resolver, policy, nil)
	assert.Error(t, err)
	_, err = NewUpdateHandler(store, nil, policy, nil)
	assert.Error(t, err)
	_, err = NewUpdateHandler(store, resolver, nil, nil)
	assert.Error(t, err)

	h, err := NewUpdateHandler(store, resolver, policy, nil)
	require.NoError(t, err)
	assert.NotNil(t, h.logger)
}

func TestOnRecordUpdated_EnqueuesPerRootPage(t *testing.T) {
	f := newFixture(t)
	f.resolver.roots["tt_content:3"] = []int64{1, 20}

	require.NoError(t, f.handler.OnRecordUpdated(context.Background(), "tt_content", 3))

	items, _ := f.store.FindItems(context.Background(), "tt_content", 3)
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].RootPageID)
	assert.Equal(t, int64(20), items[1].RootPageID)
	assert.Equal(t, f.clock, items[0].Changed)
}

func TestOnRecordUpdated_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.resolver.roots["pages:5"] = []int64{1}

	require.NoError(t, f.handler.OnRecordUpdated(context.Background(), "pages", 5))
	f.store.items[itemKey{"pages", 5, 1}] = func() queue.Item {
		item := f.store.items[itemKey{"pages", 5, 1}]
		item.Errors = "solr unreachable"
		return item
	}()

	f.clock = f.clock.Add(time.Minute)
	require.NoError(t, f.handler.OnRecordUpdated(context.Background(), "pages", 5))

	items, _ := f.store.FindItems(context.Background(), "pages", 5)
	require.Len(t, items, 1)
	assert.Equal(t, f.clock, items[0].Changed, "changed time reflects the second update")
	assert.Empty(t, items[0].Errors, "re-enqueue clears errors")
}

func TestOnRecordUpdated_SkipsUnmonitoredTable(t *testing.T) {
	f := newFixture(t, "pages")
	f.resolver.roots["tt_content:3"] = []int64{1}

	require.NoError(t, f.handler.OnRecordUpdated(context.Background(), "tt_content", 3))

	assert.Empty(t, f.store.items)
	assert.Zero(t, f.resolver.calls, "skipped tables are not resolved")
}

func TestOnRecordUpdated_NoRootPages(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handler.OnRecordUpdated(context.Background(), "tt_content", 3))
	assert.Empty(t, f.store.items)
}

func TestOnRecordUpdated_ResolutionError(t *testing.T) {
	f := newFixture(t)
	f.store.items[itemKey{"tt_content", 3, 1}] = queue.Item{TableName: "tt_content", TableUID: 3, RootPageID: 1}
	f.resolver.err = errors.New("broken rootline")

	err := f.handler.OnRecordUpdated(context.Background(), "tt_content", 3)
	require.Error(t, err)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "tt_content", resErr.Table)
	assert.Equal(t, int64(3), resErr.UID)
	assert.Contains(t, err.Error(), "tt_content:3")
	assert.Len(t, f.store.items, 1, "queue untouched")
}

func TestOnRecordUpdated_StoreError(t *testing.T) {
	f := newFixture(t)
	f.resolver.roots["pages:5"] = []int64{1}
	f.store.upsertErr = assert.AnError

	err := f.handler.OnRecordUpdated(context.Background(), "pages", 5)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestOnRecordUpdated_AllRootPagesInOneWrite(t *testing.T) {
	f := newFixture(t)
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.resolver.roots["pages:5"] = []int64{1, 20}
	f.store.items[itemKey{"pages", 5, 1}] = queue.Item{TableName: "pages", TableUID: 5, RootPageID: 1, Changed: old}
	f.store.items[itemKey{"pages", 5, 20}] = queue.Item{TableName: "pages", TableUID: 5, RootPageID: 20, Changed: old}
	f.store.upsertErr = assert.AnError

	err := f.handler.OnRecordUpdated(context.Background(), "pages", 5)
	assert.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, [][]int64{{1, 20}}, f.store.upsertCalls)
	for _, item := range f.store.items {
		assert.Equal(t, old, item.Changed, "a failed write refreshes no root page")
	}
}

func TestOnRecordDeleted_NeverFiltered(t *testing.T) {
	f := newFixture(t, "tt_content")
	f.store.items[itemKey{"pages", 5, 1}] = queue.Item{TableName: "pages", TableUID: 5, RootPageID: 1}
	f.store.items[itemKey{"pages", 5, 20}] = queue.Item{TableName: "pages", TableUID: 5, RootPageID: 20}
	f.store.items[itemKey{"pages", 6, 1}] = queue.Item{TableName: "pages", TableUID: 6, RootPageID: 1}

	require.NoError(t, f.handler.OnRecordDeleted(context.Background(), "pages", 5))

	assert.Len(t, f.store.items, 1)
	_, kept := f.store.items[itemKey{"pages", 6, 1}]
	assert.True(t, kept)
}

func TestOnRecordGarbageCheck(t *testing.T) {
	tests := []struct {
		name      string
		roots     []int64
		wantRoots []int64
	}{
		{name: "still reachable", roots: []int64{1, 20}, wantRoots: []int64{1, 20}},
		{name: "moved to another site", roots: []int64{20, 30}, wantRoots: []int64{20}},
		{name: "no longer reachable", roots: nil, wantRoots: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.items[itemKey{"tt_content", 3, 1}] = queue.Item{TableName: "tt_content", TableUID: 3, RootPageID: 1}
			f.store.items[itemKey{"tt_content", 3, 20}] = queue.Item{TableName: "tt_content", TableUID: 3, RootPageID: 20}
			f.resolver.roots["tt_content:3"] = tt.roots

			require.NoError(t, f.handler.OnRecordGarbageCheck(context.Background(), "tt_content", 3))

			items, _ := f.store.FindItems(context.Background(), "tt_content", 3)
			var got []int64
			for _, item := range items {
				got = append(got, item.RootPageID)
			}
			assert.Equal(t, tt.wantRoots, got)
		})
	}
}

func TestOnRecordGarbageCheck_NothingQueued(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = errors.New("not called")

	require.NoError(t, f.handler.OnRecordGarbageCheck(context.Background(), "tt_content", 3))
	assert.Zero(t, f.resolver.calls)
}

func TestOnRecordGarbageCheck_ResolutionError(t *testing.T) {
	f := newFixture(t)
	f.store.items[itemKey{"tt_content", 3, 1}] = queue.Item{TableName: "tt_content", TableUID: 3, RootPageID: 1}
	f.resolver.err = errors.New("cycle")

	err := f.handler.OnRecordGarbageCheck(context.Background(), "tt_content", 3)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Len(t, f.store.items, 1)
}

func TestRegister_DispatchThroughBus(t *testing.T) {
	f := newFixture(t, "tt_content")
	f.resolver.roots["pages:5"] = []int64{1}

	bus := dispatch.NewBus(logger.NewNop(), nil)
	require.NoError(t, f.handler.Register(bus))
	assert.Len(t, bus.Subscriptions(), 3)

	ctx := context.Background()
	f.store.items[itemKey{"pages", 5, 1}] = queue.Item{TableName: "pages", TableUID: 5, RootPageID: 1}

	updated, err := events.NewRecordUpdated("pages", 5)
	require.NoError(t, err)
	require.NoError(t, bus.Dispatch(ctx, updated))
	assert.Equal(t, time.Time{}, f.store.items[itemKey{"pages", 5, 1}].Changed, "pages is not monitored")

	deleted, err := events.NewRecordDeleted("pages", 5)
	require.NoError(t, err)
	require.NoError(t, bus.Dispatch(ctx, deleted))
	assert.Empty(t, f.store.items)

	require.Error(t, f.handler.Register(bus), "subscriptions are registered once")
}

func TestRegister_UpdateThenGarbageCheck(t *testing.T) {
	f := newFixture(t)
	f.resolver.roots["pages:5"] = []int64{1}
	bus := dispatch.NewBus(logger.NewNop(), nil)
	require.NoError(t, f.handler.Register(bus))

	updated, _ := events.NewRecordUpdated("pages", 5)
	check, _ := events.NewRecordGarbageCheckRequested("pages", 5)

	for i := 0; i < 2; i++ {
		require.NoError(t, bus.DispatchAll(context.Background(), updated, check))
	}
	assert.Len(t, f.store.items, 1)
}
