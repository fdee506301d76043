package initializer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/goindexq/internal/config"
	"github.com/dbsmedya/goindexq/internal/lock"
	"github.com/dbsmedya/goindexq/internal/logger"
	"github.com/dbsmedya/goindexq/internal/monitoring"
	"github.com/dbsmedya/goindexq/internal/rootline"
)

type replacement struct {
	root  int64
	table string
	uids  []int64
}

type fakeStore struct {
	deleted      map[string]int64
	replacements []replacement
	replaceErr   error
}

func (s *fakeStore) ReplaceByType(_ context.Context, root int64, table string, uids []int64, _ time.Time) (int64, error) {
	if s.replaceErr != nil {
		return 0, s.replaceErr
	}
	s.replacements = append(s.replacements, replacement{root, table, uids})
	return s.deleted[table], nil
}

// mapResolver reports a broken rootline for uid 99.
type mapResolver map[int64][]int64

func (r mapResolver) RootPages(_ context.Context, table string, uid int64) ([]int64, error) {
	if uid == 99 {
		return nil, fmt.Errorf("%w: %s:%d references missing page 7", rootline.ErrBrokenRootline, table, uid)
	}
	return r[uid], nil
}

type failingResolver struct {
	err error
}

func (r failingResolver) RootPages(context.Context, string, int64) ([]int64, error) {
	return nil, r.err
}

func newTestInitializer(t *testing.T, cfg *config.Config, store *fakeStore, resolver RootPageResolver, monitored ...string) (*Initializer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	in, err := New(db, cfg, store, resolver, monitoring.NewPolicy(monitored), logger.NewNop())
	require.NoError(t, err)
	return in, mock
}

func expectLock(mock sqlmock.Sqlmock, name string) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).
		WithArgs(name, lock.TimeoutShort).
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(int64(1)))
}

func expectUnlock(mock sqlmock.Sqlmock, name string) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT RELEASE_LOCK(?)")).
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(int64(1)))
}

func TestNew_Validation(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer func() { _ = db.Close() }()
	cfg := config.DefaultConfig()
	store := &fakeStore{}
	policy := monitoring.NewPolicy(nil)

	_, err := New(nil, cfg, store, mapResolver{}, policy, nil)
	assert.Error(t, err)
	_, err = New(db, nil, store, mapResolver{}, policy, nil)
	assert.Error(t, err)
	_, err = New(db, cfg, nil, mapResolver{}, policy, nil)
	assert.Error(t, err)

	in, err := New(db, cfg, store, mapResolver{}, policy, nil)
	require.NoError(t, err)
	assert.Equal(t, lock.TimeoutShort, in.LockTimeout)
}

func TestInitialize(t *testing.T) {
	store := &fakeStore{deleted: map[string]int64{"tt_content": 4}}
	resolver := mapResolver{1: {1}, 2: {1, 20}, 3: {20}, 99: nil}
	in, mock := newTestInitializer(t, nil, store, resolver)

	expectLock(mock, "goindexq:site:1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `uid` FROM `tt_content` WHERE `deleted` = 0 ORDER BY `uid`")).
		WillReturnRows(sqlmock.NewRows([]string{"uid"}).AddRow(1).AddRow(2).AddRow(3).AddRow(99))
	expectUnlock(mock, "goindexq:site:1")

	results, err := in.Initialize(context.Background(), 1, []string{"tt_content"})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, Result{RootPageID: 1, Table: "tt_content", Deleted: 4, Enqueued: 2, Skipped: 2}, results[0])
	assert.Equal(t, []replacement{{1, "tt_content", []int64{1, 2}}}, store.replacements)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitialize_TableWithoutDeletedColumn(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tables = map[string]config.TableConfig{"tx_news": {}}
	store := &fakeStore{}
	in, mock := newTestInitializer(t, cfg, store, mapResolver{5: {1}})

	expectLock(mock, "goindexq:site:1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `uid` FROM `tx_news` ORDER BY `uid`")).
		WillReturnRows(sqlmock.NewRows([]string{"uid"}).AddRow(5))
	expectUnlock(mock, "goindexq:site:1")

	results, err := in.Initialize(context.Background(), 1, []string{"tx_news"})
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Enqueued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitialize_LockHeldElsewhere(t *testing.T) {
	store := &fakeStore{}
	in, mock := newTestInitializer(t, nil, store, mapResolver{})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(int64(0)))

	_, err := in.Initialize(context.Background(), 1, []string{"pages"})
	assert.ErrorIs(t, err, lock.ErrLockTimeout)
	assert.Empty(t, store.replacements)
}

func TestInitialize_StoreErrorReleasesLock(t *testing.T) {
	store := &fakeStore{replaceErr: assert.AnError}
	in, mock := newTestInitializer(t, nil, store, mapResolver{})

	expectLock(mock, "goindexq:site:1")
	mock.ExpectQuery("SELECT `uid` FROM `pages`").WillReturnRows(sqlmock.NewRows([]string{"uid"}).AddRow(1))
	expectUnlock(mock, "goindexq:site:1")

	_, err := in.Initialize(context.Background(), 1, []string{"pages"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitialize_Rejects(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sites = []config.SiteConfig{{Name: "main", RootPageID: 1}}

	tests := []struct {
		name    string
		root    int64
		tables  []string
		wantErr string
	}{
		{"non-positive root", 0, []string{"pages"}, "must be positive"},
		{"unconfigured site", 2, []string{"pages"}, "not a configured site"},
		{"unmonitored table", 1, []string{"tt_content"}, "not monitored"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, mock := newTestInitializer(t, cfg, &fakeStore{}, mapResolver{}, "pages")

			_, err := in.Initialize(context.Background(), tt.root, tt.tables)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet(), "nothing touches the database")
		})
	}
}

func TestInitialize_ResolverErrorKeepsQueue(t *testing.T) {
	store := &fakeStore{deleted: map[string]int64{"tt_content": 3}}
	in, mock := newTestInitializer(t, nil, store, failingResolver{errors.New("driver: bad connection")})

	expectLock(mock, "goindexq:site:1")
	mock.ExpectQuery("SELECT `uid` FROM `tt_content`").
		WillReturnRows(sqlmock.NewRows([]string{"uid"}).AddRow(1).AddRow(2).AddRow(3))
	expectUnlock(mock, "goindexq:site:1")

	results, err := in.Initialize(context.Background(), 1, []string{"tt_content"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad connection")
	assert.Contains(t, err.Error(), "tt_content:1")
	assert.Empty(t, results)
	assert.Empty(t, store.replacements, "existing items are not replaced")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitialize_CancelledKeepsQueue(t *testing.T) {
	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())
	resolver := cancellingResolver{cancel: cancel}
	in, mock := newTestInitializer(t, nil, store, resolver)

	expectLock(mock, "goindexq:site:1")
	mock.ExpectQuery("SELECT `uid` FROM `pages`").
		WillReturnRows(sqlmock.NewRows([]string{"uid"}).AddRow(1).AddRow(2))
	expectUnlock(mock, "goindexq:site:1")

	_, err := in.Initialize(ctx, 1, []string{"pages"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.replacements)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// cancellingResolver cancels the run while the first record is resolved.
type cancellingResolver struct {
	cancel context.CancelFunc
}

func (r cancellingResolver) RootPages(context.Context, string, int64) ([]int64, error) {
	r.cancel()
	return []int64{1}, nil
}
