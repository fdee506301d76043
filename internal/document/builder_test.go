package document

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/goindexq/internal/logger"
	"github.com/dbsmedya/goindexq/internal/queue"
)

func newTestBuilder(t *testing.T) (*Builder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b, err := NewBuilder(db, logger.NewNop())
	require.NoError(t, err)
	return b, mock
}

func testItem() queue.Item {
	return queue.Item{
		UID:        10,
		RootPageID: 1,
		TableName:  "tt_content",
		TableUID:   42,
		Changed:    time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewBuilder_NilDB(t *testing.T) {
	_, err := NewBuilder(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection is nil")
}

func TestBuilder_Build(t *testing.T) {
	b, mock := newTestBuilder(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `tt_content` WHERE `uid` = ?")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"uid", "pid", "header", "type"}).
			AddRow(int64(42), int64(12), []byte("Welcome"), "text"))

	doc, err := b.Build(context.Background(), testItem())
	require.NoError(t, err)

	header, ok := doc.Get("header")
	require.True(t, ok)
	assert.Equal(t, "Welcome", header, "byte columns become strings")

	pid, _ := doc.Get("pid")
	assert.Equal(t, int64(12), pid)

	id, _ := doc.Get(FieldID)
	assert.Equal(t, "1/tt_content/42", id)

	typ, _ := doc.Get(FieldType)
	assert.Equal(t, "tt_content", typ, "reserved field wins over column")

	site, _ := doc.Get(FieldSite)
	assert.Equal(t, int64(1), site)

	changed, _ := doc.Get(FieldChanged)
	assert.Equal(t, "2026-05-01T10:00:00Z", changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuilder_Build_RecordNotFound(t *testing.T) {
	b, mock := newTestBuilder(t)

	mock.ExpectQuery("SELECT \\* FROM `tt_content`").
		WillReturnRows(sqlmock.NewRows([]string{"uid"}))

	_, err := b.Build(context.Background(), testItem())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.Contains(t, err.Error(), "tt_content:42")
}

func TestBuilder_Build_QueryError(t *testing.T) {
	b, mock := newTestBuilder(t)

	mock.ExpectQuery("SELECT \\* FROM `tt_content`").WillReturnError(assert.AnError)

	_, err := b.Build(context.Background(), testItem())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestBuilder_Build_InvalidTable(t *testing.T) {
	b, _ := newTestBuilder(t)
	item := testItem()
	item.TableName = "tt_content`; --"

	_, err := b.Build(context.Background(), item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid identifier")
}
