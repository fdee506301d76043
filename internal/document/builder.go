package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbsmedya/goindexq/internal/logger"
	"github.com/dbsmedya/goindexq/internal/queue"
	"github.com/dbsmedya/goindexq/internal/sqlutil"
)

// ErrRecordNotFound is returned when a queued record no longer exists.
var ErrRecordNotFound = errors.New("record not found")

// Builder loads queued records and maps them into documents.
type Builder struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewBuilder creates a builder reading records from db.
func NewBuilder(db *sql.DB, log *logger.Logger) (*Builder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Builder{db: db, logger: log}, nil
}

// Build returns the document for a queue item. Every record column becomes a
// field; the reserved fields are set last and win over columns of the same name.
func (b *Builder) Build(ctx context.Context, item queue.Item) (*Document, error) {
	table, err := sqlutil.QuoteIdentifierSafe(item.TableName)
	if err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE `uid` = ?", table), item.TableUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s:%d: %w", item.TableName, item.TableUID, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			b.logger.Warnf("Failed to close rows: %v", err)
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns of %s: %w", item.TableName, err)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to load %s:%d: %w", item.TableName, item.TableUID, err)
		}
		return nil, fmt.Errorf("%w: %s:%d", ErrRecordNotFound, item.TableName, item.TableUID)
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan %s:%d: %w", item.TableName, item.TableUID, err)
	}

	doc := New()
	for i, col := range columns {
		doc.Set(col, normalize(values[i]))
	}
	doc.Set(FieldID, ID(item.RootPageID, item.TableName, item.TableUID))
	doc.Set(FieldType, item.TableName)
	doc.Set(FieldUID, item.TableUID)
	doc.Set(FieldSite, item.RootPageID)
	doc.Set(FieldChanged, item.Changed.UTC().Format(time.RFC3339))
	return doc, nil
}
