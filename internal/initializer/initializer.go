// Package initializer rebuilds the index queue of a site from the record tables.
package initializer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dbsmedya/goindexq/internal/config"
	"github.com/dbsmedya/goindexq/internal/lock"
	"github.com/dbsmedya/goindexq/internal/logger"
	"github.com/dbsmedya/goindexq/internal/rootline"
	"github.com/dbsmedya/goindexq/internal/sqlutil"
)

// Store is the part of the index queue the initializer rewrites.
type Store interface {
	ReplaceByType(ctx context.Context, rootPageID int64, table string, uids []int64, changedAt time.Time) (int64, error)
}

// RootPageResolver finds the site root pages a record is indexed under.
type RootPageResolver interface {
	RootPages(ctx context.Context, table string, uid int64) ([]int64, error)
}

// Policy decides whether changes to a table are tracked.
type Policy interface {
	ShouldSkip(tableName string) bool
}

// Result reports the outcome of initializing one table of a site.
type Result struct {
	RootPageID int64
	Table      string
	Deleted    int64
	Enqueued   int
	Skipped    int // records not indexed below the site
}

// Initializer re-enqueues every record of a table below a site root page.
type Initializer struct {
	db       *sql.DB
	cfg      *config.Config
	store    Store
	resolver RootPageResolver
	policy   Policy
	logger   *logger.Logger
	now      func() time.Time

	// LockTimeout is passed to GET_LOCK, in seconds.
	LockTimeout int
}

// New creates an initializer.
func New(db *sql.DB, cfg *config.Config, store Store, resolver RootPageResolver, policy Policy, log *logger.Logger) (*Initializer, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if store == nil || resolver == nil || policy == nil {
		return nil, fmt.Errorf("store, resolver and policy are required")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Initializer{
		db:          db,
		cfg:         cfg,
		store:       store,
		resolver:    resolver,
		policy:      policy,
		logger:      log,
		now:         time.Now,
		LockTimeout: lock.TimeoutShort,
	}, nil
}

// Initialize replaces the site's items of each table with a fresh item for every
// live record indexed below rootPageID. The site's advisory lock is held for the
// whole run so two initializers never interleave on one site.
func (in *Initializer) Initialize(ctx context.Context, rootPageID int64, tables []string) ([]Result, error) {
	if rootPageID <= 0 {
		return nil, fmt.Errorf("root page id must be positive, got %d", rootPageID)
	}
	if len(in.cfg.Sites) > 0 {
		if _, ok := in.cfg.GetSite(rootPageID); !ok {
			return nil, fmt.Errorf("root page %d is not a configured site", rootPageID)
		}
	}
	for _, table := range tables {
		if in.policy.ShouldSkip(table) {
			return nil, fmt.Errorf("table %s is not monitored", table)
		}
	}

	var results []Result
	siteLock := lock.NewSiteLock(in.db, rootPageID)
	err := siteLock.WithLock(ctx, in.LockTimeout, func() error {
		for _, table := range tables {
			result, err := in.initializeTable(ctx, rootPageID, table)
			if err != nil {
				return err
			}
			results = append(results, result)
		}
		return nil
	})
	return results, err
}

// initializeTable resolves every live record before the queue is touched. Only a
// broken rootline skips a record; any other error aborts and the site's items of
// the table stay as they were.
func (in *Initializer) initializeTable(ctx context.Context, rootPageID int64, table string) (Result, error) {
	result := Result{RootPageID: rootPageID, Table: table}
	log := in.logger.WithSite(rootPageID).WithTable(table)

	uids, err := in.liveUIDs(ctx, table)
	if err != nil {
		return result, err
	}

	enqueue := make([]int64, 0, len(uids))
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		roots, err := in.resolver.RootPages(ctx, table, uid)
		if errors.Is(err, rootline.ErrBrokenRootline) {
			log.Warnw("Skipping record with broken rootline", "uid", uid, "error", err)
			result.Skipped++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("failed to resolve root pages of %s:%d: %w", table, uid, err)
		}
		if !slices.Contains(roots, rootPageID) {
			result.Skipped++
			continue
		}
		enqueue = append(enqueue, uid)
	}

	deleted, err := in.store.ReplaceByType(ctx, rootPageID, table, enqueue, in.now())
	if err != nil {
		return result, err
	}
	result.Deleted = deleted
	result.Enqueued = len(enqueue)

	log.Infow("Index queue initialized", "deleted", result.Deleted, "enqueued", result.Enqueued, "skipped", result.Skipped)
	return result, nil
}

// liveUIDs lists the uids of the table's records that are not marked deleted.
func (in *Initializer) liveUIDs(ctx context.Context, table string) ([]int64, error) {
	quotedTable, err := sqlutil.QuoteIdentifierSafe(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT `uid` FROM %s", quotedTable)
	if col := in.cfg.GetTable(table).DeletedColumn; col != "" {
		quotedCol, err := sqlutil.QuoteIdentifierSafe(col)
		if err != nil {
			return nil, err
		}
		query += fmt.Sprintf(" WHERE %s = 0", quotedCol)
	}
	query += " ORDER BY `uid`"

	rows, err := in.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list records of %s: %w", table, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			in.logger.Warnf("Failed to close rows: %v", err)
		}
	}()

	var uids []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan uid of %s: %w", table, err)
		}
		uids = append(uids, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records of %s: %w", table, err)
	}
	return uids, nil
}
