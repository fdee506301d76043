// Package rootline resolves which site root pages are responsible for a record
// by walking the CMS page tree upward.
package rootline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/dbsmedya/goindexq/internal/config"
	"github.com/dbsmedya/goindexq/internal/logger"
	"github.com/dbsmedya/goindexq/internal/sqlutil"
)

// PagesTable is the CMS page tree table.
const PagesTable = "pages"

// MaxDepth bounds a rootline walk.
const MaxDepth = 99

// ErrBrokenRootline is returned when the page tree above a record cannot be walked.
var ErrBrokenRootline = errors.New("broken rootline")

type page struct {
	uid      int64
	pid      int64
	siteRoot bool
	hidden   bool
	deleted  bool
}

// Resolver finds the responsible root pages of records.
type Resolver struct {
	db     *sql.DB
	cfg    *config.Config
	logger *logger.Logger

	// sites restricts site roots to configured ones; empty means any page flagged as site root.
	sites map[int64]bool
	// additional maps a storage page id to the site roots that index records stored below it.
	additional map[int64][]int64
}

// NewResolver creates a resolver reading the page tree from db.
func NewResolver(db *sql.DB, cfg *config.Config, log *logger.Logger) (*Resolver, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	r := &Resolver{
		db:         db,
		cfg:        cfg,
		logger:     log,
		sites:      make(map[int64]bool, len(cfg.Sites)),
		additional: make(map[int64][]int64),
	}
	for _, site := range cfg.Sites {
		r.sites[site.RootPageID] = true
		for _, pid := range site.AdditionalPageIDs {
			r.additional[pid] = append(r.additional[pid], site.RootPageID)
		}
	}
	return r, nil
}

// RootPages returns the sorted root page ids under which the record is indexed.
// A record that does not exist, is hidden or deleted, or sits below a hidden page
// yields an empty set. A page tree that cannot be walked yields ErrBrokenRootline.
func (r *Resolver) RootPages(ctx context.Context, table string, uid int64) ([]int64, error) {
	start := uid
	if table != PagesTable {
		pid, visible, found, err := r.fetchRecord(ctx, table, uid)
		if err != nil {
			return nil, err
		}
		if !found || !visible {
			return nil, nil
		}
		start = pid
	}

	roots := make(map[int64]bool)
	visited := make(map[int64]bool)
	current := start

	for depth := 0; current > 0; depth++ {
		if depth >= MaxDepth {
			return nil, fmt.Errorf("%w: %s:%d exceeds depth %d", ErrBrokenRootline, table, uid, MaxDepth)
		}
		if visited[current] {
			return nil, fmt.Errorf("%w: %s:%d has a cycle at page %d", ErrBrokenRootline, table, uid, current)
		}
		visited[current] = true

		p, found, err := r.fetchPage(ctx, current)
		if err != nil {
			return nil, err
		}
		if !found {
			if table == PagesTable && current == uid {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: %s:%d references missing page %d", ErrBrokenRootline, table, uid, current)
		}
		if p.hidden || p.deleted {
			break
		}
		for _, root := range r.additional[p.uid] {
			roots[root] = true
		}
		if p.siteRoot {
			if len(r.sites) == 0 || r.sites[p.uid] {
				roots[p.uid] = true
			}
			break
		}
		current = p.pid
	}

	result := make([]int64, 0, len(roots))
	for root := range roots {
		result = append(result, root)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })

	r.logger.Debugw("Resolved root pages", "table", table, "uid", uid, "root_pages", result)
	return result, nil
}

// fetchRecord reads the page id and visibility of a non-page record.
func (r *Resolver) fetchRecord(ctx context.Context, table string, uid int64) (pid int64, visible, found bool, err error) {
	cols, err := r.columns(table)
	if err != nil {
		return 0, false, false, err
	}
	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE `uid` = ?", cols.pid, cols.hidden, cols.deleted, cols.table)

	var hidden, deleted int64
	err = r.db.QueryRowContext(ctx, query, uid).Scan(&pid, &hidden, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("failed to read %s:%d: %w", table, uid, err)
	}
	return pid, hidden == 0 && deleted == 0, true, nil
}

func (r *Resolver) fetchPage(ctx context.Context, uid int64) (page, bool, error) {
	cols, err := r.columns(PagesTable)
	if err != nil {
		return page{}, false, err
	}
	query := fmt.Sprintf("SELECT `uid`, %s, `is_siteroot`, %s, %s FROM %s WHERE `uid` = ?",
		cols.pid, cols.hidden, cols.deleted, cols.table)

	var p page
	var siteRoot, hidden, deleted int64
	err = r.db.QueryRowContext(ctx, query, uid).Scan(&p.uid, &p.pid, &siteRoot, &hidden, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return page{}, false, nil
	}
	if err != nil {
		return page{}, false, fmt.Errorf("failed to read page %d: %w", uid, err)
	}
	p.siteRoot = siteRoot != 0
	p.hidden = hidden != 0
	p.deleted = deleted != 0
	return p, true, nil
}

// quotedColumns holds the quoted identifiers of a record table.
// A table without an enable column reads it as the literal 0.
type quotedColumns struct {
	table, pid, hidden, deleted string
}

func (r *Resolver) columns(table string) (quotedColumns, error) {
	tc := r.cfg.GetTable(table)
	cols := quotedColumns{hidden: "0", deleted: "0"}

	quoted, err := sqlutil.QuoteIdentifiersSafe(table, tc.PidColumn)
	if err != nil {
		return quotedColumns{}, err
	}
	cols.table, cols.pid = quoted[0], quoted[1]

	if tc.HiddenColumn != "" {
		if cols.hidden, err = sqlutil.QuoteIdentifierSafe(tc.HiddenColumn); err != nil {
			return quotedColumns{}, err
		}
	}
	if tc.DeletedColumn != "" {
		if cols.deleted, err = sqlutil.QuoteIdentifierSafe(tc.DeletedColumn); err != nil {
			return quotedColumns{}, err
		}
	}
	return cols, nil
}
