// Package queue provides the persistent index queue and its statistics.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dbsmedya/goindexq/internal/logger"
)

// ItemTable is the name of the index queue table.
const ItemTable = "tx_indexqueue_item"

// The unique key is what keeps one live item per (table, uid, root page):
// concurrent writers upsert against it instead of locking.
const createItemTableSQL = `
CREATE TABLE IF NOT EXISTS tx_indexqueue_item (
	uid BIGINT AUTO_INCREMENT PRIMARY KEY,
	root BIGINT NOT NULL,
	item_type VARCHAR(255) NOT NULL,
	item_uid BIGINT NOT NULL,
	changed DATETIME(6) NOT NULL,
	indexed DATETIME(6) NULL,
	errors TEXT NOT NULL,
	claimed_by VARCHAR(64) NOT NULL DEFAULT '',
	claimed_at DATETIME(6) NULL,
	UNIQUE KEY uk_item (item_type, item_uid, root),
	INDEX idx_root_changed (root, changed),
	INDEX idx_claim (claimed_by, claimed_at)
) ENGINE=InnoDB;
`

const itemColumns = "uid, root, item_type, item_uid, changed, indexed, errors, claimed_by"

// pendingCondition selects items that still need indexing.
const pendingCondition = "errors = '' AND (indexed IS NULL OR indexed < changed)"

// Item is one indexing obligation for a record below one site root page.
type Item struct {
	UID        int64
	RootPageID int64
	TableName  string
	TableUID   int64
	Changed    time.Time
	Indexed    time.Time // zero when never indexed
	Errors     string
	ClaimedBy  string
}

// IsIndexed reports whether the latest change has been indexed.
func (i Item) IsIndexed() bool {
	return i.Errors == "" && !i.Indexed.IsZero() && !i.Indexed.Before(i.Changed)
}

// State returns the item's indexing state.
func (i Item) State() State {
	switch {
	case i.Errors != "":
		return StateFailed
	case i.IsIndexed():
		return StateSuccess
	default:
		return StatePending
	}
}

// Store persists queue items in MySQL.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStore creates a queue store on db.
func NewStore(db *sql.DB, log *logger.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Store{db: db, logger: log}, nil
}

// InitializeTables creates the queue table if it does not exist.
// Safe to call on every startup.
func (s *Store) InitializeTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createItemTableSQL); err != nil {
		return fmt.Errorf("failed to create %s table: %w", ItemTable, err)
	}
	s.logger.Infof("Index queue table %s initialized", ItemTable)
	return nil
}

// upsertSQL inserts items or, for an existing (table, uid, root), replaces the
// changed time and clears errors. Callers append one values group per item.
const upsertSQL = "INSERT INTO tx_indexqueue_item (root, item_type, item_uid, changed, errors) VALUES "

const upsertConflictSQL = " ON DUPLICATE KEY UPDATE changed = VALUES(changed), errors = ''"

// upsertBatchSize bounds the values groups of one multi-row upsert.
const upsertBatchSize = 500

// UpsertItems enqueues a record for each root page in one statement, so either
// every root page is refreshed or none is.
func (s *Store) UpsertItems(ctx context.Context, table string, uid int64, rootPageIDs []int64, changedAt time.Time) error {
	if len(rootPageIDs) == 0 {
		return nil
	}
	query, args := buildUpsert(len(rootPageIDs), func(i int) []interface{} {
		return []interface{}{rootPageIDs[i], table, uid, changedAt.UTC()}
	})
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert items of %s:%d for root pages %v: %w", table, uid, rootPageIDs, err)
	}
	s.logger.Debugf("Enqueued %s:%d for root pages %v", table, uid, rootPageIDs)
	return nil
}

// ReplaceByType swaps all items of a table below a root page for fresh items of
// uids in one transaction. On error the previous items are kept.
func (s *Store) ReplaceByType(ctx context.Context, rootPageID int64, table string, uids []int64, changedAt time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Errorf("Failed to rollback transaction: %v", rbErr)
			}
		}
	}()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM tx_indexqueue_item WHERE root = ? AND item_type = ?",
		rootPageID, table,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s items of root page %d: %w", table, rootPageID, err)
	}
	deleted := rowsAffected(res)

	for start := 0; start < len(uids); start += upsertBatchSize {
		chunk := uids[start:min(start+upsertBatchSize, len(uids))]
		query, args := buildUpsert(len(chunk), func(i int) []interface{} {
			return []interface{}{rootPageID, table, chunk[i], changedAt.UTC()}
		})
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("failed to enqueue %s items of root page %d: %w", table, rootPageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s items of root page %d: %w", table, rootPageID, err)
	}
	tx = nil
	return deleted, nil
}

func buildUpsert(n int, row func(i int) []interface{}) (string, []interface{}) {
	groups := make([]string, n)
	args := make([]interface{}, 0, n*4)
	for i := 0; i < n; i++ {
		groups[i] = "(?, ?, ?, ?, '')"
		args = append(args, row(i)...)
	}
	return upsertSQL + strings.Join(groups, ", ") + upsertConflictSQL, args
}

// DeleteItems removes every item of a record regardless of root page.
func (s *Store) DeleteItems(ctx context.Context, table string, uid int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM tx_indexqueue_item WHERE item_type = ? AND item_uid = ?",
		table, uid,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete items of %s:%d: %w", table, uid, err)
	}
	return rowsAffected(res), nil
}

// DeleteItem removes the item of a record for one root page.
func (s *Store) DeleteItem(ctx context.Context, table string, uid, rootPageID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM tx_indexqueue_item WHERE item_type = ? AND item_uid = ? AND root = ?",
		table, uid, rootPageID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete item %s:%d for root page %d: %w", table, uid, rootPageID, err)
	}
	return nil
}

// FindItems returns all items of a record ordered by root page.
func (s *Store) FindItems(ctx context.Context, table string, uid int64) ([]Item, error) {
	return s.queryItems(ctx,
		"SELECT "+itemColumns+" FROM tx_indexqueue_item WHERE item_type = ? AND item_uid = ? ORDER BY root ASC",
		table, uid,
	)
}

// FailedItems returns up to limit failed items, optionally restricted to a root page (0 = all).
func (s *Store) FailedItems(ctx context.Context, rootPageID int64, limit int) ([]Item, error) {
	query := "SELECT " + itemColumns + " FROM tx_indexqueue_item WHERE errors <> ''"
	args := []interface{}{}
	if rootPageID > 0 {
		query += " AND root = ?"
		args = append(args, rootPageID)
	}
	query += " ORDER BY changed DESC LIMIT ?"
	args = append(args, limit)
	return s.queryItems(ctx, query, args...)
}

// Statistics counts items per state, optionally restricted to a root page (0 = all).
// The counts are recomputed on every call.
func (s *Store) Statistics(ctx context.Context, rootPageID int64) (Statistic, error) {
	query := "SELECT " +
		"COALESCE(SUM(errors <> ''), 0), " +
		"COALESCE(SUM(errors = '' AND indexed IS NOT NULL AND indexed >= changed), 0), " +
		"COALESCE(SUM(" + pendingCondition + "), 0) " +
		"FROM tx_indexqueue_item"
	args := []interface{}{}
	if rootPageID > 0 {
		query += " WHERE root = ?"
		args = append(args, rootPageID)
	}

	var stat Statistic
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stat.FailedCount, &stat.SuccessCount, &stat.PendingCount); err != nil {
		return Statistic{}, fmt.Errorf("failed to compute queue statistics: %w", err)
	}
	return stat, nil
}

// ClaimPending atomically assigns up to limit pending, unclaimed items to claimID
// and returns them. Two workers can never claim the same item: the UPDATE only
// matches rows whose claimed_by is still empty.
func (s *Store) ClaimPending(ctx context.Context, claimID string, rootPageID int64, limit int) ([]Item, error) {
	if strings.TrimSpace(claimID) == "" {
		return nil, fmt.Errorf("claim id is required")
	}
	if limit <= 0 {
		return nil, nil
	}

	query := "UPDATE tx_indexqueue_item SET claimed_by = ?, claimed_at = ? WHERE claimed_by = '' AND " + pendingCondition
	args := []interface{}{claimID, time.Now().UTC()}
	if rootPageID > 0 {
		query += " AND root = ?"
		args = append(args, rootPageID)
	}
	query += " ORDER BY changed ASC LIMIT ?"
	args = append(args, limit)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending items: %w", err)
	}
	if rowsAffected(res) == 0 {
		return nil, nil
	}

	return s.queryItems(ctx,
		"SELECT "+itemColumns+" FROM tx_indexqueue_item WHERE claimed_by = ? ORDER BY changed ASC",
		claimID,
	)
}

// MarkIndexed records that the item was indexed as of its claimed changed time
// and releases the claim. A change enqueued while indexing keeps the item pending.
// Nothing is written when the claim was released and taken by another worker.
func (s *Store) MarkIndexed(ctx context.Context, item Item) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tx_indexqueue_item SET indexed = ?, claimed_by = '', claimed_at = NULL WHERE uid = ? AND claimed_by = ?",
		item.Changed.UTC(), item.UID, item.ClaimedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to mark item %d indexed: %w", item.UID, err)
	}
	if rowsAffected(res) == 0 {
		s.logger.Warnf("Claim %q on item %d was lost before it was marked indexed", item.ClaimedBy, item.UID)
	}
	return nil
}

// MarkFailed stores the error text and releases the claim. The error is only
// kept when no newer change was enqueued meanwhile and the claim is still held.
func (s *Store) MarkFailed(ctx context.Context, item Item, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "indexing failed"
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE tx_indexqueue_item SET errors = IF(changed = ?, ?, errors), claimed_by = '', claimed_at = NULL WHERE uid = ? AND claimed_by = ?",
		item.Changed.UTC(), message, item.UID, item.ClaimedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to mark item %d failed: %w", item.UID, err)
	}
	s.logger.Warnf("Marked %s:%d (root page %d) failed: %s", item.TableName, item.TableUID, item.RootPageID, message)
	return nil
}

// RenewClaims moves claimed_at of every item held by claimID to now, so a worker
// busy with a long batch does not lose its claims to ReleaseStaleClaims.
func (s *Store) RenewClaims(ctx context.Context, claimID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tx_indexqueue_item SET claimed_at = ? WHERE claimed_by = ?",
		time.Now().UTC(), claimID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to renew claims of %s: %w", claimID, err)
	}
	return rowsAffected(res), nil
}

// ReleaseStaleClaims frees claims not renewed since the cutoff, left behind by crashed workers.
func (s *Store) ReleaseStaleClaims(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tx_indexqueue_item SET claimed_by = '', claimed_at = NULL WHERE claimed_by <> '' AND claimed_at < ?",
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}
	released := rowsAffected(res)
	if released > 0 {
		s.logger.Warnf("Released %d stale queue claims", released)
	}
	return released, nil
}

// ResetErrors clears errors so failed items are retried, optionally for one root page (0 = all).
func (s *Store) ResetErrors(ctx context.Context, rootPageID int64) (int64, error) {
	query := "UPDATE tx_indexqueue_item SET errors = '' WHERE errors <> ''"
	args := []interface{}{}
	if rootPageID > 0 {
		query += " AND root = ?"
		args = append(args, rootPageID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset item errors: %w", err)
	}
	return rowsAffected(res), nil
}

func (s *Store) queryItems(ctx context.Context, query string, args ...interface{}) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warnf("Failed to close rows: %v", err)
		}
	}()

	var items []Item
	for rows.Next() {
		var item Item
		var indexed sql.NullTime
		if err := rows.Scan(&item.UID, &item.RootPageID, &item.TableName, &item.TableUID,
			&item.Changed, &indexed, &item.Errors, &item.ClaimedBy); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		if indexed.Valid {
			item.Indexed = indexed.Time
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue items: %w", err)
	}
	return items, nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
