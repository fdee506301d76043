// Package handler turns record change events into index queue mutations.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/dbsmedya/goindexq/internal/dispatch"
	"github.com/dbsmedya/goindexq/internal/events"
	"github.com/dbsmedya/goindexq/internal/logger"
	"github.com/dbsmedya/goindexq/internal/queue"
)

// Store is the part of the index queue the handlers write to.
type Store interface {
	UpsertItems(ctx context.Context, table string, uid int64, rootPageIDs []int64, changedAt time.Time) error
	DeleteItems(ctx context.Context, table string, uid int64) (int64, error)
	DeleteItem(ctx context.Context, table string, uid, rootPageID int64) error
	FindItems(ctx context.Context, table string, uid int64) ([]queue.Item, error)
}

// RootPageResolver finds the site root pages a record is indexed under.
type RootPageResolver interface {
	RootPages(ctx context.Context, table string, uid int64) ([]int64, error)
}

// Policy decides whether changes to a table are tracked.
type Policy interface {
	ShouldSkip(tableName string) bool
}

// ResolutionError reports that the root pages of a record could not be determined.
// The queue is left as it was; the caller may retry the event later.
type ResolutionError struct {
	Table string
	UID   int64
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve root pages of %s:%d: %v", e.Table, e.UID, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Subscription names used by Register.
const (
	SubscriptionUpdated      = "queue.record_updated"
	SubscriptionDeleted      = "queue.record_deleted"
	SubscriptionGarbageCheck = "queue.record_garbage_check"
)

// UpdateHandler keeps the index queue in line with record changes.
type UpdateHandler struct {
	store    Store
	resolver RootPageResolver
	policy   Policy
	logger   *logger.Logger
	now      func() time.Time
}

// NewUpdateHandler creates a handler. All collaborators except log are required.
func NewUpdateHandler(store Store, resolver RootPageResolver, policy Policy, log *logger.Logger) (*UpdateHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("queue store is nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("root page resolver is nil")
	}
	if policy == nil {
		return nil, fmt.Errorf("monitoring policy is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &UpdateHandler{
		store:    store,
		resolver: resolver,
		policy:   policy,
		logger:   log,
		now:      time.Now,
	}, nil
}

// Register subscribes the three handlers on bus.
func (h *UpdateHandler) Register(bus *dispatch.Bus) error {
	subs := []struct {
		name string
		kind events.Kind
		fn   dispatch.HandlerFunc
	}{
		{SubscriptionUpdated, events.KindRecordUpdated, h.handleUpdated},
		{SubscriptionDeleted, events.KindRecordDeleted, h.handleDeleted},
		{SubscriptionGarbageCheck, events.KindRecordGarbageCheck, h.handleGarbageCheck},
	}
	for _, s := range subs {
		if err := bus.Subscribe(s.name, s.kind, s.fn); err != nil {
			return err
		}
	}
	return nil
}

func (h *UpdateHandler) handleUpdated(ctx context.Context, ev events.Event) error {
	ref := ev.Record()
	return h.OnRecordUpdated(ctx, ref.Table, ref.UID)
}

func (h *UpdateHandler) handleDeleted(ctx context.Context, ev events.Event) error {
	ref := ev.Record()
	return h.OnRecordDeleted(ctx, ref.Table, ref.UID)
}

func (h *UpdateHandler) handleGarbageCheck(ctx context.Context, ev events.Event) error {
	ref := ev.Record()
	return h.OnRecordGarbageCheck(ctx, ref.Table, ref.UID)
}

// OnRecordUpdated enqueues the record once per responsible root page. Existing
// items are refreshed in place with a new changed time and cleared errors.
// Unmonitored tables are ignored.
func (h *UpdateHandler) OnRecordUpdated(ctx context.Context, table string, uid int64) error {
	if h.policy.ShouldSkip(table) {
		h.logger.Debugf("Skipping update of unmonitored %s:%d", table, uid)
		return nil
	}

	roots, err := h.resolver.RootPages(ctx, table, uid)
	if err != nil {
		return &ResolutionError{Table: table, UID: uid, Err: err}
	}

	log := h.logger.WithRecord(table, uid)
	if len(roots) == 0 {
		log.Debug("Record is not below any indexed site root")
		return nil
	}

	if err := h.store.UpsertItems(ctx, table, uid, roots, h.now()); err != nil {
		return err
	}
	log.Debugw("Record enqueued", "root_pages", roots)
	return nil
}

// OnRecordDeleted removes every item of the record. Deletions are applied even
// for unmonitored tables.
func (h *UpdateHandler) OnRecordDeleted(ctx context.Context, table string, uid int64) error {
	removed, err := h.store.DeleteItems(ctx, table, uid)
	if err != nil {
		return err
	}
	if removed > 0 {
		h.logger.WithRecord(table, uid).Debugf("Removed %d queue items", removed)
	}
	return nil
}

// OnRecordGarbageCheck drops the items of a record that is no longer indexable
// under their root page. A record that is not reachable at all loses every item.
func (h *UpdateHandler) OnRecordGarbageCheck(ctx context.Context, table string, uid int64) error {
	items, err := h.store.FindItems(ctx, table, uid)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	roots, err := h.resolver.RootPages(ctx, table, uid)
	if err != nil {
		return &ResolutionError{Table: table, UID: uid, Err: err}
	}
	if len(roots) == 0 {
		return h.OnRecordDeleted(ctx, table, uid)
	}

	responsible := make(map[int64]bool, len(roots))
	for _, root := range roots {
		responsible[root] = true
	}

	log := h.logger.WithRecord(table, uid)
	for _, item := range items {
		if responsible[item.RootPageID] {
			continue
		}
		if err := h.store.DeleteItem(ctx, table, uid, item.RootPageID); err != nil {
			return err
		}
		log.Debugw("Removed item of root page no longer responsible", "root_page", item.RootPageID)
	}
	return nil
}
