// Package listener is the entry point for the CMS persistence layer.
package listener

import (
	"context"
	"fmt"

	"github.com/dbsmedya/goindexq/internal/events"
	"github.com/dbsmedya/goindexq/internal/logger"
)

// Entity is a persisted domain object.
type Entity interface {
	UID() int64
}

// TableNamer is implemented by entities that know their table.
type TableNamer interface {
	TableName() string
}

// TableNameResolver maps an entity to the table it is stored in.
type TableNameResolver interface {
	TableName(entity Entity) (string, error)
}

// TableNameResolverFunc adapts a function to TableNameResolver.
type TableNameResolverFunc func(entity Entity) (string, error)

func (f TableNameResolverFunc) TableName(entity Entity) (string, error) {
	return f(entity)
}

// SelfNamed resolves tables of entities implementing TableNamer.
var SelfNamed TableNameResolver = TableNameResolverFunc(func(entity Entity) (string, error) {
	if named, ok := entity.(TableNamer); ok {
		return named.TableName(), nil
	}
	return "", fmt.Errorf("cannot resolve table of %T", entity)
})

// Dispatcher delivers events in order, stopping at the first failure.
type Dispatcher interface {
	DispatchAll(ctx context.Context, evs ...events.Event) error
}

// Record is a plain Entity for callers that only know the record identity.
type Record struct {
	Table string
	ID    int64
}

func (r Record) UID() int64        { return r.ID }
func (r Record) TableName() string { return r.Table }

// Listener converts persistence callbacks into change events.
type Listener struct {
	dispatcher Dispatcher
	tables     TableNameResolver
	logger     *logger.Logger
}

// New creates a listener. A nil resolver uses SelfNamed.
func New(dispatcher Dispatcher, tables TableNameResolver, log *logger.Logger) (*Listener, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is nil")
	}
	if tables == nil {
		tables = SelfNamed
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Listener{dispatcher: dispatcher, tables: tables, logger: log}, nil
}

// OnPersisted is called after an entity was inserted or updated. It dispatches
// RecordUpdated followed by RecordGarbageCheckRequested.
func (l *Listener) OnPersisted(ctx context.Context, entity Entity) error {
	ref, err := l.resolve(entity)
	if err != nil {
		return err
	}
	updated, err := events.NewRecordUpdated(ref.Table, ref.UID)
	if err != nil {
		return err
	}
	check, err := events.NewRecordGarbageCheckRequested(ref.Table, ref.UID)
	if err != nil {
		return err
	}
	l.logger.WithRecord(ref.Table, ref.UID).Debug("Entity persisted")
	return l.dispatcher.DispatchAll(ctx, updated, check)
}

// OnRemoved is called after an entity was deleted. It dispatches RecordDeleted.
func (l *Listener) OnRemoved(ctx context.Context, entity Entity) error {
	ref, err := l.resolve(entity)
	if err != nil {
		return err
	}
	deleted, err := events.NewRecordDeleted(ref.Table, ref.UID)
	if err != nil {
		return err
	}
	l.logger.WithRecord(ref.Table, ref.UID).Debug("Entity removed")
	return l.dispatcher.DispatchAll(ctx, deleted)
}

func (l *Listener) resolve(entity Entity) (events.RecordRef, error) {
	if entity == nil {
		return events.RecordRef{}, fmt.Errorf("%w: entity is nil", events.ErrInvalidRecord)
	}
	table, err := l.tables.TableName(entity)
	if err != nil {
		return events.RecordRef{}, fmt.Errorf("failed to resolve table name: %w", err)
	}
	return events.NewRecordRef(table, entity.UID())
}
