// Package events models the record change events that drive the index queue.
//
// Event is a closed set: RecordUpdated, RecordDeleted and
// RecordGarbageCheckRequested are its only implementations. Events carry the
// record identity only, never its contents, so handlers always read the
// current row.
package events

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRecord is returned when an event is built for an unusable record identity.
var ErrInvalidRecord = errors.New("invalid record reference")

// Kind identifies the variant of an Event.
type Kind int

const (
	KindRecordUpdated Kind = iota + 1
	KindRecordDeleted
	KindRecordGarbageCheck
)

// Kinds lists every event kind in dispatch documentation order.
var Kinds = []Kind{KindRecordUpdated, KindRecordDeleted, KindRecordGarbageCheck}

func (k Kind) String() string {
	switch k {
	case KindRecordUpdated:
		return "record_updated"
	case KindRecordDeleted:
		return "record_deleted"
	case KindRecordGarbageCheck:
		return "record_garbage_check"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts the String form of a Kind back.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// RecordRef identifies a CMS record.
type RecordRef struct {
	Table string
	UID   int64
}

// NewRecordRef validates and returns a record reference.
func NewRecordRef(table string, uid int64) (RecordRef, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return RecordRef{}, fmt.Errorf("%w: table name is empty", ErrInvalidRecord)
	}
	if uid <= 0 {
		return RecordRef{}, fmt.Errorf("%w: uid %d for table %s must be positive", ErrInvalidRecord, uid, table)
	}
	return RecordRef{Table: table, UID: uid}, nil
}

func (r RecordRef) String() string {
	return fmt.Sprintf("%s:%d", r.Table, r.UID)
}

// Event is a change notification for one record.
type Event interface {
	Kind() Kind
	Record() RecordRef
	isEvent()
}

// RecordUpdated is raised after a record was inserted or updated.
type RecordUpdated struct{ ref RecordRef }

// RecordDeleted is raised after a record was removed.
type RecordDeleted struct{ ref RecordRef }

// RecordGarbageCheckRequested is raised together with RecordUpdated: a change can
// make a record unreachable (e.g. moved below a hidden page) without the
// persistence layer knowing, so reachability is checked separately.
type RecordGarbageCheckRequested struct{ ref RecordRef }

// NewRecordUpdated builds a RecordUpdated event.
func NewRecordUpdated(table string, uid int64) (RecordUpdated, error) {
	ref, err := NewRecordRef(table, uid)
	return RecordUpdated{ref: ref}, err
}

// NewRecordDeleted builds a RecordDeleted event.
func NewRecordDeleted(table string, uid int64) (RecordDeleted, error) {
	ref, err := NewRecordRef(table, uid)
	return RecordDeleted{ref: ref}, err
}

// NewRecordGarbageCheckRequested builds a RecordGarbageCheckRequested event.
func NewRecordGarbageCheckRequested(table string, uid int64) (RecordGarbageCheckRequested, error) {
	ref, err := NewRecordRef(table, uid)
	return RecordGarbageCheckRequested{ref: ref}, err
}

// New builds the event of the given kind.
func New(kind Kind, table string, uid int64) (Event, error) {
	ref, err := NewRecordRef(table, uid)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindRecordUpdated:
		return RecordUpdated{ref: ref}, nil
	case KindRecordDeleted:
		return RecordDeleted{ref: ref}, nil
	case KindRecordGarbageCheck:
		return RecordGarbageCheckRequested{ref: ref}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %v", kind)
	}
}

func (e RecordUpdated) Kind() Kind        { return KindRecordUpdated }
func (e RecordUpdated) Record() RecordRef { return e.ref }
func (RecordUpdated) isEvent()            {}

func (e RecordDeleted) Kind() Kind        { return KindRecordDeleted }
func (e RecordDeleted) Record() RecordRef { return e.ref }
func (RecordDeleted) isEvent()            {}

func (e RecordGarbageCheckRequested) Kind() Kind        { return KindRecordGarbageCheck }
func (e RecordGarbageCheckRequested) Record() RecordRef { return e.ref }
func (RecordGarbageCheckRequested) isEvent()            {}
