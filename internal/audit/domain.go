// Package audit maintains the append-only permission decision ledger.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Decision values stored on ledger entries.
const (
	DecisionGranted = "granted"
	DecisionDenied  = "denied"
)

// ActionPermissionCheck tags every entry written by the engine.
const ActionPermissionCheck = "permission_check"

// Entry is one immutable ledger record. Entries are never updated or
// deleted outside the retention sweep.
type Entry struct {
	ID           int64
	DecisionID   uuid.UUID
	ActorID      int64
	Action       string
	ResourceType string
	ResourceID   string
	Decision     string
	Reason       string
	Source       string
	Context      map[string]any
	At           time.Time
}

// Filters narrows ledger queries. Zero values are ignored.
type Filters struct {
	ActorID      int64
	ResourceType string
	ResourceID   string
	From         time.Time
	To           time.Time
	Page         int
	PageSize     int
}

// PagingInfo describes the window returned by a query.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	NextPage int
	PrevPage int
}

// Result wraps a ledger window with paging information.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}
