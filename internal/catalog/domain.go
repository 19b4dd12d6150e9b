// Package catalog keeps the registry of governed data sources. The
// registry is the main protected surface: every route is gated by the
// permission engine, and per-instance routes accept resource-scoped
// grants.
package catalog

import "time"

// ResourceType is the identifier data-source permissions are keyed on.
const ResourceType = "datasource"

// DataSource is one governed source registration.
type DataSource struct {
	ID          string
	Name        string
	Kind        string
	OwnerID     int64
	Description string
	Tags        []string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Kinds the registry accepts. Anything else is rejected up front so
// downstream connectors never see a kind they cannot handle.
var validKinds = map[string]struct{}{
	"postgres":  {},
	"mysql":     {},
	"s3":        {},
	"kafka":     {},
	"rest":      {},
	"warehouse": {},
}
