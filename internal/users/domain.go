// Package users manages the principal directory: the accounts the
// permission engine evaluates, their legacy role column, and the
// attributes conditional grants match against.
package users

import "time"

// User is a directory account. LegacyRole is the single-role column
// older deployments still rely on; Department and Region feed
// conditional grant evaluation.
type User struct {
	ID         int64
	Email      string
	FullName   string
	LegacyRole string
	Department string
	Region     string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
