package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// checkDeny reports whether an explicit deny assignment blocks the
// request. Denies match on the exact (action, resource) pair against
// the user directly or any group the user belongs to. A deny with no
// condition blocks unconditionally; a deny whose condition evaluates
// false does not apply. A deny whose condition fails to parse is
// skipped, matching how malformed grant conditions are treated.
func checkDeny(ctx context.Context, st Store, user User, groupIDs []int64, req Request, now time.Time, logger *slog.Logger) (bool, error) {
	denies, err := st.DenyAssignments(ctx, user.ID, groupIDs, req.Action, req.ResourceType)
	if err != nil {
		return false, fmt.Errorf("engine: load deny assignments: %w", err)
	}

	for _, deny := range denies {
		ok, _, err := evalCondition(deny.Condition, user, req.Context, now)
		if err != nil {
			var malformed errMalformedCondition
			if errors.As(err, &malformed) {
				if logger != nil {
					logger.Warn("skipping deny with malformed condition",
						slog.Int64("deny_id", deny.ID),
						slog.Any("error", err))
				}
				continue
			}
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
