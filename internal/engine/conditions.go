package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Condition keys recognised by the evaluator. A condition is a flat
// key to expected-value map; every key must hold (logical AND).
// Unrecognised keys fail the condition closed: a typo in a grant must
// never widen it.
const (
	condKeyUserID     = "user_id"
	condKeyDepartment = "department"
	condKeyRegion     = "region"
	condKeyTimeRange  = "time_range"

	placeholderCurrentUser = ":current_user_id"
	placeholderDepartment  = ":user_department"
	placeholderRegion      = ":user_region"
)

// errMalformedCondition marks a condition payload that failed to parse.
// The grant carrying it is skipped, never surfaced to the caller.
type errMalformedCondition struct {
	cause error
}

func (e errMalformedCondition) Error() string {
	return fmt.Sprintf("malformed condition: %v", e.cause)
}

// evalCondition evaluates a raw condition payload against the subject
// and the request context. It returns ok=true when every key holds;
// otherwise failedKey names the first key that did not. A parse failure
// returns errMalformedCondition.
func evalCondition(raw []byte, user User, reqCtx map[string]any, now time.Time) (ok bool, failedKey string, err error) {
	if len(raw) == 0 {
		return true, "", nil
	}
	var cond map[string]json.RawMessage
	if err := json.Unmarshal(raw, &cond); err != nil {
		return false, "", errMalformedCondition{cause: err}
	}

	for key, val := range cond {
		holds, err := evalConditionKey(key, val, user, reqCtx, now)
		if err != nil {
			return false, "", err
		}
		if !holds {
			return false, key, nil
		}
	}
	return true, "", nil
}

func evalConditionKey(key string, raw json.RawMessage, user User, reqCtx map[string]any, now time.Time) (bool, error) {
	switch key {
	case condKeyUserID:
		var expected any
		if err := json.Unmarshal(raw, &expected); err != nil {
			return false, errMalformedCondition{cause: err}
		}
		if expected == placeholderCurrentUser {
			got, ok := contextInt64(reqCtx, condKeyUserID)
			return ok && got == user.ID, nil
		}
		want, ok := asInt64(expected)
		return ok && want == user.ID, nil

	case condKeyDepartment:
		return evalAttribute(raw, placeholderDepartment, user.Department, reqCtx, condKeyDepartment)

	case condKeyRegion:
		return evalAttribute(raw, placeholderRegion, user.Region, reqCtx, condKeyRegion)

	case condKeyTimeRange:
		var window struct {
			Start *int `json:"start"`
			End   *int `json:"end"`
		}
		if err := json.Unmarshal(raw, &window); err != nil {
			return false, errMalformedCondition{cause: err}
		}
		if window.Start == nil || window.End == nil {
			return false, errMalformedCondition{cause: fmt.Errorf("time_range requires start and end")}
		}
		return hourInRange(now.Hour(), *window.Start, *window.End), nil

	default:
		// Fail closed on keys the evaluator does not understand.
		return false, nil
	}
}

// evalAttribute handles the department/region pattern: a placeholder
// compares the request context against the user attribute, a literal
// compares the user attribute directly.
func evalAttribute(raw json.RawMessage, placeholder, attr string, reqCtx map[string]any, ctxKey string) (bool, error) {
	var expected string
	if err := json.Unmarshal(raw, &expected); err != nil {
		return false, errMalformedCondition{cause: err}
	}
	if expected == placeholder {
		got, ok := reqCtx[ctxKey].(string)
		return ok && got != "" && got == attr, nil
	}
	return attr != "" && attr == expected, nil
}

// hourInRange reports whether hour falls within [start, end] inclusive,
// wrapping across midnight when start > end.
func hourInRange(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}

func contextInt64(reqCtx map[string]any, key string) (int64, bool) {
	if reqCtx == nil {
		return 0, false
	}
	return asInt64(reqCtx[key])
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
