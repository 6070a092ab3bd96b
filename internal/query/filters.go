package query

import (
	"fmt"

	"sitescope/internal/timeframe"
)

// Reserved filter keys produced by BaseFilters. Caller-supplied dimension
// filters must not reuse them.
const (
	ClientFilterKey = "client_filter"
	DateFilterKey   = "date_filter"
)

// BaseFilters produces the two predicates every analytics query carries: a
// tenant-equality filter and an inclusive date-range filter spanning
// 00:00:00 on the start date through 23:59:59 on the end date.
func BaseFilters(clientID string, r timeframe.DateRange) map[string]Predicate {
	return map[string]Predicate{
		ClientFilterKey: {
			Expr: "client_id = @client_id",
			Args: map[string]any{"client_id": clientID},
		},
		DateFilterKey: {
			Expr: "time >= @start_time AND time <= @end_time",
			Args: map[string]any{
				"start_time": r.StartTime(),
				"end_time":   r.EndTime(),
			},
		},
	}
}

// MergeFilters unions base and extra predicate sets. Reusing a reserved or
// already-present key is a configuration error, not an overwrite.
func MergeFilters(base, extra map[string]Predicate) (map[string]Predicate, error) {
	merged := make(map[string]Predicate, len(base)+len(extra))
	for key, p := range base {
		merged[key] = p
	}
	for key, p := range extra {
		if _, exists := merged[key]; exists {
			return nil, fmt.Errorf("filter key %q collides with an existing filter", key)
		}
		merged[key] = p
	}
	return merged, nil
}

// Static event-class predicates. These carry no caller data, so they stay
// literal.
var (
	pageviewFilter    = Predicate{Expr: "event_name = 'screen_view'"}
	errorFilter       = Predicate{Expr: "event_name = 'error'"}
	performanceFilter = Predicate{Expr: "event_name = 'performance'"}
	customEventFilter = Predicate{Expr: "event_name NOT IN ('screen_view', 'error', 'performance')"}
)
