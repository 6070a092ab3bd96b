package query

import (
	"fmt"

	"sitescope/internal/store"
	"sitescope/internal/timeframe"
)

const defaultLimit = 10

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

// deviceColumns are the event columns a device breakdown may group by.
// Grouping columns are interpolated as identifiers, so they only ever come
// from this fixed set.
var deviceColumns = map[string]bool{
	"device_type":       true,
	"device_brand":      true,
	"browser_name":      true,
	"os_name":           true,
	"screen_resolution": true,
}

// utmColumns are the acquisition columns a UTM breakdown may group by.
var utmColumns = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
}

// TopReferrers ranks referrers by unique visitors. Empty referrers group
// under "direct".
func TopReferrers(clientID string, r timeframe.DateRange, limit int) (Query, error) {
	return NewBuilder(store.TableEvents).
		Select("referrer", "if(referrer = '', 'direct', referrer)").
		Select("visitors", "uniqExact(anonymous_id)").
		Select("pageviews", "count()").
		WhereAll(BaseFilters(clientID, r)).
		Where("event_filter", pageviewFilter).
		GroupBy("referrer").
		OrderBy("visitors", Desc).
		Limit(limitOrDefault(limit)).
		Build()
}

// TopPages ranks paths by pageviews.
func TopPages(clientID string, r timeframe.DateRange, limit int) (Query, error) {
	return NewBuilder(store.TableEvents).
		Select("path", "path").
		Select("pageviews", "count()").
		Select("visitors", "uniqExact(anonymous_id)").
		WhereAll(BaseFilters(clientID, r)).
		Where("event_filter", pageviewFilter).
		GroupBy("path").
		OrderBy("pageviews", Desc).
		Limit(limitOrDefault(limit)).
		Build()
}

// DeviceBreakdown groups visitors by one of the device dimension columns.
func DeviceBreakdown(clientID string, r timeframe.DateRange, column string, limit int) (Query, error) {
	if !deviceColumns[column] {
		return Query{}, fmt.Errorf("unsupported device column: %q", column)
	}
	return NewBuilder(store.TableEvents).
		Select("name", fmt.Sprintf("if(%s = '', 'unknown', %s)", column, column)).
		Select("visitors", "uniqExact(anonymous_id)").
		Select("pageviews", "count()").
		WhereAll(BaseFilters(clientID, r)).
		Where("event_filter", pageviewFilter).
		GroupBy("name").
		OrderBy("visitors", Desc).
		Limit(limitOrDefault(limit)).
		Build()
}

// osNormalization folds vendor spellings into canonical OS names.
const osNormalization = `CASE
		WHEN lower(os_name) LIKE '%mac%' OR lower(os_name) LIKE '%darwin%' THEN 'MacOS'
		WHEN lower(os_name) LIKE '%iphone%' OR lower(os_name) LIKE '%ios%' THEN 'iOS'
		WHEN lower(os_name) LIKE '%android%' THEN 'Android'
		WHEN lower(os_name) LIKE '%linux%' THEN 'Linux'
		WHEN lower(os_name) LIKE '%windows%' THEN 'Windows'
		WHEN os_name = '' THEN 'unknown'
		ELSE os_name
	END`

// TopOperatingSystems ranks normalized operating systems by visitors.
func TopOperatingSystems(clientID string, r timeframe.DateRange, limit int) (Query, error) {
	return NewBuilder(store.TableEvents).
		Select("name", osNormalization).
		Select("visitors", "uniqExact(anonymous_id)").
		Select("pageviews", "count()").
		WhereAll(BaseFilters(clientID, r)).
		Where("event_filter", pageviewFilter).
		GroupBy("name").
		OrderBy("visitors", Desc).
		Limit(limitOrDefault(limit)).
		Build()
}

// TopCountries ranks countries by visitors.
func TopCountries(clientID string, r timeframe.DateRange, limit int) (Query, error) {
	return NewBuilder(store.TableEvents).
		Select("country", "if(country = '', 'unknown', country)").
		Select("visitors", "uniqExact(anonymous_id)").
		Select("pageviews", "count()").
		WhereAll(BaseFilters(clientID, r)).
		Where("event_filter", pageviewFilter).
		GroupBy("country").
		OrderBy("visitors", Desc).
		Limit(limitOrDefault(limit)).
		Build()
}

// TopRegions ranks regions within one country by visitors.
func TopRegions(clientID string, r timeframe.DateRange, country string, limit int) (Query, error) {
	return NewBuilder(store.TableEvents).
		Select("region", "if(region = '', 'unknown', region)").
		Select("visitors", "uniqExact(anonymous_id)").
		WhereAll(BaseFilters(clientID, r)).
		Where("event_filter", pageviewFilter).
		Where("country_filter", Predicate{
			Expr: "country = @country",
			Args: map[string]any{"country": country},
		}).
		GroupBy("region").
		OrderBy("visitors", Desc).
		Limit(limitOrDefault(limit)).
		Build()
}

// UTMBreakdown groups visitors by one UTM parameter, skipping events where
// the parameter is unset.
func UTMBreakdown(clientID string, r timeframe.DateRange, column string, limit int) (Query, error) {
	if !utmColumns[column] {
		return Query{}, fmt.Errorf("unsupported utm column: %q", column)
	}
	return NewBuilder(store.TableEvents).
		Select("name", column).
		Select("visitors", "uniqExact(anonymous_id)").
		Select("pageviews", "count()").
		WhereAll(BaseFilters(clientID, r)).
		Where("event_filter", pageviewFilter).
		Where("utm_filter", Predicate{Expr: column + " != ''"}).
		GroupBy("name").
		OrderBy("visitors", Desc).
		Limit(limitOrDefault(limit)).
		Build()
}

// EntryPages ranks the paths sessions begin on, by session count. Exit
// pages mirror it with argMax.
func EntryPages(clientID string, r timeframe.DateRange, limit int) Query {
	sql := fmt.Sprintf(`SELECT
		entry_path AS path,
		count() AS sessions,
		uniqExact(anonymous_id) AS visitors
	FROM (
		SELECT
			session_id,
			argMin(path, time) AS entry_path,
			any(anonymous_id) AS anonymous_id
		FROM %s
		WHERE client_id = @client_id AND time >= @start_time AND time <= @end_time
			AND event_name = 'screen_view'
		GROUP BY session_id
	)
	GROUP BY path
	ORDER BY sessions DESC
	LIMIT %d`, store.TableEvents, limitOrDefault(limit))

	return NewRaw(sql, map[string]any{
		"client_id":  clientID,
		"start_time": r.StartTime(),
		"end_time":   r.EndTime(),
	})
}

// ExitPages ranks the paths sessions end on.
func ExitPages(clientID string, r timeframe.DateRange, limit int) Query {
	sql := fmt.Sprintf(`SELECT
		exit_path AS path,
		count() AS sessions,
		uniqExact(anonymous_id) AS visitors
	FROM (
		SELECT
			session_id,
			argMax(path, time) AS exit_path,
			any(anonymous_id) AS anonymous_id
		FROM %s
		WHERE client_id = @client_id AND time >= @start_time AND time <= @end_time
			AND event_name = 'screen_view'
		GROUP BY session_id
	)
	GROUP BY path
	ORDER BY sessions DESC
	LIMIT %d`, store.TableEvents, limitOrDefault(limit))

	return NewRaw(sql, map[string]any{
		"client_id":  clientID,
		"start_time": r.StartTime(),
		"end_time":   r.EndTime(),
	})
}

// CustomEvents ranks custom event names by occurrences.
func CustomEvents(clientID string, r timeframe.DateRange, limit int) (Query, error) {
	return NewBuilder(store.TableEvents).
		Select("event_name", "event_name").
		Select("occurrences", "count()").
		Select("visitors", "uniqExact(anonymous_id)").
		WhereAll(BaseFilters(clientID, r)).
		Where("event_filter", customEventFilter).
		GroupBy("event_name").
		OrderBy("occurrences", Desc).
		Limit(limitOrDefault(limit)).
		Build()
}

// ErrorTypes ranks error types by occurrences and affected visitors.
func ErrorTypes(clientID string, r timeframe.DateRange, limit int) (Query, error) {
	return NewBuilder(store.TableEvents).
		Select("error_type", "if(error_type = '', 'unknown', error_type)").
		Select("occurrences", "count()").
		Select("affected_visitors", "uniqExact(anonymous_id)").
		WhereAll(BaseFilters(clientID, r)).
		Where("event_filter", errorFilter).
		GroupBy("error_type").
		OrderBy("occurrences", Desc).
		Limit(limitOrDefault(limit)).
		Build()
}

// ErrorDetails lists the most frequent distinct errors for one error type.
// The error type is caller data and is parameter-bound.
func ErrorDetails(clientID string, r timeframe.DateRange, errorType string, limit int) (Query, error) {
	return NewBuilder(store.TableEvents).
		Select("error_message", "error_message").
		Select("error_filename", "error_filename").
		Select("error_lineno", "error_lineno").
		Select("error_colno", "error_colno").
		Select("occurrences", "count()").
		Select("last_seen", "max(time)").
		WhereAll(BaseFilters(clientID, r)).
		Where("event_filter", errorFilter).
		Where("error_type_filter", Predicate{
			Expr: "error_type = @error_type",
			Args: map[string]any{"error_type": errorType},
		}).
		GroupBy("error_message").
		GroupBy("error_filename").
		GroupBy("error_lineno").
		GroupBy("error_colno").
		OrderBy("occurrences", Desc).
		Limit(limitOrDefault(limit)).
		Build()
}

// PerformanceSummary averages the web-vital metrics over performance
// events, ignoring unreported (zero) samples per metric.
func PerformanceSummary(clientID string, r timeframe.DateRange) (Query, error) {
	return NewBuilder(store.TableEvents).
		Select("avg_load_time", "coalesce(avgOrNullIf(load_time, load_time > 0), 0)").
		Select("avg_ttfb", "coalesce(avgOrNullIf(ttfb, ttfb > 0), 0)").
		Select("avg_fcp", "coalesce(avgOrNullIf(fcp, fcp > 0), 0)").
		Select("avg_lcp", "coalesce(avgOrNullIf(lcp, lcp > 0), 0)").
		Select("avg_cls", "coalesce(avgOrNullIf(cls, cls > 0), 0)").
		Select("avg_dom_ready", "coalesce(avgOrNullIf(dom_ready_time, dom_ready_time > 0), 0)").
		Select("avg_render_time", "coalesce(avgOrNullIf(render_time, render_time > 0), 0)").
		Select("samples", "count()").
		WhereAll(BaseFilters(clientID, r)).
		Where("event_filter", performanceFilter).
		Build()
}

// ActiveClients lists tenants with at least one event in the lookback
// window. This is the fan-out unit for scheduled jobs.
func ActiveClients(lookbackDays int) Query {
	return NewRaw(
		`SELECT DISTINCT client_id FROM `+store.TableEvents+
			` WHERE time >= now() - toIntervalDay(@lookback_days) ORDER BY client_id`,
		map[string]any{"lookback_days": lookbackDays},
	)
}
