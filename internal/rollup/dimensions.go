package rollup

import (
	"fmt"
	"time"

	"sitescope/internal/query"
	"sitescope/internal/store"
	"sitescope/internal/timeframe"
)

// Dimension names one rollup derivation.
type Dimension string

const (
	DimensionDaily    Dimension = "daily"
	DimensionPages    Dimension = "pages"
	DimensionReferrer Dimension = "referrers"
)

// Dimensions lists every rollup derivation in execution order.
func Dimensions() []Dimension {
	return []Dimension{DimensionDaily, DimensionPages, DimensionReferrer}
}

// dimensionSpec binds a dimension to its target table, its computation
// query, and the mapping from computed rows to insertable rollup rows.
type dimensionSpec struct {
	table    string
	selectFn func(clientID string, r timeframe.DateRange) query.Query
	rowFn    func(clientID string, computedAt time.Time, row store.Row) store.Row
}

func specFor(dim Dimension) (dimensionSpec, error) {
	switch dim {
	case DimensionDaily:
		return dimensionSpec{table: store.TableDailyStats, selectFn: dailySelect, rowFn: dailyRow}, nil
	case DimensionPages:
		return dimensionSpec{table: store.TablePageStats, selectFn: pageSelect, rowFn: pageRow}, nil
	case DimensionReferrer:
		return dimensionSpec{table: store.TableReferrerStats, selectFn: referrerSelect, rowFn: referrerRow}, nil
	default:
		return dimensionSpec{}, fmt.Errorf("unknown rollup dimension: %q", dim)
	}
}

func baseArgs(clientID string, r timeframe.DateRange) map[string]any {
	return map[string]any{
		"client_id":  clientID,
		"start_time": r.StartTime(),
		"end_time":   r.EndTime(),
	}
}

// dailySelect computes site-wide stats per date. Event-level metrics come
// from a per-date projection; session metrics come from a per-session
// projection keyed by each session's first event date, so sessions
// crossing midnight land on their start date only.
func dailySelect(clientID string, r timeframe.DateRange) query.Query {
	sql := `SELECT
		e.date AS date,
		e.pageviews AS pageviews,
		e.visitors AS visitors,
		coalesce(s.sessions, 0) AS sessions,
		coalesce(s.bounce_rate, 0) AS bounce_rate,
		coalesce(s.avg_session_duration, 0) AS avg_session_duration
	FROM (
		SELECT
			toDate(time) AS date,
			countIf(event_name = 'screen_view') AS pageviews,
			uniqExact(anonymous_id) AS visitors
		FROM ` + store.TableEvents + `
		WHERE client_id = @client_id AND time >= @start_time AND time <= @end_time
		GROUP BY date
	) AS e
	LEFT JOIN (
		SELECT
			toDate(session_start) AS date,
			count() AS sessions,
			round(countIf(pageview_count = 1) * 100 / count(), 2) AS bounce_rate,
			round(coalesce(avgOrNullIf(duration_seconds, duration_seconds > 0), 0), 2) AS avg_session_duration
		FROM (
			SELECT
				session_id,
				min(time) AS session_start,
				dateDiff('second', min(time), max(time)) AS duration_seconds,
				countIf(event_name = 'screen_view') AS pageview_count
			FROM ` + store.TableEvents + `
			WHERE client_id = @client_id AND time >= @start_time AND time <= @end_time
			GROUP BY session_id
		)
		GROUP BY date
	) AS s USING (date)
	ORDER BY date`

	return query.NewRaw(sql, baseArgs(clientID, r))
}

func dailyRow(clientID string, computedAt time.Time, row store.Row) store.Row {
	return store.Row{
		"client_id":            clientID,
		"date":                 row.Time("date"),
		"pageviews":            uint64(row.Int64("pageviews")),
		"visitors":             uint64(row.Int64("visitors")),
		"sessions":             uint64(row.Int64("sessions")),
		"bounce_rate":          row.Float64("bounce_rate"),
		"avg_session_duration": row.Float64("avg_session_duration"),
		"computed_at":          computedAt,
	}
}

// pageSelect computes per-path stats per date. Time on page is the gap to
// the next pageview within the same session; the last pageview of a
// session contributes no sample.
func pageSelect(clientID string, r timeframe.DateRange) query.Query {
	sql := `SELECT
		toDate(time) AS date,
		path,
		count() AS pageviews,
		uniqExact(anonymous_id) AS visitors,
		round(coalesce(avgOrNullIf(time_on_page, time_on_page > 0), 0), 2) AS avg_time_on_page
	FROM (
		SELECT
			time,
			path,
			anonymous_id,
			dateDiff('second', time, leadInFrame(time) OVER (
				PARTITION BY session_id ORDER BY time
				ROWS BETWEEN CURRENT ROW AND 1 FOLLOWING
			)) AS time_on_page
		FROM ` + store.TableEvents + `
		WHERE client_id = @client_id AND time >= @start_time AND time <= @end_time
			AND event_name = 'screen_view'
	)
	GROUP BY date, path
	ORDER BY date, path`

	return query.NewRaw(sql, baseArgs(clientID, r))
}

func pageRow(clientID string, computedAt time.Time, row store.Row) store.Row {
	return store.Row{
		"client_id":        clientID,
		"date":             row.Time("date"),
		"path":             row.String("path"),
		"pageviews":        uint64(row.Int64("pageviews")),
		"visitors":         uint64(row.Int64("visitors")),
		"avg_time_on_page": row.Float64("avg_time_on_page"),
		"computed_at":      computedAt,
	}
}

// referrerSelect computes per-referrer stats per date; empty referrers
// roll up under "direct".
func referrerSelect(clientID string, r timeframe.DateRange) query.Query {
	sql := `SELECT
		toDate(time) AS date,
		if(referrer = '', 'direct', referrer) AS referrer,
		uniqExact(anonymous_id) AS visitors,
		count() AS pageviews
	FROM ` + store.TableEvents + `
	WHERE client_id = @client_id AND time >= @start_time AND time <= @end_time
		AND event_name = 'screen_view'
	GROUP BY date, referrer
	ORDER BY date, referrer`

	return query.NewRaw(sql, baseArgs(clientID, r))
}

func referrerRow(clientID string, computedAt time.Time, row store.Row) store.Row {
	return store.Row{
		"client_id":   clientID,
		"date":        row.Time("date"),
		"referrer":    row.String("referrer"),
		"visitors":    uint64(row.Int64("visitors")),
		"pageviews":   uint64(row.Int64("pageviews")),
		"computed_at": computedAt,
	}
}

// deleteSQL clears the rollup window ahead of a forced recompute.
func deleteSQL(table string) string {
	return fmt.Sprintf(
		"DELETE FROM %s WHERE client_id = @client_id AND date >= @start_date AND date <= @end_date",
		table,
	)
}

func deleteArgs(clientID string, r timeframe.DateRange) map[string]any {
	return map[string]any{
		"client_id":  clientID,
		"start_date": r.Start,
		"end_date":   r.End,
	}
}
