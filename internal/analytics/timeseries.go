// Package analytics turns store query results into the shapes the
// dashboard layer consumes: gapless time series and top-N dimension
// breakdowns.
package analytics

import (
	"context"
	"fmt"

	"sitescope/internal/query"
	"sitescope/internal/store"
	"sitescope/internal/timeframe"
)

// TimeBucket is one spine entry of a gapless time series. Buckets without
// events carry zero values, never nulls.
type TimeBucket struct {
	Bucket             string  `json:"bucket"`
	Pageviews          int64   `json:"pageviews"`
	Visitors           int64   `json:"visitors"`
	Sessions           int64   `json:"sessions"`
	BounceRate         float64 `json:"bounce_rate"`
	AvgSessionDuration float64 `json:"avg_session_duration"`
}

// TimeSeries returns exactly one TimeBucket per bucket in the range,
// ascending. Event-level metrics (pageviews, visitors) bucket each event by
// its own timestamp; session-level metrics (sessions, bounce rate,
// duration) bucket each session once, by its first event. A session
// spanning a bucket boundary is therefore counted in its starting bucket
// only, while its events still land in their own buckets.
func TimeSeries(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange) ([]TimeBucket, error) {
	eventQuery, err := eventProjection(clientID, r)
	if err != nil {
		return nil, err
	}

	eventRows, err := q.Query(ctx, eventQuery.SQL(), eventQuery.Args())
	if err != nil {
		return nil, fmt.Errorf("time series event projection: %w", err)
	}

	sessionQuery := sessionProjection(clientID, r)
	sessionRows, err := q.Query(ctx, sessionQuery.SQL(), sessionQuery.Args())
	if err != nil {
		return nil, fmt.Errorf("time series session projection: %w", err)
	}

	return mergeOverSpine(r, eventRows, sessionRows), nil
}

// eventProjection aggregates pageviews and unique visitors per bucket.
func eventProjection(clientID string, r timeframe.DateRange) (query.Query, error) {
	return query.NewBuilder(store.TableEvents).
		Select("bucket", r.BucketExpr("time")).
		Select("pageviews", "countIf(event_name = 'screen_view')").
		Select("visitors", "uniqExact(anonymous_id)").
		WhereAll(query.BaseFilters(clientID, r)).
		GroupBy("bucket").
		OrderBy("bucket", query.Asc).
		Build()
}

// sessionProjection aggregates per-session metrics grouped by the bucket of
// each session's first event. Zero-duration single-event sessions are
// excluded from the duration average but still count toward sessions and
// bounces.
func sessionProjection(clientID string, r timeframe.DateRange) query.Query {
	sql := fmt.Sprintf(`SELECT
		%s AS bucket,
		count() AS sessions,
		round(countIf(pageview_count = 1) * 100 / count(), 2) AS bounce_rate,
		round(coalesce(avgOrNullIf(duration_seconds, duration_seconds > 0), 0), 2) AS avg_session_duration
	FROM (
		SELECT
			session_id,
			min(time) AS session_start,
			dateDiff('second', min(time), max(time)) AS duration_seconds,
			countIf(event_name = 'screen_view') AS pageview_count
		FROM %s
		WHERE client_id = @client_id AND time >= @start_time AND time <= @end_time
		GROUP BY session_id
	)
	GROUP BY bucket
	ORDER BY bucket`, r.BucketExpr("session_start"), store.TableEvents)

	return query.NewRaw(sql, map[string]any{
		"client_id":  clientID,
		"start_time": r.StartTime(),
		"end_time":   r.EndTime(),
	})
}

// mergeOverSpine left-joins the generated bucket spine against both
// projections. The spine alone decides how many rows come back.
func mergeOverSpine(r timeframe.DateRange, eventRows, sessionRows []store.Row) []TimeBucket {
	events := make(map[string]store.Row, len(eventRows))
	for _, row := range eventRows {
		events[r.BucketKey(row.Time("bucket"))] = row
	}
	sessions := make(map[string]store.Row, len(sessionRows))
	for _, row := range sessionRows {
		sessions[r.BucketKey(row.Time("bucket"))] = row
	}

	spine := r.Buckets()
	series := make([]TimeBucket, len(spine))
	for i, bucket := range spine {
		key := r.BucketKey(bucket)
		point := TimeBucket{Bucket: key}
		if row, ok := events[key]; ok {
			point.Pageviews = row.Int64("pageviews")
			point.Visitors = row.Int64("visitors")
		}
		if row, ok := sessions[key]; ok {
			point.Sessions = row.Int64("sessions")
			point.BounceRate = row.Float64("bounce_rate")
			point.AvgSessionDuration = row.Float64("avg_session_duration")
		}
		series[i] = point
	}
	return series
}
