package analytics

import (
	"context"
	"fmt"
	"time"

	"sitescope/internal/query"
	"sitescope/internal/store"
	"sitescope/internal/timeframe"
)

// MetricCount is a generic name/visitors/pageviews triple used by the
// top-N breakdowns.
type MetricCount struct {
	Name      string `json:"name"`
	Visitors  int64  `json:"visitors"`
	Pageviews int64  `json:"pageviews"`
}

func topN(ctx context.Context, q store.Querier, qry query.Query, nameColumn string) ([]MetricCount, error) {
	rows, err := q.Query(ctx, qry.SQL(), qry.Args())
	if err != nil {
		return nil, err
	}
	results := make([]MetricCount, len(rows))
	for i, row := range rows {
		results[i] = MetricCount{
			Name:      row.String(nameColumn),
			Visitors:  row.Int64("visitors"),
			Pageviews: row.Int64("pageviews"),
		}
	}
	return results, nil
}

// GetTopReferrers fetches the top referrers by unique visitors.
func GetTopReferrers(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange, limit int) ([]MetricCount, error) {
	qry, err := query.TopReferrers(clientID, r, limit)
	if err != nil {
		return nil, err
	}
	results, err := topN(ctx, q, qry, "referrer")
	if err != nil {
		return nil, fmt.Errorf("error fetching top referrers: %w", err)
	}
	return results, nil
}

// GetTopPages fetches the top paths by pageviews.
func GetTopPages(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange, limit int) ([]MetricCount, error) {
	qry, err := query.TopPages(clientID, r, limit)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, qry.SQL(), qry.Args())
	if err != nil {
		return nil, fmt.Errorf("error fetching top pages: %w", err)
	}
	results := make([]MetricCount, len(rows))
	for i, row := range rows {
		results[i] = MetricCount{
			Name:      row.String("path"),
			Visitors:  row.Int64("visitors"),
			Pageviews: row.Int64("pageviews"),
		}
	}
	return results, nil
}

// PagePosition is a path ranked by the sessions that start or end on it.
type PagePosition struct {
	Path     string `json:"path"`
	Sessions int64  `json:"sessions"`
	Visitors int64  `json:"visitors"`
}

func pagePositions(ctx context.Context, q store.Querier, qry query.Query) ([]PagePosition, error) {
	rows, err := q.Query(ctx, qry.SQL(), qry.Args())
	if err != nil {
		return nil, err
	}
	results := make([]PagePosition, len(rows))
	for i, row := range rows {
		results[i] = PagePosition{
			Path:     row.String("path"),
			Sessions: row.Int64("sessions"),
			Visitors: row.Int64("visitors"),
		}
	}
	return results, nil
}

// GetTopEntryPages fetches the paths sessions most often begin on.
func GetTopEntryPages(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange, limit int) ([]PagePosition, error) {
	results, err := pagePositions(ctx, q, query.EntryPages(clientID, r, limit))
	if err != nil {
		return nil, fmt.Errorf("error fetching top entry pages: %w", err)
	}
	return results, nil
}

// GetTopExitPages fetches the paths sessions most often end on.
func GetTopExitPages(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange, limit int) ([]PagePosition, error) {
	results, err := pagePositions(ctx, q, query.ExitPages(clientID, r, limit))
	if err != nil {
		return nil, fmt.Errorf("error fetching top exit pages: %w", err)
	}
	return results, nil
}

// GetDeviceBreakdown fetches visitors grouped by a device dimension column.
func GetDeviceBreakdown(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange, column string, limit int) ([]MetricCount, error) {
	qry, err := query.DeviceBreakdown(clientID, r, column, limit)
	if err != nil {
		return nil, err
	}
	results, err := topN(ctx, q, qry, "name")
	if err != nil {
		return nil, fmt.Errorf("error fetching device breakdown for %s: %w", column, err)
	}
	return results, nil
}

// GetTopOperatingSystems fetches visitors grouped by normalized OS name.
func GetTopOperatingSystems(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange, limit int) ([]MetricCount, error) {
	qry, err := query.TopOperatingSystems(clientID, r, limit)
	if err != nil {
		return nil, err
	}
	results, err := topN(ctx, q, qry, "name")
	if err != nil {
		return nil, fmt.Errorf("error fetching top operating systems: %w", err)
	}
	return results, nil
}

// GetTopCountries fetches visitors grouped by country.
func GetTopCountries(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange, limit int) ([]MetricCount, error) {
	qry, err := query.TopCountries(clientID, r, limit)
	if err != nil {
		return nil, err
	}
	results, err := topN(ctx, q, qry, "country")
	if err != nil {
		return nil, fmt.Errorf("error fetching top countries: %w", err)
	}
	return results, nil
}

// GetUTMBreakdown fetches visitors grouped by one UTM parameter.
func GetUTMBreakdown(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange, column string, limit int) ([]MetricCount, error) {
	qry, err := query.UTMBreakdown(clientID, r, column, limit)
	if err != nil {
		return nil, err
	}
	results, err := topN(ctx, q, qry, "name")
	if err != nil {
		return nil, fmt.Errorf("error fetching utm breakdown for %s: %w", column, err)
	}
	return results, nil
}

// CustomEventCount is one custom event name with its frequency.
type CustomEventCount struct {
	EventName   string `json:"event_name"`
	Occurrences int64  `json:"occurrences"`
	Visitors    int64  `json:"visitors"`
}

// GetCustomEvents fetches the most frequent custom events.
func GetCustomEvents(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange, limit int) ([]CustomEventCount, error) {
	qry, err := query.CustomEvents(clientID, r, limit)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, qry.SQL(), qry.Args())
	if err != nil {
		return nil, fmt.Errorf("error fetching custom events: %w", err)
	}
	results := make([]CustomEventCount, len(rows))
	for i, row := range rows {
		results[i] = CustomEventCount{
			EventName:   row.String("event_name"),
			Occurrences: row.Int64("occurrences"),
			Visitors:    row.Int64("visitors"),
		}
	}
	return results, nil
}

// ErrorTypeCount is one error type with its frequency and reach.
type ErrorTypeCount struct {
	ErrorType        string `json:"error_type"`
	Occurrences      int64  `json:"occurrences"`
	AffectedVisitors int64  `json:"affected_visitors"`
}

// GetErrorTypes fetches the most frequent error types.
func GetErrorTypes(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange, limit int) ([]ErrorTypeCount, error) {
	qry, err := query.ErrorTypes(clientID, r, limit)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, qry.SQL(), qry.Args())
	if err != nil {
		return nil, fmt.Errorf("error fetching error types: %w", err)
	}
	results := make([]ErrorTypeCount, len(rows))
	for i, row := range rows {
		results[i] = ErrorTypeCount{
			ErrorType:        row.String("error_type"),
			Occurrences:      row.Int64("occurrences"),
			AffectedVisitors: row.Int64("affected_visitors"),
		}
	}
	return results, nil
}

// ErrorDetail is one distinct error location for a given error type.
type ErrorDetail struct {
	Message     string    `json:"message"`
	Filename    string    `json:"filename"`
	Line        int64     `json:"line"`
	Column      int64     `json:"column"`
	Occurrences int64     `json:"occurrences"`
	LastSeen    time.Time `json:"last_seen"`
}

// GetErrorDetails fetches the most frequent distinct errors of one type.
func GetErrorDetails(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange, errorType string, limit int) ([]ErrorDetail, error) {
	qry, err := query.ErrorDetails(clientID, r, errorType, limit)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, qry.SQL(), qry.Args())
	if err != nil {
		return nil, fmt.Errorf("error fetching error details: %w", err)
	}
	results := make([]ErrorDetail, len(rows))
	for i, row := range rows {
		results[i] = ErrorDetail{
			Message:     row.String("error_message"),
			Filename:    row.String("error_filename"),
			Line:        row.Int64("error_lineno"),
			Column:      row.Int64("error_colno"),
			Occurrences: row.Int64("occurrences"),
			LastSeen:    row.Time("last_seen"),
		}
	}
	return results, nil
}

// PerformanceReport summarizes web-vital averages over a range.
type PerformanceReport struct {
	AvgLoadTime   float64 `json:"avg_load_time"`
	AvgTTFB       float64 `json:"avg_ttfb"`
	AvgFCP        float64 `json:"avg_fcp"`
	AvgLCP        float64 `json:"avg_lcp"`
	AvgCLS        float64 `json:"avg_cls"`
	AvgDOMReady   float64 `json:"avg_dom_ready"`
	AvgRenderTime float64 `json:"avg_render_time"`
	Samples       int64   `json:"samples"`
}

// GetPerformanceSummary fetches averaged web-vital metrics.
func GetPerformanceSummary(ctx context.Context, q store.Querier, clientID string, r timeframe.DateRange) (PerformanceReport, error) {
	qry, err := query.PerformanceSummary(clientID, r)
	if err != nil {
		return PerformanceReport{}, err
	}
	rows, err := q.Query(ctx, qry.SQL(), qry.Args())
	if err != nil {
		return PerformanceReport{}, fmt.Errorf("error fetching performance summary: %w", err)
	}
	if len(rows) == 0 {
		return PerformanceReport{}, nil
	}
	row := rows[0]
	return PerformanceReport{
		AvgLoadTime:   row.Float64("avg_load_time"),
		AvgTTFB:       row.Float64("avg_ttfb"),
		AvgFCP:        row.Float64("avg_fcp"),
		AvgLCP:        row.Float64("avg_lcp"),
		AvgCLS:        row.Float64("avg_cls"),
		AvgDOMReady:   row.Float64("avg_dom_ready"),
		AvgRenderTime: row.Float64("avg_render_time"),
		Samples:       row.Int64("samples"),
	}, nil
}
