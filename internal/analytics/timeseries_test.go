package analytics_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitescope/internal/analytics"
	"sitescope/internal/store"
	"sitescope/internal/timeframe"
)

// fakeQuerier routes the event and session projections to canned rows. The
// session projection is the only statement with a subquery, so it is
// recognizable by its session_id grouping.
type fakeQuerier struct {
	eventRows   []store.Row
	sessionRows []store.Row
	err         error

	queries []string
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, params map[string]any) ([]store.Row, error) {
	f.queries = append(f.queries, sql)
	if f.err != nil {
		return nil, f.err
	}
	if strings.Contains(sql, "session_id") {
		return f.sessionRows, nil
	}
	return f.eventRows, nil
}

func day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestTimeSeriesFillsEmptyBuckets(t *testing.T) {
	r, err := timeframe.Parse("2025-03-01", "2025-03-05", timeframe.Daily)
	require.NoError(t, err)

	q := &fakeQuerier{
		eventRows: []store.Row{
			{"bucket": day(1), "pageviews": uint64(12), "visitors": uint64(4)},
			{"bucket": day(3), "pageviews": uint64(5), "visitors": uint64(2)},
		},
		sessionRows: []store.Row{
			{"bucket": day(1), "sessions": uint64(4), "bounce_rate": 50.0, "avg_session_duration": 93.5},
		},
	}

	series, err := analytics.TimeSeries(context.Background(), q, "site-1", r)
	require.NoError(t, err)
	require.Len(t, series, 5, "one entry per day in range, data or not")

	assert.Equal(t, "2025-03-01", series[0].Bucket)
	assert.Equal(t, int64(12), series[0].Pageviews)
	assert.Equal(t, int64(4), series[0].Sessions)
	assert.Equal(t, 50.0, series[0].BounceRate)
	assert.Equal(t, 93.5, series[0].AvgSessionDuration)

	// Day two has no data anywhere; all metrics are zero, not absent.
	assert.Equal(t, "2025-03-02", series[1].Bucket)
	assert.Zero(t, series[1].Pageviews)
	assert.Zero(t, series[1].Sessions)
	assert.Zero(t, series[1].BounceRate)

	assert.Equal(t, int64(5), series[2].Pageviews)
	assert.Zero(t, series[2].Sessions, "sessions only counted in their starting bucket")
}

func TestTimeSeriesSingleDayRange(t *testing.T) {
	r, err := timeframe.Parse("2025-03-01", "2025-03-01", timeframe.Daily)
	require.NoError(t, err)

	series, err := analytics.TimeSeries(context.Background(), &fakeQuerier{}, "site-1", r)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "2025-03-01", series[0].Bucket)
}

func TestTimeSeriesSessionAttribution(t *testing.T) {
	// A session starting on day 1 and spilling events into day 2 counts as
	// one session on day 1; its day-2 events still raise day-2 pageviews.
	r, err := timeframe.Parse("2025-03-01", "2025-03-02", timeframe.Daily)
	require.NoError(t, err)

	q := &fakeQuerier{
		eventRows: []store.Row{
			{"bucket": day(1), "pageviews": uint64(3), "visitors": uint64(1)},
			{"bucket": day(2), "pageviews": uint64(2), "visitors": uint64(1)},
		},
		sessionRows: []store.Row{
			{"bucket": day(1), "sessions": uint64(1), "bounce_rate": 0.0, "avg_session_duration": 7200.0},
		},
	}

	series, err := analytics.TimeSeries(context.Background(), q, "site-1", r)
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, int64(1), series[0].Sessions)
	assert.Equal(t, int64(0), series[1].Sessions)
	assert.Equal(t, int64(2), series[1].Pageviews)
}

func TestTimeSeriesPropagatesQueryErrors(t *testing.T) {
	r, err := timeframe.Parse("2025-03-01", "2025-03-02", timeframe.Daily)
	require.NoError(t, err)

	q := &fakeQuerier{err: errors.New("store unavailable")}
	_, err = analytics.TimeSeries(context.Background(), q, "site-1", r)
	assert.Error(t, err)
}

func TestTimeSeriesQueriesAreParameterized(t *testing.T) {
	r, err := timeframe.Parse("2025-03-01", "2025-03-02", timeframe.Daily)
	require.NoError(t, err)

	q := &fakeQuerier{}
	_, err = analytics.TimeSeries(context.Background(), q, "site'; --", r)
	require.NoError(t, err)

	require.Len(t, q.queries, 2)
	for _, sql := range q.queries {
		assert.NotContains(t, sql, "site'; --")
		assert.Contains(t, sql, "@client_id")
	}
}
