package http_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sitehttp "sitescope/internal/http"
	"sitescope/internal/store"
)

type fakeQuerier struct {
	rows []store.Row
	err  error
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, params map[string]any) ([]store.Row, error) {
	return f.rows, f.err
}

func testApp(q store.Querier) *fiber.App {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	app := fiber.New()
	stats := sitehttp.NewStatsHandler(q, logger)

	api := app.Group("/api/v1/websites/:clientID")
	api.Get("/timeseries", stats.GetTimeSeries)
	api.Get("/top/:dimension", stats.GetTopDimension)
	api.Get("/performance", stats.GetPerformance)
	api.Get("/errors", stats.GetErrors)
	return app
}

func TestGetTimeSeriesReturnsFullSpine(t *testing.T) {
	app := testApp(&fakeQuerier{})

	req := httptest.NewRequest("GET",
		"/api/v1/websites/site-1/timeseries?start_date=2025-03-01&end_date=2025-03-05", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		ClientID string `json:"client_id"`
		Series   []struct {
			Bucket    string `json:"bucket"`
			Pageviews int64  `json:"pageviews"`
		} `json:"series"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "site-1", body.ClientID)
	require.Len(t, body.Series, 5, "empty store still yields one zero bucket per day")
	assert.Equal(t, "2025-03-01", body.Series[0].Bucket)
}

func TestGetTimeSeriesRejectsBadRange(t *testing.T) {
	app := testApp(&fakeQuerier{})

	testCases := []struct {
		name string
		url  string
	}{
		{"bad granularity", "/api/v1/websites/site-1/timeseries?granularity=fortnightly"},
		{"bad date", "/api/v1/websites/site-1/timeseries?start_date=nope&end_date=2025-03-05"},
		{"inverted range", "/api/v1/websites/site-1/timeseries?start_date=2025-03-05&end_date=2025-03-01"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tc.url, nil))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetTopDimension(t *testing.T) {
	app := testApp(&fakeQuerier{rows: []store.Row{
		{"referrer": "news.ycombinator.com", "visitors": int64(40), "pageviews": int64(90)},
	}})

	resp, err := app.Test(httptest.NewRequest("GET",
		"/api/v1/websites/site-1/top/referrers?start_date=2025-03-01&end_date=2025-03-07", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Dimension string `json:"dimension"`
		Results   []struct {
			Name     string `json:"name"`
			Visitors int64  `json:"visitors"`
		} `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "referrers", body.Dimension)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "news.ycombinator.com", body.Results[0].Name)
	assert.Equal(t, int64(40), body.Results[0].Visitors)
}

func TestGetTopDimensionUnknown(t *testing.T) {
	app := testApp(&fakeQuerier{})

	resp, err := app.Test(httptest.NewRequest("GET",
		"/api/v1/websites/site-1/top/star-signs", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetErrorsQueryFailure(t *testing.T) {
	app := testApp(&fakeQuerier{err: context.DeadlineExceeded})

	resp, err := app.Test(httptest.NewRequest("GET",
		"/api/v1/websites/site-1/errors", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
