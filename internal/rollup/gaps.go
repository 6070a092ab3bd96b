package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"sitescope/internal/store"
	"sitescope/internal/timeframe"
)

// DateSpan is a maximal contiguous run of missing dates, inclusive.
type DateSpan struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// RangeResult is the aggregation outcome for one backfilled span.
type RangeResult struct {
	Span    DateSpan  `json:"span"`
	Outcome AllResult `json:"outcome"`
}

// GapReport is the full output of a missing-range scan.
type GapReport struct {
	ClientID     string        `json:"client_id"`
	MissingDates []string      `json:"missing_dates"`
	Ranges       []DateSpan    `json:"ranges"`
	Results      []RangeResult `json:"results"`
	Success      bool          `json:"success"`
}

// FindAndFillGaps compares the dates present in raw events against the
// dates present in the daily rollup over the lookback window, groups the
// missing dates into contiguous spans, and re-aggregates each span. Force
// is not used: the missing dates have no rollup rows by construction, and
// should a concurrent runner aggregate the same span first, the replacing
// table engine absorbs the duplicate computation.
func (a *Aggregator) FindAndFillGaps(ctx context.Context, clientID string, lookbackDays int) (GapReport, error) {
	report := GapReport{ClientID: clientID, Success: true}

	window := timeframe.NewRange(a.now().AddDate(0, 0, -lookbackDays), a.now(), timeframe.Daily)

	eventDates, err := a.eventDates(ctx, clientID, window)
	if err != nil {
		return report, fmt.Errorf("load event dates: %w", err)
	}
	statsDates, err := a.statsDates(ctx, clientID, window)
	if err != nil {
		return report, fmt.Errorf("load rollup dates: %w", err)
	}

	missing := missingDates(eventDates, statsDates)
	for _, date := range missing {
		report.MissingDates = append(report.MissingDates, date.Format(timeframe.DateLayout))
	}
	report.Ranges = GroupContiguous(missing)

	if len(missing) == 0 {
		a.logger.Debug("No rollup gaps found", slog.String("client_id", clientID))
		return report, nil
	}

	a.logger.Info("Backfilling rollup gaps",
		slog.String("client_id", clientID),
		slog.Int("missing_dates", len(missing)),
		slog.Int("ranges", len(report.Ranges)))

	for _, span := range report.Ranges {
		r, err := timeframe.Parse(span.StartDate, span.EndDate, timeframe.Daily)
		if err != nil {
			return report, fmt.Errorf("invalid backfill span: %w", err)
		}
		outcome := a.AggregateAll(ctx, clientID, r, false)
		if !outcome.Success {
			report.Success = false
		}
		report.Results = append(report.Results, RangeResult{Span: span, Outcome: outcome})
	}

	return report, nil
}

func (a *Aggregator) eventDates(ctx context.Context, clientID string, window timeframe.DateRange) ([]time.Time, error) {
	sql := `SELECT DISTINCT toDate(time) AS date FROM ` + store.TableEvents +
		` WHERE client_id = @client_id AND time >= @start_time AND time <= @end_time ORDER BY date`
	rows, err := a.store.Query(ctx, sql, map[string]any{
		"client_id":  clientID,
		"start_time": window.StartTime(),
		"end_time":   window.EndTime(),
	})
	if err != nil {
		return nil, err
	}
	return datesFromRows(rows), nil
}

func (a *Aggregator) statsDates(ctx context.Context, clientID string, window timeframe.DateRange) ([]time.Time, error) {
	sql := `SELECT DISTINCT date FROM ` + store.TableDailyStats +
		` WHERE client_id = @client_id AND date >= @start_date AND date <= @end_date ORDER BY date`
	rows, err := a.store.Query(ctx, sql, map[string]any{
		"client_id":  clientID,
		"start_date": window.Start,
		"end_date":   window.End,
	})
	if err != nil {
		return nil, err
	}
	return datesFromRows(rows), nil
}

func datesFromRows(rows []store.Row) []time.Time {
	dates := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		if t := row.Time("date"); !t.IsZero() {
			dates = append(dates, t.UTC().Truncate(24*time.Hour))
		}
	}
	return dates
}

// missingDates returns eventDates minus statsDates, sorted ascending.
func missingDates(eventDates, statsDates []time.Time) []time.Time {
	present := make(map[string]bool, len(statsDates))
	for _, d := range statsDates {
		present[d.Format(timeframe.DateLayout)] = true
	}
	var missing []time.Time
	for _, d := range eventDates {
		if !present[d.Format(timeframe.DateLayout)] {
			missing = append(missing, d)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Before(missing[j]) })
	return missing
}

// GroupContiguous groups sorted dates into maximal runs where neighbors
// are exactly one day apart. A single isolated date becomes a span of
// length one.
func GroupContiguous(dates []time.Time) []DateSpan {
	if len(dates) == 0 {
		return nil
	}

	var spans []DateSpan
	start := dates[0]
	previous := dates[0]
	for _, d := range dates[1:] {
		if d.Sub(previous) != 24*time.Hour {
			spans = append(spans, DateSpan{
				StartDate: start.Format(timeframe.DateLayout),
				EndDate:   previous.Format(timeframe.DateLayout),
			})
			start = d
		}
		previous = d
	}
	spans = append(spans, DateSpan{
		StartDate: start.Format(timeframe.DateLayout),
		EndDate:   previous.Format(timeframe.DateLayout),
	})
	return spans
}
