// Package timeframe models inclusive calendar date ranges and generates the
// bucket spine used to render gapless time series: one entry per bucket
// between the range endpoints, whether or not any events exist there.
package timeframe

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar date boundaries.
const DateLayout = "2006-01-02"

// Granularity selects the bucket size for a time series.
type Granularity string

const (
	Hourly  Granularity = "hourly"
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// ParseGranularity validates a user-supplied granularity, defaulting to
// daily when empty.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case Hourly, Daily, Weekly, Monthly:
		return Granularity(s), nil
	case "":
		return Daily, nil
	default:
		return "", fmt.Errorf("unsupported granularity: %q", s)
	}
}

// DateRange is an inclusive range of calendar dates with a bucket size.
// Boundaries run from 00:00:00 on the start date to 23:59:59 on the end
// date, in UTC.
type DateRange struct {
	Start       time.Time
	End         time.Time
	Granularity Granularity
}

// Parse builds a DateRange from "YYYY-MM-DD" boundaries.
func Parse(startDate, endDate string, granularity Granularity) (DateRange, error) {
	start, err := time.ParseInLocation(DateLayout, startDate, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.ParseInLocation(DateLayout, endDate, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("end date %s is before start date %s", endDate, startDate)
	}
	return DateRange{Start: start, End: end, Granularity: granularity}, nil
}

// NewRange builds a DateRange from times, keeping only their calendar dates.
func NewRange(start, end time.Time, granularity Granularity) DateRange {
	return DateRange{
		Start:       truncateToDay(start.UTC()),
		End:         truncateToDay(end.UTC()),
		Granularity: granularity,
	}
}

// LastDays builds a DateRange covering the past n days up to today.
func LastDays(n int, granularity Granularity) DateRange {
	now := time.Now().UTC()
	return NewRange(now.AddDate(0, 0, -n), now, granularity)
}

// StartTime is the inclusive lower bound, 00:00:00 on the start date.
func (r DateRange) StartTime() time.Time {
	return r.Start
}

// EndTime is the inclusive upper bound, 23:59:59 on the end date.
func (r DateRange) EndTime() time.Time {
	return time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 23, 59, 59, 0, time.UTC)
}

// StartDate and EndDate render the boundaries in wire format.
func (r DateRange) StartDate() string { return r.Start.Format(DateLayout) }
func (r DateRange) EndDate() string   { return r.End.Format(DateLayout) }

// Buckets generates the spine: every bucket start between the range
// endpoints, inclusive, in ascending order. The result depends only on the
// range, never on stored data, so empty ranges still render a full spine.
func (r DateRange) Buckets() []time.Time {
	end := r.EndTime()
	var buckets []time.Time
	for cursor := r.firstBucket(); !cursor.After(end); cursor = r.nextBucket(cursor) {
		buckets = append(buckets, cursor)
	}
	return buckets
}

func (r DateRange) firstBucket() time.Time {
	switch r.Granularity {
	case Weekly:
		return truncateToMonday(r.Start)
	case Monthly:
		return time.Date(r.Start.Year(), r.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return r.Start
	}
}

func (r DateRange) nextBucket(t time.Time) time.Time {
	switch r.Granularity {
	case Hourly:
		return t.Add(time.Hour)
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Monthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// BucketKey renders a bucket timestamp as the canonical lookup key used to
// match spine entries against aggregate rows.
func (r DateRange) BucketKey(t time.Time) string {
	if r.Granularity == Hourly {
		return t.UTC().Format("2006-01-02 15:00:00")
	}
	return t.UTC().Format(DateLayout)
}

// BucketExpr returns the store-side expression that buckets a timestamp
// column to this range's granularity. Keep in sync with BucketKey: both
// must land on the same bucket starts.
func (r DateRange) BucketExpr(column string) string {
	switch r.Granularity {
	case Hourly:
		return fmt.Sprintf("toStartOfHour(%s)", column)
	case Weekly:
		return fmt.Sprintf("toStartOfWeek(%s, 1)", column)
	case Monthly:
		return fmt.Sprintf("toStartOfMonth(%s)", column)
	default:
		return fmt.Sprintf("toStartOfDay(%s)", column)
	}
}

// Dates lists every calendar date in the range, inclusive.
func (r DateRange) Dates() []time.Time {
	var dates []time.Time
	for cursor := r.Start; !cursor.After(r.End); cursor = cursor.AddDate(0, 0, 1) {
		dates = append(dates, cursor)
	}
	return dates
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonday(t time.Time) time.Time {
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	return truncateToDay(t).AddDate(0, 0, -daysSinceMonday)
}
