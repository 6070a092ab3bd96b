package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Table names shared across the query and rollup layers.
const (
	TableEvents        = "events"
	TableDailyStats    = "daily_stats"
	TablePageStats     = "page_stats"
	TableReferrerStats = "referrer_stats"
)

// RollupTables lists the derived tables maintained by the aggregator.
func RollupTables() []string {
	return []string{TableDailyStats, TablePageStats, TableReferrerStats}
}

// The rollup tables are ReplacingMergeTree versioned by computed_at: rows
// with an equal sorting key collapse to the latest computation on merge, so
// re-aggregating a date without force converges instead of duplicating.
// Readers that need exact rows aggregate with FINAL.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ` + TableEvents + ` (
		id UUID DEFAULT generateUUIDv4(),
		client_id String,
		anonymous_id String,
		session_id String,
		time DateTime64(3, 'UTC'),
		event_name LowCardinality(String),
		country LowCardinality(String) DEFAULT '',
		region String DEFAULT '',
		city String DEFAULT '',
		timezone String DEFAULT '',
		device_type LowCardinality(String) DEFAULT '',
		device_brand String DEFAULT '',
		device_model String DEFAULT '',
		browser_name LowCardinality(String) DEFAULT '',
		browser_version String DEFAULT '',
		os_name LowCardinality(String) DEFAULT '',
		os_version String DEFAULT '',
		screen_resolution String DEFAULT '',
		referrer String DEFAULT '',
		utm_source String DEFAULT '',
		utm_medium String DEFAULT '',
		utm_campaign String DEFAULT '',
		utm_term String DEFAULT '',
		utm_content String DEFAULT '',
		load_time Float64 DEFAULT 0,
		ttfb Float64 DEFAULT 0,
		fcp Float64 DEFAULT 0,
		lcp Float64 DEFAULT 0,
		cls Float64 DEFAULT 0,
		dom_ready_time Float64 DEFAULT 0,
		render_time Float64 DEFAULT 0,
		error_type String DEFAULT '',
		error_message String DEFAULT '',
		error_filename String DEFAULT '',
		error_lineno UInt32 DEFAULT 0,
		error_colno UInt32 DEFAULT 0,
		error_stack String DEFAULT '',
		path String DEFAULT '',
		url String DEFAULT '',
		title String DEFAULT ''
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(time)
	ORDER BY (client_id, time)`,

	`CREATE TABLE IF NOT EXISTS ` + TableDailyStats + ` (
		client_id String,
		date Date,
		pageviews UInt64,
		visitors UInt64,
		sessions UInt64,
		bounce_rate Float64,
		avg_session_duration Float64,
		computed_at DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(computed_at)
	ORDER BY (client_id, date)`,

	`CREATE TABLE IF NOT EXISTS ` + TablePageStats + ` (
		client_id String,
		date Date,
		path String,
		pageviews UInt64,
		visitors UInt64,
		avg_time_on_page Float64,
		computed_at DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(computed_at)
	ORDER BY (client_id, date, path)`,

	`CREATE TABLE IF NOT EXISTS ` + TableReferrerStats + ` (
		client_id String,
		date Date,
		referrer String,
		visitors UInt64,
		pageviews UInt64,
		computed_at DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(computed_at)
	ORDER BY (client_id, date, referrer)`,
}

// Migrate applies the event and rollup table DDL.
func Migrate(ctx context.Context, execer Execer, logger *slog.Logger) error {
	for _, stmt := range schemaStatements {
		if err := execer.Command(ctx, stmt, nil); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	logger.Info("Database migration completed successfully")
	return nil
}

// Optimize issues a merge-compaction for one rollup table.
func Optimize(ctx context.Context, execer Execer, table string) error {
	return execer.Command(ctx, fmt.Sprintf("OPTIMIZE TABLE %s FINAL", table), nil)
}
