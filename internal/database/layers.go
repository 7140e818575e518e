// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
)

// ErrUnsupportedLayer is returned when PublishLayer receives rows it has no
// table layout for.
var ErrUnsupportedLayer = errors.New("unsupported layer rows")

type column struct {
	name string
	typ  string
}

// layerTable is the physical layout of one layer version.
type layerTable struct {
	columns    []column
	primaryKey []string
	n          int
	values     func(i int) []any
}

var baseColumns = []column{
	{"raw_id", "BIGINT"},
	{"trip_id", "TEXT"},
	{"stop_sequence", "INTEGER"},
	{"service_date", "TEXT"},
	{"stop_id", "TEXT"},
	{"route_id", "TEXT"},
	{"direction_id", "INTEGER"},
	{"observed_arrival_time", "TIMESTAMPTZ"},
	{"arrival_delay_seconds", "INTEGER"},
	{"feed_timestamp", "TIMESTAMPTZ"},
}

var enrichedColumns = concat(baseColumns, []column{
	{"route_short_name", "TEXT"},
	{"route_long_name", "TEXT"},
	{"route_type", "INTEGER"},
	{"trip_headsign", "TEXT"},
	{"service_id", "TEXT"},
	{"stop_name", "TEXT"},
	{"stop_lat", "DOUBLE"},
	{"stop_lon", "DOUBLE"},
	{"distance_from_center_km", "DOUBLE"},
	{"lat_sin", "DOUBLE"},
	{"lat_cos", "DOUBLE"},
	{"lon_sin", "DOUBLE"},
	{"lon_cos", "DOUBLE"},
	{"region_id", "TEXT"},
	{"scheduled_arrival_time", "TIMESTAMPTZ"},
	{"hour_of_day", "INTEGER"},
	{"day_of_week", "INTEGER"},
	{"hour_sin", "DOUBLE"},
	{"hour_cos", "DOUBLE"},
	{"day_sin", "DOUBLE"},
	{"day_cos", "DOUBLE"},
	{"is_peak_hour", "BOOLEAN"},
	{"is_weekend", "BOOLEAN"},
	{"time_bucket", "TIMESTAMPTZ"},
})

var analyticsColumns = concat(enrichedColumns, []column{
	{"delay_mean_by_route_hour", "DOUBLE"},
	{"route_hour_sample_count", "INTEGER"},
	{"delay_deviation", "DOUBLE"},
	{"travel_time_seconds", "DOUBLE"},
})

var rollupColumns = []column{
	{"region_id", "TEXT"},
	{"granularity", "TEXT"},
	{"bucket_start", "TIMESTAMPTZ"},
	{"observation_count", "INTEGER"},
	{"trip_count", "INTEGER"},
	{"route_count", "INTEGER"},
	{"stop_count", "INTEGER"},
	{"avg_delay_seconds", "DOUBLE"},
	{"median_delay_seconds", "DOUBLE"},
	{"p90_delay_seconds", "DOUBLE"},
	{"stddev_delay_seconds", "DOUBLE"},
	{"min_delay_seconds", "INTEGER"},
	{"max_delay_seconds", "INTEGER"},
	{"early_count", "INTEGER"},
	{"on_time_count", "INTEGER"},
	{"late_1_5_count", "INTEGER"},
	{"late_5_10_count", "INTEGER"},
	{"late_over_10_count", "INTEGER"},
	{"on_time_rate", "DOUBLE"},
	{"avg_travel_time_seconds", "DOUBLE"},
}

var recentColumns = []column{
	{"region_id", "TEXT"},
	{"region_name", "TEXT"},
	{"observation_count", "INTEGER"},
	{"trip_count", "INTEGER"},
	{"avg_delay_minutes", "DOUBLE"},
	{"on_time_rate", "DOUBLE"},
	{"status", "TEXT"},
	{"last_updated", "TIMESTAMPTZ"},
}

var rankingColumns = []column{
	{"region_id", "TEXT"},
	{"region_name", "TEXT"},
	{"region_type", "TEXT"},
	{"observation_count", "INTEGER"},
	{"avg_delay_minutes", "DOUBLE"},
	{"median_delay_minutes", "DOUBLE"},
	{"on_time_rate", "DOUBLE"},
	{"rank_by_delay", "INTEGER"},
	{"rank_by_on_time", "INTEGER"},
	{"performance_grade", "TEXT"},
	{"active_routes", "INTEGER"},
	{"active_stops", "INTEGER"},
	{"total_trips", "INTEGER"},
}

var observationKey = []string{"service_date", "trip_id", "stop_sequence"}

func concat(a, b []column) []column {
	out := make([]column, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

func baseValues(o *models.LatestObservation) []any {
	return []any{
		o.RawID, o.TripID, o.StopSequence, o.ServiceDate, o.StopID, nullString(o.RouteID), o.DirectionID,
		o.ObservedArrivalTime.UTC(), o.ArrivalDelaySeconds, o.FeedTimestamp.UTC(),
	}
}

func enrichedValues(e *models.EnrichedRecord) []any {
	return append(baseValues(&e.LatestObservation),
		e.RouteShortName, e.RouteLongName, e.RouteType, e.TripHeadsign, e.ServiceID,
		e.StopName, e.StopLat, e.StopLon, e.DistanceFromCenterKm, e.LatSin, e.LatCos, e.LonSin, e.LonCos,
		nullStringPtr(e.RegionID), e.ScheduledArrivalTime.UTC(), e.HourOfDay, e.DayOfWeek,
		e.HourSin, e.HourCos, e.DaySin, e.DayCos, e.IsPeakHour, e.IsWeekend, e.TimeBucket.UTC(),
	)
}

func analyticsValues(a *models.AnalyticsRecord) []any {
	return append(enrichedValues(&a.EnrichedRecord),
		nullFloat(a.RouteHourMeanDelay), a.RouteHourSampleCount, nullFloat(a.DelayDeviation),
		nullFloat(a.TravelTimeSeconds),
	)
}

// tableFor maps a layer's rows to its physical layout.
func tableFor(layer models.Layer, rows any) (*layerTable, error) {
	switch r := rows.(type) {
	case []models.LatestObservation:
		return &layerTable{baseColumns, observationKey, len(r), func(i int) []any { return baseValues(&r[i]) }}, nil
	case []models.EnrichedRecord:
		return &layerTable{enrichedColumns, observationKey, len(r), func(i int) []any { return enrichedValues(&r[i]) }}, nil
	case []models.AnalyticsRecord:
		return &layerTable{analyticsColumns, observationKey, len(r), func(i int) []any { return analyticsValues(&r[i]) }}, nil
	case []models.RegionalRollup:
		return &layerTable{rollupColumns, []string{"region_id", "bucket_start"}, len(r), func(i int) []any {
			x := &r[i]
			return []any{
				x.RegionID, string(x.Granularity), x.BucketStart.UTC(), x.ObservationCount, x.TripCount,
				x.RouteCount, x.StopCount, x.AvgDelaySeconds, x.MedianDelaySeconds, x.P90DelaySeconds,
				x.StddevDelaySeconds, x.MinDelaySeconds, x.MaxDelaySeconds, x.EarlyCount, x.OnTimeCount,
				x.Late1to5Count, x.Late5to10Count, x.LateOver10Count, x.OnTimeRate, nullFloat(x.AvgTravelTimeSeconds),
			}
		}}, nil
	case []models.RecentRegionStatus:
		return &layerTable{recentColumns, []string{"region_id"}, len(r), func(i int) []any {
			x := &r[i]
			return []any{
				x.RegionID, x.RegionName, x.ObservationCount, x.TripCount, x.AvgDelayMinutes,
				x.OnTimeRate, string(x.Status), nullTime(x.LastUpdated),
			}
		}}, nil
	case []models.RegionalRanking:
		return &layerTable{rankingColumns, []string{"region_id"}, len(r), func(i int) []any {
			x := &r[i]
			return []any{
				x.RegionID, x.RegionName, x.RegionType, x.ObservationCount, x.AvgDelayMinutes,
				x.MedianDelayMinutes, x.OnTimeRate, x.RankByDelay, x.RankByOnTime, x.PerformanceGrade,
				x.ActiveRoutes, x.ActiveStops, x.TotalTrips,
			}
		}}, nil
	default:
		return nil, fmt.Errorf("%w: %s got %T", ErrUnsupportedLayer, layer, rows)
	}
}

// LayerTableName returns the physical table holding version of layer.
func LayerTableName(layer models.Layer, version uint64) string {
	return fmt.Sprintf("%s_v%d", layer, version)
}

// PublishLayer writes rows as a new versioned table and points the layer's
// view at it in one transaction. Readers of the view see either the old or
// the new version, never a partial one. Versions older than the configured
// KeepVersions are dropped afterwards.
func (db *DB) PublishLayer(ctx context.Context, layer models.Layer, version uint64, rows any) (err error) {
	if !layer.Valid() || layer == models.LayerArchive {
		return fmt.Errorf("%w: %s", ErrUnsupportedLayer, layer)
	}
	lt, err := tableFor(layer, rows)
	if err != nil {
		return err
	}

	db.publishMu.Lock()
	defer db.publishMu.Unlock()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	table := LayerTableName(layer, version)
	start := time.Now()
	defer func() { metrics.RecordDBQuery("PUBLISH", string(layer), time.Since(start), err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { rollback(tx, err) }()

	// A previous attempt at this version may have left a table behind.
	if _, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
		return fmt.Errorf("failed to drop stale %s: %w", table, err)
	}
	if _, err = tx.ExecContext(ctx, createTableSQL(table, lt)); err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}
	if err = insertEach(ctx, tx, insertSQL(table, lt), lt.n, lt.values); err != nil {
		return fmt.Errorf("failed to fill %s: %w", table, err)
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM %s`, layer, table)); err != nil {
		return fmt.Errorf("failed to swap view %s: %w", layer, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", table, err)
	}

	if pruneErr := db.pruneLayerVersions(ctx, layer, version); pruneErr != nil {
		logging.Ctx(ctx).Warn().Err(pruneErr).Str("layer", string(layer)).Msg("Failed to prune old layer versions")
	}
	return nil
}

// LayerVersions returns the stored versions of layer, ascending.
func (db *DB) LayerVersions(ctx context.Context, layer models.Layer) ([]uint64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT table_name FROM duckdb_tables() WHERE starts_with(table_name, ?)`, string(layer)+"_v")
	if err != nil {
		return nil, fmt.Errorf("failed to list layer tables: %w", err)
	}
	defer closeQuietly(rows)

	prefix := string(layer) + "_v"
	var versions []uint64
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(name, prefix), 10, 64)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

// LayerRowCount returns the row count behind the layer view.
func (db *DB) LayerRowCount(ctx context.Context, layer models.Layer) (int64, error) {
	if !layer.Valid() || layer == models.LayerArchive {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedLayer, layer)
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+string(layer)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", layer, err)
	}
	return n, nil
}

func (db *DB) pruneLayerVersions(ctx context.Context, layer models.Layer, current uint64) error {
	keep := uint64(0)
	if db.cfg != nil && db.cfg.KeepVersions > 0 {
		keep = uint64(db.cfg.KeepVersions)
	}
	if current <= keep {
		return nil
	}
	versions, err := db.LayerVersions(ctx, layer)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v >= current-keep {
			break
		}
		if _, err := db.conn.ExecContext(ctx, `DROP TABLE IF EXISTS `+LayerTableName(layer, v)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", LayerTableName(layer, v), err)
		}
	}
	return nil
}

// LoadAnalytics reads the published analytics layer. Used at startup to
// restore the cumulative history; returns (nil, 0, nil) when the layer has
// never been published.
func (db *DB) LoadAnalytics(ctx context.Context) (out []models.AnalyticsRecord, version uint64, err error) {
	versions, err := db.LayerVersions(ctx, models.LayerAnalytics)
	if err != nil || len(versions) == 0 {
		return nil, 0, err
	}
	version = versions[len(versions)-1]

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	names := make([]string, len(analyticsColumns))
	for i, c := range analyticsColumns {
		names[i] = c.name
	}
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY service_date, trip_id, stop_sequence`,
		strings.Join(names, ", "), LayerTableName(models.LayerAnalytics, version)))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query analytics: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var (
			a                       models.AnalyticsRecord
			routeID, regionID       sql.NullString
			mean, deviation, travel sql.NullFloat64
		)
		e := &a.EnrichedRecord
		o := &e.LatestObservation
		if err = rows.Scan(
			&o.RawID, &o.TripID, &o.StopSequence, &o.ServiceDate, &o.StopID, &routeID, &o.DirectionID,
			&o.ObservedArrivalTime, &o.ArrivalDelaySeconds, &o.FeedTimestamp,
			&e.RouteShortName, &e.RouteLongName, &e.RouteType, &e.TripHeadsign, &e.ServiceID,
			&e.StopName, &e.StopLat, &e.StopLon, &e.DistanceFromCenterKm, &e.LatSin, &e.LatCos, &e.LonSin, &e.LonCos,
			&regionID, &e.ScheduledArrivalTime, &e.HourOfDay, &e.DayOfWeek,
			&e.HourSin, &e.HourCos, &e.DaySin, &e.DayCos, &e.IsPeakHour, &e.IsWeekend, &e.TimeBucket,
			&mean, &a.RouteHourSampleCount, &deviation, &travel,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan analytics row: %w", err)
		}
		o.ID = o.RawID
		o.RouteID = routeID.String
		if regionID.Valid {
			e.RegionID = models.String(regionID.String)
		}
		a.RouteHourMeanDelay = floatPtr(mean)
		a.DelayDeviation = floatPtr(deviation)
		a.TravelTimeSeconds = floatPtr(travel)
		out = append(out, a)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, version, nil
}

func createTableSQL(table string, lt *layerTable) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range lt.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.name)
		b.WriteString(" ")
		b.WriteString(c.typ)
	}
	if len(lt.primaryKey) > 0 {
		b.WriteString(", PRIMARY KEY (")
		b.WriteString(strings.Join(lt.primaryKey, ", "))
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String()
}

func insertSQL(table string, lt *layerTable) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(lt.columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, placeholders)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return models.Float64(v.Float64)
}
