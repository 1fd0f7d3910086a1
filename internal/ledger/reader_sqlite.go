package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"costlens/internal/core"
)

// SQLiteReader implements Reader for SQLite databases.
type SQLiteReader struct {
	db *sql.DB
}

// NewSQLiteReader creates a new SQLite savings reader.
func NewSQLiteReader(db *sql.DB) (*SQLiteReader, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLiteReader{db: db}, nil
}

// sqliteBucketExpr returns the native period-key expression for a granularity.
// Weekly buckets anchor on Saturday: step to the next Saturday from the day
// after the timestamp, then back one week.
func sqliteBucketExpr(g core.Granularity) string {
	switch g {
	case core.GranularityWeekly:
		return `DATE(timestamp, '+1 day', 'weekday 6', '-7 days')`
	case core.GranularityMonthly:
		return `strftime('%Y-%m', timestamp)`
	default:
		return `DATE(timestamp)`
	}
}

// sqliteRangeClause builds the WHERE clause for an inclusive day-precision
// date range. The end bound is half-open on the following day so events at
// any time of the end date are included.
func sqliteRangeClause(params QueryParams) (string, []interface{}) {
	var args []interface{}

	startZero := params.StartDate.IsZero()
	endZero := params.EndDate.IsZero()

	switch {
	case !startZero && !endZero:
		args = append(args, params.StartDate.UTC().Format("2006-01-02"), params.EndDate.AddDate(0, 0, 1).UTC().Format("2006-01-02"))
		return ` WHERE timestamp >= ? AND timestamp < ?`, args
	case !startZero:
		args = append(args, params.StartDate.UTC().Format("2006-01-02"))
		return ` WHERE timestamp >= ?`, args
	case !endZero:
		args = append(args, params.EndDate.AddDate(0, 0, 1).UTC().Format("2006-01-02"))
		return ` WHERE timestamp < ?`, args
	default:
		return "", nil
	}
}

func (r *SQLiteReader) SavingsByPeriod(ctx context.Context, params QueryParams) ([]core.SavingsPeriod, error) {
	bucketExpr := sqliteBucketExpr(params.Granularity)
	where, args := sqliteRangeClause(params)

	query := fmt.Sprintf(`SELECT %s as period, COUNT(*), COALESCE(SUM(tokens_saved), 0)
		FROM savings_events%s GROUP BY %s ORDER BY period`, bucketExpr, where, bucketExpr)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query savings by period: %w", err)
	}
	defer rows.Close()

	result := make([]core.SavingsPeriod, 0)
	for rows.Next() {
		var p core.SavingsPeriod
		if err := rows.Scan(&p.PeriodKey, &p.Commands, &p.TokensSaved); err != nil {
			return nil, fmt.Errorf("failed to scan savings row: %w", err)
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating savings rows: %w", err)
	}

	return result, nil
}

func (r *SQLiteReader) Summary(ctx context.Context, params QueryParams) (*Summary, error) {
	where, args := sqliteRangeClause(params)

	query := `SELECT COUNT(*), COALESCE(SUM(raw_bytes), 0), COALESCE(SUM(filtered_bytes), 0), COALESCE(SUM(tokens_saved), 0)
		FROM savings_events` + where

	summary := &Summary{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.TotalCommands, &summary.TotalRawBytes, &summary.TotalFilteredBytes, &summary.TotalTokensSaved,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query savings summary: %w", err)
	}

	return summary, nil
}
