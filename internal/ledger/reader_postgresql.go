package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"costlens/internal/core"
)

// PostgreSQLReader implements Reader for PostgreSQL databases.
type PostgreSQLReader struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLReader creates a new PostgreSQL savings reader.
func NewPostgreSQLReader(pool *pgxpool.Pool) (*PostgreSQLReader, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &PostgreSQLReader{pool: pool}, nil
}

// postgresBucketExpr returns the native period-key expression for a
// granularity. Weekly buckets anchor on Saturday: DOW runs Sunday=0 to
// Saturday=6, so (DOW+1)%7 is the day count back to the preceding Saturday.
func postgresBucketExpr(g core.Granularity) string {
	switch g {
	case core.GranularityWeekly:
		return `to_char((timestamp AT TIME ZONE 'UTC')::date - ((EXTRACT(DOW FROM timestamp AT TIME ZONE 'UTC')::int + 1) % 7), 'YYYY-MM-DD')`
	case core.GranularityMonthly:
		return `to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM')`
	default:
		return `to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD')`
	}
}

// postgresRangeClause builds the WHERE clause for an inclusive day-precision
// date range, half-open on the day after the end date.
func postgresRangeClause(params QueryParams) (string, []interface{}) {
	var args []interface{}

	startZero := params.StartDate.IsZero()
	endZero := params.EndDate.IsZero()

	switch {
	case !startZero && !endZero:
		args = append(args, params.StartDate.UTC(), params.EndDate.AddDate(0, 0, 1).UTC())
		return ` WHERE timestamp >= $1 AND timestamp < $2`, args
	case !startZero:
		args = append(args, params.StartDate.UTC())
		return ` WHERE timestamp >= $1`, args
	case !endZero:
		args = append(args, params.EndDate.AddDate(0, 0, 1).UTC())
		return ` WHERE timestamp < $1`, args
	default:
		return "", nil
	}
}

func (r *PostgreSQLReader) SavingsByPeriod(ctx context.Context, params QueryParams) ([]core.SavingsPeriod, error) {
	bucketExpr := postgresBucketExpr(params.Granularity)
	where, args := postgresRangeClause(params)

	query := fmt.Sprintf(`SELECT %s as period, COUNT(*), COALESCE(SUM(tokens_saved), 0)
		FROM savings_events%s GROUP BY %s ORDER BY period`, bucketExpr, where, bucketExpr)

	rows, err := r.pool.Query(ctx, query, args...)
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

func (r *PostgreSQLReader) Summary(ctx context.Context, params QueryParams) (*Summary, error) {
	where, args := postgresRangeClause(params)

	query := `SELECT COUNT(*), COALESCE(SUM(raw_bytes), 0), COALESCE(SUM(filtered_bytes), 0), COALESCE(SUM(tokens_saved), 0)
		FROM savings_events` + where

	summary := &Summary{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&summary.TotalCommands, &summary.TotalRawBytes, &summary.TotalFilteredBytes, &summary.TotalTokensSaved,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query savings summary: %w", err)
	}

	return summary, nil
}
