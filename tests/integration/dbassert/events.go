//go:build integration

package dbassert

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// SavingsEvent mirrors ledger.Event for test assertions.
type SavingsEvent struct {
	ID            string
	Timestamp     time.Time
	Command       string
	Subcommand    string
	RawBytes      int64
	FilteredBytes int64
	TokensSaved   int64
	DurationNs    int64
}

// QueryEventsByCommand queries savings events by command from PostgreSQL.
func QueryEventsByCommand(t *testing.T, pool *pgxpool.Pool, command string) []SavingsEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT id, timestamp, command, subcommand,
		       raw_bytes, filtered_bytes, tokens_saved, duration_ns
		FROM savings_events
		WHERE command = $1
		ORDER BY timestamp ASC
	`

	rows, err := pool.Query(ctx, query, command)
	require.NoError(t, err, "failed to query savings events")
	defer rows.Close()

	var events []SavingsEvent
	for rows.Next() {
		var ev SavingsEvent
		err := rows.Scan(
			&ev.ID, &ev.Timestamp, &ev.Command, &ev.Subcommand,
			&ev.RawBytes, &ev.FilteredBytes, &ev.TokensSaved, &ev.DurationNs,
		)
		require.NoError(t, err, "failed to scan savings event row")
		events = append(events, ev)
	}
	require.NoError(t, rows.Err(), "error iterating savings event rows")

	return events
}

// QueryEventsByCommandMongo queries savings events by command from MongoDB.
func QueryEventsByCommandMongo(t *testing.T, db *mongo.Database, command string) []SavingsEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collection := db.Collection("savings_events")
	filter := bson.M{"command": command}

	cursor, err := collection.Find(ctx, filter)
	require.NoError(t, err, "failed to query savings events from MongoDB")
	defer cursor.Close(ctx)

	var events []SavingsEvent
	for cursor.Next(ctx) {
		var doc bson.M
		err := cursor.Decode(&doc)
		require.NoError(t, err, "failed to decode savings event document")

		events = append(events, bsonToSavingsEvent(doc))
	}
	require.NoError(t, cursor.Err(), "error iterating savings event cursor")

	return events
}

// CountEvents returns the total count of savings events in PostgreSQL.
func CountEvents(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var count int
	err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM savings_events").Scan(&count)
	require.NoError(t, err, "failed to count savings events")

	return count
}

// ClearEvents deletes all savings events from PostgreSQL.
func ClearEvents(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, "DELETE FROM savings_events")
	require.NoError(t, err, "failed to clear savings events")
}

// ClearEventsMongo deletes all savings events from MongoDB.
func ClearEventsMongo(t *testing.T, db *mongo.Database) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := db.Collection("savings_events").DeleteMany(ctx, bson.M{})
	require.NoError(t, err, "failed to clear savings events from MongoDB")
}

// SumTokensByCommand returns savings totals grouped by command from PostgreSQL.
func SumTokensByCommand(t *testing.T, pool *pgxpool.Pool) map[string]SavingsTotals {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT command, SUM(raw_bytes), SUM(filtered_bytes), SUM(tokens_saved), COUNT(*)
		FROM savings_events
		GROUP BY command
	`

	rows, err := pool.Query(ctx, query)
	require.NoError(t, err, "failed to query savings totals")
	defer rows.Close()

	results := make(map[string]SavingsTotals)
	for rows.Next() {
		var command string
		var totals SavingsTotals
		err := rows.Scan(&command, &totals.RawBytes, &totals.FilteredBytes, &totals.TokensSaved, &totals.EventCount)
		require.NoError(t, err, "failed to scan savings totals row")
		results[command] = totals
	}
	require.NoError(t, rows.Err(), "error iterating savings totals rows")

	return results
}

// SavingsTotals holds aggregated savings statistics.
type SavingsTotals struct {
	RawBytes      int64
	FilteredBytes int64
	TokensSaved   int64
	EventCount    int64
}

// bsonToSavingsEvent converts a BSON document to a SavingsEvent.
func bsonToSavingsEvent(doc bson.M) SavingsEvent {
	ev := SavingsEvent{}

	if v, ok := doc["_id"].(string); ok {
		ev.ID = v
	}
	if v, ok := doc["timestamp"].(time.Time); ok {
		ev.Timestamp = v
	} else if v, ok := doc["timestamp"].(bson.DateTime); ok {
		ev.Timestamp = v.Time()
	}
	if v, ok := doc["command"].(string); ok {
		ev.Command = v
	}
	if v, ok := doc["subcommand"].(string); ok {
		ev.Subcommand = v
	}
	ev.RawBytes = bsonInt64(doc["raw_bytes"])
	ev.FilteredBytes = bsonInt64(doc["filtered_bytes"])
	ev.TokensSaved = bsonInt64(doc["tokens_saved"])
	ev.DurationNs = bsonInt64(doc["duration_ns"])

	return ev
}

// bsonInt64 extracts an int64 from the int32/int64 forms the driver may use.
func bsonInt64(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}
