//go:build integration

package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costlens/internal/core"
	"costlens/internal/ledger"
	"costlens/tests/integration/dbassert"
)

// eventAt builds an event with a fixed timestamp so bucketing tests are
// deterministic.
func eventAt(t *testing.T, ts, command string, tokensSaved int64) *ledger.Event {
	t.Helper()

	parsed, err := time.Parse(time.RFC3339, ts)
	require.NoError(t, err, "bad test timestamp %s", ts)

	return &ledger.Event{
		ID:            uuid.NewString(),
		Timestamp:     parsed,
		Command:       command,
		Subcommand:    "build",
		RawBytes:      tokensSaved * 5,
		FilteredBytes: tokensSaved,
		TokensSaved:   tokensSaved,
		DurationNs:    1_500_000,
	}
}

func TestLedgerRoundTrip_PostgreSQL(t *testing.T) {
	pool := GetPostgreSQLPool()
	ctx := GetTestContext()

	store, err := ledger.NewPostgreSQLStore(pool, 0)
	require.NoError(t, err, "failed to create PostgreSQL store")
	defer store.Close()

	dbassert.ClearEvents(t, pool)

	// 2025-12-01 is a Monday; the ledger's weeks anchor on Saturday, so the
	// first three events share the 2025-11-29 bucket and the Saturday event
	// starts a new one.
	events := []*ledger.Event{
		eventAt(t, "2025-12-01T10:00:00Z", "cargo", 200),
		eventAt(t, "2025-12-01T16:00:00Z", "cargo", 100),
		eventAt(t, "2025-12-03T12:00:00Z", "go", 50),
		eventAt(t, "2025-12-06T09:00:00Z", "cargo", 25),
	}
	require.NoError(t, store.WriteBatch(ctx, events), "failed to write events")

	reader, err := ledger.NewPostgreSQLReader(pool)
	require.NoError(t, err, "failed to create PostgreSQL reader")

	t.Run("daily buckets", func(t *testing.T) {
		periods, err := reader.SavingsByPeriod(ctx, ledger.QueryParams{Granularity: core.GranularityDaily})
		require.NoError(t, err)
		require.Len(t, periods, 3)

		assert.Equal(t, "2025-12-01", periods[0].PeriodKey)
		assert.Equal(t, int64(2), periods[0].Commands)
		assert.Equal(t, int64(300), periods[0].TokensSaved)
		assert.Equal(t, "2025-12-03", periods[1].PeriodKey)
		assert.Equal(t, "2025-12-06", periods[2].PeriodKey)
	})

	t.Run("weekly buckets anchor on Saturday", func(t *testing.T) {
		periods, err := reader.SavingsByPeriod(ctx, ledger.QueryParams{Granularity: core.GranularityWeekly})
		require.NoError(t, err)
		require.Len(t, periods, 2)

		assert.Equal(t, "2025-11-29", periods[0].PeriodKey)
		assert.Equal(t, int64(3), periods[0].Commands)
		assert.Equal(t, int64(350), periods[0].TokensSaved)
		assert.Equal(t, "2025-12-06", periods[1].PeriodKey)
		assert.Equal(t, int64(25), periods[1].TokensSaved)
	})

	t.Run("monthly buckets", func(t *testing.T) {
		periods, err := reader.SavingsByPeriod(ctx, ledger.QueryParams{Granularity: core.GranularityMonthly})
		require.NoError(t, err)
		require.Len(t, periods, 1)

		assert.Equal(t, "2025-12", periods[0].PeriodKey)
		assert.Equal(t, int64(4), periods[0].Commands)
		assert.Equal(t, int64(375), periods[0].TokensSaved)
	})

	t.Run("date range is inclusive of the end date", func(t *testing.T) {
		periods, err := reader.SavingsByPeriod(ctx, ledger.QueryParams{
			Granularity: core.GranularityDaily,
			StartDate:   time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
			EndDate:     time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		require.Len(t, periods, 2)
		assert.Equal(t, "2025-12-01", periods[0].PeriodKey)
		assert.Equal(t, "2025-12-03", periods[1].PeriodKey)
	})

	t.Run("summary sums all fields", func(t *testing.T) {
		summary, err := reader.Summary(ctx, ledger.QueryParams{})
		require.NoError(t, err)

		assert.Equal(t, int64(4), summary.TotalCommands)
		assert.Equal(t, int64(375*5), summary.TotalRawBytes)
		assert.Equal(t, int64(375), summary.TotalFilteredBytes)
		assert.Equal(t, int64(375), summary.TotalTokensSaved)
	})
}

func TestLedgerDuplicateIDs_PostgreSQL(t *testing.T) {
	pool := GetPostgreSQLPool()
	ctx := GetTestContext()

	store, err := ledger.NewPostgreSQLStore(pool, 0)
	require.NoError(t, err)
	defer store.Close()

	dbassert.ClearEvents(t, pool)

	ev := eventAt(t, "2025-12-01T10:00:00Z", "cargo", 80)
	require.NoError(t, store.WriteBatch(ctx, []*ledger.Event{ev}))

	// Re-delivering the same event must be a silent no-op
	require.NoError(t, store.WriteBatch(ctx, []*ledger.Event{ev}))

	assert.Equal(t, 1, dbassert.CountEvents(t, pool), "duplicate ID should not create a second row")
}

func TestLedgerRoundTrip_MongoDB(t *testing.T) {
	db := GetMongoDatabase()
	ctx := GetTestContext()

	store, err := ledger.NewMongoDBStore(db, 0)
	require.NoError(t, err, "failed to create MongoDB store")
	defer store.Close()

	dbassert.ClearEventsMongo(t, db)

	events := []*ledger.Event{
		eventAt(t, "2025-12-01T10:00:00Z", "cargo", 200),
		eventAt(t, "2025-12-03T12:00:00Z", "go", 50),
		eventAt(t, "2025-12-06T09:00:00Z", "cargo", 25),
	}
	require.NoError(t, store.WriteBatch(ctx, events), "failed to write events")

	reader, err := ledger.NewMongoDBReader(db)
	require.NoError(t, err, "failed to create MongoDB reader")

	t.Run("daily buckets", func(t *testing.T) {
		periods, err := reader.SavingsByPeriod(ctx, ledger.QueryParams{Granularity: core.GranularityDaily})
		require.NoError(t, err)
		require.Len(t, periods, 3)
		assert.Equal(t, "2025-12-01", periods[0].PeriodKey)
		assert.Equal(t, int64(200), periods[0].TokensSaved)
	})

	t.Run("weekly buckets anchor on Saturday", func(t *testing.T) {
		periods, err := reader.SavingsByPeriod(ctx, ledger.QueryParams{Granularity: core.GranularityWeekly})
		require.NoError(t, err)
		require.Len(t, periods, 2)
		assert.Equal(t, "2025-11-29", periods[0].PeriodKey)
		assert.Equal(t, int64(250), periods[0].TokensSaved)
		assert.Equal(t, "2025-12-06", periods[1].PeriodKey)
	})

	t.Run("summary sums all fields", func(t *testing.T) {
		summary, err := reader.Summary(ctx, ledger.QueryParams{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), summary.TotalCommands)
		assert.Equal(t, int64(275), summary.TotalTokensSaved)
	})

	// Stored documents keep every field the event carried
	stored := dbassert.QueryEventsByCommandMongo(t, db, "go")
	require.Len(t, stored, 1)
	dbassert.AssertEventFieldCompleteness(t, stored[0])
	dbassert.AssertEventBytesConsistent(t, stored[0])
	dbassert.AssertEventMatches(t, dbassert.ExpectedEvent{
		Command:     "go",
		Subcommand:  "build",
		TokensSaved: 50,
	}, stored[0])
}

func TestLedgerDuplicateIDs_MongoDB(t *testing.T) {
	db := GetMongoDatabase()
	ctx := GetTestContext()

	store, err := ledger.NewMongoDBStore(db, 0)
	require.NoError(t, err)
	defer store.Close()

	dbassert.ClearEventsMongo(t, db)

	ev := eventAt(t, "2025-12-01T10:00:00Z", "cargo", 80)
	require.NoError(t, store.WriteBatch(ctx, []*ledger.Event{ev}))

	// Unlike PostgreSQL, the duplicate surfaces as a partial write error so
	// operators can track re-delivery, but the original row is untouched.
	err = store.WriteBatch(ctx, []*ledger.Event{ev})
	require.Error(t, err)

	var partial *ledger.PartialWriteError
	require.True(t, errors.As(err, &partial), "expected PartialWriteError, got %T", err)
	assert.Equal(t, 1, partial.TotalEvents)
	assert.Equal(t, 1, partial.FailedCount)
	assert.True(t, errors.Is(err, ledger.ErrPartialWrite))

	stored := dbassert.QueryEventsByCommandMongo(t, db, "cargo")
	assert.Len(t, stored, 1, "duplicate ID should not create a second document")
}

func TestLedgerRecorderFlush_PostgreSQL(t *testing.T) {
	pool := GetPostgreSQLPool()

	store, err := ledger.NewPostgreSQLStore(pool, 0)
	require.NoError(t, err)

	dbassert.ClearEvents(t, pool)

	recorder := ledger.NewRecorder(store, ledger.Config{
		Enabled:       true,
		BufferSize:    100,
		FlushInterval: time.Hour, // rely on Close draining, not the timer
	})

	for i := 0; i < 25; i++ {
		recorder.Record(eventAt(t, "2025-12-01T10:00:00Z", "cargo", 10))
	}
	require.NoError(t, recorder.Close(), "recorder close should flush")

	assert.Equal(t, 25, dbassert.CountEvents(t, pool), "all buffered events should reach storage")

	totals := dbassert.SumTokensByCommand(t, pool)
	require.Contains(t, totals, "cargo")
	assert.Equal(t, int64(250), totals["cargo"].TokensSaved)
	assert.Equal(t, int64(25), totals["cargo"].EventCount)
}
