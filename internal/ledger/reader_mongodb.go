package ledger

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"costlens/internal/core"
)

// MongoDBReader implements Reader for MongoDB.
type MongoDBReader struct {
	collection *mongo.Collection
}

// NewMongoDBReader creates a new MongoDB savings reader.
func NewMongoDBReader(database *mongo.Database) (*MongoDBReader, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &MongoDBReader{collection: database.Collection("savings_events")}, nil
}

// mongoBucketExpr returns the native period-key expression for a granularity.
// Weekly buckets anchor on Saturday: $dayOfWeek runs Sunday=1 to Saturday=7,
// so dayOfWeek%7 is the day count back to the preceding Saturday.
func mongoBucketExpr(g core.Granularity) bson.D {
	switch g {
	case core.GranularityWeekly:
		return bson.D{{Key: "$dateToString", Value: bson.D{
			{Key: "format", Value: "%Y-%m-%d"},
			{Key: "date", Value: bson.D{{Key: "$dateSubtract", Value: bson.D{
				{Key: "startDate", Value: "$timestamp"},
				{Key: "unit", Value: "day"},
				{Key: "amount", Value: bson.D{{Key: "$mod", Value: bson.A{
					bson.D{{Key: "$dayOfWeek", Value: "$timestamp"}},
					7,
				}}}},
			}}}},
		}}}
	case core.GranularityMonthly:
		return bson.D{{Key: "$dateToString", Value: bson.D{
			{Key: "format", Value: "%Y-%m"},
			{Key: "date", Value: "$timestamp"},
		}}}
	default:
		return bson.D{{Key: "$dateToString", Value: bson.D{
			{Key: "format", Value: "%Y-%m-%d"},
			{Key: "date", Value: "$timestamp"},
		}}}
	}
}

// mongoMatchStage builds the $match stage for an inclusive day-precision
// date range, half-open on the day after the end date. Returns nil when the
// range is unbounded.
func mongoMatchStage(params QueryParams) bson.D {
	startZero := params.StartDate.IsZero()
	endZero := params.EndDate.IsZero()

	switch {
	case !startZero && !endZero:
		return bson.D{{Key: "$match", Value: bson.D{
			{Key: "timestamp", Value: bson.D{
				{Key: "$gte", Value: params.StartDate.UTC()},
				{Key: "$lt", Value: params.EndDate.AddDate(0, 0, 1).UTC()},
			}},
		}}}
	case !startZero:
		return bson.D{{Key: "$match", Value: bson.D{
			{Key: "timestamp", Value: bson.D{{Key: "$gte", Value: params.StartDate.UTC()}}},
		}}}
	case !endZero:
		return bson.D{{Key: "$match", Value: bson.D{
			{Key: "timestamp", Value: bson.D{{Key: "$lt", Value: params.EndDate.AddDate(0, 0, 1).UTC()}}},
		}}}
	default:
		return nil
	}
}

func (r *MongoDBReader) SavingsByPeriod(ctx context.Context, params QueryParams) ([]core.SavingsPeriod, error) {
	pipeline := bson.A{}

	if match := mongoMatchStage(params); match != nil {
		pipeline = append(pipeline, match)
	}

	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: mongoBucketExpr(params.Granularity)},
			{Key: "commands", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "tokens_saved", Value: bson.D{{Key: "$sum", Value: "$tokens_saved"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	)

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate savings by period: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]core.SavingsPeriod, 0)
	for cursor.Next(ctx) {
		var row struct {
			PeriodKey   string `bson:"_id"`
			Commands    int64  `bson:"commands"`
			TokensSaved int64  `bson:"tokens_saved"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode savings row: %w", err)
		}
		result = append(result, core.SavingsPeriod{
			PeriodKey:   row.PeriodKey,
			Commands:    row.Commands,
			TokensSaved: row.TokensSaved,
		})
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating savings cursor: %w", err)
	}

	return result, nil
}

func (r *MongoDBReader) Summary(ctx context.Context, params QueryParams) (*Summary, error) {
	pipeline := bson.A{}

	if match := mongoMatchStage(params); match != nil {
		pipeline = append(pipeline, match)
	}

	pipeline = append(pipeline, bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: nil},
		{Key: "total_commands", Value: bson.D{{Key: "$sum", Value: 1}}},
		{Key: "total_raw_bytes", Value: bson.D{{Key: "$sum", Value: "$raw_bytes"}}},
		{Key: "total_filtered_bytes", Value: bson.D{{Key: "$sum", Value: "$filtered_bytes"}}},
		{Key: "total_tokens_saved", Value: bson.D{{Key: "$sum", Value: "$tokens_saved"}}},
	}}})

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate savings summary: %w", err)
	}
	defer cursor.Close(ctx)

	summary := &Summary{}
	if cursor.Next(ctx) {
		var row struct {
			TotalCommands      int64 `bson:"total_commands"`
			TotalRawBytes      int64 `bson:"total_raw_bytes"`
			TotalFilteredBytes int64 `bson:"total_filtered_bytes"`
			TotalTokensSaved   int64 `bson:"total_tokens_saved"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode savings summary: %w", err)
		}
		summary.TotalCommands = row.TotalCommands
		summary.TotalRawBytes = row.TotalRawBytes
		summary.TotalFilteredBytes = row.TotalFilteredBytes
		summary.TotalTokensSaved = row.TotalTokensSaved
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating savings summary cursor: %w", err)
	}

	return summary, nil
}
