package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"croesus/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ARCHIVE_BATCH_SIZE bounds one BulkWrite during xlogfile replay
const ARCHIVE_BATCH_SIZE = 500

var ErrUnknownField = errors.New("unknown distribution field")

// distributionFields are the game fields Distribution may group by
var distributionFields = map[string]bool{
	"role":   true,
	"race":   true,
	"gender": true,
	"align":  true,
	"death":  true,
}

// GameDatabase archives finished games
type GameDatabase interface {
	// ArchiveGames upserts games; a game already archived is left untouched
	ArchiveGames(ctx context.Context, games []model.GameDocument) (int64, error)

	// LatestGames returns the most recently ended games, newest first
	LatestGames(ctx context.Context, server string, limit int64) ([]model.GameDocument, error)

	// Distribution counts non-scum games ended since the given time by field
	Distribution(ctx context.Context, field string, since time.Time) (map[string]int64, error)
}

func gameFilter(g model.GameDocument) bson.M {
	return bson.M{
		"server":    g.Server,
		"name":      g.Name,
		"starttime": g.StartTime,
		"endtime":   g.EndTime,
	}
}

func (m *mongoDB) ArchiveGames(ctx context.Context, games []model.GameDocument) (int64, error) {
	if len(games) == 0 {
		return 0, nil
	}

	now := time.Now()
	var upserted int64
	for _, batch := range model.SplitIntoBatches(games, ARCHIVE_BATCH_SIZE) {
		ops := make([]mongo.WriteModel, len(batch))
		for i := range batch {
			if batch[i].ArchivedAt.IsZero() {
				batch[i].ArchivedAt = now
			}
			ops[i] = mongo.NewUpdateOneModel().
				SetFilter(gameFilter(batch[i])).
				SetUpdate(bson.M{"$setOnInsert": batch[i]}).
				SetUpsert(true)
		}

		result, err := m.gamesCol.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false))
		if err != nil {
			log.Error().Err(err).Int("count", len(batch)).Msg("Failed to archive games")
			return upserted, err
		}
		upserted += result.UpsertedCount
	}

	log.Debug().
		Int("games", len(games)).
		Int64("upserted", upserted).
		Msg("Archived games")

	return upserted, nil
}

func (m *mongoDB) LatestGames(ctx context.Context, server string, limit int64) ([]model.GameDocument, error) {
	filter := bson.M{}
	if server != "" {
		filter["server"] = server
	}
	opts := options.Find().SetSort(bson.D{{Key: "endtime", Value: -1}}).SetLimit(limit)

	cursor, err := m.gamesCol.Find(ctx, filter, opts)
	if err != nil {
		log.Error().Err(err).Str("server", server).Msg("Failed to query latest games")
		return nil, err
	}
	defer cursor.Close(ctx)

	var games []model.GameDocument
	if err := cursor.All(ctx, &games); err != nil {
		log.Error().Err(err).Msg("Failed to decode latest games")
		return nil, err
	}
	return games, nil
}

func distributionPipeline(field string, since time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{
			Key: "$match",
			Value: bson.D{
				{Key: "scum", Value: false},
				{Key: "endtime", Value: bson.D{{Key: "$gte", Value: since.Unix()}}},
			},
		}},
		{{
			Key: "$group",
			Value: bson.D{
				{Key: "_id", Value: "$" + field},
				{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			},
		}},
	}
}

func (m *mongoDB) Distribution(ctx context.Context, field string, since time.Time) (map[string]int64, error) {
	if !distributionFields[field] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	cursor, err := m.gamesCol.Aggregate(ctx, distributionPipeline(field, since))
	if err != nil {
		log.Error().Err(err).Str("field", field).Msg("Failed to aggregate games")
		return nil, err
	}
	defer cursor.Close(ctx)

	counts := make(map[string]int64)
	for cursor.Next(ctx) {
		var result struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&result); err != nil {
			log.Error().Err(err).Str("field", field).Msg("Failed to decode distribution result")
			return nil, err
		}
		counts[result.ID] = result.Count
	}

	if err := cursor.Err(); err != nil {
		log.Error().Err(err).Msg("Error iterating distribution results")
		return nil, err
	}

	return counts, nil
}
