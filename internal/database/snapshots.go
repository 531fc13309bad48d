package database

import (
	"context"
	"errors"

	"croesus/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("not found")

// SnapshotDatabase stores the stat buckets behind daily and final reports
type SnapshotDatabase interface {
	SaveSnapshot(ctx context.Context, snap model.StatSnapshot) error
	LatestSnapshot(ctx context.Context, server, report string) (*model.StatSnapshot, error)
}

func (m *mongoDB) SaveSnapshot(ctx context.Context, snap model.StatSnapshot) error {
	if _, err := m.snapshotsCol.InsertOne(ctx, snap); err != nil {
		log.Error().Err(err).Str("report", snap.Report).Msg("Failed to save stat snapshot")
		return err
	}
	return nil
}

func (m *mongoDB) LatestSnapshot(ctx context.Context, server, report string) (*model.StatSnapshot, error) {
	filter := bson.M{"server": server, "report": report}
	opts := options.FindOne().SetSort(bson.D{{Key: "taken_at", Value: -1}})

	var snap model.StatSnapshot
	err := m.snapshotsCol.FindOne(ctx, filter, opts).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("server", server).Str("report", report).Msg("Failed to load stat snapshot")
		return nil, err
	}
	return &snap, nil
}
