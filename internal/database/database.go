package database

import (
	"context"
	"time"

	"croesus/internal/config"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Database interface {
	Health() error
	Close(ctx context.Context) error
	GameDatabase
	SnapshotDatabase
}

type mongoDB struct {
	client *mongo.Client
	db     *mongo.Database

	gamesCol     *mongo.Collection
	snapshotsCol *mongo.Collection
}

func New(cfg config.MongoDBConfig) (Database, error) {
	clientOptions := options.Client().ApplyURI(cfg.URI)
	if cfg.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	db := client.Database(cfg.DB)

	gamesCol := db.Collection("games")
	gameIndexModels := []mongo.IndexModel{
		{
			// one document per finished game, so replays are idempotent
			Keys: bson.D{
				{Key: "server", Value: 1},
				{Key: "name", Value: 1},
				{Key: "starttime", Value: 1},
				{Key: "endtime", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "endtime", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}},
			Options: options.Index(),
		},
	}

	snapshotsCol := db.Collection("stat_snapshots")
	snapshotIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "server", Value: 1}, {Key: "taken_at", Value: -1}},
			Options: options.Index(),
		},
	}

	if _, err := gamesCol.Indexes().CreateMany(ctx, gameIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "Games").Msg("Error creating indexes")
	}

	if _, err := snapshotsCol.Indexes().CreateMany(ctx, snapshotIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "StatSnapshots").Msg("Error creating indexes")
	}

	log.Info().Str("db", cfg.DB).Msg("MongoDB connection established")

	return &mongoDB{
		client:       client,
		db:           db,
		gamesCol:     gamesCol,
		snapshotsCol: snapshotsCol,
	}, nil
}

// Health implements Database interface
func (m *mongoDB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	err := m.client.Ping(ctx, nil)

	if err != nil {
		log.Error().Msgf("Database health error: %v", err)
		return err
	}

	return nil
}

func (m *mongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
