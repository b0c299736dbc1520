package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
)

const (
	kvCollection   = "kvstore"
	defaultMongoDB = "whatsapp-connector"
)

// kvDocument is one entry of the key-value collection shared with the
// configuration flow.
type kvDocument struct {
	Key   string                  `bson:"key"`
	Value *models.ChannelSettings `bson:"value"`
}

// MongoStore keeps settings in the kvstore collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to uri and pings the server. The database is the one
// named in the URI.
func NewMongoStore(ctx context.Context, uri string) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb URI cannot be empty")
	}

	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid mongodb URI: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = defaultMongoDB
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	coll := client.Database(dbName).Collection(kvCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Could not ensure kvstore key index")
	}

	log.Info().Str("database", dbName).Str("collection", kvCollection).Msg("MongoDB connection established successfully.")
	return &MongoStore{client: client, coll: coll}, nil
}

func (s *MongoStore) Get(ctx context.Context, projectID string) (*models.ChannelSettings, error) {
	var doc kvDocument
	err := s.coll.FindOne(ctx, bson.M{"key": models.SettingsKey(projectID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) || (err == nil && doc.Value == nil) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings of project %s: %w", projectID, err)
	}
	return doc.Value, nil
}

func (s *MongoStore) Set(ctx context.Context, settings *models.ChannelSettings) error {
	key := models.SettingsKey(settings.ProjectID)
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"value": settings}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to write settings of project %s: %w", settings.ProjectID, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, projectID string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"key": models.SettingsKey(projectID)}); err != nil {
		return fmt.Errorf("failed to delete settings of project %s: %w", projectID, err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
