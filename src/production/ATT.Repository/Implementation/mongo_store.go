package implementation

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	interfaces "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type kvDocument struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type MongoIdentityStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoIdentityStore connects with a timeout and pings the primary
func NewMongoIdentityStore(uri, database, collection string, timeout time.Duration) (*MongoIdentityStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	if clientOptions.TLSConfig == nil && strings.HasPrefix(uri, "mongodb+srv://") {
		// Atlas SRV connection strings expect TLS
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	clientOptions.SetServerSelectionTimeout(timeout)
	clientOptions.SetConnectTimeout(timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}

	return &MongoIdentityStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (s *MongoIdentityStore) Get(ctx context.Context, key string) (string, error) {
	var doc kvDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", interfaces.ErrNotFound
		}
		return "", err
	}
	return doc.Value, nil
}

func (s *MongoIdentityStore) Set(ctx context.Context, key, value string) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"value": value, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoIdentityStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoIdentityStore) Close() error {
	return s.client.Disconnect(context.Background())
}
