package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"podcast-transcriber/pkg/domain"
)

// MongoStore persists transcript records in a MongoDB collection keyed by
// episode identity.
type MongoStore struct {
	mongoClient *mongo.Client
	collection  *mongo.Collection
}

// NewMongoStore creates a new Mongo-backed episode store.
func NewMongoStore(connectionString, databaseName, collectionName string) *MongoStore {
	clientOptions := options.Client().ApplyURI(connectionString)
	mongoClient, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		// Return store with nil - error will be caught during Connect()
		return &MongoStore{}
	}

	return &MongoStore{
		mongoClient: mongoClient,
		collection:  mongoClient.Database(databaseName).Collection(collectionName),
	}
}

// Connect establishes connection to MongoDB.
func (s *MongoStore) Connect(ctx context.Context) error {
	if s.mongoClient == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	return s.mongoClient.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.mongoClient == nil {
		return nil
	}
	return s.mongoClient.Disconnect(ctx)
}

// SaveTranscript upserts a transcript record by episode identity.
func (s *MongoStore) SaveTranscript(ctx context.Context, rec *domain.TranscriptRecord) error {
	if s.collection == nil {
		return fmt.Errorf("collection not initialized")
	}

	filter := bson.M{"identity": rec.Identity}
	update := bson.M{"$set": rec}
	opts := options.Update().SetUpsert(true)

	_, err := s.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// GetTranscript fetches the record for the identity, or nil when absent.
func (s *MongoStore) GetTranscript(ctx context.Context, identity string) (*domain.TranscriptRecord, error) {
	if s.collection == nil {
		return nil, fmt.Errorf("collection not initialized")
	}

	var rec domain.TranscriptRecord
	err := s.collection.FindOne(ctx, bson.M{"identity": identity}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transcript: %w", err)
	}
	return &rec, nil
}

// HasTranscript reports whether a record exists for the identity.
func (s *MongoStore) HasTranscript(ctx context.Context, identity string) (bool, error) {
	if s.collection == nil {
		return false, fmt.Errorf("collection not initialized")
	}

	count, err := s.collection.CountDocuments(ctx, bson.M{"identity": identity}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count transcripts: %w", err)
	}
	return count > 0, nil
}

// Clear removes all stored transcript records.
func (s *MongoStore) Clear(ctx context.Context) error {
	if s.collection == nil {
		return fmt.Errorf("collection not initialized")
	}
	_, err := s.collection.DeleteMany(ctx, bson.M{})
	return err
}
