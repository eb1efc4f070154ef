package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ragchat/internal/models"
)

// UploadStore records the lifecycle of uploaded documents.
type UploadStore interface {
	Create(ctx context.Context, upload *models.DocumentUpload) error
	MarkProcessed(ctx context.Context, documentID string, passageCount int) error
	MarkFailed(ctx context.Context, documentID string, reason string) error
	GetByUser(ctx context.Context, userID string) ([]*models.DocumentUpload, error)
}

// MongoUploadStore is the MongoDB-backed implementation of UploadStore.
type MongoUploadStore struct {
	collection *mongo.Collection
}

// NewMongoUploadStore creates an UploadStore on the given collection.
func NewMongoUploadStore(db *mongo.Database, collectionName string) *MongoUploadStore {
	return &MongoUploadStore{collection: db.Collection(collectionName)}
}

// Create inserts a new upload record.
func (s *MongoUploadStore) Create(ctx context.Context, upload *models.DocumentUpload) error {
	_, err := s.collection.InsertOne(ctx, upload)
	return err
}

// MarkProcessed transitions a record to the processed state.
func (s *MongoUploadStore) MarkProcessed(ctx context.Context, documentID string, passageCount int) error {
	now := time.Now().UTC()
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": documentID}, bson.M{
		"$set": bson.M{
			"status":        models.UploadStatusProcessed,
			"passage_count": passageCount,
			"processed_at":  now,
		},
	})
	return err
}

// MarkFailed transitions a record to the failed state with a reason.
func (s *MongoUploadStore) MarkFailed(ctx context.Context, documentID string, reason string) error {
	now := time.Now().UTC()
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": documentID}, bson.M{
		"$set": bson.M{
			"status":       models.UploadStatusFailed,
			"error":        reason,
			"processed_at": now,
		},
	})
	return err
}

// GetByUser returns a user's uploads, most recent first.
func (s *MongoUploadStore) GetByUser(ctx context.Context, userID string) ([]*models.DocumentUpload, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var uploads []*models.DocumentUpload
	if err = cursor.All(ctx, &uploads); err != nil {
		return nil, err
	}
	return uploads, nil
}

var _ UploadStore = (*MongoUploadStore)(nil)
