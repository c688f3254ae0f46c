package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// CollectionsCollection is the Mongo collection holding one document per
// core collection.
const CollectionsCollection = "collections"

type collectionDocument struct {
	Name      string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps each collection as a single document keyed by name.
type MongoStore struct {
	col *mongo.Collection
}

// NewMongoStore wraps col, usually db.Collection(CollectionsCollection).
func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col}
}

func (s *MongoStore) Load(ctx context.Context, name string) ([]byte, int64, error) {
	var doc collectionDocument
	err := s.col.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, 0, ErrCollectionNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return []byte(doc.Payload), doc.Version, nil
}

func (s *MongoStore) Save(ctx context.Context, name string, payload []byte, expected int64) (int64, error) {
	doc := collectionDocument{
		Name:      name,
		Payload:   string(payload),
		Version:   expected + 1,
		UpdatedAt: time.Now().UTC(),
	}

	if expected == 0 {
		_, err := s.col.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return 0, ErrVersionConflict
		}
		if err != nil {
			return 0, err
		}
		return 1, nil
	}

	res, err := s.col.ReplaceOne(ctx, bson.M{"_id": name, "version": expected}, doc)
	if err != nil {
		return 0, err
	}
	if res.MatchedCount == 0 {
		return 0, ErrVersionConflict
	}
	return expected + 1, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.col.Database().Client().Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.col.Database().Client().Disconnect(ctx)
}
