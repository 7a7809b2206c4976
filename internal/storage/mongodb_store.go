package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoTimeout = 5 * time.Second

type mongoDocument struct {
	Name      string    `bson:"name"`
	Data      []byte    `bson:"data"`
	Backup    []byte    `bson:"backup,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoDocumentStore keeps documents in a "documents" collection keyed by name.
type MongoDocumentStore struct {
	uri        string
	dbName     string
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoDocumentStore creates a store; call Initialize to connect.
func NewMongoDocumentStore(uri, dbName string) *MongoDocumentStore {
	if dbName == "" {
		dbName = "cardgen"
	}
	return &MongoDocumentStore{uri: uri, dbName: dbName}
}

// Initialize connects to MongoDB
func (m *MongoDocumentStore) Initialize(ctx context.Context) error {
	ctx, cancel := WithStorageTimeout(ctx, defaultMongoTimeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(m.uri)
	clientOptions.SetMaxPoolSize(10)
	clientOptions.SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m.client = client
	m.collection = client.Database(m.dbName).Collection("documents")

	_, err = m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoDocumentStore) find(ctx context.Context, name string) (*mongoDocument, error) {
	ctx, cancel := WithStorageTimeout(ctx, defaultMongoTimeout)
	defer cancel()

	var doc mongoDocument
	err := m.collection.FindOne(ctx, bson.M{"name": name}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &ErrNotFound{Key: name}
		}
		return nil, fmt.Errorf("failed to load document %s: %w", name, err)
	}
	return &doc, nil
}

func (m *MongoDocumentStore) Load(ctx context.Context, name string) ([]byte, error) {
	doc, err := m.find(ctx, name)
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func (m *MongoDocumentStore) LoadBackup(ctx context.Context, name string) ([]byte, error) {
	doc, err := m.find(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(doc.Backup) == 0 {
		return nil, &ErrNotFound{Key: name}
	}
	return doc.Backup, nil
}

func (m *MongoDocumentStore) Save(ctx context.Context, name string, data []byte) error {
	ctx, cancel := WithStorageTimeout(ctx, defaultMongoTimeout)
	defer cancel()

	doc := mongoDocument{Name: name, Data: data, Backup: data, UpdatedAt: time.Now().UTC()}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"name": name}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", name, err)
	}
	return nil
}

func (m *MongoDocumentStore) Delete(ctx context.Context, name string) error {
	ctx, cancel := WithStorageTimeout(ctx, defaultMongoTimeout)
	defer cancel()
	_, err := m.collection.DeleteOne(ctx, bson.M{"name": name})
	return err
}

func (m *MongoDocumentStore) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := WithStorageTimeout(ctx, defaultMongoTimeout)
	defer cancel()

	filter := bson.M{"name": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	opts := options.Find().SetProjection(bson.M{"name": 1}).SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cursor.Close(ctx)

	var out []string
	for cursor.Next(ctx) {
		var doc mongoDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.Name)
	}
	return out, cursor.Err()
}

func (m *MongoDocumentStore) Health(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("mongodb store not initialised")
	}
	ctx, cancel := WithStorageTimeout(ctx, defaultMongoTimeout)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *MongoDocumentStore) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultMongoTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
