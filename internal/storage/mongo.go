package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/uaru-shit/joingate/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	OpenPollsCollection   = "openPolls"
	ClosedPollsCollection = "closedPolls"

	expirationIndexName = "expirationTimeIndex"
	pollIDIndexName     = "pollIdUnique"
)

// implements PollStore on two MongoDB collections
type MongoStore struct {
	client *mongo.Client
	open   *mongo.Collection
	closed *mongo.Collection
}

func Connect(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)

		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return NewMongoStore(client, dbName), nil
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)

	return &MongoStore{
		client: client,
		open:   db.Collection(OpenPollsCollection),
		closed: db.Collection(ClosedPollsCollection),
	}
}

func byPollID(pollID string) bson.D {
	return bson.D{{Key: "pollId", Value: pollID}}
}

func byPollIDs(pollIDs []string) bson.D {
	return bson.D{{Key: "pollId", Value: bson.D{{Key: "$in", Value: pollIDs}}}}
}

func (s *MongoStore) InsertOpen(ctx context.Context, poll *domain.PollRecord) error {
	if _, err := s.open.InsertOne(ctx, poll); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicatePoll, poll.PollID)
		}

		return fmt.Errorf("failed to insert open poll: %w", err)
	}

	return nil
}

func (s *MongoStore) InsertClosed(ctx context.Context, poll *domain.PollRecord) error {
	if poll.Results == nil {
		return fmt.Errorf("closed poll %s has no results", poll.PollID)
	}

	if _, err := s.closed.InsertOne(ctx, poll); err != nil {
		return fmt.Errorf("failed to insert closed poll: %w", err)
	}

	return nil
}

func (s *MongoStore) ListOpen(ctx context.Context) ([]*domain.PollRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "expirationTime", Value: 1}})

	return s.findOpen(ctx, bson.D{}, opts)
}

func (s *MongoStore) FindOpen(ctx context.Context, pollID string) (*domain.PollRecord, error) {
	var poll domain.PollRecord

	err := s.open.FindOne(ctx, byPollID(pollID)).Decode(&poll)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPollNotFound, pollID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find open poll: %w", err)
	}

	return &poll, nil
}

func (s *MongoStore) ClosedPollIDs(ctx context.Context) ([]string, error) {
	values, err := s.closed.Distinct(ctx, "pollId", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list closed poll ids: %w", err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func (s *MongoStore) FindOpenByPollIDs(ctx context.Context, pollIDs []string) ([]*domain.PollRecord, error) {
	if len(pollIDs) == 0 {
		return nil, nil
	}

	return s.findOpen(ctx, byPollIDs(pollIDs))
}

func (s *MongoStore) DeleteOpenByPollIDs(ctx context.Context, pollIDs []string) (int64, error) {
	if len(pollIDs) == 0 {
		return 0, nil
	}

	res, err := s.open.DeleteMany(ctx, byPollIDs(pollIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete open polls: %w", err)
	}

	return res.DeletedCount, nil
}

func (s *MongoStore) MarkOpenStatus(ctx context.Context, pollID string, status domain.PollStatus, attempts int, results *domain.PollResults) error {
	fields := bson.D{
		{Key: "status", Value: status},
		{Key: "expireAttempts", Value: attempts},
	}

	if results != nil {
		fields = append(fields, bson.E{Key: "results", Value: results})
	}

	res, err := s.open.UpdateOne(ctx, byPollID(pollID), bson.D{{Key: "$set", Value: fields}})
	if err != nil {
		return fmt.Errorf("failed to update open poll status: %w", err)
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", domain.ErrPollNotFound, pollID)
	}

	return nil
}

// openPollIndexes are the indexes of open polls. The TTL index only reaps archived records:
// open, retrying and failed ones have to outlive expirationTime for the retry backlog.
func openPollIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "expirationTime", Value: 1}},
			Options: options.Index().
				SetName(expirationIndexName).
				SetExpireAfterSeconds(0).
				SetPartialFilterExpression(bson.D{{Key: "status", Value: domain.PollStatusClosed}}),
		},
		{
			Keys:    bson.D{{Key: "pollId", Value: 1}},
			Options: options.Index().SetName(pollIDIndexName).SetUnique(true),
		},
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.open.Indexes().CreateMany(ctx, openPollIndexes()); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) findOpen(ctx context.Context, filter bson.D, opts ...*options.FindOptions) ([]*domain.PollRecord, error) {
	cur, err := s.open.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open polls: %w", err)
	}

	var polls []*domain.PollRecord
	if err := cur.All(ctx, &polls); err != nil {
		return nil, fmt.Errorf("failed to decode open polls: %w", err)
	}

	return polls, nil
}
