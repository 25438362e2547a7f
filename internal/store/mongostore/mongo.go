// Package mongostore implements store.Store on MongoDB.
//
// Collections: user_states, users, match_pool and counters. Each record is
// keyed by _id. When the deployment is sharded on a field other than _id, the
// configured shard key field is added to every filter and upserted document,
// holding the same value as _id, so that the router can target one shard.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/m3rciful/interestbot/core/logger"
	"github.com/m3rciful/interestbot/internal/apperr"
	"github.com/m3rciful/interestbot/internal/store"
)

const (
	collStates   = "user_states"
	collUsers    = "users"
	collPools    = "match_pool"
	collCounters = "counters"

	defaultConnectTimeout = 5 * time.Second
)

// Config holds MongoDB connection settings.
type Config struct {
	URI      string `yaml:"uri" envconfig:"MONGO_URI"`
	Database string `yaml:"database" envconfig:"MONGO_DATABASE"`
	// ShardKeyField is the partitioning field; "_id" or empty disables augmentation.
	ShardKeyField         string `yaml:"shard_key_field" envconfig:"MONGO_SHARD_KEY_FIELD"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds" envconfig:"MONGO_CONNECT_TIMEOUT_SECONDS"`
	MaxPoolSize           uint64 `yaml:"max_pool_size" envconfig:"MONGO_MAX_POOL_SIZE"`
}

type stateDoc struct {
	State string `bson:"state"`
}

type profileDoc struct {
	UserID   int64  `bson:"_id"`
	Interest string `bson:"interest"`
	Username string `bson:"username"`
	Status   string `bson:"status"`
}

type poolDoc struct {
	Interest string  `bson:"_id"`
	Users    []int64 `bson:"users"`
}

type counterDoc struct {
	Count int64 `bson:"count"`
}

// Store is the MongoDB backend.
type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	shardKey string
}

var _ store.Store = (*Store)(nil)

// Connect opens the client and verifies connectivity within the configured
// timeout. A failure here is fatal for startup.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo: uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo: database is required")
	}
	timeout := defaultConnectTimeout
	if cfg.ConnectTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	start := time.Now()
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		logger.Error(ctx, "store", "db.ping",
			slog.String("status", "fail"),
			slog.String("driver", store.DriverMongo),
			slog.String("db", cfg.Database),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := &Store{
		client:   client,
		db:       client.Database(cfg.Database),
		shardKey: cfg.ShardKeyField,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info(ctx, "store", "db.connect",
		slog.String("status", "ok"),
		slog.String("driver", store.DriverMongo),
		slog.String("db", cfg.Database),
		slog.String("shard_key", cfg.ShardKeyField),
		slog.Duration("duration", time.Since(start)),
	)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collPools: {
			{Keys: bson.D{{Key: "users", Value: 1}}},
		},
		collUsers: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: create indexes for %s: %w", name, err)
		}
	}
	return nil
}

// byID builds the primary-key filter, augmented with the shard key when the
// collection is sharded on a different field.
func (s *Store) byID(id any) bson.D {
	filter := bson.D{{Key: "_id", Value: id}}
	if s.shardKey != "" && s.shardKey != "_id" {
		filter = append(filter, bson.E{Key: s.shardKey, Value: id})
	}
	return filter
}

// GetState returns the stored state for a user.
func (s *Store) GetState(ctx context.Context, userID int64) (store.State, bool, error) {
	var doc stateDoc
	err := s.db.Collection(collStates).FindOne(ctx, s.byID(userID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.StateIdle, false, nil
	}
	if err != nil {
		return store.StateIdle, false, apperr.Transient("mongo.get_state", err)
	}
	return store.State(doc.State), true, nil
}

// SetState upserts the state record of a user.
func (s *Store) SetState(ctx context.Context, userID int64, st store.State) error {
	_, err := s.db.Collection(collStates).UpdateOne(ctx,
		s.byID(userID),
		bson.D{{Key: "$set", Value: bson.D{{Key: "state", Value: string(st)}}}},
		options.UpdateOne().SetUpsert(true),
	)
	return apperr.Transient("mongo.set_state", err)
}

// ClearState deletes the state record of a user.
func (s *Store) ClearState(ctx context.Context, userID int64) error {
	_, err := s.db.Collection(collStates).DeleteOne(ctx, s.byID(userID))
	return apperr.Transient("mongo.clear_state", err)
}

// UpsertProfile creates or overwrites a profile.
func (s *Store) UpsertProfile(ctx context.Context, p store.Profile) error {
	set := bson.D{
		{Key: "interest", Value: p.Interest},
		{Key: "username", Value: p.Handle},
		{Key: "status", Value: string(p.Status)},
	}
	_, err := s.db.Collection(collUsers).UpdateOne(ctx,
		s.byID(p.UserID),
		bson.D{{Key: "$set", Value: set}},
		options.UpdateOne().SetUpsert(true),
	)
	return apperr.Transient("mongo.upsert_profile", err)
}

// GetProfiles returns the known profiles in request order.
func (s *Store) GetProfiles(ctx context.Context, userIDs []int64) ([]store.Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	cur, err := s.db.Collection(collUsers).Find(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: userIDs}}}},
	)
	if err != nil {
		return nil, apperr.Transient("mongo.get_profiles", err)
	}
	var docs []profileDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Transient("mongo.get_profiles", err)
	}
	found := make(map[int64]profileDoc, len(docs))
	for _, d := range docs {
		found[d.UserID] = d
	}
	out := make([]store.Profile, 0, len(docs))
	for _, id := range userIDs {
		d, ok := found[id]
		if !ok {
			continue
		}
		out = append(out, store.Profile{
			UserID:   d.UserID,
			Interest: d.Interest,
			Handle:   d.Username,
			Status:   store.Status(d.Status),
		})
	}
	return out, nil
}

// MarkMatched flips the status of the given profiles to matched.
func (s *Store) MarkMatched(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := s.db.Collection(collUsers).UpdateMany(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: userIDs}}}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: string(store.StatusMatched)}}}},
	)
	return apperr.Transient("mongo.mark_matched", err)
}

// AddToPool appends userID to the pool with $addToSet, which keeps
// insertion order and uniqueness.
func (s *Store) AddToPool(ctx context.Context, interest string, userID int64) error {
	_, err := s.db.Collection(collPools).UpdateOne(ctx,
		s.byID(interest),
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: "users", Value: userID}}}},
		options.UpdateOne().SetUpsert(true),
	)
	return apperr.Transient("mongo.add_to_pool", err)
}

// RemoveFromPool pulls userIDs in a single document update that only
// matches while all of them are still members.
func (s *Store) RemoveFromPool(ctx context.Context, interest string, userIDs []int64) (bool, error) {
	if len(userIDs) == 0 {
		return false, nil
	}
	filter := append(s.byID(interest),
		bson.E{Key: "users", Value: bson.D{{Key: "$all", Value: userIDs}}},
	)
	res, err := s.db.Collection(collPools).UpdateOne(ctx,
		filter,
		bson.D{{Key: "$pull", Value: bson.D{{Key: "users", Value: bson.D{{Key: "$in", Value: userIDs}}}}}},
	)
	if err != nil {
		return false, apperr.Transient("mongo.remove_from_pool", err)
	}
	return res.ModifiedCount == 1, nil
}

// FindMatchablePools returns pools whose second member exists.
func (s *Store) FindMatchablePools(ctx context.Context) ([]store.Pool, error) {
	cur, err := s.db.Collection(collPools).Find(ctx,
		bson.D{{Key: "users.1", Value: bson.D{{Key: "$exists", Value: true}}}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, apperr.Transient("mongo.find_pools", err)
	}
	var docs []poolDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Transient("mongo.find_pools", err)
	}
	out := make([]store.Pool, 0, len(docs))
	for _, d := range docs {
		out = append(out, store.Pool{Interest: d.Interest, Members: d.Users})
	}
	return out, nil
}

// IncrementCounter increments key with $inc and returns the updated value.
func (s *Store) IncrementCounter(ctx context.Context, key string) (int64, error) {
	var doc counterDoc
	err := s.db.Collection(collCounters).FindOneAndUpdate(ctx,
		s.byID(key),
		bson.D{{Key: "$inc", Value: bson.D{{Key: "count", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, apperr.Transient("mongo.increment_counter", err)
	}
	return doc.Count, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return apperr.Transient("mongo.ping", s.client.Ping(ctx, nil))
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
