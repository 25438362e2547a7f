package mongostore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestByIDAddsShardKey(t *testing.T) {
	plain := &Store{}
	assert.Equal(t, bson.D{{Key: "_id", Value: int64(5)}}, plain.byID(int64(5)))

	idShard := &Store{shardKey: "_id"}
	assert.Equal(t, bson.D{{Key: "_id", Value: "chess"}}, idShard.byID("chess"))

	sharded := &Store{shardKey: "user_id"}
	assert.Equal(t, bson.D{
		{Key: "_id", Value: int64(5)},
		{Key: "user_id", Value: int64(5)},
	}, sharded.byID(int64(5)))
}

func TestConnectValidatesConfig(t *testing.T) {
	_, err := Connect(context.Background(), Config{Database: "x"})
	assert.Error(t, err)
	_, err = Connect(context.Background(), Config{URI: "mongodb://localhost:27017"})
	assert.Error(t, err)
}
