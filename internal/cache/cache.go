// internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// actionQueueKey is the redis list consumed by the historian worker.
const actionQueueKey = "whoisit:game_actions"

// Rdb is the shared redis client. Nil when the process runs without a
// journal; publishing is then a no-op.
var Rdb *redis.Client

// Connect initializes the shared client and verifies connectivity.
func Connect(ctx context.Context, addr, password string) error {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("cache: ping: %w", err)
	}
	Rdb = client
	logrus.Info("cache: connected")
	return nil
}

// Close releases the shared client.
func Close() {
	if Rdb != nil {
		_ = Rdb.Close()
		Rdb = nil
	}
}

// GameActionRecord is one journal entry describing a room-ordered action.
type GameActionRecord struct {
	RoomCode    string                 `json:"roomCode"`
	ActionIndex int                    `json:"actionIndex"`
	ActorID     uuid.UUID              `json:"actorId"`
	ActionType  string                 `json:"actionType"`
	Payload     map[string]interface{} `json:"payload"`
	Timestamp   int64                  `json:"timestamp"`
}

// PublishGameAction pushes a record onto the journal queue.
func PublishGameAction(ctx context.Context, rec GameActionRecord) error {
	if Rdb == nil {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache: marshal action record: %w", err)
	}
	if err := Rdb.RPush(ctx, actionQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("cache: publish action: %w", err)
	}
	return nil
}

// Journal adapts the package-level publisher to the narrow journal
// interface consumed by the game core.
type Journal struct{}

// Record implements the game action journal.
func (Journal) Record(ctx context.Context, roomCode string, index int, actor uuid.UUID, action string, payload map[string]interface{}, ts int64) error {
	return PublishGameAction(ctx, GameActionRecord{
		RoomCode:    roomCode,
		ActionIndex: index,
		ActorID:     actor,
		ActionType:  action,
		Payload:     payload,
		Timestamp:   ts,
	})
}
