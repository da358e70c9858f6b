// README: Dispatch log backed by Redis sets; records which connections were offered each request.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"colibri/internal/types"
)

const (
	notifiedKeyPrefix = "matching:request:%s:notified"
	dispatchedKeyFmt  = "matching:request:%s:dispatched_at"
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// RecordDispatch replaces the notified set of a passenger's latest request.
func (s *Store) RecordDispatch(ctx context.Context, passenger types.ID, connIDs []types.ID, at time.Time) error {
	pipe := s.redis.TxPipeline()
	key := notifiedKey(passenger)
	pipe.Del(ctx, key)
	if len(connIDs) > 0 {
		members := make([]interface{}, len(connIDs))
		for i, c := range connIDs {
			members[i] = string(c)
		}
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, dispatchTTL)
	}
	pipe.Set(ctx, dispatchedAtKey(passenger), at.UTC().Format(time.RFC3339), dispatchTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Notified returns the connections offered the passenger's latest request.
func (s *Store) Notified(ctx context.Context, passenger types.ID) ([]types.ID, error) {
	members, err := s.redis.SMembers(ctx, notifiedKey(passenger)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	return ids, nil
}

// GetDispatchedAt returns when the passenger's latest request was dispatched, and whether one was.
func (s *Store) GetDispatchedAt(ctx context.Context, passenger types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, dispatchedAtKey(passenger)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func notifiedKey(passenger types.ID) string {
	return fmt.Sprintf(notifiedKeyPrefix, string(passenger))
}

func dispatchedAtKey(passenger types.ID) string {
	return fmt.Sprintf(dispatchedKeyFmt, string(passenger))
}
