// README: Redis GEO mirror of the presence registry for external dashboards.
package presence

import (
	"context"

	"github.com/redis/go-redis/v9"

	"colibri/internal/types"
)

const (
	geoKey     = "presence:drivers:geo"
	hashPrefix = "presence:drivers:"
)

type RedisMirror struct {
	rdb *redis.Client
}

func NewRedisMirror(rdb *redis.Client) *RedisMirror {
	return &RedisMirror{rdb: rdb}
}

func (m *RedisMirror) Upsert(ctx context.Context, p DriverPresence) error {
	pipe := m.rdb.TxPipeline()
	if p.Position != nil {
		pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
			Name:      string(p.ConnID),
			Longitude: p.Position.Lng,
			Latitude:  p.Position.Lat,
		})
	} else {
		pipe.ZRem(ctx, geoKey, string(p.ConnID))
	}
	pipe.HSet(ctx, hashPrefix+string(p.ConnID), map[string]any{
		"driver":   string(p.DriverID),
		"name":     p.Name,
		"capacity": p.Capacity,
		"gender":   string(p.Gender),
		"tours":    p.AcceptsTours,
	})
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) Delete(ctx context.Context, connID types.ID) error {
	pipe := m.rdb.TxPipeline()
	pipe.ZRem(ctx, geoKey, string(connID))
	pipe.Del(ctx, hashPrefix+string(connID))
	_, err := pipe.Exec(ctx)
	return err
}
