// README: Commission fact stream on Redis (XADD), consumed by accounting.
package settlement

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// maxStreamLen caps the stream; consumers are expected to keep up.
const maxStreamLen = 100000

type RedisLedger struct {
	rdb    *redis.Client
	stream string
}

func NewRedisLedger(rdb *redis.Client, stream string) *RedisLedger {
	return &RedisLedger{rdb: rdb, stream: stream}
}

func (l *RedisLedger) Publish(ctx context.Context, s Settlement) error {
	return l.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{
			"trip":       string(s.TripID),
			"driver":     string(s.Driver),
			"passenger":  string(s.Passenger),
			"fare":       s.Fare.Amount.StringFixed(2),
			"commission": s.Commission.Amount.StringFixed(2),
			"currency":   s.Commission.Currency,
			"settled":    s.Settled,
			"at":         s.SettledAt.UTC().UnixMilli(),
		},
	}).Err()
}
