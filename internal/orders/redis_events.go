package orders

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPipelineClient is the minimal client surface used by RedisEventLog.
type RedisPipelineClient interface {
	Pipeline() redis.Pipeliner
}

// RedisEventLog keeps the latest status per order in a hash and appends every
// change to a stream.
type RedisEventLog struct {
	client    RedisPipelineClient
	stream    string
	keyPrefix string
	ttl       time.Duration
	maxLen    int64
}

func NewRedisEventLog(client RedisPipelineClient, stream string, ttl time.Duration, maxLen int64) *RedisEventLog {
	if stream == "" {
		stream = "payment_events"
	}
	return &RedisEventLog{
		client:    client,
		stream:    stream,
		keyPrefix: "order_payment:",
		ttl:       ttl,
		maxLen:    maxLen,
	}
}

func (r *RedisEventLog) Append(ctx context.Context, rec PaymentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := r.keyPrefix + rec.OrderID
	values := map[string]any{
		"order_id":   rec.OrderID,
		"payment_id": rec.PaymentID,
		"status":     string(rec.Status),
		"amount":     rec.Amount,
		"updated_at": rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, values)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	args := &redis.XAddArgs{Stream: r.stream, Values: values}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	pipe.XAdd(ctx, args)

	_, err := pipe.Exec(ctx)
	return err
}
