package publisher

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// compile-time interface check
var _ message.Publisher = (*RedisStream)(nil)

// RedisStream publishes messages onto Redis streams, one stream per topic.
// Each entry carries the message uuid, its payload and every metadata key
// prefixed with "meta:".
type RedisStream struct {
	client redis.UniversalClient
	maxLen int64
}

// NewRedisStream creates a RedisStream. When maxLen is positive streams are
// trimmed to approximately that many entries.
func NewRedisStream(client redis.UniversalClient, maxLen int64) *RedisStream {
	return &RedisStream{client: client, maxLen: maxLen}
}

// DialRedis connects to the Redis server at addr ("host:port" or a
// redis:// URL) and checks it responds.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, errors.Wrap(err, "publisher: parse redis url")
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "publisher: redis ping")
	}
	return client, nil
}

// Publish implements message.Publisher.
func (r *RedisStream) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		ctx := msg.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		values := map[string]interface{}{
			"uuid":    msg.UUID,
			"payload": string(msg.Payload),
		}
		for k, v := range msg.Metadata {
			values["meta:"+k] = v
		}

		args := &redis.XAddArgs{
			Stream: topic,
			Values: values,
		}
		if r.maxLen > 0 {
			args.MaxLen = r.maxLen
			args.Approx = true
		}

		if err := r.client.XAdd(ctx, args).Err(); err != nil {
			return errors.Wrapf(err, "publisher: xadd %s", topic)
		}
	}
	return nil
}

// Close implements message.Publisher.
func (r *RedisStream) Close() error {
	return r.client.Close()
}
