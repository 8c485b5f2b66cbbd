package redisq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"stockpile/internal/service/inventory/domain"
)

// Transport is the Redis-list implementation of port.Transport. Queues are
// plain lists (BLPOP / RPUSH); the status side channel is pub/sub.
type Transport struct {
	client *redis.Client
}

func New(addr string) *Transport {
	return &Transport{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewWithClient wraps an existing client; used by tests and the gateway.
func NewWithClient(client *redis.Client) *Transport {
	return &Transport{client: client}
}

// Ping verifies connectivity at startup.
func (t *Transport) Ping(ctx context.Context) error {
	return errors.Wrap(t.client.Ping(ctx).Err(), "ping redis")
}

// Dequeue blocks up to timeout on the named list. An empty queue is not an
// error: ok=false tells the caller to re-poll.
func (t *Transport) Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool, error) {
	res, err := t.client.BLPop(ctx, timeout, queue).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "blpop %s", queue)
	}
	// BLPOP returns [key, value].
	if len(res) < 2 {
		return nil, false, errors.Errorf("blpop %s: short reply", queue)
	}
	return []byte(res[1]), true, nil
}

// Enqueue pushes the payload to the tail of the named list.
func (t *Transport) Enqueue(ctx context.Context, queue string, payload []byte) error {
	return errors.Wrapf(t.client.RPush(ctx, queue, payload).Err(), "rpush %s", queue)
}

// PublishStatus broadcasts a status echo; subscribers are optional, so a
// zero-receiver publish is still a success.
func (t *Transport) PublishStatus(ctx context.Context, channel string, echo domain.StatusEcho) error {
	raw, err := json.Marshal(echo)
	if err != nil {
		return errors.Wrap(err, "encode status echo")
	}
	return errors.Wrapf(t.client.Publish(ctx, channel, raw).Err(), "publish %s", channel)
}

func (t *Transport) Close() error {
	return t.client.Close()
}
