package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"treadmill/pkg/errors"
)

// priorityBand shifts the priority above any realistic sequence number,
// so arrival order only breaks ties within one priority.
const priorityBand = int64(1) << 40

// RedisBrokerConfig holds the configuration for the Redis broker.
type RedisBrokerConfig struct {
	Addr     string
	Password string
	DB       int

	// MaxRetries bounds redeliveries per message before Nack gives up.
	MaxRetries int
}

// RedisBroker implements Broker on Redis sorted sets.
type RedisBroker struct {
	client     *redis.Client
	maxRetries int
}

// NewRedisBroker connects to Redis and verifies the connection.
func NewRedisBroker(cfg RedisBrokerConfig) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, errors.QueueError).WithMessage("ping redis broker")
	}

	return NewRedisBrokerWithClient(client, cfg.MaxRetries), nil
}

// NewRedisBrokerWithClient wraps an existing redis.Client.
func NewRedisBrokerWithClient(client *redis.Client, maxRetries int) *RedisBroker {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RedisBroker{client: client, maxRetries: maxRetries}
}

func (b *RedisBroker) Publish(ctx context.Context, queue string, priority int, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, errors.QueueError, "marshal payload for %s", queue)
	}
	return b.add(ctx, queue, priority, &Message{
		MessageID: uuid.NewString(),
		Payload:   body,
	})
}

func (b *RedisBroker) Pop(ctx context.Context, queue string) (*Message, error) {
	popped, err := b.client.ZPopMin(ctx, queue, 1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, errors.QueueError, "pop from %s", queue)
	}
	if len(popped) == 0 {
		return nil, nil
	}

	member, _ := popped[0].Member.(string)
	var msg Message
	if err := json.Unmarshal([]byte(member), &msg); err != nil {
		return nil, errors.Wrapf(err, errors.QueueError, "decode envelope from %s", queue)
	}
	return &msg, nil
}

func (b *RedisBroker) Nack(ctx context.Context, queue string, priority int, msg *Message) (bool, error) {
	if msg.RetryCount >= b.maxRetries {
		return false, nil
	}
	requeue := *msg
	requeue.RetryCount++
	if err := b.add(ctx, queue, priority, &requeue); err != nil {
		return false, err
	}
	return true, nil
}

func (b *RedisBroker) Depth(ctx context.Context, queue string) (int64, error) {
	n, err := b.client.ZCard(ctx, queue).Result()
	if err != nil {
		return 0, errors.Wrapf(err, errors.QueueError, "depth of %s", queue)
	}
	return n, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// add enqueues one envelope. The member carries the message ID, so two
// requests with identical payloads never collapse into one sorted set
// entry.
func (b *RedisBroker) add(ctx context.Context, queue string, priority int, msg *Message) error {
	member, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, errors.QueueError, "marshal envelope for %s", queue)
	}

	seq, err := b.client.Incr(ctx, queue+":seq").Result()
	if err != nil {
		return errors.Wrapf(err, errors.QueueError, "next sequence for %s", queue)
	}

	score := float64(int64(priority)*priorityBand + seq)
	if err := b.client.ZAdd(ctx, queue, redis.Z{Score: score, Member: string(member)}).Err(); err != nil {
		return errors.Wrapf(err, errors.QueueError, "push to %s", queue)
	}
	return nil
}

var _ Broker = (*RedisBroker)(nil)
