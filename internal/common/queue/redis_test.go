package queue_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"treadmill/internal/common/queue"
)

type testPayload struct {
	ID int64 `json:"id"`
}

func newTestBroker(t *testing.T, maxRetries int) *queue.RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := queue.NewRedisBrokerWithClient(client, maxRetries)
	t.Cleanup(func() { b.Close() })
	return b
}

func popID(t *testing.T, b *queue.RedisBroker, q string) int64 {
	t.Helper()
	msg, err := b.Pop(context.Background(), q)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if msg == nil {
		t.Fatal("Pop returned nil, want message")
	}
	var p testPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return p.ID
}

func TestPopEmptyQueueReturnsNil(t *testing.T) {
	t.Parallel()
	b := newTestBroker(t, 3)

	msg, err := b.Pop(context.Background(), "q")
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if msg != nil {
		t.Fatalf("Pop = %+v, want nil", msg)
	}
}

func TestFIFOWithinOnePriority(t *testing.T) {
	t.Parallel()
	b := newTestBroker(t, 3)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		if err := b.Publish(ctx, "q", queue.PriorityNormal, testPayload{ID: id}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	for want := int64(1); want <= 3; want++ {
		if got := popID(t, b, "q"); got != want {
			t.Errorf("pop order: got %d, want %d", got, want)
		}
	}
}

func TestNormalPreemptsRejudge(t *testing.T) {
	t.Parallel()
	b := newTestBroker(t, 3)
	ctx := context.Background()

	if err := b.Publish(ctx, "q", queue.PriorityRejudge, testPayload{ID: 100}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish(ctx, "q", queue.PriorityRejudge, testPayload{ID: 101}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// Arrives last but must pop first.
	if err := b.Publish(ctx, "q", queue.PriorityNormal, testPayload{ID: 1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, want := range []int64{1, 100, 101} {
		if got := popID(t, b, "q"); got != want {
			t.Errorf("pop order: got %d, want %d", got, want)
		}
	}
}

func TestNackRequeuesUntilBudgetExhausted(t *testing.T) {
	t.Parallel()
	b := newTestBroker(t, 2)
	ctx := context.Background()

	if err := b.Publish(ctx, "q", queue.PriorityNormal, testPayload{ID: 7}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		msg, err := b.Pop(ctx, "q")
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if msg.RetryCount != attempt {
			t.Errorf("retry_count = %d, want %d", msg.RetryCount, attempt)
		}
		requeued, err := b.Nack(ctx, "q", queue.PriorityNormal, msg)
		if err != nil {
			t.Fatalf("Nack: %v", err)
		}
		if !requeued {
			t.Fatalf("Nack attempt %d should requeue", attempt)
		}
	}

	msg, err := b.Pop(ctx, "q")
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if msg.RetryCount != 2 {
		t.Errorf("retry_count = %d, want 2", msg.RetryCount)
	}
	requeued, err := b.Nack(ctx, "q", queue.PriorityNormal, msg)
	if err != nil {
		t.Fatalf("Nack: %v", err)
	}
	if requeued {
		t.Error("Nack past the budget should not requeue")
	}

	if left, _ := b.Depth(ctx, "q"); left != 0 {
		t.Errorf("depth = %d, want 0", left)
	}
}

func TestDepthCountsWaitingMessages(t *testing.T) {
	t.Parallel()
	b := newTestBroker(t, 3)
	ctx := context.Background()

	if n, err := b.Depth(ctx, "q"); err != nil || n != 0 {
		t.Fatalf("Depth = %d, %v; want 0, nil", n, err)
	}

	for id := int64(1); id <= 4; id++ {
		if err := b.Publish(ctx, "q", queue.PriorityNormal, testPayload{ID: id}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if n, _ := b.Depth(ctx, "q"); n != 4 {
		t.Errorf("depth = %d, want 4", n)
	}

	popID(t, b, "q")
	if n, _ := b.Depth(ctx, "q"); n != 3 {
		t.Errorf("depth after pop = %d, want 3", n)
	}
}

func TestIdenticalPayloadsStayDistinct(t *testing.T) {
	t.Parallel()
	b := newTestBroker(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Publish(ctx, "q", queue.PriorityNormal, testPayload{ID: 42}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if n, _ := b.Depth(ctx, "q"); n != 3 {
		t.Errorf("depth = %d, want 3 distinct entries", n)
	}
}
