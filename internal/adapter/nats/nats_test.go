package nats

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/agentplan/internal/logger"
	"github.com/Strob0t/agentplan/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// uniqueSubject returns a subject captured by the stream that the validator
// accepts as plain JSON.
func uniqueSubject(t *testing.T) string {
	t.Helper()
	return "plans.test." + t.Name()
}

func waitFor(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueue_PublishSubscribeWithRequestID(t *testing.T) {
	q := testConnect(t)
	subject := "plans.feedback"

	var (
		mu    sync.Mutex
		got   messagequeue.FeedbackPayload
		reqID string
		done  = make(chan struct{})
		once  sync.Once
	)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, d []byte) error {
		var p messagequeue.FeedbackPayload
		if err := json.Unmarshal(d, &p); err != nil {
			return err
		}
		if p.TaskID != t.Name() {
			return nil
		}
		mu.Lock()
		got, reqID = p, logger.RequestID(ctx)
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	data, _ := json.Marshal(messagequeue.FeedbackPayload{PlanID: "p1", TaskID: t.Name(), Success: true})
	ctx := logger.WithRequestID(context.Background(), "req-abc-123")
	if err := q.Publish(ctx, subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitFor(t, done)

	mu.Lock()
	defer mu.Unlock()
	if got.PlanID != "p1" {
		t.Errorf("plan_id = %q, want p1", got.PlanID)
	}
	if reqID != "req-abc-123" {
		t.Errorf("request ID = %q, want req-abc-123", reqID)
	}
}

func TestQueue_InvalidMessageGoesToDLQ(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := uniqueSubject(t)

	dlqData := consumeDLQ(t, q, subject)

	stop, err := q.Subscribe(ctx, subject, func(context.Context, string, []byte) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(ctx, subject, []byte("not-json")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := <-dlqData; got != "not-json" {
		t.Errorf("DLQ data = %q, want not-json", got)
	}
}

func TestQueue_RetryExhaustionGoesToDLQ(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := uniqueSubject(t)

	dlqData := consumeDLQ(t, q, subject)

	stop, err := q.Subscribe(ctx, subject, func(context.Context, string, []byte) error {
		return errAlwaysFail
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	msg := &nats.Msg{Subject: subject, Data: []byte(`{"exhausted":true}`), Header: nats.Header{}}
	msg.Header.Set(headerRetryCount, "3")
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		t.Fatalf("PublishMsg: %v", err)
	}
	if got := <-dlqData; got != `{"exhausted":true}` {
		t.Errorf("DLQ data = %q", got)
	}
}

func consumeDLQ(t *testing.T, q *Queue, subject string) <-chan string {
	t.Helper()
	consumer, err := q.js.CreateOrUpdateConsumer(context.Background(), streamName, jetstream.ConsumerConfig{
		FilterSubject: subject + dlqSuffix,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create DLQ consumer: %v", err)
	}
	out := make(chan string, 1)
	var once sync.Once
	sub, err := consumer.Consume(func(msg jetstream.Msg) {
		once.Do(func() { out <- string(msg.Data()) })
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume DLQ: %v", err)
	}
	t.Cleanup(sub.Stop)
	return out
}

func TestQueue_KeyValue(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "test-kv-"+t.Name(), 30*time.Second)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	if _, err := kv.Put(ctx, "greeting", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, "greeting")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != "hello" {
		t.Errorf("value = %q, want hello", entry.Value())
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)
	if !q.IsConnected() {
		t.Error("IsConnected() = false after Connect, want true")
	}
}

func TestRetryCount(t *testing.T) {
	h := nats.Header{}
	if retryCount(h) != 0 {
		t.Fatal("missing header should count as zero")
	}
	h.Set(headerRetryCount, "2")
	if retryCount(h) != 2 {
		t.Fatalf("expected 2, got %d", retryCount(h))
	}
	h.Set(headerRetryCount, "x")
	if retryCount(h) != 0 {
		t.Fatal("malformed header should count as zero")
	}
}

func TestConsumerName(t *testing.T) {
	name := consumerName("plans.feedback")
	if name != "agentplan_plans_feedback" {
		t.Fatalf("got %q", name)
	}
	if strings.ContainsAny(consumerName("plans.*.x>"), ".*>") {
		t.Fatal("consumer name contains reserved characters")
	}
}

// errAlwaysFail is a sentinel error used by handlers that should always fail.
var errAlwaysFail = errSentinel("handler always fails")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
