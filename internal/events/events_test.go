package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

func TestLogPublisher(t *testing.T) {
	err := LogPublisher{}.Publish(context.Background(), GroupEvent{Type: GroupCreated, GroupID: "g1"})
	if err != nil {
		t.Errorf("LogPublisher.Publish returned %v", err)
	}
}

func TestNilRedisPublisher(t *testing.T) {
	var p *RedisPublisher
	if err := p.Publish(context.Background(), GroupEvent{Type: GroupCreated}); err == nil {
		t.Error("Expected error from uninitialized publisher")
	}
}

func TestRedisPublisher(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	channel := "groupcart-test:" + uuid.NewString()
	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	p := NewRedisPublisher(rdb, channel)
	want := GroupEvent{Type: OrderPlaced, GroupID: "g1", Version: 7, Status: "ordered", Detail: map[string]any{"order_id": "ord-1"}}
	if err := p.Publish(ctx, want); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage failed: %v", err)
	}
	var got GroupEvent
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("Payload is not an event: %v", err)
	}
	if got.Type != want.Type || got.GroupID != want.GroupID || got.Version != want.Version || got.Detail["order_id"] != "ord-1" {
		t.Errorf("Got %+v, want %+v", got, want)
	}
}
