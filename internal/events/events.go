// Package events publishes group cart changes so other parts of the product
// (notification fan-out, live cart views) can react to them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Type names a group event.
type Type string

const (
	GroupCreated   Type = "group.created"
	MemberInvited  Type = "member.invited"
	MemberJoined   Type = "member.joined"
	MemberRemoved  Type = "member.removed"
	CartUpdated    Type = "cart.updated"
	SlotLocked     Type = "slot.locked"
	SlotRenewed    Type = "slot.renewed"
	SlotReleased   Type = "slot.released"
	SplitUpdated   Type = "split.updated"
	OrderPlaced    Type = "order.placed"
	OrderFailed    Type = "order.failed"
	GroupCancelled Type = "group.cancelled"
	GroupExpired   Type = "group.expired"
)

// GroupEvent describes one committed change to a group.
type GroupEvent struct {
	Type        Type           `json:"type"`
	GroupID     string         `json:"group_id"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	Version     int64          `json:"version"`
	Status      string         `json:"status"`
	At          int64          `json:"at"`
	Detail      map[string]any `json:"detail,omitempty"`
}

// Publisher delivers group events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev GroupEvent) error
}

// LogPublisher writes events to the structured log.
type LogPublisher struct{}

// Publish logs the event at debug level.
func (LogPublisher) Publish(ctx context.Context, ev GroupEvent) error {
	slog.DebugContext(ctx, "Group event",
		"type", ev.Type,
		"group_id", ev.GroupID,
		"actor", ev.ActorUserID,
		"version", ev.Version,
		"status", ev.Status,
	)
	return nil
}

// RedisPublisher publishes JSON events on a Redis channel.
type RedisPublisher struct {
	rdb     *goredis.Client
	channel string
}

// NewRedisPublisher publishes on channel using rdb.
func NewRedisPublisher(rdb *goredis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = "groupcart.events"
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Publish sends the event to the channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev GroupEvent) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis publisher not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}
