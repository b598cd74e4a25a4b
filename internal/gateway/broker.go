package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/trato/internal/entity"
	"github.com/mbeoliero/trato/pkg/constant"
	"github.com/redis/go-redis/v9"
)

// brokerEnvelope is a push task on the shared Redis channel
type brokerEnvelope struct {
	Origin         string          `json:"origin"`
	Type           string          `json:"type"`
	ConversationId string          `json:"conversation_id"`
	Data           json.RawMessage `json:"data"`
	TargetIds      []string        `json:"target_ids"`
	MessageId      int64           `json:"message_id,omitempty"`
	SenderId       string          `json:"sender_id,omitempty"`
}

// RedisBroker relays push tasks between instances over Redis pub/sub.
// Each instance delivers remote tasks to its own connections only.
type RedisBroker struct {
	rdb        *redis.Client
	channel    string
	instanceId string
}

// NewRedisBroker creates a broker on the shared push channel
func NewRedisBroker(rdb *redis.Client, instanceId string) *RedisBroker {
	return &RedisBroker{
		rdb:        rdb,
		channel:    constant.RedisKeyPushChannel(),
		instanceId: instanceId,
	}
}

// Publish relays a locally originated task to the other instances
func (b *RedisBroker) Publish(ctx context.Context, task *PushTask) error {
	data, err := json.Marshal(task.Event.Data)
	if err != nil {
		return fmt.Errorf("failed to encode push data: %w", err)
	}
	payload, err := json.Marshal(&brokerEnvelope{
		Origin:         b.instanceId,
		Type:           task.Event.Type,
		ConversationId: task.Event.ConversationId,
		Data:           data,
		TargetIds:      task.TargetIds,
		MessageId:      task.MessageId,
		SenderId:       task.SenderId,
	})
	if err != nil {
		return fmt.Errorf("failed to encode push task: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

// Subscribe delivers tasks published by other instances to handle until ctx is done.
// The subscription is confirmed before Subscribe returns.
func (b *RedisBroker) Subscribe(ctx context.Context, handle func(task *PushTask)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env brokerEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.CtxWarn(ctx, "drop malformed push task: error=%v", err)
					continue
				}
				if env.Origin == b.instanceId {
					continue
				}
				handle(&PushTask{
					Event: &entity.PushEvent{
						Type:           env.Type,
						ConversationId: env.ConversationId,
						Data:           env.Data,
					},
					TargetIds: env.TargetIds,
					MessageId: env.MessageId,
					SenderId:  env.SenderId,
					remote:    true,
				})
			}
		}
	}()

	log.Info("subscribed to push channel: channel=%s, instance_id=%s", b.channel, b.instanceId)
	return nil
}
