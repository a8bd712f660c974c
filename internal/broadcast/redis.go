package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"ewallet/internal/metrics"
	"ewallet/internal/websocket"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// PubSubClient is the part of *redis.Client the relay uses.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// LocalNotifier delivers updates to connections held by this process.
type LocalNotifier interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

type balanceEvent struct {
	UserID string                  `json:"userId"`
	Update websocket.BalanceUpdate `json:"update"`
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisRelay publishes balance updates on a Redis channel so that every API
// instance, including this one, can push them to its own websocket clients.
type RedisRelay struct {
	client  PubSubClient
	local   LocalNotifier
	channel string
	logger  *zap.Logger
}

func NewRedisRelay(client PubSubClient, local LocalNotifier, channel string, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		local:   local,
		channel: channel,
		logger:  logger,
	}
}

// BroadcastBalance falls back to local delivery when Redis is unreachable.
func (r *RedisRelay) BroadcastBalance(userID string, update websocket.BalanceUpdate) {
	payload, err := json.Marshal(balanceEvent{UserID: userID, Update: update})
	if err != nil {
		r.logger.Error("encode balance event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("publish balance event",
			zap.String("channel", r.channel),
			zap.String("wallet_id", update.WalletID),
			zap.Error(err),
		)
		metrics.RelayFallbacks.Inc()
		r.local.BroadcastBalance(userID, update)
	}
}

// Run forwards events from the channel to the local hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("balance relay subscribed", zap.String("channel", r.channel))
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handleMessage(msg.Payload)
		}
	}
}

func (r *RedisRelay) handleMessage(payload string) {
	var event balanceEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil || event.UserID == "" {
		r.logger.Warn("discarding malformed balance event", zap.String("payload", payload))
		return
	}
	r.local.BroadcastBalance(event.UserID, event.Update)
}
