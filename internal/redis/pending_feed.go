package redis

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"diarylink/internal/config"
	"diarylink/internal/services"

	"github.com/redis/go-redis/v9"
)

// pairChangedMessage is the fan-out payload on the pending-feed channel.
// It names the users whose pending lists went stale, nothing more; every
// api server instance rebuilds fresh snapshots for its own local
// subscribers. Losing a message only delays the next snapshot, it cannot
// corrupt state.
type pairChangedMessage struct {
	UserIDs []string `json:"userIds"`
}

// NewClient creates a redis client from the service configuration.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// PendingFeed broadcasts pair-changed nudges over redis pub/sub so every
// api server instance learns about transitions committed on any instance.
type PendingFeed struct {
	client  *redis.Client
	channel string
}

func NewPendingFeed(client *redis.Client, channel string) *PendingFeed {
	return &PendingFeed{client: client, channel: channel}
}

var _ services.PendingFeed = (*PendingFeed)(nil)

// PairChanged publishes a nudge for both members of the pair. Publish runs
// on its own goroutine and failures are logged and dropped, per the
// fire-and-forget contract.
func (f *PendingFeed) PairChanged(userA, userB string) {
	payload, err := json.Marshal(pairChangedMessage{UserIDs: []string{userA, userB}})
	if err != nil {
		log.Printf("PendingFeed: failed to marshal pair-changed message: %v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
			log.Printf("PendingFeed: failed to publish pair-changed for %s/%s: %v", userA, userB, err)
		}
	}()
}

// Run subscribes to the feed channel and invokes onUsersChanged for each
// nudge until the context is canceled. Blocks; run it on its own goroutine.
func (f *PendingFeed) Run(ctx context.Context, onUsersChanged func(userIDs []string)) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	// Force the subscription before entering the receive loop.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	log.Printf("PendingFeed: subscribed to channel %s", f.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Println("PendingFeed: subscription loop stopping.")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var payload pairChangedMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				log.Printf("PendingFeed: dropping malformed message on %s: %v", f.channel, err)
				continue
			}
			if len(payload.UserIDs) > 0 {
				onUsersChanged(payload.UserIDs)
			}
		}
	}
}
