package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/poll-betting-platform/internal/stats"
)

// publisher é o subconjunto de *redis.Client usado aqui
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type RedisBroadcaster struct {
	r       publisher
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel}
}

// Payload padrão para o WS do betting-service
type StatsUpdate struct {
	PollID  int64        `json:"pollId"`
	Payload *stats.Stats `json:"payload"`
}

func (b *RedisBroadcaster) PublishStats(ctx context.Context, st *stats.Stats) error {
	payload, err := json.Marshal(StatsUpdate{PollID: st.PollID, Payload: st})
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}
