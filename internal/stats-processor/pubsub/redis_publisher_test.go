package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/poll-betting-platform/internal/stats"
)

type fakePublisher struct {
	channel string
	message any
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.channel, f.message = channel, message
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func TestPublishStats(t *testing.T) {
	fp := &fakePublisher{}
	b := &RedisBroadcaster{r: fp, channel: "poll_stats_broadcast"}

	st := stats.Compute(7, nil)
	require.NoError(t, b.PublishStats(context.Background(), &st))

	assert.Equal(t, "poll_stats_broadcast", fp.channel)
	raw, ok := fp.message.([]byte)
	require.True(t, ok)

	var got struct {
		PollID  int64          `json:"pollId"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, int64(7), got.PollID)
	assert.Equal(t, float64(7), got.Payload["pollId"])
	assert.Equal(t, float64(0), got.Payload["grandTotal"])
}
