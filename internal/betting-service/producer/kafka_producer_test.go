package producer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/poll-betting-platform/pkg/contracts/events"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishersKeyAndStamp(t *testing.T) {
	bp, pr, ws := &fakeWriter{}, &fakeWriter{}, &fakeWriter{}
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &KafkaPublisher{betPlaced: bp, pollResolved: pr, wagerSettled: ws, now: func() time.Time { return fixed }}
	ctx := context.Background()

	require.NoError(t, p.PublishBetPlaced(ctx, events.BetPlaced{BetID: 1, PollID: 42, Amount: 10}))
	require.NoError(t, p.PublishPollResolved(ctx, events.PollResolved{PollID: 42, WinningOption: "Yes"}))
	require.NoError(t, p.PublishWagerSettled(ctx, events.WagerSettled{UserID: "u1", Game: "coin_flip"}))

	require.Len(t, bp.msgs, 1)
	assert.Equal(t, "42", string(bp.msgs[0].Key))
	var got events.BetPlaced
	require.NoError(t, json.Unmarshal(bp.msgs[0].Value, &got))
	assert.Equal(t, fixed.UnixMilli(), got.TsUnixMs)

	require.Len(t, pr.msgs, 1)
	assert.Equal(t, "42", string(pr.msgs[0].Key))
	require.Len(t, ws.msgs, 1)
	assert.Equal(t, "u1", string(ws.msgs[0].Key))

	require.NoError(t, p.Close())
	assert.True(t, bp.closed && pr.closed && ws.closed)
}
