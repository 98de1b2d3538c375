package producer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	skafka "github.com/radieske/poll-betting-platform/internal/shared/kafka"
	"github.com/radieske/poll-betting-platform/pkg/contracts/events"
)

// messageWriter é o subconjunto de *kafka.Writer usado aqui.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publica os eventos de domínio, um writer por tópico.
// Mensagens de enquete usam o pollId como chave para manter a ordem por enquete.
type KafkaPublisher struct {
	betPlaced    messageWriter
	pollResolved messageWriter
	wagerSettled messageWriter
	now          func() time.Time
}

// Topics agrupa os nomes de tópico configurados.
type Topics struct {
	BetPlaced    string
	PollResolved string
	WagerSettled string
}

func NewKafkaPublisher(brokers []string, t Topics) *KafkaPublisher {
	return &KafkaPublisher{
		betPlaced:    skafka.NewWriter(brokers, t.BetPlaced),
		pollResolved: skafka.NewWriter(brokers, t.PollResolved),
		wagerSettled: skafka.NewWriter(brokers, t.WagerSettled),
		now:          time.Now,
	}
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	e.TsUnixMs = p.now().UnixMilli()
	return write(ctx, p.betPlaced, strconv.FormatInt(e.PollID, 10), e)
}

func (p *KafkaPublisher) PublishPollResolved(ctx context.Context, e events.PollResolved) error {
	e.Ts = p.now().UTC()
	return write(ctx, p.pollResolved, strconv.FormatInt(e.PollID, 10), e)
}

func (p *KafkaPublisher) PublishWagerSettled(ctx context.Context, e events.WagerSettled) error {
	e.Ts = p.now().UTC()
	return write(ctx, p.wagerSettled, e.UserID, e)
}

func write(ctx context.Context, w messageWriter, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return skafka.WriteJSON(ctx, w, key, b)
}

// Close fecha todos os writers
func (p *KafkaPublisher) Close() error {
	var first error
	for _, w := range []messageWriter{p.betPlaced, p.pollResolved, p.wagerSettled} {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
