package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/poll-betting-platform/internal/ledger"
	skafka "github.com/radieske/poll-betting-platform/internal/shared/kafka"
	"github.com/radieske/poll-betting-platform/internal/stats"
	"github.com/radieske/poll-betting-platform/pkg/contracts/events"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Refresher recalcula as estatísticas de uma enquete a partir do store e atualiza o cache
type Refresher interface {
	Refresh(ctx context.Context, pollID int64) (*stats.Stats, error)
}

// Broadcaster entrega as estatísticas recalculadas aos clientes WebSocket
type Broadcaster interface {
	PublishStats(ctx context.Context, st *stats.Stats) error
}

// Topics indica de qual tópico vem cada tipo de evento
type Topics struct {
	BetPlaced    string
	PollResolved string
}

// Processor consome bet_placed e poll_resolved, recalcula as estatísticas da enquete
// e publica o resultado no Redis Pub/Sub. Broadcast e DLQ são opcionais.
type Processor struct {
	Log       *zap.Logger
	Reader    messageReader
	Stats     Refresher
	Broadcast Broadcaster
	DLQ       skafka.MessageWriter
	Topics    Topics

	OnConsumed  func(topic string) // métricas
	OnRefreshed func()
	OnError     func(stage string)

	RetryDelay time.Duration
}

// Run inicia o loop principal de consumo; retorna quando o contexto é cancelado
func (p *Processor) Run(ctx context.Context) error {
	delay := p.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			time.Sleep(delay)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed(m.Topic)
		}
		p.Handle(ctx, m)
	}
}

// Handle processa uma única mensagem. Mensagens inválidas ou que falham
// no recálculo vão para a DLQ, sem interromper o consumo.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	pollID, err := p.pollID(m)
	if err != nil {
		p.Log.Warn("invalid message", zap.String("topic", m.Topic), zap.Error(err))
		p.fail("decode")
		p.deadLetter(ctx, m)
		return
	}

	st, err := p.Stats.Refresh(ctx, pollID)
	if errors.Is(err, ledger.ErrPollNotFound) {
		// enquete removida depois do evento
		p.Log.Debug("poll gone, skipping", zap.Int64("pollId", pollID))
		return
	}
	if err != nil {
		p.Log.Warn("stats refresh failed", zap.Int64("pollId", pollID), zap.Error(err))
		p.fail("refresh")
		p.deadLetter(ctx, m)
		return
	}
	if p.OnRefreshed != nil {
		p.OnRefreshed()
	}

	if p.Broadcast == nil {
		return
	}
	bctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := p.Broadcast.PublishStats(bctx, st); err != nil {
		p.Log.Warn("ws broadcast publish failed", zap.Int64("pollId", pollID), zap.Error(err))
		p.fail("broadcast")
	}
}

func (p *Processor) pollID(m kafka.Message) (int64, error) {
	var id int64
	switch m.Topic {
	case p.Topics.BetPlaced:
		var ev events.BetPlaced
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			return 0, err
		}
		id = ev.PollID
	case p.Topics.PollResolved:
		var ev events.PollResolved
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			return 0, err
		}
		id = ev.PollID
	default:
		return 0, fmt.Errorf("unexpected topic %q", m.Topic)
	}
	if id <= 0 {
		return 0, errors.New("missing poll id")
	}
	return id, nil
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message) {
	if p.DLQ == nil {
		return
	}
	if err := skafka.WriteJSON(ctx, p.DLQ, string(m.Key), m.Value); err != nil {
		p.Log.Error("dlq write failed", zap.String("topic", m.Topic), zap.Error(err))
		p.fail("dlq")
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
