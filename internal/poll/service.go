// Package poll cuida do cadastro de enquetes: criação, consulta, busca, remoção e troca de opções.
package poll

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/poll-betting-platform/internal/ledger"
)

// CreateInput são os dados de criação vindos da borda.
type CreateInput struct {
	Question string
	Options  []string
	Category string
	EndsAt   *time.Time
	Status   string // vazio assume PENDING
}

// Winner é a resposta de consulta do vencedor.
type Winner struct {
	Resolved      bool
	WinningOption string
}

type Service struct {
	log   *zap.Logger
	store ledger.Store
}

func NewService(log *zap.Logger, store ledger.Store) *Service {
	return &Service{log: log, store: store}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*ledger.Poll, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, fmt.Errorf("question required: %w", ledger.ErrInvalidInput)
	}
	opts, err := normalizeOptions(in.Options)
	if err != nil {
		return nil, err
	}

	status := ledger.PollPending
	if in.Status != "" {
		st, ok := ledger.ParsePollStatus(strings.ToUpper(strings.TrimSpace(in.Status)))
		if !ok {
			return nil, fmt.Errorf("unknown status %q: %w", in.Status, ledger.ErrInvalidInput)
		}
		if st.Terminal() {
			return nil, fmt.Errorf("poll cannot be created closed: %w", ledger.ErrInvalidInput)
		}
		status = st
	}

	p, err := s.store.CreatePoll(ctx, ledger.NewPoll{
		Question: question,
		Options:  opts,
		Category: strings.TrimSpace(in.Category),
		Status:   status,
		EndsAt:   in.EndsAt,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("poll created", zap.Int64("poll_id", p.ID), zap.Int("options", len(p.Options)))
	return p, nil
}

// normalizeOptions apara espaços e exige opções não vazias e distintas.
func normalizeOptions(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("options required: %w", ledger.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimSpace(o)
		if o == "" {
			return nil, fmt.Errorf("empty option: %w", ledger.ErrInvalidInput)
		}
		if seen[o] {
			return nil, fmt.Errorf("duplicate option %q: %w", o, ledger.ErrInvalidInput)
		}
		seen[o] = true
		out = append(out, o)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*ledger.Poll, error) {
	return s.store.GetPoll(ctx, id)
}

// List devolve todas as enquetes, mais novas primeiro.
func (s *Service) List(ctx context.Context) ([]ledger.Poll, error) {
	return s.store.ListPolls(ctx, ledger.PollFilter{})
}

// Search filtra por trecho da pergunta (sem diferenciar maiúsculas) e categoria exata.
func (s *Service) Search(ctx context.Context, query, category string) ([]ledger.Poll, error) {
	return s.store.ListPolls(ctx, ledger.PollFilter{Query: query, Category: strings.TrimSpace(category)})
}

// Delete remove a enquete e, em cascata, suas apostas.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeletePoll(ctx, id); err != nil {
		return err
	}
	s.log.Info("poll deleted", zap.Int64("poll_id", id))
	return nil
}

// UpdateOptions troca as opções enquanto não houver aposta.
func (s *Service) UpdateOptions(ctx context.Context, id int64, options []string) (*ledger.Poll, error) {
	opts, err := normalizeOptions(options)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPoll(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return nil, ledger.ErrPollClosed
	}
	if err := s.store.UpdatePollOptions(ctx, id, opts); err != nil {
		return nil, err
	}
	return s.store.GetPoll(ctx, id)
}

// Winner informa a opção vencedora quando a enquete já está CLOSED.
func (s *Service) Winner(ctx context.Context, id int64) (*Winner, error) {
	p, err := s.store.GetPoll(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.Terminal() {
		return &Winner{}, nil
	}
	return &Winner{Resolved: true, WinningOption: p.WinningOption}, nil
}
