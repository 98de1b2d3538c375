// Package gambling implementa os mini-games. Todos liquidam pelo mesmo SettleWager:
// confere saldo >= custo, sorteia, e aplica winAmount - custo de uma vez.
package gambling

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/radieske/poll-betting-platform/internal/ledger"
	"github.com/radieske/poll-betting-platform/internal/shared/metrics"
	"github.com/radieske/poll-betting-platform/internal/wallet"
	"github.com/radieske/poll-betting-platform/pkg/contracts/events"
)

// Nomes dos jogos, usados em eventos, métricas e no ref do ledger.
const (
	GameCoinFlip    = "coin_flip"
	GameDiceRoll    = "dice_roll"
	GameSlotMachine = "slot_machine"
	GameLootbox     = "lootbox"
)

// Publisher recebe o evento de rodada liquidada.
type Publisher interface {
	PublishWagerSettled(ctx context.Context, e events.WagerSettled) error
}

// Settlement é o resultado financeiro de uma rodada.
type Settlement struct {
	RoundID    string
	Game       string
	UserID     string
	Cost       int64
	WinAmount  int64
	Profit     int64
	NewBalance int64
}

type Service struct {
	log     *zap.Logger
	store   ledger.Store
	wallet  *wallet.Service
	intN    func(n int) int
	publ    Publisher
	metrics *metrics.Platform
}

type Option func(*Service)

// WithRand troca a fonte de sorteio (deve ser segura para uso concorrente).
func WithRand(intN func(n int) int) Option { return func(s *Service) { s.intN = intN } }

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publ = p } }

func WithMetrics(m *metrics.Platform) Option { return func(s *Service) { s.metrics = m } }

func NewService(log *zap.Logger, store ledger.Store, w *wallet.Service, opts ...Option) *Service {
	s := &Service{log: log, store: store, wallet: w, intN: rand.Intn}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SettleWager liquida uma rodada já sorteada.
func (s *Service) SettleWager(ctx context.Context, game, userID string, cost, winAmount int64) (*Settlement, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("userId required: %w", ledger.ErrInvalidInput)
	}
	if cost < 0 || winAmount < 0 {
		return nil, fmt.Errorf("cost and winAmount must not be negative: %w", ledger.ErrInvalidInput)
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Balance < cost {
		return nil, &ledger.InsufficientFundsError{Balance: u.Balance, Required: cost}
	}

	roundID := ulid.Make().String()
	newBalance, err := s.wallet.AdjustBalance(ctx, userID, winAmount-cost, ledger.EntryGameSettle, game+":"+roundID)
	if err != nil {
		// corrida entre a checagem de saldo e o ajuste
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, &ledger.InsufficientFundsError{Balance: newBalance, Required: cost}
		}
		return nil, err
	}

	st := &Settlement{
		RoundID:    roundID,
		Game:       game,
		UserID:     userID,
		Cost:       cost,
		WinAmount:  winAmount,
		Profit:     winAmount - cost,
		NewBalance: newBalance,
	}
	s.metrics.GameRound(game, winAmount > 0)
	s.publish(ctx, st)
	return st, nil
}

func (s *Service) publish(ctx context.Context, st *Settlement) {
	if s.publ == nil {
		return
	}
	err := s.publ.PublishWagerSettled(ctx, events.WagerSettled{
		RoundID:    st.RoundID,
		Game:       st.Game,
		UserID:     st.UserID,
		Cost:       st.Cost,
		WinAmount:  st.WinAmount,
		NewBalance: st.NewBalance,
	})
	if err != nil {
		s.log.Warn("publish wager_settled failed", zap.String("round_id", st.RoundID), zap.Error(err))
	}
}
