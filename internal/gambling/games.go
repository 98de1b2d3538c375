package gambling

import (
	"context"
	"fmt"
	"strings"

	"github.com/radieske/poll-betting-platform/internal/ledger"
)

// Multiplicadores de pagamento.
const (
	CoinFlipMultiplier   = 2
	DiceRollMultiplier   = 6
	SlotTripleMultiplier = 10
	SlotPairMultiplier   = 2
)

// SlotSymbols são os símbolos de cada rolo.
var SlotSymbols = []string{"cherry", "lemon", "orange", "bell", "star", "seven"}

type CoinFlipResult struct {
	*Settlement
	Choice string
	Result string
	Won    bool
}

// CoinFlip sorteia cara ou coroa; acerto paga o dobro da aposta.
func (s *Service) CoinFlip(ctx context.Context, userID string, bet int64, choice string) (*CoinFlipResult, error) {
	choice = strings.ToLower(strings.TrimSpace(choice))
	if choice != "heads" && choice != "tails" {
		return nil, fmt.Errorf("choice must be heads or tails: %w", ledger.ErrInvalidInput)
	}
	if bet <= 0 {
		return nil, fmt.Errorf("bet must be positive: %w", ledger.ErrInvalidInput)
	}

	result := "heads"
	if s.intN(2) == 1 {
		result = "tails"
	}
	won := result == choice
	var win int64
	if won {
		win = bet * CoinFlipMultiplier
	}

	st, err := s.SettleWager(ctx, GameCoinFlip, userID, bet, win)
	if err != nil {
		return nil, err
	}
	return &CoinFlipResult{Settlement: st, Choice: choice, Result: result, Won: won}, nil
}

type DiceRollResult struct {
	*Settlement
	Guess int
	Roll  int
	Won   bool
}

// DiceRoll rola um d6; palpite exato paga 6x.
func (s *Service) DiceRoll(ctx context.Context, userID string, bet int64, guess int) (*DiceRollResult, error) {
	if guess < 1 || guess > 6 {
		return nil, fmt.Errorf("guess must be between 1 and 6: %w", ledger.ErrInvalidInput)
	}
	if bet <= 0 {
		return nil, fmt.Errorf("bet must be positive: %w", ledger.ErrInvalidInput)
	}

	roll := s.intN(6) + 1
	won := roll == guess
	var win int64
	if won {
		win = bet * DiceRollMultiplier
	}

	st, err := s.SettleWager(ctx, GameDiceRoll, userID, bet, win)
	if err != nil {
		return nil, err
	}
	return &DiceRollResult{Settlement: st, Guess: guess, Roll: roll, Won: won}, nil
}

type SlotMachineResult struct {
	*Settlement
	Reels []string
	Won   bool
}

// SlotMachine gira três rolos: trinca paga 10x, qualquer par paga 2x.
func (s *Service) SlotMachine(ctx context.Context, userID string, bet int64) (*SlotMachineResult, error) {
	if bet <= 0 {
		return nil, fmt.Errorf("bet must be positive: %w", ledger.ErrInvalidInput)
	}

	reels := make([]string, 3)
	for i := range reels {
		reels[i] = SlotSymbols[s.intN(len(SlotSymbols))]
	}
	win := bet * slotMultiplier(reels)

	st, err := s.SettleWager(ctx, GameSlotMachine, userID, bet, win)
	if err != nil {
		return nil, err
	}
	return &SlotMachineResult{Settlement: st, Reels: reels, Won: win > 0}, nil
}

func slotMultiplier(reels []string) int64 {
	a, b, c := reels[0], reels[1], reels[2]
	switch {
	case a == b && b == c:
		return SlotTripleMultiplier
	case a == b || b == c || a == c:
		return SlotPairMultiplier
	default:
		return 0
	}
}

// LootboxPrize é uma faixa da tabela de prêmios. Weight é a chance em 100.
type LootboxPrize struct {
	Tier       string
	Multiplier int64
	Weight     int
}

// LootboxPrizes soma 100; a ordem define o sorteio.
var LootboxPrizes = []LootboxPrize{
	{Tier: "empty", Multiplier: 0, Weight: 55},
	{Tier: "common", Multiplier: 1, Weight: 25},
	{Tier: "rare", Multiplier: 2, Weight: 14},
	{Tier: "epic", Multiplier: 5, Weight: 5},
	{Tier: "legendary", Multiplier: 15, Weight: 1},
}

type LootboxResult struct {
	*Settlement
	Prize LootboxPrize
}

// OpenLootbox cobra cost e sorteia a faixa do prêmio no servidor.
func (s *Service) OpenLootbox(ctx context.Context, userID string, cost int64) (*LootboxResult, error) {
	if cost <= 0 {
		return nil, fmt.Errorf("cost must be positive: %w", ledger.ErrInvalidInput)
	}

	prize := drawPrize(s.intN(100))
	st, err := s.SettleWager(ctx, GameLootbox, userID, cost, cost*prize.Multiplier)
	if err != nil {
		return nil, err
	}
	return &LootboxResult{Settlement: st, Prize: prize}, nil
}

func drawPrize(roll int) LootboxPrize {
	for _, p := range LootboxPrizes {
		if roll < p.Weight {
			return p
		}
		roll -= p.Weight
	}
	return LootboxPrizes[0]
}
