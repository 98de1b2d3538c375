// Package stats calcula totais, percentuais e odds implícitas por opção de uma enquete.
package stats

import (
	"context"
	"math"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/radieske/poll-betting-platform/internal/ledger"
)

// DefaultOdds é a odd de uma opção sem apostas.
const DefaultOdds = 2.0

type OptionStat struct {
	Total      int64   `json:"total"`
	Percentage float64 `json:"percentage"`
	Odds       float64 `json:"odds"`
}

// Stats é o retrato do pool de apostas de uma enquete.
type Stats struct {
	PollID       int64                 `json:"pollId"`
	GrandTotal   int64                 `json:"grandTotal"`
	BetCount     int                   `json:"betCount"`
	OptionTotals map[string]int64      `json:"optionTotals"`
	OptionStats  map[string]OptionStat `json:"optionStats"`
}

// Compute é a função pura de agregação. Só aparecem nos mapas as opções que têm aposta.
func Compute(pollID int64, bets []ledger.Bet) Stats {
	s := Stats{
		PollID:       pollID,
		BetCount:     len(bets),
		OptionTotals: map[string]int64{},
		OptionStats:  map[string]OptionStat{},
	}
	for _, b := range bets {
		s.OptionTotals[b.OptionText] += b.Amount
		s.GrandTotal += b.Amount
	}
	for opt, total := range s.OptionTotals {
		s.OptionStats[opt] = OptionStat{
			Total:      total,
			Percentage: percentage(total, s.GrandTotal),
			Odds:       odds(total, s.GrandTotal),
		}
	}
	return s
}

func percentage(optionTotal, grandTotal int64) float64 {
	if grandTotal == 0 {
		return 0
	}
	return round(100*float64(optionTotal)/float64(grandTotal), 1)
}

func odds(optionTotal, grandTotal int64) float64 {
	if optionTotal <= 0 {
		return DefaultOdds
	}
	return round(float64(grandTotal)/float64(optionTotal), 2)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// Aggregator lê as apostas do store e, se houver cache, serve e grava por lá.
// Leituras concorrentes da mesma enquete são colapsadas com singleflight.
type Aggregator struct {
	log   *zap.Logger
	store ledger.Store
	cache *Cache
	group singleflight.Group
}

func NewAggregator(log *zap.Logger, store ledger.Store, cache *Cache) *Aggregator {
	return &Aggregator{log: log, store: store, cache: cache}
}

// ComputeStats devolve as estatísticas da enquete, vindas do cache quando possível.
func (a *Aggregator) ComputeStats(ctx context.Context, pollID int64) (*Stats, error) {
	if st, ok := a.cache.Get(ctx, pollID); ok {
		return st, nil
	}
	v, err, _ := a.group.Do(strconv.FormatInt(pollID, 10), func() (any, error) {
		return a.Refresh(ctx, pollID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Stats), nil
}

// Refresh recalcula a partir do store e sobrescreve o cache.
func (a *Aggregator) Refresh(ctx context.Context, pollID int64) (*Stats, error) {
	if _, err := a.store.GetPoll(ctx, pollID); err != nil {
		return nil, err
	}
	bets, err := a.store.ListBetsByPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	st := Compute(pollID, bets)
	if err := a.cache.Set(ctx, &st); err != nil {
		a.log.Warn("stats cache set failed", zap.Int64("poll_id", pollID), zap.Error(err))
	}
	return &st, nil
}

// Invalidate descarta o cache da enquete; a próxima leitura recalcula.
func (a *Aggregator) Invalidate(ctx context.Context, pollID int64) {
	if err := a.cache.Delete(ctx, pollID); err != nil {
		a.log.Warn("stats cache invalidate failed", zap.Int64("poll_id", pollID), zap.Error(err))
	}
}
