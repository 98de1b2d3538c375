package dto

import (
	"time"

	"github.com/radieske/poll-betting-platform/internal/ledger"
)

type ErrorResponse struct {
	Error          string `json:"error"`
	CurrentBalance *int64 `json:"currentBalance,omitempty"`
	Required       *int64 `json:"required,omitempty"`
}

type PlaceBetResponse struct {
	Success         bool   `json:"success"`
	BetID           int64  `json:"betId"`
	BetAmount       int64  `json:"betAmount"`
	PotentialPayout int64  `json:"potentialPayout"`
	NewBalance      int64  `json:"newBalance"`
	Option          string `json:"option"`
}

type BetResponse struct {
	ID              int64     `json:"id"`
	PollID          int64     `json:"pollId"`
	UserID          string    `json:"userId"`
	OptionText      string    `json:"optionText"`
	Amount          int64     `json:"amount"`
	PotentialPayout int64     `json:"potentialPayout"`
	IsWinner        *bool     `json:"isWinner"`
	PayoutApplied   bool      `json:"payoutApplied"`
	CreatedAt       time.Time `json:"createdAt"`
}

func NewBetResponse(b ledger.Bet) BetResponse {
	return BetResponse{
		ID:              b.ID,
		PollID:          b.PollID,
		UserID:          b.UserID,
		OptionText:      b.OptionText,
		Amount:          b.Amount,
		PotentialPayout: b.PotentialPayout,
		IsWinner:        b.Resolution.IsWinner(),
		PayoutApplied:   b.PayoutApplied,
		CreatedAt:       b.CreatedAt,
	}
}

type PollResponse struct {
	ID        int64      `json:"id"`
	Question  string     `json:"question"`
	Options   []string   `json:"options"`
	Category  string     `json:"category,omitempty"`
	TotalBets int64      `json:"totalBets"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	EndsAt    *time.Time `json:"endsAt,omitempty"`
}

func NewPollResponse(p ledger.Poll) PollResponse {
	opts := p.Options
	if opts == nil {
		opts = []string{}
	}
	return PollResponse{
		ID:        p.ID,
		Question:  p.Question,
		Options:   opts,
		Category:  p.Category,
		TotalBets: p.TotalBets,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		EndsAt:    p.EndsAt,
	}
}

type ResolveResponse struct {
	Success       bool   `json:"success"`
	PollID        int64  `json:"pollId"`
	WinningOption string `json:"winningOption"`
	WinnersCount  int    `json:"winnersCount"`
	TotalPaidOut  int64  `json:"totalPaidOut"`
	TotalBets     int    `json:"totalBets"`
	FailedPayouts int    `json:"failedPayouts"`
}

type WinnerResponse struct {
	Resolved      bool   `json:"resolved"`
	WinningOption string `json:"winningOption,omitempty"`
}

type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

// GameResponse é o corpo comum das rodadas; campos específicos de cada jogo são omitidos quando vazios.
type GameResponse struct {
	Success    bool     `json:"success"`
	RoundID    string   `json:"roundId"`
	Bet        int64    `json:"bet,omitempty"`
	Cost       int64    `json:"cost,omitempty"`
	Choice     string   `json:"choice,omitempty"`
	Result     string   `json:"result,omitempty"`
	Guess      int      `json:"guess,omitempty"`
	Roll       int      `json:"roll,omitempty"`
	Reels      []string `json:"reels,omitempty"`
	Won        *bool    `json:"won,omitempty"`
	Prize      string   `json:"prize,omitempty"`
	WinAmount  int64    `json:"winAmount"`
	Profit     int64    `json:"profit"`
	NewBalance int64    `json:"newBalance"`
}

type EntryResponse struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	Ref       string    `json:"ref,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type WalletResponse struct {
	UserID  string          `json:"userId"`
	Balance int64           `json:"balance"`
	Entries []EntryResponse `json:"entries,omitempty"`
}
