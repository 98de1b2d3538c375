package dto

import (
	"errors"
	"strings"
	"time"
)

var errMissing = errors.New("missing required field")

type PlaceBetRequest struct {
	UserID     string `json:"userId"`
	PollID     int64  `json:"pollId"`
	OptionText string `json:"optionText"`
	Amount     int64  `json:"amount"`
}

func (r PlaceBetRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" || r.PollID <= 0 || r.OptionText == "" {
		return errMissing
	}
	if r.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

type CreatePollRequest struct {
	Question string     `json:"question"`
	Options  []string   `json:"options"`
	Category string     `json:"category,omitempty"`
	EndsAt   *time.Time `json:"endsAt,omitempty"`
	Status   string     `json:"status,omitempty"`
}

type UpdateOptionsRequest struct {
	Options []string `json:"options"`
}

type ResolveRequest struct {
	WinningOption string `json:"winningOption"`
}

func (r ResolveRequest) Validate() error {
	if strings.TrimSpace(r.WinningOption) == "" {
		return errors.New("winningOption is required")
	}
	return nil
}

type CoinFlipRequest struct {
	UserID string `json:"userId"`
	Bet    int64  `json:"bet"`
	Choice string `json:"choice"` // heads | tails
}

type DiceRollRequest struct {
	UserID string `json:"userId"`
	Bet    int64  `json:"bet"`
	Guess  int    `json:"guess"` // 1..6
}

type SlotMachineRequest struct {
	UserID string `json:"userId"`
	Bet    int64  `json:"bet"`
}

// LootboxRequest não tem prêmio: a faixa é sorteada no servidor.
type LootboxRequest struct {
	UserID string `json:"userId"`
	Cost   int64  `json:"cost"`
}

type DepositRequest struct {
	UserID string `json:"userId"`
	Amount int64  `json:"amount"`
	Ref    string `json:"ref,omitempty"` // opcional, gravado no ledger
}
