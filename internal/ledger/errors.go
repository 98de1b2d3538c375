package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrPollNotFound = wrapNotFound("poll not found")
	ErrUserNotFound = wrapNotFound("user not found")
	ErrBetNotFound  = wrapNotFound("bet not found")

	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidOption     = wrapInvalid("invalid option")
	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrPollClosed           = errors.New("poll closed")
	ErrAlreadyClosed        = errors.New("poll already closed")
	ErrResolutionInProgress = errors.New("poll resolution in progress")
	ErrOptionsLocked        = errors.New("poll options locked after first bet")

	ErrSettlementFailure = errors.New("settlement failure")
)

// kindError permite errors.Is tanto contra o erro específico quanto contra a família
// (ex.: ErrPollNotFound também é ErrNotFound).
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func wrapNotFound(msg string) error { return &kindError{msg: msg, kind: ErrNotFound} }
func wrapInvalid(msg string) error  { return &kindError{msg: msg, kind: ErrInvalidInput} }

// InsufficientFundsError carrega o saldo atual e o valor exigido, para a resposta HTTP.
type InsufficientFundsError struct {
	Balance  int64
	Required int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %d, required %d", e.Balance, e.Required)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }
