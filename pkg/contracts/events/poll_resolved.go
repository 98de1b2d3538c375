package events

import "time"

// Evento emitido ao final da resolução de uma enquete.
type PollResolved struct {
	PollID        int64     `json:"pollId"`
	WinningOption string    `json:"winningOption"`
	WinnersCount  int       `json:"winnersCount"`
	TotalPaidOut  int64     `json:"totalPaidOut"`
	TotalBets     int       `json:"totalBets"`
	FailedPayouts int       `json:"failedPayouts"`
	Ts            time.Time `json:"ts"`
}
