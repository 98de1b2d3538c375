package events

import "time"

// Evento emitido a cada rodada de mini-game liquidada.
type WagerSettled struct {
	RoundID    string    `json:"roundId"`
	Game       string    `json:"game"` // coin_flip | dice_roll | slot_machine | lootbox
	UserID     string    `json:"userId"`
	Cost       int64     `json:"cost"`
	WinAmount  int64     `json:"winAmount"`
	NewBalance int64     `json:"newBalance"`
	Ts         time.Time `json:"ts"`
}
