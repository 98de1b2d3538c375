package events

// Evento emitido pelo betting-service depois que a aposta foi gravada.
type BetPlaced struct {
	BetID           int64  `json:"bet_id"`
	PollID          int64  `json:"poll_id"`
	UserID          string `json:"user_id"`
	OptionText      string `json:"option_text"`
	Amount          int64  `json:"amount"`
	PotentialPayout int64  `json:"potential_payout"`
	NewBalance      int64  `json:"new_balance"`
	TsUnixMs        int64  `json:"ts_unix_ms"`
}
