package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// PollID: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type   string `json:"type"`
	PollID int64  `json:"pollId"`
}

// StatsUpdate é a atualização de estatísticas enviada aos inscritos de uma enquete
type StatsUpdate struct {
	PollID  int64 `json:"pollId"`
	Payload any   `json:"payload"`
}
