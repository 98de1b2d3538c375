package topics

const (
	// Apostas
	BetPlaced = "bet_placed"

	// Enquetes
	PollResolved = "poll_resolved"

	// Mini-games
	WagerSettled = "wager_settled"

	// DLQ do stats-processor (mensagens que não puderam ser processadas)
	StatsDLQ = "poll_stats_dlq"
)
