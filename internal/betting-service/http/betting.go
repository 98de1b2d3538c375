package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/poll-betting-platform/internal/betting-service/dto"
)

// placeBet registra uma aposta e devolve o novo saldo
func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	res, err := s.d.Bets.PlaceBet(r.Context(), req.UserID, req.PollID, req.OptionText, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PlaceBetResponse{
		Success:         true,
		BetID:           res.Bet.ID,
		BetAmount:       res.Bet.Amount,
		PotentialPayout: res.Bet.PotentialPayout,
		NewBalance:      res.NewBalance,
		Option:          res.Bet.OptionText,
	})
}

// getStats retorna totais, percentuais e odds por opção
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	pollID, ok := int64Param(w, r, "pollId")
	if !ok {
		return
	}
	st, err := s.d.Stats.ComputeStats(r.Context(), pollID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// userBets lista as apostas de um usuário numa enquete
func (s *Server) userBets(w http.ResponseWriter, r *http.Request) {
	pollID, ok := int64Param(w, r, "pollId")
	if !ok {
		return
	}
	bets, err := s.d.Bets.UserBets(r.Context(), chi.URLParam(r, "userId"), pollID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]dto.BetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, dto.NewBetResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}
