package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/poll-betting-platform/internal/betting-service/dto"
	"github.com/radieske/poll-betting-platform/internal/gambling"
)

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := s.d.Wallet.GetBalance(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{Balance: bal})
}

func gameResponse(st *gambling.Settlement) dto.GameResponse {
	return dto.GameResponse{
		Success:    true,
		RoundID:    st.RoundID,
		WinAmount:  st.WinAmount,
		Profit:     st.Profit,
		NewBalance: st.NewBalance,
	}
}

func (s *Server) coinFlip(w http.ResponseWriter, r *http.Request) {
	var req dto.CoinFlipRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.d.Games.CoinFlip(r.Context(), req.UserID, req.Bet, req.Choice)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := gameResponse(res.Settlement)
	out.Bet, out.Choice, out.Result, out.Won = req.Bet, res.Choice, res.Result, &res.Won
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) diceRoll(w http.ResponseWriter, r *http.Request) {
	var req dto.DiceRollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.d.Games.DiceRoll(r.Context(), req.UserID, req.Bet, req.Guess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := gameResponse(res.Settlement)
	out.Bet, out.Guess, out.Roll, out.Won = req.Bet, res.Guess, res.Roll, &res.Won
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) slotMachine(w http.ResponseWriter, r *http.Request) {
	var req dto.SlotMachineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.d.Games.SlotMachine(r.Context(), req.UserID, req.Bet)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := gameResponse(res.Settlement)
	out.Bet, out.Reels, out.Won = req.Bet, res.Reels, &res.Won
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) openLootbox(w http.ResponseWriter, r *http.Request) {
	var req dto.LootboxRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.d.Games.OpenLootbox(r.Context(), req.UserID, req.Cost)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := gameResponse(res.Settlement)
	won := res.WinAmount > 0
	out.Cost, out.Prize, out.Won = res.Cost, res.Prize.Tier, &won
	writeJSON(w, http.StatusOK, out)
}
