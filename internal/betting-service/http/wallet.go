package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/poll-betting-platform/internal/betting-service/dto"
)

// getWallet retorna saldo e lançamentos recentes (?limit=, padrão 50)
func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	bal, err := s.d.Wallet.GetBalance(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.d.Wallet.Entries(r.Context(), userID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := dto.WalletResponse{UserID: userID, Balance: bal, Entries: make([]dto.EntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, dto.EntryResponse{
			ID: e.ID, Type: e.Type, Amount: e.Amount, Ref: e.Ref, CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// deposit credita saldo manualmente (rota administrativa)
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	bal, err := s.d.Wallet.Deposit(r.Context(), req.UserID, req.Amount, req.Ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{UserID: req.UserID, Balance: bal})
}
