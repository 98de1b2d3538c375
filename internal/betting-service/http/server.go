package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/poll-betting-platform/internal/betting"
	"github.com/radieske/poll-betting-platform/internal/betting-service/dto"
	"github.com/radieske/poll-betting-platform/internal/betting-service/ws"
	"github.com/radieske/poll-betting-platform/internal/gambling"
	"github.com/radieske/poll-betting-platform/internal/ledger"
	"github.com/radieske/poll-betting-platform/internal/poll"
	"github.com/radieske/poll-betting-platform/internal/resolution"
	"github.com/radieske/poll-betting-platform/internal/stats"
	"github.com/radieske/poll-betting-platform/internal/wallet"
)

// Deps são os serviços de domínio expostos pela API. Hub é opcional.
type Deps struct {
	Polls    *poll.Service
	Bets     *betting.Engine
	Stats    *stats.Aggregator
	Resolver *resolution.Engine
	Games    *gambling.Service
	Wallet   *wallet.Service
	Hub      *ws.Hub
}

// Server expõe a API REST de enquetes, apostas e mini-games
type Server struct {
	log      *zap.Logger
	d        Deps
	adminKey string
}

// NewServer instancia o servidor; adminKey vazio desliga a proteção das rotas administrativas
func NewServer(log *zap.Logger, d Deps, adminKey string) *Server {
	return &Server{log: log, d: d, adminKey: adminKey}
}

// Router retorna o roteador HTTP com todas as rotas
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(withCORS)

	r.Route("/api/betting", func(r chi.Router) {
		r.Post("/place", s.placeBet)
		r.Get("/stats/{pollId}", s.getStats)
		r.Get("/user/{userId}/poll/{pollId}", s.userBets)
	})

	r.Route("/api/polls", func(r chi.Router) {
		r.Get("/", s.listPolls)
		r.Get("/search", s.searchPolls)
		r.Get("/{id}", s.getPoll)
		r.Get("/{id}/winner", s.getWinner)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/", s.createPoll)
			r.Delete("/{id}", s.deletePoll)
			r.Put("/{id}/options", s.updateOptions)
			r.Post("/{id}/resolve", s.resolvePoll)
		})
	})

	r.Route("/api/gambling", func(r chi.Router) {
		r.Get("/balance/{userId}", s.getBalance)
		r.Post("/coin-flip", s.coinFlip)
		r.Post("/dice-roll", s.diceRoll)
		r.Post("/slot-machine", s.slotMachine)
		r.Post("/open-lootbox", s.openLootbox)
	})

	r.Route("/api/wallet", func(r chi.Router) {
		r.Get("/{userId}", s.getWallet)
		r.With(s.requireAdmin).Post("/deposit", s.deposit)
	})

	if s.d.Hub != nil {
		r.Get("/ws/stats", s.d.Hub.HandleWS)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxBodyBytes = 1 << 20

// decodeJSON lê o corpo; em erro já responde 400
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request format"})
		return false
	}
	return true
}

// int64Param lê um parâmetro de rota numérico; em erro já responde 400
func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid " + name})
		return 0, false
	}
	return v, true
}

// writeError traduz erros de domínio em status HTTP.
// Detalhes internos vão para o log, nunca para o cliente.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ife *ledger.InsufficientFundsError
	switch {
	case errors.As(err, &ife):
		bal, req := ife.Balance, ife.Required
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Insufficient funds", CurrentBalance: &bal, Required: &req})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Insufficient funds"})
	case errors.Is(err, ledger.ErrInvalidOption):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid option"})
	case errors.Is(err, ledger.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrPollNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Poll not found"})
	case errors.Is(err, ledger.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "User not found"})
	case errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Not found"})
	case errors.Is(err, ledger.ErrPollClosed):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Poll closed"})
	case errors.Is(err, ledger.ErrAlreadyClosed):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Poll already closed"})
	case errors.Is(err, ledger.ErrResolutionInProgress):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Poll resolution in progress"})
	case errors.Is(err, ledger.ErrOptionsLocked):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Poll options cannot change after the first bet"})
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}
