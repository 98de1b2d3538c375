package httpapi

import (
	"net/http"
	"strconv"

	"github.com/radieske/poll-betting-platform/internal/betting-service/dto"
	"github.com/radieske/poll-betting-platform/internal/ledger"
	"github.com/radieske/poll-betting-platform/internal/poll"
)

func writePolls(w http.ResponseWriter, polls []ledger.Poll) {
	out := make([]dto.PollResponse, 0, len(polls))
	for _, p := range polls {
		out = append(out, dto.NewPollResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listPolls(w http.ResponseWriter, r *http.Request) {
	polls, err := s.d.Polls.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePolls(w, polls)
}

func (s *Server) searchPolls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	polls, err := s.d.Polls.Search(r.Context(), q.Get("q"), q.Get("category"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePolls(w, polls)
}

func (s *Server) getPoll(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	p, err := s.d.Polls.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewPollResponse(*p))
}

func (s *Server) createPoll(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.d.Polls.Create(r.Context(), poll.CreateInput{
		Question: req.Question,
		Options:  req.Options,
		Category: req.Category,
		EndsAt:   req.EndsAt,
		Status:   req.Status,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/polls/"+strconv.FormatInt(p.ID, 10))
	writeJSON(w, http.StatusCreated, dto.NewPollResponse(*p))
}

func (s *Server) deletePoll(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	if err := s.d.Polls.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateOptions(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	var req dto.UpdateOptionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.d.Polls.UpdateOptions(r.Context(), id, req.Options)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewPollResponse(*p))
}

// resolvePoll fecha a enquete, marca as apostas e paga os vencedores
func (s *Server) resolvePoll(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	var req dto.ResolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	sum, err := s.d.Resolver.ResolvePoll(r.Context(), id, req.WinningOption)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ResolveResponse{
		Success:       true,
		PollID:        sum.PollID,
		WinningOption: sum.WinningOption,
		WinnersCount:  sum.WinnersCount,
		TotalPaidOut:  sum.TotalPaidOut,
		TotalBets:     sum.TotalBets,
		FailedPayouts: sum.FailedPayouts(),
	})
}

func (s *Server) getWinner(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	win, err := s.d.Polls.Winner(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WinnerResponse{Resolved: win.Resolved, WinningOption: win.WinningOption})
}
