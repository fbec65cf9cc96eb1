package ledger

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rub-lamp/oracle_layer/internal/httputil"
)

// RegisterRoutes mounts the ledger endpoints on r.
func (s *Service) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/winners/live", s.handleLive).Methods(http.MethodGet)
	r.HandleFunc("/winners/legends", s.handleLegends).Methods(http.MethodGet)
	r.HandleFunc("/hall-of-worthy", s.handleHall).Methods(http.MethodGet)
	r.Handle("/ws/winners", s.hub).Methods(http.MethodGet)
}

type winnersResponse struct {
	Winners []Winner `json:"winners"`
	Count   int      `json:"count"`
}

func (s *Service) handleLive(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	winners, err := s.Live(r.Context(), limit)
	s.respond(w, r, winners, err)
}

func (s *Service) handleLegends(w http.ResponseWriter, r *http.Request) {
	winners, err := s.Legends(r.Context())
	s.respond(w, r, winners, err)
}

func (s *Service) handleHall(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	winners, err := s.Hall(r.Context(), limit)
	s.respond(w, r, winners, err)
}

func (s *Service) respond(w http.ResponseWriter, r *http.Request, winners []Winner, err error) {
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("ledger query failed")
		httputil.InternalError(w, "failed to load winners")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, winnersResponse{Winners: winners, Count: len(winners)})
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		httputil.BadRequest(w, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
