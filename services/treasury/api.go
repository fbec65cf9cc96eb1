package treasury

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rub-lamp/oracle_layer/internal/httputil"
)

// RegisterRoutes mounts the stats endpoints on r.
func (s *Service) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/treasury-stats", s.handleTreasuryStats).Methods(http.MethodGet)
	r.HandleFunc("/solana-stats", s.handleSolanaStats).Methods(http.MethodGet)
}

// Both endpoints answer 200 when degraded.
func (s *Service) handleTreasuryStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stats, _ := s.Stats(r.Context(), q.Get("tokenMint"), q.Get("treasuryWallet"))
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (s *Service) handleSolanaStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.Network(r.Context()))
}
