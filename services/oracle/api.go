package oracle

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rub-lamp/oracle_layer/internal/guard"
	"github.com/rub-lamp/oracle_layer/internal/httputil"
	"github.com/rub-lamp/oracle_layer/internal/store"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// RegisterRoutes mounts the public oracle endpoint.
func (s *Service) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/judge-wish", s.handleJudgeWish).Methods(http.MethodPost)
}

// RegisterAdminRoutes mounts the private wish log on an authenticated router.
func (s *Service) RegisterAdminRoutes(admin *mux.Router) {
	admin.HandleFunc("/wish-logs", s.handleWishLogs).Methods(http.MethodGet)
}

type judgeWishRequest struct {
	Wish          string `json:"wish"`
	WalletAddress string `json:"walletAddress"`
}

type wishLogsResponse struct {
	Logs  []store.AdminWishLog `json:"logs"`
	Count int                  `json:"count"`
}

func (s *Service) handleJudgeWish(w http.ResponseWriter, r *http.Request) {
	var req judgeWishRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	resp, err := s.Judge(r.Context(), Request{
		Wish:          req.Wish,
		WalletAddress: req.WalletAddress,
		IPAddress:     guard.ClientIP(r.Header),
	})
	switch {
	case errors.Is(err, ErrInvalidWish):
		httputil.BadRequest(w, "Missing or invalid wish")
	case errors.Is(err, ErrInvalidWallet):
		httputil.BadRequest(w, "Missing or invalid wallet address")
	case err != nil:
		httputil.WriteJSON(w, http.StatusInternalServerError, Response{
			Verdict: store.VerdictUnworthy,
			Message: SleepingMessage,
			Error:   err.Error(),
		})
	default:
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

func (s *Service) handleWishLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	logs, err := s.AdminLogs(r.Context(), limit)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("list admin wish logs")
		httputil.InternalError(w, "failed to load wish logs")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wishLogsResponse{Logs: logs, Count: len(logs)})
}
