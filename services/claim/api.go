package claim

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rub-lamp/oracle_layer/internal/httputil"
	"github.com/rub-lamp/oracle_layer/internal/logging"
)

// RegisterRoutes mounts the claim endpoint on r.
func (s *Service) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/claim-reward", s.handleClaim).Methods(http.MethodPost)
}

type claimRequest struct {
	WishID        string `json:"wishId"`
	WalletAddress string `json:"walletAddress"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

func (s *Service) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	result, err := s.Claim(r.Context(), Request{WishID: req.WishID, WalletAddress: req.WalletAddress})
	if err != nil {
		se := ToServiceError(err)
		retryable, _ := se.Details["retryable"].(bool)
		httputil.WriteJSON(w, se.HTTPStatus, errorResponse{
			Error:     se.Message,
			Code:      string(se.Code),
			Retryable: retryable,
			TraceID:   logging.GetTraceID(r.Context()),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
