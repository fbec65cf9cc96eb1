package hoardsvc

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	svcerrors "github.com/rub-lamp/oracle_layer/internal/errors"
	"github.com/rub-lamp/oracle_layer/internal/hoard"
	"github.com/rub-lamp/oracle_layer/internal/httputil"
)

// RegisterRoutes mounts the public hoard endpoint.
func (s *Service) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/hoard", s.handleGet).Methods(http.MethodGet)
}

// RegisterAdminRoutes mounts the operator endpoints on an authenticated router.
func (s *Service) RegisterAdminRoutes(admin *mux.Router) {
	admin.HandleFunc("/hoard/init", s.handleInit).Methods(http.MethodPost)
	admin.HandleFunc("/hoard/refill", s.handleRefill).Methods(http.MethodPost)
}

// AccountView is the JSON form of the hoard account.
type AccountView struct {
	Initialized           bool       `json:"initialized"`
	Authority             string     `json:"authority,omitempty"`
	TotalPayouts          uint64     `json:"total_payouts"`
	Reserve               uint64     `json:"reserve"`
	AccountSpace          int        `json:"account_space"`
	RentExemptionLamports uint64     `json:"rent_exemption_lamports"`
	AccountData           string     `json:"account_data"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

// NewAccountView renders h.
func NewAccountView(h hoard.Hoard, updatedAt time.Time) (AccountView, error) {
	data, err := h.State.MarshalBinary()
	if err != nil {
		return AccountView{}, err
	}
	view := AccountView{
		Initialized:           h.State.IsInitialized,
		TotalPayouts:          h.State.TotalPayouts,
		Reserve:               h.Reserve,
		AccountSpace:          hoard.AccountSpace(),
		RentExemptionLamports: hoard.RentExemptionLamports(hoard.AccountSpace()),
		AccountData:           base64.StdEncoding.EncodeToString(data),
	}
	if !h.State.Authority.IsZero() {
		view.Authority = h.State.Authority.String()
	}
	if !updatedAt.IsZero() {
		view.UpdatedAt = &updatedAt
	}
	return view, nil
}

type refillRequest struct {
	Amount uint64 `json:"amount"`
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Load(r.Context())
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("load hoard")
		httputil.WriteError(w, r, mapError(err))
		return
	}
	s.writeView(w, r, snap.Hoard, snap.UpdatedAt)
}

func (s *Service) handleInit(w http.ResponseWriter, r *http.Request) {
	h, err := s.Initialize(r.Context())
	if err != nil {
		httputil.WriteError(w, r, mapError(err))
		return
	}
	s.writeView(w, r, h, s.now())
}

func (s *Service) handleRefill(w http.ResponseWriter, r *http.Request) {
	var req refillRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Amount == 0 {
		httputil.BadRequest(w, "amount must be positive")
		return
	}
	h, err := s.Refill(r.Context(), req.Amount)
	if err != nil {
		httputil.WriteError(w, r, mapError(err))
		return
	}
	s.writeView(w, r, h, s.now())
}

func (s *Service) writeView(w http.ResponseWriter, r *http.Request, h hoard.Hoard, updatedAt time.Time) {
	view, err := NewAccountView(h, updatedAt)
	if err != nil {
		httputil.WriteError(w, r, svcerrors.Internal("encode hoard", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNoAuthority):
		return svcerrors.Wrap(err, svcerrors.CodeNotConfigured, "Hoard authority not configured", http.StatusInternalServerError)
	case errors.Is(err, hoard.ErrAlreadyInitialized),
		errors.Is(err, hoard.ErrUninitialized),
		errors.Is(err, hoard.ErrInsufficientReserve):
		return svcerrors.Wrap(err, svcerrors.CodeConflict, err.Error(), http.StatusConflict)
	case errors.Is(err, hoard.ErrUnauthorized):
		return svcerrors.Wrap(err, svcerrors.CodeForbidden, err.Error(), http.StatusForbidden)
	case errors.Is(err, hoard.ErrZeroAmount),
		errors.Is(err, hoard.ErrOverflow),
		errors.Is(err, hoard.ErrHoardCapExceeded),
		errors.Is(err, hoard.ErrInvalidScore),
		errors.Is(err, hoard.ErrUnworthyScore),
		errors.Is(err, hoard.ErrInvalidInstruction):
		return svcerrors.Wrap(err, svcerrors.CodeBadRequest, err.Error(), http.StatusBadRequest)
	default:
		return svcerrors.Internal("hoard unavailable", err)
	}
}
