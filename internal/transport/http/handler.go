package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tally/internal/model"
	"tally/internal/service"
)

type Handler struct {
	svc    service.LedgerService
	logger *zap.Logger
}

func NewHandler(svc service.LedgerService, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/transaction", func(r chi.Router) {
		r.Post("/use", h.UseBalance)
		r.Post("/cancel", h.CancelBalance)
		r.Get("/{transactionId}", h.QueryTransaction)
	})

	r.Route("/account", func(r chi.Router) {
		r.Post("/", h.CreateAccount)
		r.Delete("/", h.CloseAccount)
		r.Get("/", h.ListAccounts)
	})

	r.Post("/user", h.CreateUser)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) UseBalance(w http.ResponseWriter, r *http.Request) {
	var req model.UseBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.UseBalance(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) CancelBalance(w http.ResponseWriter, r *http.Request) {
	var req model.CancelBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.CancelBalance(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) QueryTransaction(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.QueryTransaction(r.Context(), chi.URLParam(r, "transactionId"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.CreateUser(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, u)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	info, err := h.svc.CreateAccount(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, info)
}

func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	var req model.CloseAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	info, err := h.svc.CloseAccount(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, info)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		h.respondError(w, model.ErrInvalidRequest)
		return
	}
	accounts, err := h.svc.ListAccounts(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, accounts)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, model.ErrInvalidRequest)
		return false
	}
	return true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.Error("failed to write response", zap.Error(err))
		}
	}
}

// respondError renders err as {errorCode, errorMessage}. Internal failures never leak their cause.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	e := model.AsError(err)
	status := statusFor(e)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.respondJSON(w, status, e)
}

func statusFor(e *model.Error) int {
	switch {
	case errors.Is(e, model.ErrInvalidRequest):
		return http.StatusBadRequest
	case model.IsLookupMiss(e):
		return http.StatusNotFound
	case errors.Is(e, model.ErrLockTimeout):
		return http.StatusLocked
	case errors.Is(e, model.ErrUserAccountMismatch),
		errors.Is(e, model.ErrTransactionAccountMismatch),
		errors.Is(e, model.ErrTransactionAlreadyCanceled),
		errors.Is(e, model.ErrAccountClosed),
		errors.Is(e, model.ErrMaxAccountsPerUser):
		return http.StatusConflict
	case errors.Is(e, model.ErrInternal):
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}
