// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cafezao-da-computacao/cafezao/internal/apperror"
	"github.com/cafezao-da-computacao/cafezao/internal/auth"
	"github.com/cafezao-da-computacao/cafezao/internal/dispense"
	"github.com/cafezao-da-computacao/cafezao/internal/dispenser"
	"github.com/cafezao-da-computacao/cafezao/internal/model"
	"github.com/cafezao-da-computacao/cafezao/internal/repository"
	"github.com/cafezao-da-computacao/cafezao/internal/service"
)

// Handler holds all HTTP handlers for the coffee service API.
type Handler struct {
	auth          *auth.Auth
	coffee        *service.CoffeeService
	payments      *service.PaymentService
	notifications *service.NotificationService
	validate      *validator.Validate
	log           *zap.Logger
}

// New constructs a Handler.
func New(a *auth.Auth, coffee *service.CoffeeService, payments *service.PaymentService, notifications *service.NotificationService, validate *validator.Validate, log *zap.Logger) *Handler {
	return &Handler{
		auth:          a,
		coffee:        coffee,
		payments:      payments,
		notifications: notifications,
		validate:      validate,
		log:           log,
	}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeAndValidate decodes the body and runs struct validation, writing the
// response itself on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.log.Warn("validation failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, apperror.CustomValidationError(err))
		return false
	}
	return true
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, token, err := h.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, model.LoginResponse{
		Token:              token,
		UserID:             user.ID,
		Name:               user.Name,
		Role:               user.Role,
		SubscriptionStatus: user.SubscriptionStatus,
	})
}

// Logout handles POST /auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if len(token) > 7 {
		token = token[7:]
	}
	if err := h.auth.Logout(r.Context(), token); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me handles GET /me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	writeJSON(w, http.StatusOK, user)
}

// ─── Dispense flow ────────────────────────────────────────────────────────────

// RequestDispense handles POST /dispense
// Starts a new dispense attempt and returns the confirmation code with its
// countdown.
func (h *Handler) RequestDispense(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	snap, err := h.coffee.Request(r.Context(), user.ID)
	if err != nil {
		h.writeDispenseError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// ConfirmDispense handles POST /dispense/confirm
func (h *Handler) ConfirmDispense(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	var req model.ConfirmRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	event, err := h.coffee.Confirm(r.Context(), user.ID, req)
	if err != nil {
		h.writeDispenseError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// CancelDispense handles POST /dispense/cancel
func (h *Handler) CancelDispense(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	if err := h.coffee.Cancel(r.Context(), user.ID); err != nil {
		h.writeDispenseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dispense.Snapshot{State: dispense.StateCancelled})
}

// DispenseStatus handles GET /dispense
func (h *Handler) DispenseStatus(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	writeJSON(w, http.StatusOK, h.coffee.Status(user.ID))
}

// writeDispenseError maps flow and endpoint failures onto user-facing
// responses. Connectivity failures get a remediation hint; rejections carry
// the endpoint's own detail.
func (h *Handler) writeDispenseError(w http.ResponseWriter, err error) {
	var rejected *dispenser.RejectedError
	switch {
	case errors.Is(err, service.ErrSubscriptionRequired):
		writeError(w, http.StatusForbidden, "your subscription is not active")
	case errors.Is(err, service.ErrDispenserDisabled):
		writeError(w, http.StatusServiceUnavailable, "the coffee machine is currently disabled")
	case errors.Is(err, dispense.ErrAttemptInProgress):
		writeError(w, http.StatusConflict, "a dispense attempt is already in progress")
	case errors.Is(err, dispense.ErrNoActiveCode):
		writeError(w, http.StatusNotFound, "no active confirmation code")
	case errors.Is(err, dispense.ErrCodeExpired):
		writeError(w, http.StatusGone, "the confirmation code expired, request a new one")
	case errors.Is(err, dispense.ErrMalformedCode), errors.Is(err, dispense.ErrBadQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &rejected):
		writeError(w, http.StatusBadRequest, "the machine rejected the code: "+rejected.Detail)
	case errors.Is(err, dispenser.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "could not reach the coffee machine - check its connection and try again")
	default:
		h.log.Error("dispense operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "something went wrong, try again")
	}
}

// ─── History, payments, notifications ─────────────────────────────────────────

// History handles GET /coffees
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	events, err := h.coffee.History(r.Context(), user.ID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if events == nil {
		events = []model.CoffeeEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// PaymentInstructions handles GET /payments/instructions
func (h *Handler) PaymentInstructions(w http.ResponseWriter, r *http.Request) {
	settings, err := h.payments.Instructions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load payment instructions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscription_price": settings.SubscriptionPrice,
		"pix_key":            settings.PixKey,
	})
}

// SubmitPayment handles POST /payments
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	var req model.SubmitPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	payment, err := h.payments.Submit(r.Context(), user, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to submit payment")
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// Notifications handles GET /notifications
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	notifications, err := h.notifications.List(r.Context(), user.ID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
