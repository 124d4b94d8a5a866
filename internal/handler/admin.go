package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cafezao-da-computacao/cafezao/internal/apperror"
	"github.com/cafezao-da-computacao/cafezao/internal/model"
	"github.com/cafezao-da-computacao/cafezao/internal/repository"
	"github.com/cafezao-da-computacao/cafezao/internal/service"
)

// AdminHandler holds HTTP handlers for the admin surface.
type AdminHandler struct {
	admin         *service.AdminService
	notifications *service.NotificationService
	h             *Handler
	log           *zap.Logger
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(admin *service.AdminService, notifications *service.NotificationService, h *Handler, log *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, notifications: notifications, h: h, log: log}
}

// ListPayments handles GET /admin/payments?status=pending
func (a *AdminHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	status := model.PaymentStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.PaymentPending
	}
	if status != model.PaymentPending && status != model.PaymentApproved && status != model.PaymentRejected {
		writeError(w, http.StatusBadRequest, "unknown payment status")
		return
	}

	payments, err := a.admin.ListPayments(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list payments")
		return
	}
	if payments == nil {
		payments = []model.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

// ApprovePayment handles POST /admin/payments/{id}/approve
func (a *AdminHandler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	payment, err := a.admin.ApprovePayment(r.Context(), id)
	if err != nil {
		a.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// RejectPayment handles POST /admin/payments/{id}/reject
func (a *AdminHandler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	payment, err := a.admin.RejectPayment(r.Context(), id)
	if err != nil {
		a.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// ToggleSubscription handles POST /admin/users/{id}/subscription/toggle
func (a *AdminHandler) ToggleSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := a.admin.ToggleSubscription(r.Context(), id)
	if err != nil {
		a.writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Notify handles POST /admin/notifications
func (a *AdminHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req model.NotifyRequest
	if !a.h.decodeAndValidate(w, r, &req) {
		return
	}

	n, err := a.notifications.Notify(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to publish notification")
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// Dashboard handles GET /admin/dashboard
func (a *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := a.admin.Dashboard(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetSettings handles GET /admin/settings
func (a *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.admin.GetSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /admin/settings
func (a *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateSettingsRequest
	if !a.h.decodeAndValidate(w, r, &req) {
		return
	}

	settings, err := a.admin.UpdateSettings(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// writeMutationError distinguishes a half-applied two-document mutation from
// an ordinary failure so the operator knows state needs manual correction.
func (a *AdminHandler) writeMutationError(w http.ResponseWriter, err error) {
	var partial *apperror.PartialWriteError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case errors.As(err, &partial):
		a.log.Error("partial admin mutation", zap.Error(partial))
		writeError(w, http.StatusInternalServerError, partial.Error())
	default:
		a.log.Error("admin mutation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "operation failed, try again")
	}
}
