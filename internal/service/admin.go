package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cafezao-da-computacao/cafezao/internal/apperror"
	"github.com/cafezao-da-computacao/cafezao/internal/model"
	"github.com/cafezao-da-computacao/cafezao/internal/watch"
)

// PaymentStore is the slice of the payment repository the admin service needs.
type PaymentStore interface {
	GetByID(ctx context.Context, id string) (*model.Payment, error)
	ListByStatus(ctx context.Context, status model.PaymentStatus) ([]model.Payment, error)
	SetStatus(ctx context.Context, id string, status model.PaymentStatus, reviewedAt time.Time) error
}

// SettingsWriter reads and overwrites the singleton system settings.
type SettingsWriter interface {
	Get(ctx context.Context) (*model.SystemSettings, error)
	Update(ctx context.Context, req model.UpdateSettingsRequest) (*model.SystemSettings, error)
}

// AdminService implements the payment/subscription mutations exposed to the
// admin surface. These are two-record mutations with no shared transaction:
// when the second write fails after the first landed, the failure is
// reported as a PartialWriteError naming both halves.
type AdminService struct {
	users    UserStore
	payments PaymentStore
	coffees  CoffeeStore
	settings SettingsWriter
	hub      *watch.Hub
	log      *zap.Logger
	now      func() time.Time
}

// NewAdminService constructs an AdminService.
func NewAdminService(users UserStore, payments PaymentStore, coffees CoffeeStore, settings SettingsWriter, hub *watch.Hub, log *zap.Logger) *AdminService {
	return &AdminService{
		users:    users,
		payments: payments,
		coffees:  coffees,
		settings: settings,
		hub:      hub,
		log:      log,
		now:      time.Now,
	}
}

// ApprovePayment marks the payment approved and activates the payer's
// subscription for exactly thirty days from the approval instant. Approving
// twice simply overwrites the window with a fresh one.
func (s *AdminService) ApprovePayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}

	approvedAt := s.now().UTC()
	if err := s.payments.SetStatus(ctx, paymentID, model.PaymentApproved, approvedAt); err != nil {
		return nil, fmt.Errorf("approve payment: %w", err)
	}

	endDate := approvedAt.Add(model.SubscriptionWindow)
	if err := s.users.SetSubscription(ctx, payment.UserID, model.SubscriptionActive, &endDate); err != nil {
		return nil, &apperror.PartialWriteError{
			Done:   "payment approval",
			Failed: "subscription activation",
			Err:    err,
		}
	}

	payment.Status = model.PaymentApproved
	payment.ReviewedAt = &approvedAt
	s.log.Info("payment approved",
		zap.String("payment_id", paymentID),
		zap.String("user_id", payment.UserID),
		zap.Time("subscription_end", endDate))
	s.publishProfile(ctx, payment.UserID)
	return payment, nil
}

// RejectPayment marks the payment rejected and moves the payer's
// subscription to the rejected state so the client can explain why the user
// is not active.
func (s *AdminService) RejectPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}

	rejectedAt := s.now().UTC()
	if err := s.payments.SetStatus(ctx, paymentID, model.PaymentRejected, rejectedAt); err != nil {
		return nil, fmt.Errorf("reject payment: %w", err)
	}

	if err := s.users.SetSubscription(ctx, payment.UserID, model.SubscriptionRejected, nil); err != nil {
		return nil, &apperror.PartialWriteError{
			Done:   "payment rejection",
			Failed: "subscription update",
			Err:    err,
		}
	}

	payment.Status = model.PaymentRejected
	payment.ReviewedAt = &rejectedAt
	s.log.Info("payment rejected",
		zap.String("payment_id", paymentID),
		zap.String("user_id", payment.UserID))
	s.publishProfile(ctx, payment.UserID)
	return payment, nil
}

// ToggleSubscription flips a user between active and inactive. Activation
// recomputes the thirty-day window from now.
func (s *AdminService) ToggleSubscription(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user.SubscriptionStatus == model.SubscriptionActive {
		if err := s.users.SetSubscription(ctx, userID, model.SubscriptionInactive, nil); err != nil {
			return nil, fmt.Errorf("deactivate subscription: %w", err)
		}
		user.SubscriptionStatus = model.SubscriptionInactive
		user.SubscriptionEndDate = nil
	} else {
		endDate := s.now().UTC().Add(model.SubscriptionWindow)
		if err := s.users.SetSubscription(ctx, userID, model.SubscriptionActive, &endDate); err != nil {
			return nil, fmt.Errorf("activate subscription: %w", err)
		}
		user.SubscriptionStatus = model.SubscriptionActive
		user.SubscriptionEndDate = &endDate
	}

	s.log.Info("subscription toggled",
		zap.String("user_id", userID),
		zap.String("status", string(user.SubscriptionStatus)))
	s.publishProfile(ctx, userID)
	return user, nil
}

// ListPayments returns payments in the given state for the review queue.
func (s *AdminService) ListPayments(ctx context.Context, status model.PaymentStatus) ([]model.Payment, error) {
	return s.payments.ListByStatus(ctx, status)
}

// SweepExpired deactivates every active subscription whose window has
// passed. Runs on a schedule; safe to run at any time.
func (s *AdminService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.users.ListExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}

	swept := 0
	for _, user := range expired {
		if err := s.users.SetSubscription(ctx, user.ID, model.SubscriptionInactive, user.SubscriptionEndDate); err != nil {
			s.log.Warn("deactivate expired subscription",
				zap.String("user_id", user.ID), zap.Error(err))
			continue
		}
		swept++
		s.publishProfile(ctx, user.ID)
	}
	if swept > 0 {
		s.log.Info("expired subscriptions swept", zap.Int("count", swept))
	}
	return swept, nil
}

// StartSweeper schedules SweepExpired on the given cron expression and
// returns the running scheduler so the caller can stop it on shutdown.
func (s *AdminService) StartSweeper(schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.SweepExpired(ctx); err != nil {
			s.log.Error("subscription sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	return c, nil
}

// GetSettings returns the system settings.
func (s *AdminService) GetSettings(ctx context.Context) (*model.SystemSettings, error) {
	return s.settings.Get(ctx)
}

// UpdateSettings overwrites the system settings and pushes the change to
// subscribers. Super-admin only; the handler enforces the role.
func (s *AdminService) UpdateSettings(ctx context.Context, req model.UpdateSettingsRequest) (*model.SystemSettings, error) {
	settings, err := s.settings.Update(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	s.hub.Publish(watch.Update{Topic: watch.Settings, Kind: "settings", Data: settings})
	s.log.Info("system settings updated",
		zap.Float64("subscription_price", settings.SubscriptionPrice),
		zap.Bool("dispenser_enabled", settings.DispenserEnabled))
	return settings, nil
}

// DashboardStats summarises the admin home screen.
type DashboardStats struct {
	CoffeesToday    int `json:"coffees_today"`
	PendingPayments int `json:"pending_payments"`
}

// Dashboard counts today's dispenses and the pending review queue.
func (s *AdminService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	now := s.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	coffees, err := s.coffees.CountSince(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("count coffees: %w", err)
	}
	pending, err := s.payments.ListByStatus(ctx, model.PaymentPending)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	return &DashboardStats{CoffeesToday: coffees, PendingPayments: len(pending)}, nil
}

func (s *AdminService) publishProfile(ctx context.Context, userID string) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.log.Warn("refresh profile for publish", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.hub.Publish(watch.Update{
		Topic: watch.ProfileTopic(userID),
		Kind:  "profile",
		Data:  user,
	})
}
