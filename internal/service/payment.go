package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cafezao-da-computacao/cafezao/internal/model"
	"github.com/cafezao-da-computacao/cafezao/internal/watch"
)

// PaymentCreator inserts pending payments.
type PaymentCreator interface {
	Create(ctx context.Context, userID, userName string, req model.SubmitPaymentRequest) (*model.Payment, error)
}

// PaymentService handles the member side of payments: submitting proof and
// reading the payment instructions (price, pix key).
type PaymentService struct {
	payments PaymentCreator
	users    UserStore
	settings SettingsStore
	hub      *watch.Hub
	log      *zap.Logger
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(payments PaymentCreator, users UserStore, settings SettingsStore, hub *watch.Hub, log *zap.Logger) *PaymentService {
	return &PaymentService{
		payments: payments,
		users:    users,
		settings: settings,
		hub:      hub,
		log:      log,
	}
}

// Submit records a pending payment and moves the payer's subscription to
// evaluating until an admin reviews it.
func (s *PaymentService) Submit(ctx context.Context, user *model.User, req model.SubmitPaymentRequest) (*model.Payment, error) {
	payment, err := s.payments.Create(ctx, user.ID, user.Name, req)
	if err != nil {
		return nil, fmt.Errorf("submit payment: %w", err)
	}

	// Already-active subscribers keep their status; they are paying ahead.
	if user.SubscriptionStatus != model.SubscriptionActive {
		if err := s.users.SetSubscription(ctx, user.ID, model.SubscriptionEvaluating, nil); err != nil {
			s.log.Warn("mark subscription evaluating",
				zap.String("user_id", user.ID), zap.Error(err))
		} else {
			s.publishProfile(ctx, user.ID)
		}
	}

	s.log.Info("payment submitted",
		zap.String("payment_id", payment.ID),
		zap.String("user_id", user.ID),
		zap.Float64("amount", payment.Amount))
	return payment, nil
}

// Instructions returns what the payment screen shows: the subscription price
// and the pix key to pay to.
func (s *PaymentService) Instructions(ctx context.Context) (*model.SystemSettings, error) {
	return s.settings.Get(ctx)
}

func (s *PaymentService) publishProfile(ctx context.Context, userID string) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return
	}
	s.hub.Publish(watch.Update{
		Topic: watch.ProfileTopic(userID),
		Kind:  "profile",
		Data:  user,
	})
}
