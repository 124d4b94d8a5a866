// Package service implements business logic and orchestration between HTTP
// handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cafezao-da-computacao/cafezao/internal/dispense"
	"github.com/cafezao-da-computacao/cafezao/internal/model"
	"github.com/cafezao-da-computacao/cafezao/internal/watch"
)

// ErrSubscriptionRequired is returned when a dispense request arrives from a
// user whose subscription is not active. The guard runs before any call to
// the dispenser endpoint.
var ErrSubscriptionRequired = errors.New("active subscription required")

// ErrDispenserDisabled is returned when an admin has switched the machine
// off in system settings.
var ErrDispenserDisabled = errors.New("dispenser is disabled")

// UserStore is the slice of the user repository the services need.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	SetSubscription(ctx context.Context, id string, status model.SubscriptionStatus, endDate *time.Time) error
	ListExpired(ctx context.Context, now time.Time) ([]model.User, error)
}

// CoffeeStore lists recorded dispense events.
type CoffeeStore interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]model.CoffeeEvent, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// SettingsStore reads the singleton system settings.
type SettingsStore interface {
	Get(ctx context.Context) (*model.SystemSettings, error)
}

// CoffeeService drives the dispense-confirmation flow and the user's
// transaction history.
type CoffeeService struct {
	users    UserStore
	coffees  CoffeeStore
	settings SettingsStore
	flows    *dispense.Manager
	hub      *watch.Hub
	log      *zap.Logger
	now      func() time.Time
}

// NewCoffeeService constructs a CoffeeService.
func NewCoffeeService(users UserStore, coffees CoffeeStore, settings SettingsStore, flows *dispense.Manager, hub *watch.Hub, log *zap.Logger) *CoffeeService {
	return &CoffeeService{
		users:    users,
		coffees:  coffees,
		settings: settings,
		flows:    flows,
		hub:      hub,
		log:      log,
		now:      time.Now,
	}
}

// Request starts a new dispense attempt for the user. The subscription and
// machine-enabled guards run before any network call is issued.
func (s *CoffeeService) Request(ctx context.Context, userID string) (*dispense.Snapshot, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !settings.DispenserEnabled {
		return nil, ErrDispenserDisabled
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.CanDispense(s.now()) {
		return nil, ErrSubscriptionRequired
	}

	snap, err := s.flows.Start(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.log.Info("dispense code issued",
		zap.String("user_id", userID),
		zap.Int("remaining_seconds", snap.RemainingSeconds))
	return snap, nil
}

// Confirm submits the entered code. On success exactly one coffee event and
// one counter update have been written, and the refreshed profile is pushed
// to the user's subscribers.
func (s *CoffeeService) Confirm(ctx context.Context, userID string, req model.ConfirmRequest) (*model.CoffeeEvent, error) {
	event, err := s.flows.Confirm(ctx, userID, req.Code, req.Quantity)
	if err != nil {
		return nil, err
	}

	s.log.Info("dispense confirmed",
		zap.String("user_id", userID),
		zap.String("quantity", string(event.Quantity)))
	s.publishProfile(ctx, userID)
	return event, nil
}

// Cancel abandons the current attempt. The in-memory code state is cleared
// even when the best-effort cancel call to the machine fails.
func (s *CoffeeService) Cancel(ctx context.Context, userID string) error {
	return s.flows.Cancel(ctx, userID)
}

// Status reports the user's current flow state.
func (s *CoffeeService) Status(userID string) dispense.Snapshot {
	return s.flows.Status(userID)
}

// History returns the user's dispense events, newest first.
func (s *CoffeeService) History(ctx context.Context, userID string, limit int) ([]model.CoffeeEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.coffees.ListByUser(ctx, userID, limit)
}

func (s *CoffeeService) publishProfile(ctx context.Context, userID string) {
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
