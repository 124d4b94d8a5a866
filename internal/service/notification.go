package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cafezao-da-computacao/cafezao/internal/model"
	"github.com/cafezao-da-computacao/cafezao/internal/watch"
)

// NotificationStore persists notifications.
type NotificationStore interface {
	Create(ctx context.Context, userID, title, body string) (*model.Notification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
}

// NotificationService publishes and lists notifications across the per-user
// and global channels.
type NotificationService struct {
	store NotificationStore
	hub   *watch.Hub
	log   *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(store NotificationStore, hub *watch.Hub, log *zap.Logger) *NotificationService {
	return &NotificationService{store: store, hub: hub, log: log}
}

// Notify persists a notification and pushes it to live subscribers. An
// empty UserID publishes on the global channel.
func (s *NotificationService) Notify(ctx context.Context, req model.NotifyRequest) (*model.Notification, error) {
	n, err := s.store.Create(ctx, req.UserID, req.Title, req.Body)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	topic := watch.GlobalNotifications
	if !n.Global {
		topic = watch.NotificationsTopic(n.UserID)
	}
	s.hub.Publish(watch.Update{Topic: topic, Kind: "notification", Data: n})

	s.log.Info("notification published",
		zap.String("id", n.ID),
		zap.Bool("global", n.Global))
	return n, nil
}

// List returns the merged per-user and global channels, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListForUser(ctx, userID, limit)
}
