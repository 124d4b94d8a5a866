package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cafezao-da-computacao/cafezao/internal/dispense"
	"github.com/cafezao-da-computacao/cafezao/internal/model"
	"github.com/cafezao-da-computacao/cafezao/internal/repository"
	"github.com/cafezao-da-computacao/cafezao/internal/watch"
)

// ─── Shared fakes ─────────────────────────────────────────────────────────────

type subscriptionWrite struct {
	userID  string
	status  model.SubscriptionStatus
	endDate *time.Time
}

type fakeUsers struct {
	users  map[string]*model.User
	setErr error
	writes []subscriptionWrite
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*model.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUsers) SetSubscription(_ context.Context, id string, status model.SubscriptionStatus, endDate *time.Time) error {
	if f.setErr != nil {
		return f.setErr
	}
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.SubscriptionStatus = status
	u.SubscriptionEndDate = endDate
	f.writes = append(f.writes, subscriptionWrite{userID: id, status: status, endDate: endDate})
	return nil
}

func (f *fakeUsers) ListExpired(_ context.Context, now time.Time) ([]model.User, error) {
	var expired []model.User
	for _, u := range f.users {
		if u.SubscriptionStatus == model.SubscriptionActive &&
			u.SubscriptionEndDate != nil && u.SubscriptionEndDate.Before(now) {
			expired = append(expired, *u)
		}
	}
	return expired, nil
}

type fakeCoffees struct {
	events []model.CoffeeEvent
	recErr error
}

func (f *fakeCoffees) Record(_ context.Context, userID string, quantity model.Quantity, at time.Time) (*model.CoffeeEvent, error) {
	if f.recErr != nil {
		return nil, f.recErr
	}
	event := model.CoffeeEvent{
		ID:        "event-1",
		UserID:    userID,
		Quantity:  quantity,
		Status:    model.CoffeeCompleted,
		CreatedAt: at,
	}
	f.events = append(f.events, event)
	return &event, nil
}

func (f *fakeCoffees) ListByUser(_ context.Context, userID string, _ int) ([]model.CoffeeEvent, error) {
	var out []model.CoffeeEvent
	for _, e := range f.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeCoffees) CountSince(_ context.Context, since time.Time) (int, error) {
	n := 0
	for _, e := range f.events {
		if !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type fakeSettings struct {
	settings model.SystemSettings
}

func (f *fakeSettings) Get(context.Context) (*model.SystemSettings, error) {
	copied := f.settings
	return &copied, nil
}

func (f *fakeSettings) Update(_ context.Context, req model.UpdateSettingsRequest) (*model.SystemSettings, error) {
	f.settings = model.SystemSettings{
		SubscriptionPrice: req.SubscriptionPrice,
		PixKey:            req.PixKey,
		DispenserEnabled:  req.DispenserEnabled,
		UpdatedAt:         time.Now().UTC(),
	}
	copied := f.settings
	return &copied, nil
}

type fakeMachine struct {
	sequence []int
	valErr   error
	genCalls int
}

func (f *fakeMachine) GenerateSequence(context.Context) ([]int, error) {
	f.genCalls++
	return f.sequence, nil
}

func (f *fakeMachine) ValidateSequence(context.Context, string, model.Quantity) error {
	return f.valErr
}

func (f *fakeMachine) CancelSequence(context.Context) error { return nil }

func activeUser(id string) *model.User {
	end := time.Now().Add(10 * 24 * time.Hour)
	return &model.User{
		ID:                  id,
		Name:                "Ana",
		Role:                model.RoleUser,
		SubscriptionStatus:  model.SubscriptionActive,
		SubscriptionEndDate: &end,
	}
}

func newCoffeeService(users *fakeUsers, coffees *fakeCoffees, machine *fakeMachine, enabled bool) (*CoffeeService, *watch.Hub) {
	log := zap.NewNop()
	hub := watch.NewHub(log)
	flows := dispense.NewManager(machine, coffees, log, 60*time.Second)
	settings := &fakeSettings{settings: model.SystemSettings{DispenserEnabled: enabled}}
	return NewCoffeeService(users, coffees, settings, flows, hub, log), hub
}

// ─── Tests ────────────────────────────────────────────────────────────────────

func TestRequestRefusedForEveryNonActiveStatus(t *testing.T) {
	statuses := []model.SubscriptionStatus{
		model.SubscriptionInactive,
		model.SubscriptionEvaluating,
		model.SubscriptionRejected,
	}
	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			user := activeUser("u1")
			user.SubscriptionStatus = status
			machine := &fakeMachine{sequence: []int{1, 2, 3, 4}}
			svc, _ := newCoffeeService(newFakeUsers(user), &fakeCoffees{}, machine, true)

			_, err := svc.Request(context.Background(), "u1")
			assert.ErrorIs(t, err, ErrSubscriptionRequired)
			// The guard must precede the network call.
			assert.Equal(t, 0, machine.genCalls)
		})
	}
}

func TestRequestRefusedWhenWindowLapsed(t *testing.T) {
	user := activeUser("u1")
	past := time.Now().Add(-time.Hour)
	user.SubscriptionEndDate = &past
	machine := &fakeMachine{sequence: []int{1, 2, 3, 4}}
	svc, _ := newCoffeeService(newFakeUsers(user), &fakeCoffees{}, machine, true)

	_, err := svc.Request(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrSubscriptionRequired)
	assert.Equal(t, 0, machine.genCalls)
}

func TestRequestRefusedWhenDispenserDisabled(t *testing.T) {
	machine := &fakeMachine{sequence: []int{1, 2, 3, 4}}
	svc, _ := newCoffeeService(newFakeUsers(activeUser("u1")), &fakeCoffees{}, machine, false)

	_, err := svc.Request(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrDispenserDisabled)
	assert.Equal(t, 0, machine.genCalls)
}

func TestConfirmRecordsOnceAndPushesProfile(t *testing.T) {
	users := newFakeUsers(activeUser("u1"))
	coffees := &fakeCoffees{}
	machine := &fakeMachine{sequence: []int{1, 4, 2, 9}}
	svc, hub := newCoffeeService(users, coffees, machine, true)

	updates, cancel := hub.Subscribe(watch.ProfileTopic("u1"))
	defer cancel()

	snap, err := svc.Request(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "1429", snap.Code)

	event, err := svc.Confirm(context.Background(), "u1", model.ConfirmRequest{
		Code:     "1429",
		Quantity: model.QuarterLiter,
	})
	require.NoError(t, err)
	assert.Equal(t, model.QuarterLiter, event.Quantity)
	require.Len(t, coffees.events, 1)

	select {
	case update := <-updates:
		assert.Equal(t, "profile", update.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a profile update on the hub")
	}
}

func TestConfirmRejectionWritesNothing(t *testing.T) {
	users := newFakeUsers(activeUser("u1"))
	coffees := &fakeCoffees{}
	machine := &fakeMachine{sequence: []int{1, 4, 2, 9}, valErr: errors.New("invalid code")}
	svc, _ := newCoffeeService(users, coffees, machine, true)

	_, err := svc.Request(context.Background(), "u1")
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), "u1", model.ConfirmRequest{
		Code:     "1429",
		Quantity: model.QuarterLiter,
	})
	require.Error(t, err)
	assert.Empty(t, coffees.events)
	assert.Equal(t, dispense.StateIdle, svc.Status("u1").State)
}

func TestHistoryReturnsOwnEventsOnly(t *testing.T) {
	coffees := &fakeCoffees{events: []model.CoffeeEvent{
		{ID: "a", UserID: "u1", CreatedAt: time.Now()},
		{ID: "b", UserID: "u2", CreatedAt: time.Now()},
	}}
	svc, _ := newCoffeeService(newFakeUsers(activeUser("u1")), coffees, &fakeMachine{}, true)

	events, err := svc.History(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].ID)
}
