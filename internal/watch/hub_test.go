package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishReachesOnlyMatchingTopics(t *testing.T) {
	hub := NewHub(zap.NewNop())

	profile, cancelProfile := hub.Subscribe(ProfileTopic("u1"))
	defer cancelProfile()
	global, cancelGlobal := hub.Subscribe(GlobalNotifications)
	defer cancelGlobal()

	hub.Publish(Update{Topic: ProfileTopic("u1"), Kind: "profile"})

	select {
	case update := <-profile:
		assert.Equal(t, "profile", update.Kind)
		assert.False(t, update.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("profile subscriber missed its update")
	}

	select {
	case <-global:
		t.Fatal("global subscriber received a profile update")
	default:
	}
}

func TestOneSubscriptionMayCoverSeveralTopics(t *testing.T) {
	hub := NewHub(zap.NewNop())

	updates, cancel := hub.Subscribe(ProfileTopic("u1"), GlobalNotifications, Settings)
	defer cancel()

	hub.Publish(Update{Topic: GlobalNotifications, Kind: "notification"})
	hub.Publish(Update{Topic: Settings, Kind: "settings"})

	kinds := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case update := <-updates:
			kinds[update.Kind] = true
		case <-time.After(time.Second):
			t.Fatal("missing update")
		}
	}
	assert.True(t, kinds["notification"])
	assert.True(t, kinds["settings"])
}

func TestCancelClosesChannelAndStopsDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop())

	updates, cancel := hub.Subscribe(Settings)
	cancel()

	_, open := <-updates
	assert.False(t, open)

	// Publishing after cancel must not panic or block.
	hub.Publish(Update{Topic: Settings, Kind: "settings"})

	// Cancel twice is safe.
	cancel()
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(zap.NewNop())

	updates, cancel := hub.Subscribe(Settings)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(Update{Topic: Settings, Kind: "settings"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	require.Len(t, updates, subscriberBuffer)
}
