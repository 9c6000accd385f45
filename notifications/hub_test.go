package notifications_test

import (
	"testing"

	"skyweb/models"
	"skyweb/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHubPublish(t *testing.T) {
	hub := notifications.NewHub()
	a := hub.Subscribe("a", 1)
	b := hub.Subscribe("b", 1)
	require.Equal(t, 2, hub.Count())

	delivered := hub.Publish(models.UnreadCountEvent{Count: 3})

	assert.Equal(t, 2, delivered)
	assert.Equal(t, models.UnreadCountEvent{Count: 3}, <-a)
	assert.Equal(t, models.UnreadCountEvent{Count: 3}, <-b)
}

func TestHubDropsForFullSubscribers(t *testing.T) {
	hub := notifications.NewHub()
	slow := hub.Subscribe("slow", 1)

	assert.Equal(t, 1, hub.Publish(models.UnreadCountEvent{Count: 1}))
	assert.Equal(t, 0, hub.Publish(models.UnreadCountEvent{Count: 2}))

	assert.Equal(t, models.UnreadCountEvent{Count: 1}, <-slow)
	assert.Empty(t, slow)
}

func TestHubSend(t *testing.T) {
	hub := notifications.NewHub()
	a := hub.Subscribe("a", 1)
	b := hub.Subscribe("b", 1)

	assert.True(t, hub.Send("a", models.NewPostsEvent{Count: 1}))
	assert.False(t, hub.Send("missing", models.NewPostsEvent{Count: 1}))

	assert.Len(t, a, 1)
	assert.Empty(t, b)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := notifications.NewHub()
	a := hub.Subscribe("a", 1)

	hub.Unsubscribe("a")
	hub.Unsubscribe("a")

	_, ok := <-a
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Count())
}

func TestHubResubscribeReplacesChannel(t *testing.T) {
	hub := notifications.NewHub()
	first := hub.Subscribe("a", 1)
	second := hub.Subscribe("a", 1)

	_, ok := <-first
	assert.False(t, ok)
	assert.Equal(t, 1, hub.Count())

	hub.Publish(models.UnreadCountEvent{Count: 1})
	assert.Len(t, second, 1)
}

func TestHubShutdown(t *testing.T) {
	hub := notifications.NewHub()
	a := hub.Subscribe("a", 1)

	hub.Shutdown()

	_, ok := <-a
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Count())

	late := hub.Subscribe("late", 1)
	_, ok = <-late
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Publish(models.UnreadCountEvent{}))
}
