package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeIdempotent(t *testing.T) {

	s := New()

	s.Subscribe("c1", "u1")
	s.Subscribe("c1", "u1")
	s.Subscribe("c1", "u2")

	assert.ElementsMatch(t, []string{"u1", "u2"}, s.Subscribers("c1"))

	stats := s.GetStats()
	assert.Equal(t, 1, stats.Channels)
	assert.Equal(t, 2, stats.Subscriptions)
	assert.Equal(t, 2, stats.PerChannel["c1"])
}

func TestUnsubscribeRemovesEmptyChannel(t *testing.T) {

	s := New()

	s.Subscribe("c1", "u1")
	s.Subscribe("c1", "u2")

	s.Unsubscribe("c1", "u1")
	assert.Equal(t, []string{"u2"}, s.Subscribers("c1"))
	assert.True(t, s.HasSubscribers("c1"))

	s.Unsubscribe("c1", "u2")
	assert.Equal(t, []string{}, s.Subscribers("c1"))
	assert.False(t, s.HasSubscribers("c1"))

	// channel entry must be gone, not present-but-empty
	stats := s.GetStats()
	assert.Equal(t, 0, stats.Channels)
	_, ok := stats.PerChannel["c1"]
	assert.False(t, ok)
}

func TestUnsubscribeNonMemberIsNoOp(t *testing.T) {

	s := New()

	s.Unsubscribe("c1", "u1") // channel never existed

	s.Subscribe("c1", "u1")
	s.Unsubscribe("c1", "u2") // member never joined

	assert.Equal(t, []string{"u1"}, s.Subscribers("c1"))
	assert.Equal(t, 1, s.GetStats().Channels)
}

func TestNoEmptySetsUnderChurn(t *testing.T) {

	s := New()

	channels := []string{"c1", "c2", "c3"}
	subscribers := []string{"u1", "u2", "u3", "u4"}

	for _, c := range channels {
		for _, u := range subscribers {
			s.Subscribe(c, u)
		}
	}

	for _, c := range channels {
		for _, u := range subscribers {
			s.Unsubscribe(c, u)
		}
	}

	stats := s.GetStats()
	assert.Equal(t, 0, stats.Channels)
	assert.Equal(t, 0, stats.Subscriptions)
	assert.Empty(t, stats.PerChannel)
}

func TestSubscribersAcrossChannels(t *testing.T) {

	s := New()

	s.Subscribe("c1", "u1")
	s.Subscribe("c2", "u1")
	s.Subscribe("c2", "u2")

	stats := s.GetStats()
	assert.Equal(t, 2, stats.Channels)
	assert.Equal(t, 3, stats.Subscriptions) // u1 counts once per channel

	s.Unsubscribe("c2", "u1")
	assert.ElementsMatch(t, []string{"u1"}, s.Subscribers("c1"))
	assert.ElementsMatch(t, []string{"u2"}, s.Subscribers("c2"))
}
