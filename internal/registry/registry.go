// Package registry tracks which principals are listening on which channels
package registry

import (
	"sync"
)

// Store maps channel IDs to the set of subscriber IDs listening on
// them. A channel key is present iff its subscriber set is non-empty,
// so churn through short-lived channels cannot grow the map without
// bound.
type Store struct {
	sync.Mutex

	channels map[string]map[string]bool
}

// Stats reports the size of the registry
type Stats struct {
	Channels      int            `json:"channels"`
	Subscriptions int            `json:"subscriptions"`
	PerChannel    map[string]int `json:"perChannel"`
}

// New returns a pointer to an initialised Store
func New() *Store {
	return &Store{
		channels: make(map[string]map[string]bool),
	}
}

// Subscribe adds subscriberID to channelID's set, creating the set if
// absent. Subscribing an existing member is a no-op.
func (s *Store) Subscribe(channelID, subscriberID string) {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.channels[channelID]; !ok {
		s.channels[channelID] = make(map[string]bool)
	}
	s.channels[channelID][subscriberID] = true
}

// Unsubscribe removes subscriberID from channelID's set, deleting the
// channel entry entirely if the set becomes empty. Unsubscribing an
// absent member is a no-op.
func (s *Store) Unsubscribe(channelID, subscriberID string) {
	s.Lock()
	defer s.Unlock()

	subs, ok := s.channels[channelID]
	if !ok {
		return
	}

	delete(subs, subscriberID)

	if len(subs) == 0 {
		delete(s.channels, channelID)
	}
}

// Subscribers returns the IDs subscribed to channelID, possibly empty
func (s *Store) Subscribers(channelID string) []string {
	s.Lock()
	defer s.Unlock()

	subs := []string{}
	for id := range s.channels[channelID] {
		subs = append(subs, id)
	}
	return subs
}

// HasSubscribers reports whether anyone is listening on channelID
func (s *Store) HasSubscribers(channelID string) bool {
	s.Lock()
	defer s.Unlock()

	return len(s.channels[channelID]) > 0
}

// GetStats returns channel and subscription counts; a subscriber
// joined to N channels counts N times in Subscriptions
func (s *Store) GetStats() Stats {
	s.Lock()
	defer s.Unlock()

	stats := Stats{PerChannel: make(map[string]int)}

	for id, subs := range s.channels {
		stats.Channels++
		stats.Subscriptions += len(subs)
		stats.PerChannel[id] = len(subs)
	}

	return stats
}
