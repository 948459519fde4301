package sink

import (
	"sort"
	"sync"
	"time"

	"rpp/plugin"
)

// Entry is the latest activity of one presence
type Entry struct {
	Presence   string          `json:"presence"`
	Activity   plugin.Activity `json:"activity"`
	ReceivedAt time.Time       `json:"received_at"`
}

// ActivityStore keeps the latest activity per presence in memory
type ActivityStore struct {
	mu     sync.RWMutex
	latest map[string]Entry
}

// NewActivityStore creates an empty store
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		latest: make(map[string]Entry),
	}
}

// Set records activity for presence and reports whether it changed
func (s *ActivityStore) Set(presence string, activity plugin.Activity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.latest[presence]
	s.latest[presence] = Entry{
		Presence:   presence,
		Activity:   activity,
		ReceivedAt: time.Now(),
	}
	return !exists || prev.Activity != activity
}

// Get retrieves the latest entry of presence
func (s *ActivityStore) Get(presence string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.latest[presence]
	return e, exists
}

// Delete removes presence from the store
func (s *ActivityStore) Delete(presence string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.latest, presence)
}

// All returns every entry sorted by presence name
func (s *ActivityStore) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.latest))
	for _, e := range s.latest {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Presence < entries[j].Presence
	})
	return entries
}

// Consume records every activity message read from ch until it is
// closed. onChange, if set, is called for entries that changed.
func (s *ActivityStore) Consume(ch <-chan plugin.Message, onChange func(Entry)) {
	for msg := range ch {
		if msg.Topic != plugin.TopicActivity {
			continue
		}
		activity, ok := msg.Payload.(plugin.Activity)
		if !ok {
			continue
		}
		if s.Set(msg.Source, activity) && onChange != nil {
			e, _ := s.Get(msg.Source)
			onChange(e)
		}
	}
}
