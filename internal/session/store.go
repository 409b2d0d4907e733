package session

import (
	"sort"
	"sync"
)

// Store is the registry of render sessions known to the host.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Info
	nextLane int

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	dropped int
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Info),
		subs:     make(map[int]chan Event),
	}
}

func (s *Store) Get(id string) (*Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// GetAll returns copies of every session ordered by lane.
func (s *Store) GetAll() []*Info {
	s.mu.RLock()
	result := make([]*Info, 0, len(s.sessions))
	for _, st := range s.sessions {
		result = append(result, st.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Lane < result[j].Lane })
	return result
}

// Update stores a copy of info and publishes EventCreated for a new ID or
// EventUpdated otherwise. Lanes are assigned on first sight and kept.
func (s *Store) Update(info *Info) {
	s.Publish(EventUpdated, info)
}

// Publish stores a copy of info and notifies subscribers with t. A first
// sighting is always published as EventCreated.
func (s *Store) Publish(t EventType, info *Info) {
	s.mu.Lock()
	if existing, ok := s.sessions[info.ID]; ok {
		info.Lane = existing.Lane
	} else {
		info.Lane = s.nextLane
		s.nextLane++
		t = EventCreated
	}
	s.sessions[info.ID] = info.Clone()
	live := s.liveLocked()
	s.mu.Unlock()

	s.notify(Event{Type: t, Info: info.Clone(), LiveCount: live})
}

// Remove deletes id and publishes EventDestroyed with the final snapshot.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	st, ok := s.sessions[id]
	delete(s.sessions, id)
	live := s.liveLocked()
	s.mu.Unlock()
	if !ok {
		return
	}
	final := st.Clone()
	final.State = Destroyed
	s.notify(Event{Type: EventDestroyed, Info: final, LiveCount: live})
}

func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveLocked()
}

func (s *Store) liveLocked() int {
	count := 0
	for _, st := range s.sessions {
		if !st.IsTerminal() {
			count++
		}
	}
	return count
}

// Subscribe returns a channel receiving every event published after the
// call. Events are dropped for a subscriber whose buffer is full. The
// returned func unsubscribes and closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

// Dropped reports how many events were discarded for slow subscribers.
func (s *Store) Dropped() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.dropped
}

func (s *Store) notify(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.dropped++
		}
	}
}
