package session

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewStore(t *testing.T) {
	s := NewStore()
	if got := len(s.GetAll()); got != 0 {
		t.Errorf("new store has %d sessions, want 0", got)
	}
	if got := s.ActiveCount(); got != 0 {
		t.Errorf("new store ActiveCount() = %d, want 0", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := NewStore()
	st, ok := s.Get("nonexistent")
	if ok || st != nil {
		t.Errorf("Get for missing key = %v, %v", st, ok)
	}
}

func TestUpdateAndGet(t *testing.T) {
	s := NewStore()
	s.Update(&Info{ID: "a", URL: "file:///a.yaml", State: Initialized})

	st, ok := s.Get("a")
	if !ok {
		t.Fatal("Get returned ok=false after Update")
	}
	if st.ID != "a" || st.URL != "file:///a.yaml" || st.State != Initialized {
		t.Errorf("Get returned unexpected state: %+v", st)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Update(&Info{ID: "a", URL: "original"})

	got, _ := s.Get("a")
	got.URL = "mutated"

	got2, _ := s.Get("a")
	if got2.URL != "original" {
		t.Error("Get did not return a copy; mutation leaked into store")
	}
}

func TestUpdateStoresCopy(t *testing.T) {
	s := NewStore()
	info := &Info{ID: "a", URL: "original"}
	s.Update(info)
	info.URL = "mutated"

	got, _ := s.Get("a")
	if got.URL != "original" {
		t.Error("Update did not store a copy")
	}
}

func TestLaneAssignment(t *testing.T) {
	s := NewStore()
	s.Update(&Info{ID: "a"})
	s.Update(&Info{ID: "b"})
	s.Update(&Info{ID: "a", State: Initialized})

	a, _ := s.Get("a")
	b, _ := s.Get("b")
	if a.Lane != 0 || b.Lane != 1 {
		t.Errorf("lanes = %d, %d; want 0, 1", a.Lane, b.Lane)
	}

	all := s.GetAll()
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Errorf("GetAll not ordered by lane: %v", all)
	}
}

func TestActiveCount(t *testing.T) {
	s := NewStore()
	s.Update(&Info{ID: "a", State: Initialized})
	s.Update(&Info{ID: "b", State: Destroyed})
	s.Update(&Info{ID: "c", State: Uninitialized})
	if got := s.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount() = %d, want 2", got)
	}
}

func TestSubscribeEvents(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe(16)
	defer cancel()

	s.Update(&Info{ID: "a", State: Uninitialized})
	s.Update(&Info{ID: "a", State: Initialized})
	s.Publish(EventLoaded, &Info{ID: "a", State: Initialized, Loaded: true})
	s.Remove("a")
	s.Remove("a")

	want := []EventType{EventCreated, EventUpdated, EventLoaded, EventDestroyed}
	for i, w := range want {
		select {
		case ev := <-ch:
			if ev.Type != w {
				t.Errorf("event %d = %v, want %v", i, ev.Type, w)
			}
			if ev.Info.ID != "a" {
				t.Errorf("event %d info id = %q", i, ev.Info.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}

	select {
	case ev := <-ch:
		t.Errorf("unexpected extra event %v", ev.Type)
	default:
	}
}

func TestRemovePublishesDestroyedSnapshot(t *testing.T) {
	s := NewStore()
	s.Update(&Info{ID: "a", State: Initialized})
	s.Update(&Info{ID: "b", State: Initialized})
	ch, cancel := s.Subscribe(1)
	defer cancel()

	s.Remove("a")
	ev := <-ch
	if ev.Info.State != Destroyed {
		t.Errorf("destroyed event state = %v", ev.Info.State)
	}
	if ev.LiveCount != 1 {
		t.Errorf("LiveCount = %d, want 1", ev.LiveCount)
	}
	if _, ok := s.Get("a"); ok {
		t.Error("session still present after Remove")
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	s := NewStore()
	_, cancel := s.Subscribe(1)
	defer cancel()

	for i := range 5 {
		s.Update(&Info{ID: fmt.Sprintf("s%d", i)})
	}
	if got := s.Dropped(); got != 4 {
		t.Errorf("Dropped() = %d, want 4", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe(1)
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel not closed after unsubscribe")
	}
	s.Update(&Info{ID: "a"})
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe(1024)
	defer cancel()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i%5)
			s.Update(&Info{ID: id, State: Initialized})
			s.Get(id)
			s.GetAll()
			s.ActiveCount()
		}()
	}
	wg.Wait()

	if got := len(s.GetAll()); got != 5 {
		t.Errorf("GetAll() has %d sessions, want 5", got)
	}
	if len(ch) != 20 {
		t.Errorf("received %d events, want 20", len(ch))
	}
}
