// Package state holds the process-wide application state shared between the
// dashboard components: the farm location, the active camera registry and the
// channel connection status.
//
// All mutation goes through the named operations below. Readers get copies.
package state

import (
	"fmt"
	"sort"
	"sync"
)

// Location is the farm location used by the weather and advice panels.
type Location struct {
	Lat  float64
	Lon  float64
	Name string
}

// Valid reports whether the coordinates are in range.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

func (l Location) String() string {
	if l.Name != "" {
		return l.Name
	}
	return fmt.Sprintf("%.4f, %.4f", l.Lat, l.Lon)
}

// Connection mirrors the channel state for display.
type Connection struct {
	Status  string
	Attempt int
	Detail  string
}

// Snapshot is a point-in-time copy of the store.
type Snapshot struct {
	Location   *Location
	Cameras    []string
	Connection Connection
}

// Observer is called after every mutation with the new snapshot.
type Observer func(Snapshot)

// Store is the shared application state.
type Store struct {
	mu        sync.RWMutex
	location  *Location
	cameras   map[string]struct{}
	conn      Connection
	observers []Observer
	closed    bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		cameras: make(map[string]struct{}),
		conn:    Connection{Status: "disconnected"},
	}
}

// Close detaches all observers. Later mutations are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.observers = nil
}

// Subscribe registers an observer.
func (s *Store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// SetLocation replaces the farm location.
func (s *Store) SetLocation(loc Location) error {
	if !loc.Valid() {
		return fmt.Errorf("location out of range: %v", loc)
	}
	s.mutate(func() { s.location = &loc })
	return nil
}

// ClearLocation forgets the farm location.
func (s *Store) ClearLocation() {
	s.mutate(func() { s.location = nil })
}

// RegisterCamera adds a camera id to the active set. It reports whether the
// id was new.
func (s *Store) RegisterCamera(id string) bool {
	added := false
	s.mutate(func() {
		if _, ok := s.cameras[id]; !ok {
			s.cameras[id] = struct{}{}
			added = true
		}
	})
	return added
}

// MergeCameras adds the server's known cameras to the registry. Cameras
// already seen through frames are kept. It returns how many ids were new.
func (s *Store) MergeCameras(ids []string) int {
	added := 0
	s.mutate(func() {
		for _, id := range ids {
			if _, ok := s.cameras[id]; id != "" && !ok {
				s.cameras[id] = struct{}{}
				added++
			}
		}
	})
	return added
}

// SetConnection records the channel state.
func (s *Store) SetConnection(c Connection) {
	s.mutate(func() { s.conn = c })
}

// Location returns the current location, if any.
func (s *Store) Location() (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.location == nil {
		return Location{}, false
	}
	return *s.location, true
}

// Snapshot returns a copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{Connection: s.conn}
	if s.location != nil {
		loc := *s.location
		snap.Location = &loc
	}
	snap.Cameras = make([]string, 0, len(s.cameras))
	for id := range s.cameras {
		snap.Cameras = append(snap.Cameras, id)
	}
	sort.Strings(snap.Cameras)
	return snap
}

func (s *Store) mutate(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fn()
	snap := s.snapshotLocked()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o(snap)
	}
}
