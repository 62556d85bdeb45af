// Package syncstate holds the shared playhead of a dashboard session.
//
// The video position is the single source of truth. The lap relative graph
// time is derived on every read and only exists while the playback driver
// holds authority.
package syncstate

import (
	"sync"

	"github.com/mpapenbr/lapsync/pkg/laptime"
)

// Snapshot is an immutable view of the state right after a mutation.
type Snapshot struct {
	VideoTime         float64
	LapStartVideoTime float64
	AuthorityActive   bool
}

// GraphTime returns the lap relative time. ok is false while authority is
// inactive.
func (s Snapshot) GraphTime() (t float64, ok bool) {
	if !s.AuthorityActive {
		return 0, false
	}
	return laptime.GraphTime(s.VideoTime, s.LapStartVideoTime), true
}

// Observer is called after each mutation with the resulting snapshot.
type Observer func(Snapshot)

type State struct {
	mu        sync.RWMutex
	snap      Snapshot
	observers []Observer
}

func New() *State {
	return &State{}
}

// OnChange registers an observer. Observers run on the goroutine doing the
// mutation, outside of the state lock, so they may read the state again.
func (s *State) OnChange(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *State) SetVideoTime(t float64) Snapshot {
	return s.mutate(func(snap *Snapshot) { snap.VideoTime = t })
}

func (s *State) SetAuthorityActive(active bool) Snapshot {
	return s.mutate(func(snap *Snapshot) { snap.AuthorityActive = active })
}

func (s *State) SetLapStartVideoTime(t float64) Snapshot {
	return s.mutate(func(snap *Snapshot) { snap.LapStartVideoTime = t })
}

func (s *State) mutate(f func(*Snapshot)) Snapshot {
	s.mu.Lock()
	f(&s.snap)
	snap := s.snap
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o(snap)
	}
	return snap
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *State) VideoTime() float64 {
	return s.Snapshot().VideoTime
}

func (s *State) LapStartVideoTime() float64 {
	return s.Snapshot().LapStartVideoTime
}

func (s *State) IsAuthorityActive() bool {
	return s.Snapshot().AuthorityActive
}

func (s *State) GraphTime() (float64, bool) {
	return s.Snapshot().GraphTime()
}
