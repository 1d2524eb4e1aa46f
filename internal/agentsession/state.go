// Package agentsession implements the per-agent monitor loop: one
// goroutine per connected agent socket, owning a read-mostly State consulted
// by dashboard lookups and mutated by the session's own goroutine, except
// for the memory watermark, which the daily reporter resets.
package agentsession

import (
	"sync"

	"github.com/arkeep-io/fleethub/internal/fleetdb"
)

// StopCause names why a session ended up in the Stop state.
type StopCause string

const (
	CauseAlreadyConnected StopCause = "AlreadyConnected"
)

// State is a tagged union over Initializing/Normal/Stop, carried as a
// struct with a discriminant rather than an interface so stateEqual can
// compare by value without type assertions.
type State struct {
	kind stateKind

	Name      string
	Address   string
	Status    fleetdb.NodeStatus
	StopCause StopCause

	RecentUpdate   *UpdateResult
	MaxMemoryUsage *fleetdb.HardwareUsage
}

type stateKind int

const (
	kindInitializing stateKind = iota
	kindNormal
	kindStop
)

func InitializingState() State { return State{kind: kindInitializing} }

func NormalState(name, address string, status fleetdb.NodeStatus) State {
	return State{kind: kindNormal, Name: name, Address: address, Status: status}
}

func StopState(name, address string, status fleetdb.NodeStatus, cause StopCause) State {
	return State{kind: kindStop, Name: name, Address: address, Status: status, StopCause: cause}
}

func (s State) IsInitializing() bool { return s.kind == kindInitializing }
func (s State) IsNormal() bool       { return s.kind == kindNormal }
func (s State) IsStop() bool         { return s.kind == kindStop }

// stateEqual compares the outward-visible fields only, ignoring
// RecentUpdate/MaxMemoryUsage, so that re-deriving the same state after a
// routine update tick doesn't look like a change.
func stateEqual(a, b State) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case kindInitializing:
		return true
	case kindNormal:
		return a.Name == b.Name && a.Address == b.Address && a.Status == b.Status
	case kindStop:
		return a.Name == b.Name && a.Address == b.Address && a.Status == b.Status && a.StopCause == b.StopCause
	}
	return false
}

// UpdateResult is one monitor-loop iteration's outcome, used to maintain
// recent-update and monotone max-memory tracking.
type UpdateResult struct {
	NetworkID       string
	NumberOfPeers   int
	BestBlockNumber *int64
	DiskUsages      []fleetdb.HardwareUsage
	MemoryUsage     fleetdb.HardwareUsage
}

// sharedState is the RWMutex-guarded cell backing Session.State and the
// registry's name-lookup reads.
type sharedState struct {
	mu sync.RWMutex
	v  State
}

func (s *sharedState) Load() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

func (s *sharedState) Store(v State) {
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
}

// transition replaces the identity fields while carrying the transient
// monitor-tick fields forward. Re-deriving an unchanged state is a no-op;
// a real change (address, status) must never drop the max-memory watermark
// or the last update result.
func (s *sharedState) transition(v State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stateEqual(s.v, v) {
		return
	}
	v.RecentUpdate = s.v.RecentUpdate
	v.MaxMemoryUsage = s.v.MaxMemoryUsage
	s.v = v
}

// updateRecentUpdate applies the monotone max-memory rule: lower available
// memory always wins.
func (s *sharedState) updateRecentUpdate(res UpdateResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.v.MaxMemoryUsage == nil || res.MemoryUsage.Available < s.v.MaxMemoryUsage.Available {
		m := res.MemoryUsage
		s.v.MaxMemoryUsage = &m
	}
	s.v.RecentUpdate = &res
}

// resetMaxMemoryUsage clears the max-memory tracker, called by the daily
// reporter after it has snapshotted a session.
func (s *sharedState) resetMaxMemoryUsage() {
	s.mu.Lock()
	s.v.MaxMemoryUsage = nil
	s.mu.Unlock()
}
