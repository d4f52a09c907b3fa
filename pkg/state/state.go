// Package state holds the mutable agent state and its on-disk persistence:
// the memory dump and the tick counter, both replaced atomically.
package state

import (
	"sort"
	"sync"
)

// VolatileCoreKeys are core-memory keys rewritten every tick and therefore
// excluded from the identity fingerprint.
var VolatileCoreKeys = map[string]bool{
	"current_time": true,
}

// Snapshot is the plain-data view of the agent state used for persistence
// and fingerprinting. Emotions and Tick are volatile and skipped by the
// fingerprint.
type Snapshot struct {
	Tick     uint64             `json:"tick"`
	Emotions map[string]float64 `json:"emotions"`
	Digest   []string           `json:"digest"`
}

// AgentState is the live mutable state of one generation. Safe for
// concurrent use.
type AgentState struct {
	mu         sync.RWMutex
	tick       uint64
	emotions   map[string]float64
	digest     []string
	coreMemory map[string]string
}

// New returns an AgentState with the default emotional baseline.
func New() *AgentState {
	return &AgentState{
		emotions: map[string]float64{
			"curiosity": 0.7,
			"calm":      0.6,
			"resolve":   0.8,
		},
		coreMemory: make(map[string]string),
	}
}

// Tick returns the current tick count.
func (s *AgentState) Tick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// SetTick overwrites the tick count, e.g. when resuming from disk.
func (s *AgentState) SetTick(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = n
}

// IncrementTick advances the tick count and returns the new value.
func (s *AgentState) IncrementTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	return s.tick
}

// Emotions returns a copy of the emotional state.
func (s *AgentState) Emotions() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.emotions))
	for k, v := range s.emotions {
		out[k] = v
	}
	return out
}

// AdjustEmotion shifts an emotion by delta, clamped to [0, 1]. Unknown
// names are created.
func (s *AgentState) AdjustEmotion(name string, delta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.emotions[name] + delta
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.emotions[name] = v
	return v
}

// Digested returns the sorted list of digested skill names.
func (s *AgentState) Digested() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.digest))
	copy(out, s.digest)
	return out
}

// AddDigested records a skill name as digested. Returns false if it was
// already present. The list stays sorted so it contributes a stable order
// to the fingerprint.
func (s *AgentState) AddDigested(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.SearchStrings(s.digest, name)
	if i < len(s.digest) && s.digest[i] == name {
		return false
	}
	s.digest = append(s.digest, "")
	copy(s.digest[i+1:], s.digest[i:])
	s.digest[i] = name
	return true
}

// CoreMemory returns a copy of the core memory map.
func (s *AgentState) CoreMemory() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.coreMemory))
	for k, v := range s.coreMemory {
		out[k] = v
	}
	return out
}

// SetCore stores one core-memory value.
func (s *AgentState) SetCore(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coreMemory[key] = value
}

// Core reads one core-memory value.
func (s *AgentState) Core(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.coreMemory[key]
	return v, ok
}

// Snapshot returns a plain-data copy of tick, emotions, and digest.
func (s *AgentState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Tick:     s.tick,
		Emotions: make(map[string]float64, len(s.emotions)),
		Digest:   make([]string, len(s.digest)),
	}
	for k, v := range s.emotions {
		snap.Emotions[k] = v
	}
	copy(snap.Digest, s.digest)
	return snap
}

// Restore overlays a snapshot onto the state: tick and emotions are
// replaced, digested names are merged.
func (s *AgentState) Restore(snap Snapshot) {
	s.mu.Lock()
	if snap.Tick > s.tick {
		s.tick = snap.Tick
	}
	for k, v := range snap.Emotions {
		s.emotions[k] = v
	}
	s.mu.Unlock()
	for _, name := range snap.Digest {
		s.AddDigested(name)
	}
}

// MergeCore overlays core-memory entries without dropping existing keys
// absent from the input.
func (s *AgentState) MergeCore(core map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range core {
		s.coreMemory[k] = v
	}
}
