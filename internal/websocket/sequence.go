package websocket

import (
	"sync"
)

// sequencer hands out per-topic message sequence numbers starting at 1.
type sequencer struct {
	mu   sync.Mutex
	next map[string]uint64
}

func newSequencer() *sequencer {
	return &sequencer{next: make(map[string]uint64)}
}

func (s *sequencer) nextSeq(topic string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[topic]++
	return s.next[topic]
}
