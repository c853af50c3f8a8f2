package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Stats collects per-session counters. A fresh Stats is created with each
// dispatcher at session start so nothing leaks across sessions or profiles.
type Stats struct {
	mu           sync.Mutex
	priceLookups int
	cacheHits    int
	callCounts   map[string]int
}

// NewStats creates empty session statistics.
func NewStats() *Stats {
	return &Stats{callCounts: map[string]int{}}
}

func (s *Stats) recordCall(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCounts[name]++
}

func (s *Stats) recordPriceLookup(cacheHit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceLookups++
	if cacheHit {
		s.cacheHits++
	}
}

// Snapshot is a point-in-time copy of the counters, safe to retain after the
// session ends.
type Snapshot struct {
	PriceLookups int
	CacheHits    int
	CallCounts   map[string]int
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(s.callCounts))
	for name, n := range s.callCounts {
		counts[name] = n
	}
	return Snapshot{
		PriceLookups: s.priceLookups,
		CacheHits:    s.cacheHits,
		CallCounts:   counts,
	}
}

// Summary renders the counters as one log-friendly line.
func (s Snapshot) Summary() string {
	names := make([]string, 0, len(s.CallCounts))
	for name := range s.CallCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, s.CallCounts[name]))
	}
	return fmt.Sprintf("tools[%s] price_lookups=%d cache_hits=%d",
		strings.Join(parts, " "), s.PriceLookups, s.CacheHits)
}
