package consensus

import (
	"sync"
	"time"

	"github.com/hupe1980/swarmcoord/core"
)

// Stats aggregates outcomes per algorithm name.
type Stats struct {
	Total        int           `json:"total"`
	Approved     int           `json:"approved"`
	Rejected     int           `json:"rejected"`
	ApprovalRate float64       `json:"approval_rate"`
	AvgDuration  time.Duration `json:"avg_duration"`
}

// statsTracker archives finalized results. Guarded by its own mutex so
// finalization does not contend with vote recording.
type statsTracker struct {
	mu            sync.RWMutex
	byAlgorithm   map[string]Stats
	totalDuration map[string]time.Duration
}

func newStatsTracker() *statsTracker {
	return &statsTracker{
		byAlgorithm:   map[string]Stats{},
		totalDuration: map[string]time.Duration{},
	}
}

// Record archives one finalized consensus result.
func (s *statsTracker) Record(result *core.ConsensusResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.byAlgorithm[result.Algorithm]
	stats.Total++
	if result.Approved() {
		stats.Approved++
	} else {
		stats.Rejected++
	}
	stats.ApprovalRate = float64(stats.Approved) / float64(stats.Total)

	s.totalDuration[result.Algorithm] += result.Duration
	stats.AvgDuration = s.totalDuration[result.Algorithm] / time.Duration(stats.Total)

	s.byAlgorithm[result.Algorithm] = stats
}

// Snapshot returns a copy of the per-algorithm aggregates.
func (s *statsTracker) Snapshot() map[string]Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Stats, len(s.byAlgorithm))
	for name, stats := range s.byAlgorithm {
		out[name] = stats
	}
	return out
}
