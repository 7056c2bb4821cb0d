package cache

import "sync/atomic"

// Stats is a point-in-time snapshot of cache effectiveness counters.
// The counters are advisory and used for operational visibility only.
type Stats struct {
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	LocalHits  uint64  `json:"local_hits"`
	SharedHits uint64  `json:"shared_hits"`
	HitRate    float64 `json:"hit_rate"`
}

type statsCounters struct {
	localHits  atomic.Uint64
	sharedHits atomic.Uint64
	misses     atomic.Uint64
}

func (s *statsCounters) localHit()  { s.localHits.Add(1) }
func (s *statsCounters) sharedHit() { s.sharedHits.Add(1) }
func (s *statsCounters) miss()      { s.misses.Add(1) }

func (s *statsCounters) snapshot() Stats {
	local := s.localHits.Load()
	shared := s.sharedHits.Load()
	misses := s.misses.Load()
	hits := local + shared

	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:       hits,
		Misses:     misses,
		LocalHits:  local,
		SharedHits: shared,
		HitRate:    rate,
	}
}
