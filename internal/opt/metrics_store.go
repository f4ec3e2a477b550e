package opt

import "sync"

// StatsStore keeps the statistics of the most recent runs by run ID. The
// oldest entry is evicted once the store holds limit runs.
type StatsStore struct {
	mu    sync.Mutex
	limit int
	order []string
	runs  map[string]Stats
}

func NewStatsStore(limit int) *StatsStore {
	if limit <= 0 {
		limit = 256
	}
	return &StatsStore{limit: limit, runs: map[string]Stats{}}
}

func (s *StatsStore) Record(runID string, st Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		s.order = append(s.order, runID)
		for len(s.order) > s.limit {
			delete(s.runs, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.runs[runID] = st
}

func (s *StatsStore) Get(runID string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.runs[runID]
	return st, ok
}

func (s *StatsStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}
