package poller

import (
	"sync"
	"time"

	"basegraph.app/docwatch/internal/model"
)

// cycleStats accumulates counters from concurrent document tasks.
type cycleStats struct {
	mu           sync.Mutex
	m            model.PollCycleMetrics
	documents    int
	fetchCount   int
	fetchLatency time.Duration
}

func newCycleStats(cycleID string, startedAt time.Time) *cycleStats {
	return &cycleStats{m: model.PollCycleMetrics{CycleID: cycleID, StartedAt: startedAt}}
}

func (s *cycleStats) update(fn func(m *model.PollCycleMetrics)) {
	s.mu.Lock()
	fn(&s.m)
	s.mu.Unlock()
}

func (s *cycleStats) addFetchSuccess() { s.update(func(m *model.PollCycleMetrics) { m.FetchSuccess++ }) }
func (s *cycleStats) addDebounced()    { s.update(func(m *model.PollCycleMetrics) { m.Debounced++ }) }
func (s *cycleStats) addAutoPaused()   { s.update(func(m *model.PollCycleMetrics) { m.AutoPaused++ }) }

func (s *cycleStats) addNotificationSent() {
	s.update(func(m *model.PollCycleMetrics) { m.NotificationsSent++ })
}

func (s *cycleStats) addNotificationError() {
	s.update(func(m *model.PollCycleMetrics) { m.NotificationErrors++ })
}

func (s *cycleStats) addPersistenceError() {
	s.update(func(m *model.PollCycleMetrics) { m.PersistenceErrors++ })
}

func (s *cycleStats) addSkipped(n int) {
	s.update(func(m *model.PollCycleMetrics) { m.Skipped += n })
}

func (s *cycleStats) addFetchError(permanent bool) {
	s.update(func(m *model.PollCycleMetrics) {
		m.FetchErrors++
		if permanent {
			m.PermanentErrors++
		}
	})
}

func (s *cycleStats) addFetchLatency(d time.Duration) {
	s.mu.Lock()
	s.fetchCount++
	s.fetchLatency += d
	s.mu.Unlock()
}

func (s *cycleStats) snapshot(now time.Time) model.PollCycleMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.m
	m.Documents = s.documents
	m.Duration = now.Sub(m.StartedAt)
	if s.fetchCount > 0 {
		m.AvgFetchLatency = s.fetchLatency / time.Duration(s.fetchCount)
	}
	return m
}
