package tui

import (
	"fmt"
	"time"
)

const statsWindow = 10 * time.Second

// stats tracks event throughput and body size statistics.
type stats struct {
	evtTimes    []time.Time
	totalEvents int64
	totalBytes  int64
}

// record logs an event arrival.
func (s *stats) record(t time.Time, bodySize int) {
	s.evtTimes = append(s.evtTimes, t)
	s.totalEvents++
	s.totalBytes += int64(bodySize)
}

// evtPerSec returns the event rate over the rolling window.
func (s *stats) evtPerSec(now time.Time) float64 {
	cutoff := now.Add(-statsWindow)

	// Trim expired entries
	i := 0
	for i < len(s.evtTimes) && s.evtTimes[i].Before(cutoff) {
		i++
	}
	s.evtTimes = s.evtTimes[i:]

	if len(s.evtTimes) == 0 {
		return 0
	}

	elapsed := now.Sub(s.evtTimes[0]).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	return float64(len(s.evtTimes)) / elapsed
}

// avgSize returns average event body size in bytes.
func (s *stats) avgSize() int64 {
	if s.totalEvents == 0 {
		return 0
	}
	return s.totalBytes / s.totalEvents
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1f evt/s", rate)
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
