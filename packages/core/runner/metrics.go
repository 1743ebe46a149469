package runner

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// maxLatencyUs bounds recorded latencies; the longest step wait is 70s.
const maxLatencyUs = 300_000_000

// StepMetrics aggregates step latencies across a run. It is safe for
// concurrent use by parallel testcases.
type StepMetrics struct {
	mu        sync.Mutex
	histogram *hdrhistogram.Histogram
	perAction map[string]*actionMetrics
	failures  int64
}

type actionMetrics struct {
	count     int64
	failures  int64
	histogram *hdrhistogram.Histogram
}

// TimingSummary is the latency summary of a run.
type TimingSummary struct {
	Steps    int64
	Failures int64
	P50      time.Duration
	P95      time.Duration
	P99      time.Duration
	Max      time.Duration
	Mean     time.Duration
	Actions  []ActionTiming
}

// ActionTiming summarises one action or assertion kind.
type ActionTiming struct {
	Name     string
	Count    int64
	Failures int64
	P95      time.Duration
	Max      time.Duration
}

func NewStepMetrics() *StepMetrics {
	return &StepMetrics{
		// 1us to 300s, 3 significant digits
		histogram: hdrhistogram.New(1, maxLatencyUs, 3),
		perAction: make(map[string]*actionMetrics),
	}
}

// Record adds one executed step.
func (m *StepMetrics) Record(action string, duration time.Duration, failed bool) {
	latencyUs := clampLatency(duration)

	m.mu.Lock()
	defer m.mu.Unlock()

	_ = m.histogram.RecordValue(latencyUs)
	if failed {
		m.failures++
	}

	if action == "" {
		return
	}
	am, ok := m.perAction[action]
	if !ok {
		am = &actionMetrics{histogram: hdrhistogram.New(1, maxLatencyUs, 3)}
		m.perAction[action] = am
	}
	am.count++
	if failed {
		am.failures++
	}
	_ = am.histogram.RecordValue(latencyUs)
}

// Summary returns the current percentiles. Actions are sorted by name.
func (m *StepMetrics) Summary() *TimingSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &TimingSummary{
		Steps:    m.histogram.TotalCount(),
		Failures: m.failures,
		P50:      time.Duration(m.histogram.ValueAtQuantile(50)) * time.Microsecond,
		P95:      time.Duration(m.histogram.ValueAtQuantile(95)) * time.Microsecond,
		P99:      time.Duration(m.histogram.ValueAtQuantile(99)) * time.Microsecond,
		Max:      time.Duration(m.histogram.Max()) * time.Microsecond,
		Mean:     time.Duration(m.histogram.Mean()) * time.Microsecond,
	}

	for name, am := range m.perAction {
		s.Actions = append(s.Actions, ActionTiming{
			Name:     name,
			Count:    am.count,
			Failures: am.failures,
			P95:      time.Duration(am.histogram.ValueAtQuantile(95)) * time.Microsecond,
			Max:      time.Duration(am.histogram.Max()) * time.Microsecond,
		})
	}
	sort.Slice(s.Actions, func(i, j int) bool { return s.Actions[i].Name < s.Actions[j].Name })
	return s
}

func clampLatency(d time.Duration) int64 {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	if us > maxLatencyUs {
		us = maxLatencyUs
	}
	return us
}
