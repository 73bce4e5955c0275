package lim

import (
	"sync"
	"time"

	"lingopaste/metrics"
	"lingopaste/svc/util"
)

// Signal names a stream of outcomes the detector watches.
type Signal string

const (
	// SignalHTTP counts every API request; 5xx responses are failures.
	SignalHTTP Signal = "http"
	// SignalTranslate counts translate calls; upstream and transport
	// errors from the provider are failures.
	SignalTranslate Signal = "translate"
)

type bucket struct {
	total    int64
	failures int64
}

// series is a ring of one-minute buckets for one signal.
type series struct {
	window     []bucket
	current    int
	minSamples int64
	threshold  float64
}

func (s *series) rate() (float64, int64, int64) {
	var total, failures int64
	for _, b := range s.window {
		total += b.total
		failures += b.failures
	}
	if total == 0 {
		return 0, 0, 0
	}
	return float64(failures) / float64(total) * 100.0, total, failures
}
func (s *series) advance() {
	s.current = (s.current + 1) % len(s.window)
	s.window[s.current] = bucket{}
}

// AnomalyDetector keeps a five minute failure rate per signal and calls
// onAnomaly with the signal whose rate crossed its threshold.
type AnomalyDetector struct {
	mu        sync.Mutex
	series    map[Signal]*series
	onAnomaly func(Signal)
	done      chan struct{}
}

func NewAnomalyDetector(onAnomaly func(Signal)) *AnomalyDetector {
	return &AnomalyDetector{
		series: map[Signal]*series{
			SignalHTTP:      {window: make([]bucket, 5), minSamples: 10, threshold: 5.0},
			SignalTranslate: {window: make([]bucket, 5), minSamples: 5, threshold: 50.0},
		},
		onAnomaly: onAnomaly,
		done:      make(chan struct{}),
	}
}
func (d *AnomalyDetector) Start() {
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-ticker.C:
				d.AdvanceWindow()
			case <-d.done:
				ticker.Stop()
				return
			}
		}
	}()
}
func (d *AnomalyDetector) Stop() {
	close(d.done)
}

// Record counts one outcome for sig. Unknown signals are ignored.
func (d *AnomalyDetector) Record(sig Signal, failed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.series[sig]
	if !ok {
		return
	}
	s.window[s.current].total++
	if failed {
		s.window[s.current].failures++
	}
}

// AdvanceWindow evaluates every signal and rotates its ring. Callbacks run
// after the lock is released.
func (d *AnomalyDetector) AdvanceWindow() {
	var tripped []Signal
	d.mu.Lock()
	for sig, s := range d.series {
		rate, total, failures := s.rate()
		metrics.RecentErrorRatePercent.WithLabelValues(string(sig)).Set(rate)
		if total > s.minSamples && rate > s.threshold {
			util.Warn().
				Str("signal", string(sig)).
				Float64("failure_rate", rate).
				Int64("total", total).
				Int64("failures", failures).
				Msg("failure rate above threshold, halving rate limits")
			tripped = append(tripped, sig)
		}
		s.advance()
	}
	d.mu.Unlock()
	if d.onAnomaly == nil {
		return
	}
	for _, sig := range tripped {
		d.onAnomaly(sig)
	}
}
