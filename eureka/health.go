package eureka

import "time"

// errStepMax is the top of the cold-down ladder (spec.md §4.5).
const errStepMax = 4

var coldDownSecondsByStep = [errStepMax]int64{1, 5, 10, 30}
var noChooseDecreaseSecondsByStep = [errStepMax]int64{10, 30, 60, 120}

func coldDown(step int) time.Duration {
	if step <= 0 {
		return 0
	}
	idx := step - 1
	if idx >= errStepMax {
		idx = errStepMax - 1
	}
	return time.Duration(coldDownSecondsByStep[idx]) * time.Second
}

func noChooseDecrease(step int) time.Duration {
	if step <= 0 {
		return 0
	}
	idx := step - 1
	if idx >= errStepMax {
		idx = errStepMax - 1
	}
	return time.Duration(noChooseDecreaseSecondsByStep[idx]) * time.Second
}

// ErrorState is the per-peer cold-down ladder: step 0 means no cold-down
// applies, steps 1-4 apply a graduated cold-down and graduated recovery.
// All methods are called under the owning PeerInstance's own mutex, not
// under the AppDirectory's lock.
type ErrorState struct {
	Step     int
	ErrTime  time.Time
	InFlight int
	Good     int
	Err      int
	ErrPrev  int
}

// onRequestDone records one finished request's outcome.
func (s *ErrorState) onRequestDone(success bool, now time.Time) {
	if success {
		s.Good++
		return
	}
	if s.Err == 0 {
		s.ErrTime = now
	}
	s.Err++
}

// tryChoose reports whether this peer may be selected right now.
func (s *ErrorState) tryChoose(now time.Time) bool {
	if s.Step == 0 && s.Err == 0 {
		return true
	}
	if s.Step > 0 && now.Sub(s.ErrTime) <= coldDown(s.Step) {
		return false
	}
	return s.InFlight == 0 || s.ErrPrev == 0
}

// nextCheck advances the ladder once per refresh tick.
func (s *ErrorState) nextCheck(now time.Time) {
	s.ErrPrev = s.Err
	switch {
	case s.Step > 0 && s.Err == 0 && s.Good > 0:
		s.Step--
	case s.Step > 0 && now.Sub(s.ErrTime) >= noChooseDecrease(s.Step):
		s.Step--
	case s.Step > 0 && s.Err > 0 && s.Step < errStepMax:
		s.Step++
	case s.Step == 0 && s.Err > 0:
		s.Step = 1
	}
	s.Err = 0
	s.Good = 0
}

// reset clears the ladder's step, error time and counters, keeping InFlight
// since it counts live handles; called when a peer's endpoint changes.
func (s *ErrorState) reset() {
	inFlight := s.InFlight
	*s = ErrorState{InFlight: inFlight}
}

// latencyBucketCapacity is the number of check-tick buckets LatencyStats
// keeps before evicting the oldest.
const latencyBucketCapacity = 10

// LatencyBucket sums request latency (in microseconds) observed during one
// check tick.
type LatencyBucket struct {
	SumMicros int64
	Count     int64
}

// Avg returns the bucket's mean latency in microseconds, or 0 if empty.
func (b LatencyBucket) Avg() int64 {
	if b.Count == 0 {
		return 0
	}
	return b.SumMicros / b.Count
}

// LatencyStats tracks per-peer request latency in two bounded queues of
// buckets, one per outcome, advanced one bucket per refresh tick.
type LatencyStats struct {
	RequestCount int64
	Success      []LatencyBucket
	Failure      []LatencyBucket
}

func (l *LatencyStats) add(success bool, micros int64) {
	l.RequestCount++
	buckets := &l.Success
	if !success {
		buckets = &l.Failure
	}
	if len(*buckets) == 0 {
		*buckets = append(*buckets, LatencyBucket{})
	}
	tail := &(*buckets)[len(*buckets)-1]
	tail.SumMicros += micros
	tail.Count++
}

func (l *LatencyStats) nextCheck() {
	if len(l.Success) >= latencyBucketCapacity {
		l.Success = append([]LatencyBucket(nil), l.Success[1:]...)
	}
	l.Success = append(l.Success, LatencyBucket{})

	if len(l.Failure) >= latencyBucketCapacity {
		l.Failure = append([]LatencyBucket(nil), l.Failure[1:]...)
	}
	l.Failure = append(l.Failure, LatencyBucket{})
}
