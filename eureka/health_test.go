package eureka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorState_HealthyByDefault(t *testing.T) {
	var s ErrorState
	assert.True(t, s.tryChoose(time.Now()))
}

func TestErrorState_PromotesToColdDownAfterFailure(t *testing.T) {
	var s ErrorState
	now := time.Now()
	s.onRequestDone(false, now)
	s.nextCheck(now)
	require.Equal(t, 1, s.Step)

	// within the step-1 cold-down window (1s), not choosable.
	assert.False(t, s.tryChoose(now.Add(500*time.Millisecond)))
	// past the cold-down window, choosable again for a probe.
	assert.True(t, s.tryChoose(now.Add(2*time.Second)))
}

func TestErrorState_EscalatesOnRepeatedFailure(t *testing.T) {
	var s ErrorState
	now := time.Now()
	for i := 0; i < 3; i++ {
		s.onRequestDone(false, now)
		s.nextCheck(now)
	}
	assert.Equal(t, 3, s.Step)
}

func TestErrorState_RecoversOnSuccessTick(t *testing.T) {
	var s ErrorState
	now := time.Now()
	s.onRequestDone(false, now)
	s.nextCheck(now)
	require.Equal(t, 1, s.Step)

	s.onRequestDone(true, now)
	s.nextCheck(now)
	assert.Equal(t, 0, s.Step)
}

func TestErrorState_RecoversAfterNoChooseDecreaseTimeout(t *testing.T) {
	var s ErrorState
	now := time.Now()
	s.onRequestDone(false, now)
	s.nextCheck(now) // step -> 1, ErrTime = now

	// no further errors or successes; just let time pass the step-1
	// no-choose-decrease timeout (10s) across ticks.
	later := now.Add(11 * time.Second)
	s.nextCheck(later)
	assert.Equal(t, 0, s.Step)
}

func TestErrorState_ResetPreservesInFlight(t *testing.T) {
	var s ErrorState
	s.InFlight = 2
	s.onRequestDone(false, time.Now())
	s.nextCheck(time.Now())
	s.reset()
	assert.Equal(t, 0, s.Step)
	assert.Equal(t, 2, s.InFlight)
}

func TestLatencyStats_TracksSuccessAndFailureSeparately(t *testing.T) {
	var l LatencyStats
	l.nextCheck()
	l.add(true, 100)
	l.add(true, 300)
	l.add(false, 50)

	require.Len(t, l.Success, 1)
	require.Len(t, l.Failure, 1)
	assert.Equal(t, int64(200), l.Success[0].Avg())
	assert.Equal(t, int64(50), l.Failure[0].Avg())
	assert.Equal(t, int64(3), l.RequestCount)
}

func TestLatencyStats_EvictsOldestBeyondCapacity(t *testing.T) {
	var l LatencyStats
	for i := 0; i < latencyBucketCapacity+5; i++ {
		l.nextCheck()
		l.add(true, int64(i))
	}
	assert.Len(t, l.Success, latencyBucketCapacity)
}
