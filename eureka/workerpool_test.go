package eureka

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_RunsSubmittedJobs(t *testing.T) {
	pool := newWorkerPool(2)
	var count int64
	for i := 0; i < 10; i++ {
		pool.Submit(func() { atomic.AddInt64(&count, 1) })
	}
	pool.Stop()
	assert.Equal(t, int64(10), count)
}

func TestWorkerPool_StopWaitsForInFlightJobs(t *testing.T) {
	pool := newWorkerPool(1)
	var done int32
	pool.Submit(func() {
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&done, 1)
	})
	pool.Stop()
	assert.Equal(t, int32(1), done)
}
