package eureka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeatRecord_PeriodUsesLeaseInterval(t *testing.T) {
	rec := &HeartbeatRecord{ins: &InstanceInfo{LeaseInfo: &LeaseInfo{RenewalIntervalInSecs: 30}}}
	assert.Equal(t, 11*time.Second, rec.period())
}

func TestHeartbeatRecord_PeriodFallsBackWithoutLease(t *testing.T) {
	rec := &HeartbeatRecord{ins: &InstanceInfo{}}
	assert.Equal(t, defaultHeartbeatPeriod, rec.period())
}

func TestHeartbeatRecord_DueAfterPeriodElapses(t *testing.T) {
	rec := &HeartbeatRecord{
		ins:           &InstanceInfo{LeaseInfo: &LeaseInfo{RenewalIntervalInSecs: 3}},
		lastHeartTime: time.Now().Add(-2 * time.Second),
	}
	assert.False(t, rec.due(time.Now()))

	rec.lastHeartTime = time.Now().Add(-11 * time.Second)
	assert.True(t, rec.due(time.Now()))
}

func TestHeartbeatManager_RegisterAndUnregister(t *testing.T) {
	ec := newEndpointController([]string{"http://127.0.0.1:1"}, nil, 1, 1, nil, newLogAdapter(nil))
	pool := newWorkerPool(1)
	defer ec.Stop()
	defer pool.Stop()
	m := newHeartbeatManager(newRegistryClient(ec), pool, newLogAdapter(nil))

	ins := mkIns("APP", "i1", "10.0.0.1", 8080)
	m.Register(ins)
	m.mu.Lock()
	_, ok := m.records[recordKey("APP", "i1")]
	m.mu.Unlock()
	assert.True(t, ok)

	m.Unregister("APP", "i1")
	m.mu.Lock()
	_, ok = m.records[recordKey("APP", "i1")]
	m.mu.Unlock()
	assert.False(t, ok)
}
