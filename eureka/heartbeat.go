package eureka

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

const defaultHeartbeatPeriod = 10 * time.Second

// HeartbeatRecord tracks one registered instance's lease-renewal state,
// the Go shape of the original RegInsData.
type HeartbeatRecord struct {
	mu            sync.Mutex
	ins           *InstanceInfo
	lastHeartTime time.Time
	heartSucCount int64
	heartErrCount int64
	doing         atomic.Bool
}

func (r *HeartbeatRecord) period() time.Duration {
	r.mu.Lock()
	lease := r.ins.LeaseInfo
	r.mu.Unlock()
	if lease == nil || lease.RenewalIntervalInSecs <= 0 {
		return defaultHeartbeatPeriod
	}
	period := time.Duration(lease.RenewalIntervalInSecs/3+1) * time.Second
	if period < defaultHeartbeatPeriod {
		return defaultHeartbeatPeriod
	}
	return period
}

func (r *HeartbeatRecord) due(now time.Time) bool {
	r.mu.Lock()
	last := r.lastHeartTime
	r.mu.Unlock()
	return now.Sub(last) >= r.period()
}

func (r *HeartbeatRecord) snapshot() (app, insID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ins.App, r.ins.InstanceID
}

// snapshotCounters returns the record's last heartbeat time and running
// success/error counts, the fields the original's AgentSnap::RegData copies
// out of RegInsData under the registration lock.
func (r *HeartbeatRecord) snapshotCounters() (lastHeartTime time.Time, sucCount, errCount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHeartTime, r.heartSucCount, r.heartErrCount
}

// HeartbeatManager renews leases for every registered instance on its own
// ticker, dispatching each due renewal onto the shared worker pool so a
// slow registry call for one instance never delays another's.
type HeartbeatManager struct {
	mu       sync.Mutex
	records  map[string]*HeartbeatRecord // keyed by app+"/"+instanceId
	client   *RegistryClient
	pool     *workerPool
	logger   *logAdapter
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newHeartbeatManager(client *RegistryClient, pool *workerPool, logger *logAdapter) *HeartbeatManager {
	return &HeartbeatManager{
		records: map[string]*HeartbeatRecord{},
		client:  client,
		pool:    pool,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

func recordKey(app, insID string) string { return app + "/" + insID }

// Register starts renewing the lease for ins and dispatches one immediate
// heartbeat job so the first renewal doesn't wait for the next tick.
func (m *HeartbeatManager) Register(ins *InstanceInfo) *HeartbeatRecord {
	rec := &HeartbeatRecord{ins: ins, lastHeartTime: time.Now()}
	m.mu.Lock()
	m.records[recordKey(ins.App, ins.InstanceID)] = rec
	m.mu.Unlock()
	m.dispatch(rec)
	return rec
}

// Unregister stops renewing the lease for the given instance.
func (m *HeartbeatManager) Unregister(app, insID string) {
	m.mu.Lock()
	delete(m.records, recordKey(app, insID))
	m.mu.Unlock()
}

// lookup returns the heartbeat record for one instance, if any.
func (m *HeartbeatManager) lookup(app, insID string) (*HeartbeatRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordKey(app, insID)]
	return rec, ok
}

// tick is invoked by the agent's timer loop once per period; it finds every
// due record and dispatches its renewal onto the worker pool.
func (m *HeartbeatManager) tick(now time.Time) {
	m.mu.Lock()
	due := make([]*HeartbeatRecord, 0, len(m.records))
	for _, rec := range m.records {
		if rec.due(now) {
			due = append(due, rec)
		}
	}
	m.mu.Unlock()

	for _, rec := range due {
		m.dispatch(rec)
	}
}

// dispatch submits one heartbeat job for rec if one isn't already in
// flight for it.
func (m *HeartbeatManager) dispatch(rec *HeartbeatRecord) {
	if !rec.doing.CompareAndSwap(false, true) {
		return
	}
	m.pool.Submit(func() {
		defer rec.doing.Store(false)
		m.doHeart(rec)
	})
}

func (m *HeartbeatManager) doHeart(rec *HeartbeatRecord) {
	app, insID := rec.snapshot()

	rec.mu.Lock()
	rec.lastHeartTime = time.Now()
	rec.mu.Unlock()

	err := m.client.SendHeart(app, insID)

	rec.mu.Lock()
	if err != nil {
		rec.heartErrCount++
	} else {
		rec.heartSucCount++
	}
	rec.mu.Unlock()

	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			if regErr := m.client.Register(rec.ins); regErr != nil {
				m.logger.Warnf("heartbeat: re-register %s/%s after 404 failed: %v", app, insID, regErr)
				return
			}
			m.logger.Infof("heartbeat: re-registered %s/%s after 404", app, insID)
			return
		}
		m.logger.Warnf("heartbeat: send heart for %s/%s failed: %v", app, insID, err)
	}
}

// Stop halts the manager; it does not stop the shared worker pool, which
// the agent owns.
func (m *HeartbeatManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
