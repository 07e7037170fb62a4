package eureka

import (
	"crypto/tls"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/atomic"
)

const defaultRefreshStalePeriod = 3 * time.Second

// PeerInstance is one directory entry: an instance snapshot plus its own
// connection pool, health ladder and latency stats. A *PeerInstance stays
// alive for as long as any Handle references it, even after its directory
// has dropped it during a refresh — Go's garbage collector does the work
// the original's shared_ptr refcounting did explicitly.
type PeerInstance struct {
	mu       sync.Mutex
	ins      *InstanceInfo
	pool     *httpClientPool
	errState ErrorState
	latency  LatencyStats
	deleted  bool
}

func newPeerInstance(ins *InstanceInfo, tlsConfig *tls.Config, defaultConnCount, maxConnCount int) *PeerInstance {
	return &PeerInstance{
		ins:  ins,
		pool: newHTTPClientPool(endpointFor(ins), tlsConfig, defaultConnCount, maxConnCount),
	}
}

// Instance returns the peer's most recently refreshed snapshot.
func (p *PeerInstance) Instance() *InstanceInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ins
}

func (p *PeerInstance) updateInstance(ins *InstanceInfo, defaultConnCount, maxConnCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	oldEndpoint := endpointFor(p.ins)
	newEndpoint := endpointFor(ins)
	p.ins = ins
	if oldEndpoint != newEndpoint {
		p.pool.SetEndpoint(newEndpoint)
		p.errState.reset()
	}
}

func (p *PeerInstance) stop() {
	p.pool.Stop()
}

// AppDirectory holds the current peer set for one app-id plus a shuffled
// selection order and cursor, the Go shape of the original CheckAppData.
type AppDirectory struct {
	mu              sync.Mutex
	appID           string
	peers           map[string]*PeerInstance // keyed by instanceId
	order           []string
	cursor          atomic.Int64
	lastRefreshTime atomic.Int64 // unix nanos
	doing           atomic.Bool
	chooseFn        ChooseFunc
}

func newAppDirectory(appID string) *AppDirectory {
	return &AppDirectory{appID: appID, peers: map[string]*PeerInstance{}}
}

func (d *AppDirectory) stale(now time.Time) bool {
	last := d.lastRefreshTime.Load()
	if last == 0 {
		return true
	}
	return now.Sub(time.Unix(0, last)) > defaultRefreshStalePeriod
}

// SetChooseFunc installs a per-app selection override, the Go shape of the
// original setChooseHttpClient.
func (d *AppDirectory) SetChooseFunc(fn ChooseFunc) {
	d.mu.Lock()
	d.chooseFn = fn
	d.mu.Unlock()
}

// peerCount returns the number of live peers under the lock.
func (d *AppDirectory) peerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.peers)
}

// choose picks one peer using the app's ChooseFunc override if set,
// falling back to defaultChoose, and persists the resulting cursor.
func (d *AppDirectory) choose() *PeerInstance {
	d.mu.Lock()
	if len(d.order) == 0 {
		d.mu.Unlock()
		return nil
	}
	peers := make([]*PeerInstance, len(d.order))
	for i, id := range d.order {
		peers[i] = d.peers[id]
	}
	cursor := int(d.cursor.Load()) % len(peers)
	fn := d.chooseFn
	if fn == nil {
		fn = defaultChoose
	}
	d.mu.Unlock()

	peer, next := fn(peers, cursor)
	d.cursor.Store(int64(next))
	return peer
}

// choosePeer finds a specific peer by instance id.
func (d *AppDirectory) choosePeer(insID string) *PeerInstance {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peers[insID]
}

// reconcile merges a freshly queried instance list into the directory:
// existing peers are updated in place (preserving health state unless the
// endpoint changed), new peers are created, and peers no longer present are
// removed from the map and stopped outside the lock. The selection order is
// only rebuilt when membership actually changed, preserving the cursor's
// relative position otherwise.
func (d *AppDirectory) reconcile(instances []*InstanceInfo, tlsConfig *tls.Config, defaultConnCount, maxConnCount int) {
	d.mu.Lock()

	seen := make(map[string]struct{}, len(instances))
	changed := false
	for _, ins := range instances {
		seen[ins.InstanceID] = struct{}{}
		if peer, ok := d.peers[ins.InstanceID]; ok {
			peer.updateInstance(ins, defaultConnCount, maxConnCount)
			continue
		}
		d.peers[ins.InstanceID] = newPeerInstance(ins, tlsConfig, defaultConnCount, maxConnCount)
		changed = true
	}

	var removed []*PeerInstance
	currentID := ""
	if len(d.order) > 0 {
		currentID = d.order[int(d.cursor.Load())%len(d.order)]
	}
	for id, peer := range d.peers {
		if _, ok := seen[id]; ok {
			continue
		}
		peer.mu.Lock()
		peer.deleted = true
		peer.mu.Unlock()
		removed = append(removed, peer)
		delete(d.peers, id)
		changed = true
	}

	if changed {
		order := make([]string, 0, len(d.peers))
		for id := range d.peers {
			order = append(order, id)
		}
		rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		d.order = order
		newIdx := int64(0)
		for i, id := range order {
			if id == currentID {
				newIdx = int64(i)
				break
			}
		}
		d.cursor.Store(newIdx)
	}

	d.lastRefreshTime.Store(time.Now().UnixNano())
	d.mu.Unlock()

	for _, peer := range removed {
		peer.stop()
	}
}

// nextCheck advances every peer's health ladder and latency window once,
// called by the refresh timer on each tick regardless of whether a fetch
// from the registry happened this tick.
func (d *AppDirectory) nextCheck(now time.Time) {
	d.mu.Lock()
	peers := make([]*PeerInstance, 0, len(d.peers))
	for _, p := range d.peers {
		peers = append(peers, p)
	}
	d.mu.Unlock()

	for _, p := range peers {
		p.mu.Lock()
		p.errState.nextCheck(now)
		p.latency.nextCheck()
		p.mu.Unlock()
	}
}

// DirectoryRefresher owns every app's AppDirectory and drives refreshes on
// its own ticker, inline and sequentially — refreshes do not use the
// shared worker pool (see Design Notes §7).
type DirectoryRefresher struct {
	mu               sync.RWMutex
	dirs             map[string]*AppDirectory
	client           *RegistryClient
	tls              *tls.Config
	defaultConnCount int
	maxConnCount     int
	logger           *logAdapter
}

func newDirectoryRefresher(client *RegistryClient, tlsConfig *tls.Config, defaultConnCount, maxConnCount int, logger *logAdapter) *DirectoryRefresher {
	return &DirectoryRefresher{
		dirs:             map[string]*AppDirectory{},
		client:           client,
		tls:              tlsConfig,
		defaultConnCount: defaultConnCount,
		maxConnCount:     maxConnCount,
		logger:           logger,
	}
}

func (r *DirectoryRefresher) getOrCreate(appID string) *AppDirectory {
	r.mu.RLock()
	dir, ok := r.dirs[appID]
	r.mu.RUnlock()
	if ok {
		return dir
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if dir, ok := r.dirs[appID]; ok {
		return dir
	}
	dir = newAppDirectory(appID)
	r.dirs[appID] = dir
	return dir
}

func (r *DirectoryRefresher) lookup(appID string) (*AppDirectory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dir, ok := r.dirs[appID]
	return dir, ok
}

// refreshApp fetches the current instance list for one app and reconciles
// it into that app's directory. Concurrent callers for the same app-id
// wait for an in-flight refresh rather than launching duplicate work.
func (r *DirectoryRefresher) refreshApp(appID string) error {
	dir := r.getOrCreate(appID)
	if !dir.doing.CompareAndSwap(false, true) {
		for dir.doing.Load() {
			time.Sleep(time.Millisecond)
		}
		return nil
	}
	defer dir.doing.Store(false)

	app, err := r.client.QueryInsByAppID(appID)
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			dir.reconcile(nil, r.tls, r.defaultConnCount, r.maxConnCount)
			return nil
		}
		return err
	}
	dir.reconcile(app.Instances, r.tls, r.defaultConnCount, r.maxConnCount)
	return nil
}

// tick is called once per refresh period by the agent's timer loop: it
// refreshes every known app sequentially, then advances every peer's
// health ladder across all apps.
func (r *DirectoryRefresher) tick() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.dirs))
	dirs := make([]*AppDirectory, 0, len(r.dirs))
	for id, dir := range r.dirs {
		ids = append(ids, id)
		dirs = append(dirs, dir)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.refreshApp(id); err != nil {
			r.logger.Warnf("refresh app %s: %v", id, err)
		}
	}

	now := time.Now()
	for _, dir := range dirs {
		dir.nextCheck(now)
	}
}

func (r *DirectoryRefresher) stopAll() {
	r.mu.Lock()
	dirs := make([]*AppDirectory, 0, len(r.dirs))
	for _, dir := range r.dirs {
		dirs = append(dirs, dir)
	}
	r.mu.Unlock()

	for _, dir := range dirs {
		dir.mu.Lock()
		peers := make([]*PeerInstance, 0, len(dir.peers))
		for _, p := range dir.peers {
			peers = append(peers, p)
		}
		dir.mu.Unlock()
		for _, p := range peers {
			p.stop()
		}
	}
}
