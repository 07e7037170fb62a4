package eureka

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/atomic"
)

const (
	defaultHeartbeatTickPeriod = 1 * time.Second
	defaultRefreshTickPeriod   = 3 * time.Second
)

// Agent is the top-level client-side service-discovery agent: it registers
// and renews this process's own instances, and maintains a live, health-
// gated directory of peer instances for whatever apps callers ask about.
type Agent struct {
	cfg AgentConfig

	ec         *endpointController
	registry   *RegistryClient
	pool       *workerPool
	heartbeats *HeartbeatManager
	refresher  *DirectoryRefresher
	dns        *dnsEndpointResolver
	logger     *logAdapter

	registered sync.Map // instanceId -> *InstanceInfo, this process's own instances

	started atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewAgent builds an Agent from the given options. It does not start any
// background goroutines; call Start for that.
func NewAgent(opts ...Option) (*Agent, error) {
	cfg := defaultAgentConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var dnsResolver *dnsEndpointResolver
	endpoints := cfg.Endpoints
	if cfg.DNSDiscovery.Enabled {
		dnsResolver = newDNSEndpointResolver(cfg.DNSDiscovery)
		if len(endpoints) == 0 {
			resolved, err := dnsResolver.resolve()
			if err != nil {
				return nil, err
			}
			endpoints = resolved
		}
	}
	cfg.Endpoints = endpoints
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := newLogAdapter(cfg.Logger)
	ec := newEndpointController(cfg.Endpoints, cfg.TLS, cfg.DefaultConnCount, cfg.MaxConnCount, cfg.RetryFn, logger)
	registry := newRegistryClient(ec)
	pool := newWorkerPool(cfg.WorkerCount)

	a := &Agent{
		cfg:        cfg,
		ec:         ec,
		registry:   registry,
		pool:       pool,
		heartbeats: newHeartbeatManager(registry, pool, logger),
		refresher:  newDirectoryRefresher(registry, cfg.TLS, cfg.DefaultConnCount, cfg.MaxConnCount, logger),
		dns:        dnsResolver,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
	return a, nil
}

// Start launches the agent's background timers: lease renewal, directory
// refresh, and (if configured) DNS endpoint re-resolution.
func (a *Agent) Start() error {
	if !a.started.CompareAndSwap(false, true) {
		return NewError("agent already started")
	}

	a.wg.Add(1)
	go a.runHeartbeatTimer()

	a.wg.Add(1)
	go a.runRefreshTimer()

	if a.dns != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.dns.run(a.ec, a.logger, a.stopCh)
		}()
	}

	a.logger.Infof("agent started with endpoints %v", a.cfg.Endpoints)
	return nil
}

func (a *Agent) runHeartbeatTimer() {
	defer a.wg.Done()
	ticker := time.NewTicker(defaultHeartbeatTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case now := <-ticker.C:
			a.heartbeats.tick(now)
		}
	}
}

func (a *Agent) runRefreshTimer() {
	defer a.wg.Done()
	ticker := time.NewTicker(defaultRefreshTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.refresher.tick()
		}
	}
}

// Stop deregisters every instance this agent registered, then halts all
// background timers and releases every pooled connection.
func (a *Agent) Stop() error {
	if !a.started.CompareAndSwap(true, false) {
		return nil
	}
	a.registered.Range(func(key, value interface{}) bool {
		ins := value.(*InstanceInfo)
		if err := a.registry.Unregister(ins.App, ins.InstanceID); err != nil {
			a.logger.Warnf("deregister %s/%s on stop: %v", ins.App, ins.InstanceID, err)
		}
		return true
	})

	close(a.stopCh)
	a.wg.Wait()
	a.heartbeats.Stop()
	a.refresher.stopAll()
	a.pool.Stop()
	a.ec.Stop()
	return nil
}

// MakeInstanceID builds a default instance id of the form "app:ipAddr:port".
func MakeInstanceID(app, ipAddr string, port int) string {
	return fmt.Sprintf("%s:%s:%d", app, ipAddr, port)
}

// RegisterInstance publishes ins to the registry and begins renewing its
// lease. The instance is deregistered automatically on Stop.
func (a *Agent) RegisterInstance(ins *InstanceInfo) error {
	if ins.InstanceID == "" {
		ipAddr := ins.IPAddr
		if ipAddr == "" {
			ipAddr, _ = os.Hostname()
		}
		port := 0
		if ins.Port != nil {
			port = ins.Port.Port
		}
		ins.InstanceID = MakeInstanceID(ins.App, ipAddr, port)
	}
	if err := a.registry.Register(ins); err != nil {
		return err
	}
	a.registered.Store(ins.InstanceID, ins)
	a.heartbeats.Register(ins)
	return nil
}

// RegisterSimple builds a default InstanceInfo via GetEmptyIns and
// registers it, returning the generated instance id.
func (a *Agent) RegisterSimple(app, ipAddr string, port int) (string, error) {
	insID := MakeInstanceID(app, ipAddr, port)
	ins := GetEmptyIns(app, insID, ipAddr, port)
	if err := a.RegisterInstance(ins); err != nil {
		return "", err
	}
	return insID, nil
}

// UnregisterInstance removes an instance from the registry and stops
// renewing its lease.
func (a *Agent) UnregisterInstance(app, insID string) error {
	a.registered.Delete(insID)
	a.heartbeats.Unregister(app, insID)
	return a.registry.Unregister(app, insID)
}

// GetHandle returns a Handle to one healthy peer of appID, refreshing the
// directory first if it is missing or stale, the Go shape of the
// original's getHttpClient(appId).
func (a *Agent) GetHandle(appID string) (*Handle, error) {
	dir, ok := a.refresher.lookup(appID)
	if !ok || dir.peerCount() == 0 {
		if err := a.refresher.refreshApp(appID); err != nil {
			return nil, err
		}
		dir, _ = a.refresher.lookup(appID)
	} else if dir.stale(time.Now()) {
		if err := a.refresher.refreshApp(appID); err != nil {
			a.logger.Warnf("stale refresh for %s failed, using cached directory: %v", appID, err)
		}
	}
	if dir == nil {
		return nil, NewNotFoundError()
	}
	peer := dir.choose()
	if peer == nil {
		return nil, NewNetError("no peers available for app %s", appID)
	}
	return newHandle(peer), nil
}

// GetInstanceHandle returns a Handle to one specific instance, refreshing
// the directory first if that instance is not yet known.
func (a *Agent) GetInstanceHandle(appID, insID string) (*Handle, error) {
	dir, ok := a.refresher.lookup(appID)
	var peer *PeerInstance
	if ok {
		peer = dir.choosePeer(insID)
	}
	if peer == nil {
		if err := a.refresher.refreshApp(appID); err != nil {
			return nil, err
		}
		dir, _ = a.refresher.lookup(appID)
		if dir != nil {
			peer = dir.choosePeer(insID)
		}
	}
	if peer == nil {
		return nil, NewNotFoundError()
	}
	return newHandle(peer), nil
}

// SetChooseFunc installs a per-app peer selection override.
func (a *Agent) SetChooseFunc(appID string, fn ChooseFunc) {
	a.refresher.getOrCreate(appID).SetChooseFunc(fn)
}

// Registry exposes the raw registry client for direct queries (vip/svip
// lookups, the full application list) that don't need health-gated
// selection.
func (a *Agent) Registry() *RegistryClient { return a.registry }

// RegistrationSnapshot is a point-in-time view of one instance this agent
// registered, the Go shape of the original AgentSnap::RegData.
type RegistrationSnapshot struct {
	LastHeartTime time.Time
	HeartSucCount int64
	HeartErrCount int64
}

// PeerSnapshot is a point-in-time view of one peer in an app directory, the
// Go shape of the original AgentSnap::InsData.
type PeerSnapshot struct {
	InstanceID string
	Endpoint   string
	ErrorState ErrorState
	Latency    LatencyStats
}

// AppSnapshot summarizes one app's current directory state, the Go shape
// of the original AgentSnap's per-app instance map.
type AppSnapshot struct {
	AppID           string
	PeerCount       int
	LastRefreshTime time.Time
	Peers           []PeerSnapshot
}

// Snapshot returns a consistent point-in-time view of every instance this
// agent registered and every app directory it maintains, the Go shape of
// the original getSnap: the registration map and the app map are each
// locked in turn, not the whole agent at once.
func (a *Agent) Snapshot() (map[string]RegistrationSnapshot, []AppSnapshot) {
	regs := map[string]RegistrationSnapshot{}
	a.registered.Range(func(key, value interface{}) bool {
		ins := value.(*InstanceInfo)
		if rec, ok := a.heartbeats.lookup(ins.App, ins.InstanceID); ok {
			lastHeartTime, sucCount, errCount := rec.snapshotCounters()
			regs[key.(string)] = RegistrationSnapshot{
				LastHeartTime: lastHeartTime,
				HeartSucCount: sucCount,
				HeartErrCount: errCount,
			}
		}
		return true
	})

	a.refresher.mu.RLock()
	ids := make([]string, 0, len(a.refresher.dirs))
	dirs := make([]*AppDirectory, 0, len(a.refresher.dirs))
	for id, dir := range a.refresher.dirs {
		ids = append(ids, id)
		dirs = append(dirs, dir)
	}
	a.refresher.mu.RUnlock()

	apps := make([]AppSnapshot, 0, len(ids))
	for i, id := range ids {
		dir := dirs[i]
		dir.mu.Lock()
		last := dir.lastRefreshTime.Load()
		var t time.Time
		if last != 0 {
			t = time.Unix(0, last)
		}
		peers := make([]PeerSnapshot, 0, len(dir.peers))
		for insID, peer := range dir.peers {
			peer.mu.Lock()
			peers = append(peers, PeerSnapshot{
				InstanceID: insID,
				Endpoint:   endpointFor(peer.ins),
				ErrorState: peer.errState,
				Latency:    peer.latency,
			})
			peer.mu.Unlock()
		}
		dir.mu.Unlock()
		apps = append(apps, AppSnapshot{
			AppID:           id,
			PeerCount:       len(peers),
			LastRefreshTime: t,
			Peers:           peers,
		})
	}
	return regs, apps
}

// FetchConfig fetches a raw configuration blob from a peer selected out of
// the "CONFIG-SERVER" app directory, the Go shape of the original
// callHttpConfigServer(path).
func (a *Agent) FetchConfig(path string) ([]byte, error) {
	handle, err := a.GetHandle("CONFIG-SERVER")
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	body, _, err := handle.RequestRespData("GET", path, "", nil)
	return body, err
}

// FetchConfigProfile fetches a configuration blob scoped to a named
// profile, building a "/<serviceName>-<profile>.yml" path the way the
// original's two-argument callHttpConfigServer does.
func (a *Agent) FetchConfigProfile(serviceName, profile string) ([]byte, error) {
	path := "/" + serviceName
	if profile != "" {
		path += "-" + profile
	}
	path += ".yml"
	return a.FetchConfig(path)
}
