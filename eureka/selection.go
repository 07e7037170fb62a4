package eureka

import "time"

// ChooseFunc selects one peer from an app's current candidate set. It
// receives a copy of the directory's peers in selection order plus the
// current cursor, and returns the chosen peer (nil for none) and the cursor
// to store for the next call. It is called after the directory lock has been
// released; it is not given the directory or its lock.
type ChooseFunc func(peers []*PeerInstance, cursor int) (*PeerInstance, int)

// defaultChoose implements round-robin-with-health-gating selection: it
// scans candidates starting at cursor, skipping any not eligible per
// tryChoose, and advances the cursor to just past the chosen peer so the
// next selection continues from there. Unlike the original's linear scan
// (which never moved nextChooseInsIdIndex), this is a deliberate behavioral
// change: advancing on selection, not just on refresh, gives a fairer
// round-robin distribution under sustained traffic. If none is eligible,
// it fails rather than handing back a peer in cold-down, matching
// defaultChooseHttpClient's "none instance match" behavior.
func defaultChoose(peers []*PeerInstance, cursor int) (*PeerInstance, int) {
	n := len(peers)
	if n == 0 {
		return nil, cursor
	}
	now := time.Now()
	for i := 0; i < n; i++ {
		idx := (cursor + i) % n
		p := peers[idx]
		p.mu.Lock()
		ok := !p.deleted && p.errState.tryChoose(now)
		p.mu.Unlock()
		if ok {
			return p, (idx + 1) % n
		}
	}
	return nil, cursor
}

// Handle is a caller's live reference to one peer, returned by
// Agent.GetHandle/GetInstanceHandle. It reports request outcomes back into
// the peer's health ladder and latency stats.
type Handle struct {
	peer *PeerInstance
}

func newHandle(peer *PeerInstance) *Handle {
	if peer == nil {
		return nil
	}
	peer.mu.Lock()
	peer.errState.InFlight++
	peer.mu.Unlock()
	return &Handle{peer: peer}
}

// Instance returns the peer's current instance snapshot.
func (h *Handle) Instance() *InstanceInfo {
	if h == nil {
		return nil
	}
	return h.peer.Instance()
}

// Close releases the handle's hold on the peer's in-flight counter.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	h.peer.mu.Lock()
	if h.peer.errState.InFlight > 0 {
		h.peer.errState.InFlight--
	}
	h.peer.mu.Unlock()
}

func (h *Handle) reportDone(success bool, micros int64) {
	h.peer.mu.Lock()
	h.peer.errState.onRequestDone(success, time.Now())
	h.peer.latency.add(success, micros)
	h.peer.mu.Unlock()
}

// Request issues an HTTP call through the handle's peer, reporting success
// or failure into the peer's health ladder regardless of HTTP status —
// only a transport-level error counts as a failure here, matching
// InsHttpClient::request.
func (h *Handle) Request(method, path, query string, body []byte) ([]byte, error) {
	start := time.Now()
	status, _, respBody, err := h.peer.pool.Request(method, path, query, body)
	micros := time.Since(start).Microseconds()
	if err != nil {
		h.reportDone(false, micros)
		return nil, err
	}
	h.reportDone(true, micros)
	if status < 200 || status >= 300 {
		return respBody, classifyStatus(status, "")
	}
	return respBody, nil
}

// RequestRespData issues an HTTP call, treating a 5xx response as a
// failure for health-ladder purposes (reported before the status is
// classified) while any other non-2xx status is reported as a success —
// the peer answered, it just didn't like the request — matching
// InsHttpClient::requestRespData.
func (h *Handle) RequestRespData(method, path, query string, body []byte) ([]byte, int, error) {
	start := time.Now()
	status, _, respBody, err := h.peer.pool.Request(method, path, query, body)
	micros := time.Since(start).Microseconds()
	if err != nil {
		h.reportDone(false, micros)
		return nil, 0, err
	}
	if status >= 500 {
		h.reportDone(false, micros)
		return respBody, status, classifyStatus(status, "")
	}
	h.reportDone(true, micros)
	if status < 200 || status >= 300 {
		return respBody, status, classifyStatus(status, "")
	}
	return respBody, status, nil
}
