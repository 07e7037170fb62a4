package eureka

import (
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"go.uber.org/atomic"
	resty "gopkg.in/resty.v1"
)

// poolTrimInterval is how often the global trimmer visits every live pool,
// per Design Notes §5.
const poolTrimInterval = 30 * time.Second

const defaultRequestTimeout = 10 * time.Second

// httpClientPool is one peer's (or the registry's) connection-pooled HTTP
// client, the Go shape of the teacher's resty.v1 client and the original
// curl::HttpClientPool it was grounded on: a small set of independent
// resty.Client values bound to one endpoint, grown on demand up to
// maxConnCount and trimmed back down by the package-level trimmer.
type httpClientPool struct {
	mu               sync.Mutex
	endpoint         string
	tls              *tls.Config
	defaultConnCount int
	maxConnCount     int
	idle             []*resty.Client
	inUse            int
	peakInUse        int

	stopped    atomic.Bool
	requesting atomic.Int64
}

func newHTTPClientPool(endpoint string, tlsConfig *tls.Config, defaultConnCount, maxConnCount int) *httpClientPool {
	if defaultConnCount <= 0 {
		defaultConnCount = 3
	}
	if maxConnCount <= 0 {
		maxConnCount = 1000
	}
	p := &httpClientPool{
		endpoint:         endpoint,
		tls:              tlsConfig,
		defaultConnCount: defaultConnCount,
		maxConnCount:     maxConnCount,
	}
	globalPoolTrimmer.incStart(p)
	return p
}

func (p *httpClientPool) newClient() *resty.Client {
	c := resty.New()
	c.SetHostURL(p.endpoint)
	c.SetTimeout(defaultRequestTimeout)
	if p.tls != nil {
		c.SetTLSClientConfig(p.tls)
	}
	c.SetHeader("Accept", "application/json")
	c.SetHeader("Content-Type", "application/json")
	return c
}

// SetEndpoint retargets every client currently owned by the pool, idle or
// in use; requests already in flight complete against their old endpoint.
func (p *httpClientPool) SetEndpoint(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoint = endpoint
	for _, c := range p.idle {
		c.SetHostURL(endpoint)
	}
}

func (p *httpClientPool) Endpoint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoint
}

func (p *httpClientPool) acquire() (*resty.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped.Load() {
		return nil, NewNetError("pool stopped")
	}
	var c *resty.Client
	if n := len(p.idle); n > 0 {
		c = p.idle[n-1]
		p.idle = p.idle[:n-1]
	} else {
		if p.inUse >= p.maxConnCount {
			return nil, NewNetError("limit to max conn count")
		}
		c = p.newClient()
	}
	p.inUse++
	if p.inUse > p.peakInUse {
		p.peakInUse = p.inUse
	}
	return c, nil
}

func (p *httpClientPool) release(c *resty.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse--
	c.SetHostURL(p.endpoint)
	p.idle = append(p.idle, c)
}

// Stop marks the pool stopped, waits for in-flight requests to finish, and
// drops every idle client. It also de-registers the pool from the global
// trimmer.
func (p *httpClientPool) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	globalPoolTrimmer.decStop(p)
	for p.requesting.Load() > 0 {
		time.Sleep(10 * time.Millisecond)
	}
	p.mu.Lock()
	p.idle = nil
	p.mu.Unlock()
}

// trim shrinks idle capacity toward the recent high-water mark, run by the
// global trimmer every poolTrimInterval.
func (p *httpClientPool) trim() {
	if p.stopped.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	keep := p.peakInUse + p.peakInUse/2 + 1
	if keep < p.defaultConnCount {
		keep = p.defaultConnCount
	}
	for len(p.idle) > keep {
		p.idle = p.idle[:len(p.idle)-1]
	}
	p.peakInUse = 0
}

// Request issues one HTTP call through a pooled client. It returns the raw
// status/headers/body; callers classify the status themselves.
func (p *httpClientPool) Request(method, path, query string, body []byte) (int, map[string]string, []byte, error) {
	p.requesting.Inc()
	defer p.requesting.Dec()

	if p.stopped.Load() {
		return 0, nil, nil, NewNetError("pool stopped")
	}

	c, err := p.acquire()
	if err != nil {
		return 0, nil, nil, err
	}
	defer p.release(c)

	req := c.R()
	if len(body) > 0 {
		req.SetBody(body)
	}
	if query != "" {
		req.SetQueryString(query)
	}

	var resp *resty.Response
	switch method {
	case http.MethodGet:
		resp, err = req.Get(path)
	case http.MethodPost:
		resp, err = req.Post(path)
	case http.MethodPut:
		resp, err = req.Put(path)
	case http.MethodDelete:
		resp, err = req.Delete(path)
	default:
		return 0, nil, nil, NewParamError("unsupported method %q", method)
	}
	if err != nil {
		return 0, nil, nil, NewNetError("%s %s%s: %v", method, p.Endpoint(), path, err)
	}

	headers := make(map[string]string, len(resp.Header()))
	for k, v := range resp.Header() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return resp.StatusCode(), headers, resp.Body(), nil
}

// poolTrimmer is the process-wide trimmer described in Design Notes §5: a
// single shared goroutine visits every live pool every poolTrimInterval.
// incStart/decStop refcount the shared goroutine so it starts with the
// first pool and stops with the last.
type poolTrimmer struct {
	mu    sync.Mutex
	pools map[*httpClientPool]struct{}
	count atomic.Int64
	stop  chan struct{}
}

var globalPoolTrimmer = &poolTrimmer{pools: map[*httpClientPool]struct{}{}}

func (t *poolTrimmer) incStart(p *httpClientPool) {
	t.mu.Lock()
	_, exists := t.pools[p]
	if !exists {
		t.pools[p] = struct{}{}
	}
	t.mu.Unlock()
	if exists {
		return
	}
	if t.count.Inc() == 1 {
		stop := make(chan struct{})
		t.mu.Lock()
		t.stop = stop
		t.mu.Unlock()
		go t.run(stop)
	}
}

func (t *poolTrimmer) decStop(p *httpClientPool) {
	t.mu.Lock()
	_, exists := t.pools[p]
	delete(t.pools, p)
	stop := t.stop
	t.mu.Unlock()
	if !exists {
		return
	}
	if t.count.Dec() == 0 {
		close(stop)
	}
}

func (t *poolTrimmer) run(stop chan struct{}) {
	ticker := time.NewTicker(poolTrimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			pools := make([]*httpClientPool, 0, len(t.pools))
			for p := range t.pools {
				pools = append(pools, p)
			}
			t.mu.Unlock()
			for _, p := range pools {
				p.trim()
			}
		}
	}
}
