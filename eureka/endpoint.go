package eureka

import (
	"crypto/tls"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// rawResponse is the parsed shape of one HTTP round trip, passed to a
// RetryFunc so it can decide whether and how to retry.
type rawResponse struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

func (r *rawResponse) header(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	name = strings.ToLower(name)
	for k, v := range r.Headers {
		if strings.ToLower(k) == name {
			return v, true
		}
	}
	return "", false
}

// RetryFunc decides what an endpointController should do after one attempt.
// tryCount is 1 on the first attempt. resp is nil when the attempt failed
// at the transport level (err set instead). It returns the action to take.
type RetryFunc func(tryCount int, resp *rawResponse, err error, ctl *endpointController) retryAction

type retryAction int

const (
	retryStop retryAction = iota
	retryAgain
	retryAfterRedirect
)

// endpointController owns an ordered list of registry endpoints plus a
// "current" index, and drives the retry loop described for RequestWithRetry:
// network errors advance to the next endpoint, a 500 backs off for 200ms and
// other non-2xx, non-4xx statuses retry the same endpoint at once, 307
// redirects retarget to the Location header,
// and the whole loop is bounded by a budget of 2*len(endpoints) attempts.
type endpointController struct {
	mu        sync.RWMutex
	endpoints []string
	current   atomic.Int64

	pool    *httpClientPool
	retryFn RetryFunc
	logger  *logAdapter
}

func newEndpointController(endpoints []string, tlsConfig *tls.Config, defaultConnCount, maxConnCount int, retryFn RetryFunc, logger *logAdapter) *endpointController {
	if retryFn == nil {
		retryFn = defaultRetry
	}
	ec := &endpointController{
		endpoints: append([]string(nil), endpoints...),
		retryFn:   retryFn,
		logger:    logger,
	}
	ec.pool = newHTTPClientPool(ec.CurrentEndpoint(), tlsConfig, defaultConnCount, maxConnCount)
	return ec
}

func (ec *endpointController) CurrentEndpoint() string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	if len(ec.endpoints) == 0 {
		return ""
	}
	idx := int(ec.current.Load()) % len(ec.endpoints)
	return ec.endpoints[idx]
}

// SwitchEndpoint advances to the next endpoint in round-robin order and
// retargets the pool.
func (ec *endpointController) SwitchEndpoint() string {
	ec.mu.RLock()
	n := len(ec.endpoints)
	ec.mu.RUnlock()
	if n == 0 {
		return ""
	}
	ec.current.Inc()
	ep := ec.CurrentEndpoint()
	ec.pool.SetEndpoint(ep)
	return ep
}

// setEndpoints replaces the endpoint list wholesale, used by DNS discovery.
func (ec *endpointController) setEndpoints(endpoints []string) {
	if len(endpoints) == 0 {
		return
	}
	ec.mu.Lock()
	ec.endpoints = append([]string(nil), endpoints...)
	ec.mu.Unlock()
	ec.pool.SetEndpoint(ec.CurrentEndpoint())
}

func (ec *endpointController) retryBudget() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return 2 * len(ec.endpoints)
}

// RequestWithRetry runs one logical call through the full retry loop.
func (ec *endpointController) RequestWithRetry(method, path, query string, body []byte) (*rawResponse, error) {
	budget := ec.retryBudget()
	if budget == 0 {
		return nil, NewParamError("no endpoints configured")
	}

	tryCount := 0
	for {
		tryCount++
		if tryCount > budget {
			return nil, NewNetError("retry budget exhausted after %d attempts", tryCount-1)
		}

		status, headers, respBody, err := ec.pool.Request(method, path, query, body)
		var resp *rawResponse
		if err == nil {
			resp = &rawResponse{Status: status, Headers: headers, Body: respBody}
		}

		action := ec.retryFn(tryCount, resp, err, ec)
		switch action {
		case retryStop:
			if err != nil {
				return nil, err
			}
			if resp.Status >= 200 && resp.Status < 300 {
				return resp, nil
			}
			return nil, classifyStatus(resp.Status, "")
		case retryAfterRedirect:
			continue
		case retryAgain:
			continue
		}
	}
}

func (ec *endpointController) Stop() {
	ec.pool.Stop()
}

// defaultRetry is the controller's built-in RetryFunc, grounded on
// EurekaConnect::defaultRetry: network errors switch endpoint and retry;
// 500s sleep briefly and retry the same endpoint; 307s retarget to
// Location and retry; 4xx stop immediately; other non-2xx keep retrying
// until the budget runs out; 2xx stops successfully.
func defaultRetry(tryCount int, resp *rawResponse, err error, ec *endpointController) retryAction {
	if err != nil {
		ec.SwitchEndpoint()
		return retryAgain
	}
	switch {
	case resp.Status >= 200 && resp.Status < 300:
		return retryStop
	case resp.Status == http.StatusInternalServerError:
		time.Sleep(200 * time.Millisecond)
		return retryAgain
	case resp.Status == http.StatusTemporaryRedirect:
		if loc, ok := resp.header("Location"); ok && loc != "" {
			ec.mu.Lock()
			if len(ec.endpoints) > 0 {
				idx := int(ec.current.Load()) % len(ec.endpoints)
				ec.endpoints[idx] = loc
			}
			ec.mu.Unlock()
			ec.pool.SetEndpoint(loc)
			return retryAfterRedirect
		}
		return retryStop
	case resp.Status >= 400 && resp.Status < 500:
		return retryStop
	default:
		return retryAgain
	}
}
