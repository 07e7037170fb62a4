package eureka

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEndpointController(t *testing.T, endpoints ...string) *endpointController {
	t.Helper()
	ec := newEndpointController(endpoints, nil, 1, 10, nil, newLogAdapter(nil))
	t.Cleanup(ec.Stop)
	return ec
}

func TestDefaultRetry_SuccessStops(t *testing.T) {
	ec := newTestEndpointController(t, "http://a", "http://b")
	action := defaultRetry(1, &rawResponse{Status: http.StatusOK}, nil, ec)
	assert.Equal(t, retryStop, action)
}

func TestDefaultRetry_NetworkErrorSwitchesEndpoint(t *testing.T) {
	ec := newTestEndpointController(t, "http://a", "http://b", "http://c")
	start := ec.CurrentEndpoint()

	action := defaultRetry(1, nil, NewNetError("dial failed"), ec)

	assert.Equal(t, retryAgain, action)
	assert.NotEqual(t, start, ec.CurrentEndpoint())
}

func TestDefaultRetry_ServerErrorRetriesSameEndpoint(t *testing.T) {
	ec := newTestEndpointController(t, "http://a")
	before := ec.CurrentEndpoint()

	action := defaultRetry(1, &rawResponse{Status: http.StatusInternalServerError}, nil, ec)

	assert.Equal(t, retryAgain, action)
	assert.Equal(t, before, ec.CurrentEndpoint())
}

func TestDefaultRetry_RedirectRetargets(t *testing.T) {
	ec := newTestEndpointController(t, "http://a")

	resp := &rawResponse{
		Status:  http.StatusTemporaryRedirect,
		Headers: map[string]string{"Location": "http://redirected"},
	}
	action := defaultRetry(1, resp, nil, ec)

	assert.Equal(t, retryAfterRedirect, action)
	assert.Equal(t, "http://redirected", ec.CurrentEndpoint())
}

func TestDefaultRetry_RedirectWithoutLocationStops(t *testing.T) {
	ec := newTestEndpointController(t, "http://a")
	resp := &rawResponse{Status: http.StatusTemporaryRedirect}
	action := defaultRetry(1, resp, nil, ec)
	assert.Equal(t, retryStop, action)
}

func TestDefaultRetry_ClientErrorStopsImmediately(t *testing.T) {
	ec := newTestEndpointController(t, "http://a")
	action := defaultRetry(1, &rawResponse{Status: http.StatusNotFound}, nil, ec)
	assert.Equal(t, retryStop, action)
}

func TestRetryBudget_MatchesTwiceEndpointCount(t *testing.T) {
	ec := newTestEndpointController(t, "http://a", "http://b", "http://c")
	require.Equal(t, 6, ec.retryBudget())
}

func TestSwitchEndpoint_WrapsAround(t *testing.T) {
	ec := newTestEndpointController(t, "http://a", "http://b")
	first := ec.CurrentEndpoint()
	second := ec.SwitchEndpoint()
	third := ec.SwitchEndpoint()
	assert.NotEqual(t, first, second)
	assert.Equal(t, first, third)
}
