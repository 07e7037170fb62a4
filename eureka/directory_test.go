package eureka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkIns(appID, insID, ip string, port int) *InstanceInfo {
	return &InstanceInfo{
		App:        appID,
		InstanceID: insID,
		IPAddr:     ip,
		Port:       &Port{Port: port, Enabled: true},
		Status:     "UP",
	}
}

func TestAppDirectory_ReconcileAddsNewPeers(t *testing.T) {
	dir := newAppDirectory("APP")
	dir.reconcile([]*InstanceInfo{
		mkIns("APP", "i1", "10.0.0.1", 8080),
		mkIns("APP", "i2", "10.0.0.2", 8080),
	}, nil, 1, 10)

	assert.Equal(t, 2, dir.peerCount())
	require.NotNil(t, dir.choosePeer("i1"))
	require.NotNil(t, dir.choosePeer("i2"))
}

func TestAppDirectory_ReconcileRemovesMissingPeers(t *testing.T) {
	dir := newAppDirectory("APP")
	dir.reconcile([]*InstanceInfo{
		mkIns("APP", "i1", "10.0.0.1", 8080),
		mkIns("APP", "i2", "10.0.0.2", 8080),
	}, nil, 1, 10)

	dir.reconcile([]*InstanceInfo{
		mkIns("APP", "i1", "10.0.0.1", 8080),
	}, nil, 1, 10)

	assert.Equal(t, 1, dir.peerCount())
	assert.Nil(t, dir.choosePeer("i2"))
}

func TestAppDirectory_ReconcileKeepsHealthStateWhenEndpointUnchanged(t *testing.T) {
	dir := newAppDirectory("APP")
	dir.reconcile([]*InstanceInfo{mkIns("APP", "i1", "10.0.0.1", 8080)}, nil, 1, 10)

	peer := dir.choosePeer("i1")
	peer.mu.Lock()
	peer.errState.Step = 2
	peer.mu.Unlock()

	// a second refresh with the identical endpoint should not reset the ladder.
	dir.reconcile([]*InstanceInfo{mkIns("APP", "i1", "10.0.0.1", 8080)}, nil, 1, 10)

	peer.mu.Lock()
	step := peer.errState.Step
	peer.mu.Unlock()
	assert.Equal(t, 2, step)
}

func TestAppDirectory_ReconcileResetsHealthStateWhenEndpointChanges(t *testing.T) {
	dir := newAppDirectory("APP")
	dir.reconcile([]*InstanceInfo{mkIns("APP", "i1", "10.0.0.1", 8080)}, nil, 1, 10)

	peer := dir.choosePeer("i1")
	peer.mu.Lock()
	peer.errState.Step = 3
	peer.mu.Unlock()

	// same instance id, different port -> endpoint changed.
	dir.reconcile([]*InstanceInfo{mkIns("APP", "i1", "10.0.0.1", 9090)}, nil, 1, 10)

	peer.mu.Lock()
	step := peer.errState.Step
	peer.mu.Unlock()
	assert.Equal(t, 0, step)
}

func TestAppDirectory_SurvivingHandleKeepsPeerAliveAfterRemoval(t *testing.T) {
	dir := newAppDirectory("APP")
	dir.reconcile([]*InstanceInfo{mkIns("APP", "i1", "10.0.0.1", 8080)}, nil, 1, 10)

	handle := newHandle(dir.choosePeer("i1"))
	require.NotNil(t, handle)

	// i1 disappears from the registry.
	dir.reconcile([]*InstanceInfo{}, nil, 1, 10)
	assert.Equal(t, 0, dir.peerCount())

	// the handle still references a live (if now orphaned) peer.
	ins := handle.Instance()
	require.NotNil(t, ins)
	assert.Equal(t, "i1", ins.InstanceID)
}

func TestAppDirectory_NextCheckAdvancesEveryPeer(t *testing.T) {
	dir := newAppDirectory("APP")
	dir.reconcile([]*InstanceInfo{mkIns("APP", "i1", "10.0.0.1", 8080)}, nil, 1, 10)

	peer := dir.choosePeer("i1")
	peer.mu.Lock()
	peer.errState.Err = 1
	peer.errState.ErrTime = time.Now()
	peer.mu.Unlock()

	dir.nextCheck(time.Now())

	peer.mu.Lock()
	step := peer.errState.Step
	peer.mu.Unlock()
	assert.Equal(t, 1, step)
}

func TestAppDirectory_StalenessReflectsLastRefresh(t *testing.T) {
	dir := newAppDirectory("APP")
	assert.True(t, dir.stale(time.Now()))

	dir.reconcile([]*InstanceInfo{mkIns("APP", "i1", "10.0.0.1", 8080)}, nil, 1, 10)
	assert.False(t, dir.stale(time.Now()))
}
