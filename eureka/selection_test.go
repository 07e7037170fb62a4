package eureka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkPeer(id string) *PeerInstance {
	return &PeerInstance{ins: mkIns("APP", id, "10.0.0.1", 8080)}
}

func TestDefaultChoose_SkipsColdDownPeers(t *testing.T) {
	healthy := mkPeer("healthy")
	cold := mkPeer("cold")
	cold.errState.Step = 1
	cold.errState.ErrTime = time.Now()

	peer, _ := defaultChoose([]*PeerInstance{cold, healthy}, 0)
	require.NotNil(t, peer)
	assert.Equal(t, "healthy", peer.Instance().InstanceID)
}

func TestDefaultChoose_AdvancesCursorOnSelection(t *testing.T) {
	peers := []*PeerInstance{mkPeer("a"), mkPeer("b"), mkPeer("c")}

	_, next1 := defaultChoose(peers, 0)
	assert.Equal(t, 1, next1)

	_, next2 := defaultChoose(peers, next1)
	assert.Equal(t, 2, next2)

	_, next3 := defaultChoose(peers, next2)
	assert.Equal(t, 0, next3)
}

func TestDefaultChoose_FailsWhenAllColdDown(t *testing.T) {
	a := mkPeer("a")
	a.errState.Step = 1
	a.errState.ErrTime = time.Now()
	b := mkPeer("b")
	b.errState.Step = 1
	b.errState.ErrTime = time.Now()

	peer, cursor := defaultChoose([]*PeerInstance{a, b}, 0)
	assert.Nil(t, peer)
	assert.Equal(t, 0, cursor)
}

func TestDefaultChoose_EmptyReturnsNil(t *testing.T) {
	peer, cursor := defaultChoose(nil, 0)
	assert.Nil(t, peer)
	assert.Equal(t, 0, cursor)
}

func TestHandle_CloseDecrementsInFlight(t *testing.T) {
	peer := mkPeer("a")
	handle := newHandle(peer)
	require.NotNil(t, handle)

	peer.mu.Lock()
	inFlight := peer.errState.InFlight
	peer.mu.Unlock()
	assert.Equal(t, 1, inFlight)

	handle.Close()

	peer.mu.Lock()
	inFlight = peer.errState.InFlight
	peer.mu.Unlock()
	assert.Equal(t, 0, inFlight)
}

func TestAppDirectory_ChooseUsesCustomChooseFunc(t *testing.T) {
	dir := newAppDirectory("APP")
	dir.reconcile([]*InstanceInfo{
		mkIns("APP", "i1", "10.0.0.1", 8080),
		mkIns("APP", "i2", "10.0.0.2", 8080),
	}, nil, 1, 10)

	dir.SetChooseFunc(func(peers []*PeerInstance, cursor int) (*PeerInstance, int) {
		for _, p := range peers {
			if p.Instance().InstanceID == "i2" {
				return p, cursor
			}
		}
		return nil, cursor
	})

	peer := dir.choose()
	require.NotNil(t, peer)
	assert.Equal(t, "i2", peer.Instance().InstanceID)
}
