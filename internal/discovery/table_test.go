package discovery

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRegisterDeduplicates(t *testing.T) {
	tbl := NewPeerTable(clock.NewMock(), 0)

	assert.True(t, tbl.Register(hashA, "10.0.0.1:1"))
	for i := 0; i < 5; i++ {
		assert.False(t, tbl.Register(hashA, "10.0.0.1:1"))
	}
	assert.Equal(t, []string{"10.0.0.1:1"}, tbl.PeersFor(hashA))
	assert.Equal(t, 1, tbl.Len())
}

func TestTableUnknownHash(t *testing.T) {
	tbl := NewPeerTable(clock.NewMock(), 0)

	peers := tbl.PeersFor(hashA)
	require.NotNil(t, peers)
	assert.Empty(t, peers)
	assert.Empty(t, tbl.AllEntries())
}

func TestTableSnapshotOrderAndIsolation(t *testing.T) {
	tbl := NewPeerTable(clock.NewMock(), 0)
	tbl.Register(hashB, "10.0.0.2:2")
	tbl.Register(hashA, "10.0.0.1:1")
	tbl.Register(hashB, "10.0.0.3:3")

	assert.Equal(t, []Entry{
		{InfoHash: hashB, Peers: []string{"10.0.0.2:2", "10.0.0.3:3"}},
		{InfoHash: hashA, Peers: []string{"10.0.0.1:1"}},
	}, tbl.AllEntries())

	peers := tbl.PeersFor(hashB)
	peers[0] = "mutated"
	assert.Equal(t, []string{"10.0.0.2:2", "10.0.0.3:3"}, tbl.PeersFor(hashB))
}

func TestTableExpiresAfterTTL(t *testing.T) {
	mock := clock.NewMock()
	tbl := NewPeerTable(mock, 0)

	var evicted atomic.Int32
	tbl.OnEvict(func(infoHash, peer string) {
		assert.Equal(t, hashA, infoHash)
		assert.Equal(t, "10.0.0.1:1", peer)
		evicted.Add(1)
	})

	tbl.Register(hashA, "10.0.0.1:1")

	mock.Add(PeerTTL - time.Second)
	assert.Equal(t, []string{"10.0.0.1:1"}, tbl.PeersFor(hashA))

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return tbl.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, tbl.AllEntries())
	assert.Equal(t, int32(1), evicted.Load())
}

func TestTableRefreshResetsTimer(t *testing.T) {
	mock := clock.NewMock()
	tbl := NewPeerTable(mock, 0)

	var evicted atomic.Int32
	tbl.OnEvict(func(string, string) { evicted.Add(1) })

	tbl.Register(hashA, "10.0.0.1:1")
	mock.Add(1000 * time.Second)
	tbl.Register(hashA, "10.0.0.1:1")
	tbl.Register(hashA, "10.0.0.1:1")

	// past the first deadline, before the refreshed one
	mock.Add(1000 * time.Second)
	assert.Equal(t, []string{"10.0.0.1:1"}, tbl.PeersFor(hashA))
	assert.Equal(t, int32(0), evicted.Load())

	mock.Add(200 * time.Second)
	require.Eventually(t, func() bool { return tbl.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), evicted.Load())
}

func TestTableKeyRemovedWithLastPeer(t *testing.T) {
	mock := clock.NewMock()
	tbl := NewPeerTable(mock, 0)

	tbl.Register(hashA, "10.0.0.1:1")
	mock.Add(600 * time.Second)
	tbl.Register(hashA, "10.0.0.2:2")

	mock.Add(600 * time.Second)
	require.Eventually(t, func() bool { return tbl.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Entry{{InfoHash: hashA, Peers: []string{"10.0.0.2:2"}}}, tbl.AllEntries())

	mock.Add(600 * time.Second)
	require.Eventually(t, func() bool { return len(tbl.AllEntries()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestTableCustomTTL(t *testing.T) {
	mock := clock.NewMock()
	tbl := NewPeerTable(mock, time.Minute)

	tbl.Register(hashA, "10.0.0.1:1")
	mock.Add(time.Minute)
	require.Eventually(t, func() bool { return tbl.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTableShutdown(t *testing.T) {
	mock := clock.NewMock()
	tbl := NewPeerTable(mock, 0)

	var evicted atomic.Int32
	tbl.OnEvict(func(string, string) { evicted.Add(1) })

	tbl.Register(hashA, "10.0.0.1:1")
	tbl.Register(hashB, "10.0.0.2:2")
	tbl.Shutdown()
	tbl.Shutdown()

	assert.Equal(t, 0, tbl.Len())
	assert.Empty(t, tbl.AllEntries())

	mock.Add(2 * PeerTTL)
	assert.Equal(t, int32(0), evicted.Load())

	assert.False(t, tbl.Register(hashA, "10.0.0.1:1"))
	assert.Equal(t, 0, tbl.Len())
}
