package discovery

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// PeerTTL is how long a peer stays in the table after its last LSD announce.
const PeerTTL = 1200 * time.Second

// Entry is one row of a table snapshot.
type Entry struct {
	InfoHash string   `json:"infohash"`
	Peers    []string `json:"peers"`
}

// expiry is the single pending eviction of one (infohash, peer) pair. A
// fired timer only evicts if it is still the registered expiry for its pair.
type expiry struct {
	timer *clock.Timer
}

type bucket struct {
	peers   []string
	expires map[string]*expiry
}

// PeerTable maps infohashes to the peers that recently announced them. Every
// pair expires independently; refreshing a pair replaces its timer. An
// infohash is present only while it has at least one peer.
type PeerTable struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	order   []string
	buckets map[string]*bucket
	closed  bool

	onEvict func(infoHash, peer string)
}

// NewPeerTable creates a table. A nil clock means the wall clock and a zero
// ttl means PeerTTL.
func NewPeerTable(clk clock.Clock, ttl time.Duration) *PeerTable {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = PeerTTL
	}
	return &PeerTable{
		clock:   clk,
		ttl:     ttl,
		buckets: make(map[string]*bucket),
	}
}

// OnEvict sets a hook called (without the table lock held) after a pair
// expires.
func (t *PeerTable) OnEvict(fn func(infoHash, peer string)) {
	t.mu.Lock()
	t.onEvict = fn
	t.mu.Unlock()
}

// Register adds peer to infoHash, or refreshes it, and (re)arms its single
// eviction timer. It reports whether the pair is new.
func (t *PeerTable) Register(infoHash, peer string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	b, ok := t.buckets[infoHash]
	if !ok {
		b = &bucket{expires: make(map[string]*expiry)}
		t.buckets[infoHash] = b
		t.order = append(t.order, infoHash)
	}

	added := false
	if prev, ok := b.expires[peer]; ok {
		prev.timer.Stop()
	} else {
		b.peers = append(b.peers, peer)
		added = true
	}

	exp := &expiry{}
	exp.timer = t.clock.AfterFunc(t.ttl, func() { t.expire(infoHash, peer, exp) })
	b.expires[peer] = exp

	if added {
		metricTablePeers.Inc()
	}
	return added
}

func (t *PeerTable) expire(infoHash, peer string, exp *expiry) {
	t.mu.Lock()
	b, ok := t.buckets[infoHash]
	if !ok || b.expires[peer] != exp {
		// refreshed or shut down while this timer was firing
		t.mu.Unlock()
		return
	}

	delete(b.expires, peer)
	b.peers = remove(b.peers, peer)
	if len(b.peers) == 0 {
		delete(t.buckets, infoHash)
		t.order = remove(t.order, infoHash)
	}
	fn := t.onEvict
	t.mu.Unlock()

	metricTablePeers.Dec()
	metricEvictions.Inc()
	if fn != nil {
		fn(infoHash, peer)
	}
}

// PeersFor returns a copy of the peers known for infoHash, in first-seen
// order. Unknown hashes yield an empty slice.
func (t *PeerTable) PeersFor(infoHash string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[infoHash]
	if !ok {
		return []string{}
	}
	return append([]string(nil), b.peers...)
}

// AllEntries snapshots the whole table, infohashes in first-seen order.
func (t *PeerTable) AllEntries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.order))
	for _, ih := range t.order {
		out = append(out, Entry{
			InfoHash: ih,
			Peers:    append([]string(nil), t.buckets[ih].peers...),
		})
	}
	return out
}

// Len returns the number of (infohash, peer) pairs.
func (t *PeerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, b := range t.buckets {
		n += len(b.peers)
	}
	return n
}

// Shutdown cancels every pending eviction without running it and empties
// the table. Later registrations are ignored.
func (t *PeerTable) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true

	n := 0
	for _, b := range t.buckets {
		for _, exp := range b.expires {
			exp.timer.Stop()
			n++
		}
	}
	t.buckets = make(map[string]*bucket)
	t.order = nil
	metricTablePeers.Sub(float64(n))
}

func remove(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
