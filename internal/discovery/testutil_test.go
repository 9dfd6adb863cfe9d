package discovery

import (
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"

	"lan-lht/internal/netx"
)

const (
	hashA = "F60AE72E07713D4F14878A5B24ADB34992401AC9"
	hashB = "F60AE72E07713D4F14878A5B24ADB34992401AC8"

	selfCookie = "bittorrent-lht-test-self"
)

// fakeTransport records sends and lets a test inject datagrams directly into
// the handler.
type fakeTransport struct {
	mu       sync.Mutex
	cfg      netx.MulticastConfig
	handler  netx.Handler
	startErr error
	sendErr  error
	warnings []error // reported through the handler during Start
	starts   int
	closes   int
	sent     [][]byte
}

func (f *fakeTransport) Start() error {
	f.mu.Lock()
	f.starts++
	err, warnings := f.startErr, f.warnings
	f.mu.Unlock()

	for _, w := range warnings {
		f.handler.HandleWarning(w)
	}
	return err
}

func (f *fakeTransport) Send(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), b...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) sends() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) deliver(msg []byte, src string) {
	addr, err := net.ResolveUDPAddr("udp4", src)
	if err != nil {
		panic(err)
	}
	f.handler.HandleDatagram(msg, addr)
}

// fakeFactory returns a NewTransportFunc building fakeTransports, and a
// channel yielding each one as it is created.
func fakeFactory(setup func(*fakeTransport)) (netx.NewTransportFunc, <-chan *fakeTransport) {
	created := make(chan *fakeTransport, 16)
	return func(cfg netx.MulticastConfig, h netx.Handler) netx.Transport {
		f := &fakeTransport{cfg: cfg, handler: h}
		if setup != nil {
			setup(f)
		}
		created <- f
		return f
	}, created
}

func newTestEngine(t *testing.T, mod func(*Config), setup func(*fakeTransport)) (*Engine, *fakeTransport, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	factory, created := fakeFactory(setup)
	cfg := Config{
		Cookie:       selfCookie,
		Clock:        mock,
		NewTransport: factory,
	}
	if mod != nil {
		mod(&cfg)
	}

	e := NewEngine(cfg)
	t.Cleanup(func() { _ = e.Destroy() })
	return e, <-created, mock
}

func drainEvents(e *Engine) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-e.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

type nopHandler struct{}

func (nopHandler) HandleDatagram([]byte, *net.UDPAddr) {}
func (nopHandler) HandleWarning(error)                  {}
func (nopHandler) HandleError(error)                    {}

// hub is an in-memory multicast group. Every send reaches every started
// member, the sender included, from a per-member address.
type hub struct {
	mu      sync.Mutex
	members []*hubTransport
}

func (h *hub) factory() netx.NewTransportFunc {
	return func(cfg netx.MulticastConfig, handler netx.Handler) netx.Transport {
		h.mu.Lock()
		defer h.mu.Unlock()
		ht := &hubTransport{
			hub:     h,
			handler: handler,
			addr:    &net.UDPAddr{IP: net.IPv4(10, 0, 0, byte(len(h.members)+1)), Port: 6771},
			inbox:   make(chan datagram, 64),
			done:    make(chan struct{}),
		}
		h.members = append(h.members, ht)
		return ht
	}
}

func (h *hub) broadcast(d datagram) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.members {
		m.enqueue(d)
	}
}

type datagram struct {
	data []byte
	src  *net.UDPAddr
}

type hubTransport struct {
	hub     *hub
	handler netx.Handler
	addr    *net.UDPAddr
	inbox   chan datagram
	done    chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

func (ht *hubTransport) Start() error {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if ht.closed {
		return netx.ErrClosed
	}
	ht.started = true
	go ht.loop()
	return nil
}

func (ht *hubTransport) loop() {
	for {
		select {
		case d := <-ht.inbox:
			ht.handler.HandleDatagram(d.data, d.src)
		case <-ht.done:
			return
		}
	}
}

func (ht *hubTransport) enqueue(d datagram) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if !ht.started || ht.closed {
		return
	}
	select {
	case ht.inbox <- d:
	default:
	}
}

func (ht *hubTransport) Send(b []byte) error {
	ht.mu.Lock()
	ok := ht.started && !ht.closed
	ht.mu.Unlock()
	if !ok {
		return fmt.Errorf("hub transport %s: %w", ht.addr, netx.ErrNotStarted)
	}
	ht.hub.broadcast(datagram{data: append([]byte(nil), b...), src: ht.addr})
	return nil
}

func (ht *hubTransport) Close() error {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if ht.closed {
		return nil
	}
	ht.closed = true
	if ht.started {
		close(ht.done)
	}
	return nil
}
