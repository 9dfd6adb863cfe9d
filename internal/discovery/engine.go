// Package discovery keeps the LAN table of which peers announced which
// infohash, answers LHT queries from it, and provides the LHT client and the
// LSD announcer.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"lan-lht/internal/announce"
	"lan-lht/internal/netx"
	"lan-lht/internal/svcutil"
)

var (
	ErrAlreadyStarted = errors.New("discovery: engine already started")
	ErrNotListening   = errors.New("discovery: engine not listening")
	ErrDestroyed      = errors.New("discovery: engine destroyed")
)

const defaultEventBuffer = 128

type Config struct {
	// Interface names the network interface used for group membership.
	Interface       string
	BindToInterface bool

	// Cookie overrides the generated session cookie.
	Cookie string
	TTL    time.Duration
	Clock  clock.Clock
	Logger log.Logger

	// ReportError receives every datagram that failed to decode. It must
	// not call back into the engine.
	ReportError func(error)

	NewTransport netx.NewTransportFunc
	EventBuffer  int
}

type state int

const (
	stateCreated state = iota
	stateListening
	stateDestroyed
)

// Engine decodes inbound datagrams, maintains the peer table and answers
// LHT queries. Its lifecycle is created → listening → destroyed.
type Engine struct {
	cfg    Config
	log    log.Logger
	cookie string
	table  *PeerTable
	tr     netx.Transport

	lifecycle sync.Mutex // serializes Start and Destroy

	mu           sync.Mutex // serializes message handling, sends and events
	state        state
	events       chan Event
	eventsClosed bool
	listening    chan struct{}
}

func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	if cfg.Cookie == "" {
		cfg.Cookie = NewCookie(CookiePrefix)
	}
	if cfg.NewTransport == nil {
		cfg.NewTransport = netx.New
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	e := &Engine{
		cfg:       cfg,
		log:       log.With(cfg.Logger, "component", "engine"),
		cookie:    cfg.Cookie,
		table:     NewPeerTable(cfg.Clock, cfg.TTL),
		events:    make(chan Event, cfg.EventBuffer),
		listening: make(chan struct{}),
	}
	if e.cfg.ReportError == nil {
		e.cfg.ReportError = func(err error) {
			level.Debug(e.log).Log("msg", "dropping datagram", "err", err)
		}
	}
	e.table.OnEvict(func(infoHash, peer string) {
		level.Debug(e.log).Log("msg", "peer expired", "infohash", infoHash, "peer", peer)
	})
	e.tr = cfg.NewTransport(netx.MulticastConfig{
		Interface:       cfg.Interface,
		BindToInterface: cfg.BindToInterface,
		Logger:          cfg.Logger,
	}, transportHandler{e})
	return e
}

// Cookie returns the session cookie stamped on every message we send.
func (e *Engine) Cookie() string { return e.cookie }

// Events returns the event stream. It is closed by Destroy.
func (e *Engine) Events() <-chan Event { return e.events }

// Listening is closed once Start has succeeded.
func (e *Engine) Listening() <-chan struct{} { return e.listening }

// Start binds and joins the multicast group. A bind failure is returned;
// membership problems only produce warnings.
func (e *Engine) Start() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	switch st {
	case stateListening:
		return ErrAlreadyStarted
	case stateDestroyed:
		return ErrDestroyed
	}

	if err := e.tr.Start(); err != nil {
		err = fmt.Errorf("start discovery: %w", err)
		level.Error(e.log).Log("msg", "transport start failed", "err", err)
		e.emit(Event{Type: EventTransportError, Err: err})
		return err
	}

	e.mu.Lock()
	e.state = stateListening
	close(e.listening)
	e.mu.Unlock()

	level.Info(e.log).Log("msg", "listening", "group", announce.HostIPv4, "cookie", e.cookie)
	return nil
}

// Destroy closes the transport, cancels every pending eviction and closes
// the event stream. Calls after the first are no-ops.
func (e *Engine) Destroy() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.state == stateDestroyed {
		e.mu.Unlock()
		return nil
	}
	e.state = stateDestroyed
	e.mu.Unlock()

	// Must not hold mu here: Close waits for the read loop, which may be
	// waiting on mu.
	err := e.tr.Close()
	e.table.Shutdown()

	e.mu.Lock()
	e.eventsClosed = true
	close(e.events)
	e.mu.Unlock()

	level.Info(e.log).Log("msg", "destroyed")
	if err != nil {
		return fmt.Errorf("destroy discovery: %w", err)
	}
	return nil
}

// Serve runs the engine as a suture service until ctx is done.
func (e *Engine) Serve(ctx context.Context) error {
	if err := e.Start(); err != nil {
		if errors.Is(err, ErrAlreadyStarted) || errors.Is(err, ErrDestroyed) {
			return svcutil.NoRestartErr(err)
		}
		return svcutil.AsFatalErr(err, svcutil.ExitError)
	}

	<-ctx.Done()
	if err := e.Destroy(); err != nil {
		level.Warn(e.log).Log("msg", "destroy", "err", err)
	}
	return svcutil.NoRestartErr(nil)
}

func (e *Engine) String() string {
	return fmt.Sprintf("discovery.Engine@%p", e)
}

// Send broadcasts an already encoded message to the group.
func (e *Engine) Send(msg []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateCreated:
		return ErrNotListening
	case stateDestroyed:
		return ErrDestroyed
	}
	return e.tr.Send(msg)
}

// RegisterPeer records that peer is interested in infoHash and emits a
// peer event.
func (e *Engine) RegisterPeer(peer, infoHash string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateDestroyed {
		return
	}
	e.registerLocked(peer, infoHash)
}

// PeersFor returns the peers currently known for infoHash.
func (e *Engine) PeersFor(infoHash string) []string {
	return e.table.PeersFor(infoHash)
}

// AllEntries returns a snapshot of the whole table.
func (e *Engine) AllEntries() []Entry {
	return e.table.AllEntries()
}

func (e *Engine) handleDatagram(data []byte, src *net.UDPAddr) {
	a, err := announce.Decode(data)
	if err != nil {
		kind := "unknown"
		var perr *announce.ProtocolError
		if errors.As(err, &perr) {
			kind = perr.Kind.String()
		}
		metricDecodeErrors.WithLabelValues(kind).Inc()
		e.cfg.ReportError(err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateDestroyed {
		return
	}
	if a.Cookie == e.cookie {
		metricSelfMessages.Inc()
		return
	}
	metricMessages.WithLabelValues(string(a.Type)).Inc()

	switch a.Type {
	case announce.TypeLSD:
		peer := peerEndpoint(src, a.Port)
		if peer == "" {
			return
		}
		for _, ih := range a.InfoHashes {
			e.registerLocked(peer, ih)
		}

	case announce.TypeLHT:
		// Messages carrying peers are replies from other servers.
		if len(a.Peers) > 0 {
			metricReplies.WithLabelValues("ignored").Inc()
			return
		}
		// Only the first infohash of a query is answered.
		e.answerLocked(a.InfoHashes[0])
	}
}

func (e *Engine) registerLocked(peer, infoHash string) {
	if e.table.Register(infoHash, peer) {
		level.Debug(e.log).Log("msg", "new peer", "infohash", infoHash, "peer", peer)
	}
	e.emitLocked(Event{Type: EventPeerDiscovered, Peer: peer, InfoHash: infoHash})
}

func (e *Engine) answerLocked(infoHash string) {
	peers := e.table.PeersFor(infoHash)
	if len(peers) == 0 {
		metricReplies.WithLabelValues("unknown").Inc()
		return
	}

	msg := announce.Encode(announce.NewReply(infoHash, e.cookie, peers))
	if err := e.tr.Send(msg); err != nil {
		metricReplies.WithLabelValues("failed").Inc()
		level.Warn(e.log).Log("msg", "LHT reply", "infohash", infoHash, "err", err)
		e.emitLocked(Event{Type: EventTransportError, Err: err})
		return
	}
	metricReplies.WithLabelValues("sent").Inc()
	level.Debug(e.log).Log("msg", "LHT reply", "infohash", infoHash, "peers", len(peers))
	e.emitLocked(Event{Type: EventLhtReply, InfoHash: infoHash, Message: msg})
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	e.emitLocked(ev)
	e.mu.Unlock()
}

func (e *Engine) emitLocked(ev Event) {
	if e.eventsClosed {
		return
	}
	select {
	case e.events <- ev:
	default:
		// drop to avoid blocking the read loop
	}
}

type transportHandler struct {
	e *Engine
}

func (h transportHandler) HandleDatagram(data []byte, src *net.UDPAddr) {
	h.e.handleDatagram(data, src)
}

func (h transportHandler) HandleWarning(err error) {
	level.Warn(h.e.log).Log("msg", "transport", "err", err)
	h.e.emit(Event{Type: EventWarning, Err: err})
}

func (h transportHandler) HandleError(err error) {
	level.Error(h.e.log).Log("msg", "transport", "err", err)
	h.e.emit(Event{Type: EventTransportError, Err: err})
}
