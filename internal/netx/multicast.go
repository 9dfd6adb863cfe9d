package netx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/net/ipv4"

	"lan-lht/internal/announce"
)

const maxDatagram = 65536

var (
	ErrNotStarted = errors.New("netx: transport not started")
	ErrClosed     = errors.New("netx: transport closed")
)

// MulticastConfig selects where the transport binds and which interface
// joins the group.
type MulticastConfig struct {
	// Interface is an OS interface name whose IPv4 address is used for
	// group membership. Empty means the system default.
	Interface string
	// BindToInterface binds the socket to the interface address instead of
	// the wildcard address.
	BindToInterface bool
	// Group and Port default to the LSD multicast endpoint.
	Group  string
	Port   int
	Logger log.Logger
}

func (c *MulticastConfig) setDefaults() {
	if c.Group == "" {
		c.Group = announce.GroupIPv4
	}
	if c.Port == 0 {
		c.Port = announce.Port
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
}

// Multicast is an IPv4 UDP multicast transport. It always sends to the
// group and hands every received datagram to its Handler.
type Multicast struct {
	cfg     MulticastConfig
	handler Handler
	log     log.Logger
	group   *net.UDPAddr

	mu      sync.Mutex // guards conn and serializes writes
	conn    *net.UDPConn
	started bool
	closed  bool

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewMulticast returns an unstarted transport.
func NewMulticast(cfg MulticastConfig, h Handler) *Multicast {
	cfg.setDefaults()
	return &Multicast{
		cfg:     cfg,
		handler: h,
		log:     log.With(cfg.Logger, "component", "multicast"),
		group:   &net.UDPAddr{IP: net.ParseIP(cfg.Group), Port: cfg.Port},
		done:    make(chan struct{}),
	}
}

// New is a NewTransportFunc backed by NewMulticast.
func New(cfg MulticastConfig, h Handler) Transport {
	return NewMulticast(cfg, h)
}

// Start binds the socket and joins the group. Only a bind failure is
// returned; membership problems go to the handler as warnings.
func (m *Multicast) Start() error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	ifi, ifaceIP, err := LookupInterface(m.cfg.Interface)
	if err != nil {
		m.handler.HandleWarning(err)
	}

	bindHost := ""
	if m.cfg.BindToInterface && ifaceIP != nil {
		bindHost = ifaceIP.String()
	}
	bindAddr := net.JoinHostPort(bindHost, strconv.Itoa(m.cfg.Port))

	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", bindAddr)
	if err != nil {
		return fmt.Errorf("multicast listen %s: %w", bindAddr, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return fmt.Errorf("multicast listen %s: not a UDPConn", bindAddr)
	}
	level.Debug(m.log).Log("msg", "listening", "addr", conn.LocalAddr())

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.JoinGroup(ifi, &net.UDPAddr{IP: m.group.IP}); err != nil {
		level.Debug(m.log).Log("msg", "join group failed", "group", m.group.IP, "iface", ifaceName(ifi), "err", err)
		m.handler.HandleWarning(fmt.Errorf("join multicast group %s: %w", m.group.IP, err))
	} else {
		level.Debug(m.log).Log("msg", "joined group", "group", m.group.IP, "iface", ifaceName(ifi))
	}
	setSendOptions(pconn, ifi, m.handler)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	m.conn = conn
	m.started = true
	m.mu.Unlock()

	go m.readLoop(conn)
	return nil
}

// sendOptions is the part of *ipv4.PacketConn that controls outgoing
// multicast.
type sendOptions interface {
	SetMulticastInterface(*net.Interface) error
	SetMulticastLoopback(bool) error
}

// setSendOptions selects the outgoing interface and enables loopback so
// other processes on this host see our messages. Failures are warnings.
func setSendOptions(opts sendOptions, ifi *net.Interface, h Handler) {
	if ifi != nil {
		if err := opts.SetMulticastInterface(ifi); err != nil {
			h.HandleWarning(fmt.Errorf("set multicast interface %s: %w", ifi.Name, err))
		}
	}
	if err := opts.SetMulticastLoopback(true); err != nil {
		h.HandleWarning(fmt.Errorf("enable multicast loopback: %w", err))
	}
}

func (m *Multicast) readLoop(conn *net.UDPConn) {
	defer close(m.done)

	buf := make([]byte, maxDatagram)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				m.handler.HandleError(fmt.Errorf("multicast read: %w", err))
			}
			return
		}
		level.Debug(m.log).Log("msg", "recv", "bytes", n, "src", src)

		c := make([]byte, n)
		copy(c, buf[:n])
		m.handler.HandleDatagram(c, src)
	}
}

// Send writes b to the group. Delivery is not confirmed.
func (m *Multicast) Send(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ErrNotStarted
	}
	if _, err := m.conn.WriteToUDP(b, m.group); err != nil {
		return fmt.Errorf("multicast send: %w", err)
	}
	level.Debug(m.log).Log("msg", "sent", "bytes", len(b), "dst", m.group)
	return nil
}

// Close releases the socket. Only the first call has an effect.
func (m *Multicast) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		conn, started := m.conn, m.started
		m.conn = nil
		m.closed = true
		m.mu.Unlock()

		if !started {
			return
		}
		// closing the socket also drops the membership
		m.closeErr = conn.Close()
		<-m.done
		level.Debug(m.log).Log("msg", "closed")
	})
	return m.closeErr
}

// LocalAddr returns the bound address, or nil before Start.
func (m *Multicast) LocalAddr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	return m.conn.LocalAddr()
}

func ifaceName(ifi *net.Interface) string {
	if ifi == nil {
		return "default"
	}
	return ifi.Name
}
