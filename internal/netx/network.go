package netx

import "net"

// Handler receives everything a transport observes. Calls are made from the
// transport's read loop, one at a time.
type Handler interface {
	HandleDatagram(data []byte, src *net.UDPAddr)
	// HandleWarning reports a problem the transport survives, e.g. a failed
	// group join that leaves it send-only.
	HandleWarning(err error)
	// HandleError reports a socket failure after Start.
	HandleError(err error)
}

type Transport interface {
	Start() error
	Send(b []byte) error
	Close() error
}

// NewTransportFunc builds a transport delivering to h.
type NewTransportFunc func(cfg MulticastConfig, h Handler) Transport
