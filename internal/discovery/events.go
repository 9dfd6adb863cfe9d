package discovery

type EventType string

const (
	EventPeerDiscovered EventType = "peer"
	EventLhtReply       EventType = "lht"
	EventWarning        EventType = "warning"
	EventTransportError EventType = "transport_error"
)

// Event is one observable engine occurrence. Only the fields relevant to
// Type are set.
type Event struct {
	Type     EventType
	Peer     string // EventPeerDiscovered
	InfoHash string // EventPeerDiscovered, EventLhtReply
	Message  []byte // EventLhtReply: the encoded reply as sent
	Err      error  // EventWarning, EventTransportError
}
