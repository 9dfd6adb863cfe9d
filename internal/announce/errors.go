package announce

import "fmt"

type ErrorKind int

const (
	InvalidHeader ErrorKind = iota + 1
	InvalidHost
	InvalidPort
	InvalidInfoHash
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidHeader:
		return "header"
	case InvalidHost:
		return "host"
	case InvalidPort:
		return "port"
	case InvalidInfoHash:
		return "infoHash"
	default:
		return "unknown"
	}
}

// ProtocolError describes why a datagram could not be decoded. Type is empty
// when the request line itself was not recognized.
type ProtocolError struct {
	Kind ErrorKind
	Type MessageType
}

func (e *ProtocolError) Error() string {
	if e.Kind == InvalidHeader || e.Type == "" {
		return "invalid LSD or LHT announce (header)"
	}
	return fmt.Sprintf("invalid %s announce (%s)", e.Type, e.Kind)
}

// Is matches on Kind only, so errors.Is(err, ErrInvalidPort) holds for both
// LSD and LHT port errors.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidHeader   = &ProtocolError{Kind: InvalidHeader}
	ErrInvalidHost     = &ProtocolError{Kind: InvalidHost}
	ErrInvalidPort     = &ProtocolError{Kind: InvalidPort}
	ErrInvalidInfoHash = &ProtocolError{Kind: InvalidInfoHash}
)
