// Package announce encodes and decodes the LSD (BT-SEARCH) and LHT (BT-LHT)
// multicast messages.
package announce

import (
	"strconv"
	"strings"
)

type MessageType string

const (
	TypeLSD MessageType = "LSD"
	TypeLHT MessageType = "LHT"
)

const (
	GroupIPv4 = "239.192.152.143"
	GroupIPv6 = "ff15::efc0:988f"
	Port      = 6771
)

var (
	// HostIPv4 and HostIPv6 are the only Host values accepted on an LSD announce.
	HostIPv4 = GroupIPv4 + ":" + strconv.Itoa(Port)
	HostIPv6 = "[" + GroupIPv6 + "]:" + strconv.Itoa(Port)
)

const (
	lineLSD = "BT-SEARCH * HTTP/1.1"
	lineLHT = "BT-LHT * HTTP/1.1"
	crlf    = "\r\n"

	prefixHost     = "Host: "
	prefixPort     = "Port: "
	prefixInfoHash = "Infohash: "
	prefixCookie   = "cookie: "
	prefixPeer     = "peer: "
)

// Announce is one decoded wire message. An empty Cookie means the message
// carried none. Peers is only meaningful for LHT messages.
type Announce struct {
	Type       MessageType
	Host       string
	Port       string
	InfoHashes []string
	Cookie     string
	Peers      []string
}

// NewLSD builds a BT-SEARCH announce for the IPv4 group.
func NewLSD(port int, cookie string, infoHashes ...string) Announce {
	return Announce{
		Type:       TypeLSD,
		Host:       HostIPv4,
		Port:       strconv.Itoa(port),
		InfoHashes: infoHashes,
		Cookie:     cookie,
	}
}

// NewQuery builds an LHT query asking for the peers of infoHash.
func NewQuery(infoHash, cookie string) Announce {
	return NewReply(infoHash, cookie, nil)
}

// NewReply builds an LHT message carrying the known peers for infoHash.
func NewReply(infoHash, cookie string, peers []string) Announce {
	return Announce{
		Type:       TypeLHT,
		Host:       HostIPv4,
		Port:       "0",
		InfoHashes: []string{infoHash},
		Cookie:     cookie,
		Peers:      peers,
	}
}

func (a Announce) requestLine() string {
	if a.Type == TypeLHT {
		return lineLHT
	}
	return lineLSD
}

// String renders the message in wire form.
func (a Announce) String() string {
	var b strings.Builder
	b.WriteString(a.requestLine() + crlf)
	b.WriteString(prefixHost + a.Host + crlf)
	b.WriteString(prefixPort + a.Port + crlf)
	for _, ih := range a.InfoHashes {
		b.WriteString(prefixInfoHash + ih + crlf)
	}
	if a.Cookie != "" {
		b.WriteString(prefixCookie + a.Cookie + crlf)
	}
	if a.Type == TypeLHT {
		for _, p := range a.Peers {
			b.WriteString(prefixPeer + p + crlf)
		}
	}
	// empty body
	b.WriteString(crlf + crlf)
	return b.String()
}

// Encode returns the wire bytes of a.
func Encode(a Announce) []byte {
	return []byte(a.String())
}

// ValidInfoHash reports whether s is exactly 40 hexadecimal characters.
func ValidInfoHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isHex(s[i]) {
			return false
		}
	}
	return true
}

func validLSDHost(host string) bool {
	return host == HostIPv4 || host == HostIPv6
}

func validPort(port string) bool {
	if port == "" {
		return false
	}
	for i := 0; i < len(port); i++ {
		if port[i] < '0' || port[i] > '9' {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
