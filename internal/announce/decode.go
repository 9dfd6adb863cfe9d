package announce

import "strings"

// Decode parses one datagram. It never panics on malformed input; it returns
// a *ProtocolError naming the first check that failed.
func Decode(msg []byte) (Announce, error) {
	lines := strings.Split(string(msg), crlf)

	var a Announce
	switch lines[0] {
	case lineLSD:
		a.Type = TypeLSD
	case lineLHT:
		a.Type = TypeLHT
	default:
		return Announce{}, &ProtocolError{Kind: InvalidHeader}
	}

	host, ok := field(lines, 1, prefixHost)
	if !ok || (a.Type == TypeLSD && !validLSDHost(host)) {
		// LHT hosts are accepted as-is.
		return Announce{}, &ProtocolError{Kind: InvalidHost, Type: a.Type}
	}
	a.Host = host

	port, ok := field(lines, 2, prefixPort)
	if !ok || !validPort(port) {
		return Announce{}, &ProtocolError{Kind: InvalidPort, Type: a.Type}
	}
	a.Port = port

	if len(lines) > 3 {
		for _, line := range lines[3:] {
			switch {
			case strings.HasPrefix(line, prefixInfoHash):
				if ih := strings.TrimPrefix(line, prefixInfoHash); ValidInfoHash(ih) {
					a.InfoHashes = append(a.InfoHashes, ih)
				}
			case strings.HasPrefix(line, prefixCookie):
				// later cookies win
				a.Cookie = strings.TrimPrefix(line, prefixCookie)
			case strings.HasPrefix(line, prefixPeer):
				a.Peers = append(a.Peers, strings.TrimPrefix(line, prefixPeer))
			}
		}
	}

	if len(a.InfoHashes) == 0 {
		return Announce{}, &ProtocolError{Kind: InvalidInfoHash, Type: a.Type}
	}
	return a, nil
}

func field(lines []string, i int, prefix string) (string, bool) {
	if i >= len(lines) || !strings.HasPrefix(lines[i], prefix) {
		return "", false
	}
	return strings.TrimPrefix(lines[i], prefix), true
}
