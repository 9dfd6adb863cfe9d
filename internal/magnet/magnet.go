// Package magnet builds BitTorrent magnet links that carry LAN peers.
package magnet

import "strings"

const (
	prefix    = "magnet:?xt=urn:btih:"
	peerParam = "&x.pe="
)

// Link returns a magnet link for infoHash with one x.pe parameter per peer,
// in order. Values are inserted as given.
func Link(infoHash string, peers []string) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(infoHash) + len(peers)*(len(peerParam)+21))
	b.WriteString(prefix)
	b.WriteString(infoHash)
	for _, p := range peers {
		b.WriteString(peerParam)
		b.WriteString(p)
	}
	return b.String()
}
