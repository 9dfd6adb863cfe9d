package lhtnode

import (
	"fmt"
	"io"
	"sync"

	"lan-lht/internal/discovery"
)

const (
	ansiReset = "\033[0m"
	ansiDim   = "\033[2m"
	ansiRed   = "\033[31m"
)

// Some basic, deterministic colors for infohashes.
var hashColors = []string{
	"\033[32m", // green
	"\033[33m", // yellow
	"\033[34m", // blue
	"\033[35m", // magenta
	"\033[36m", // cyan
}

// pickColor returns a color based on a stable hash of the string.
func pickColor(s string) string {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*16777619 ^ uint32(s[i]) // FNV-ish
	}
	return hashColors[h%uint32(len(hashColors))]
}

func shortHash(ih string) string {
	if len(ih) > 8 {
		return ih[:8]
	}
	return ih
}

// EventPrinter writes one line per engine event.
type EventPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func NewEventPrinter(w io.Writer, color bool) *EventPrinter {
	return &EventPrinter{w: w, color: color}
}

func (p *EventPrinter) Print(ev discovery.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case discovery.EventPeerDiscovered:
		fmt.Fprintf(p.w, "[PEER] %s %s\n", p.hash(ev.InfoHash), ev.Peer)
	case discovery.EventLhtReply:
		fmt.Fprintf(p.w, "[LHT] %s answered %s\n", p.hash(ev.InfoHash), p.dim(fmt.Sprintf("(%d bytes)", len(ev.Message))))
	case discovery.EventWarning:
		fmt.Fprintf(p.w, "[WARN] %v\n", ev.Err)
	case discovery.EventTransportError:
		fmt.Fprintf(p.w, "%s %v\n", p.paint(ansiRed, "[ERR]"), ev.Err)
	}
}

func (p *EventPrinter) hash(ih string) string {
	return p.paint(pickColor(ih), shortHash(ih))
}

func (p *EventPrinter) dim(s string) string {
	return p.paint(ansiDim, s)
}

func (p *EventPrinter) paint(color, s string) string {
	if !p.color {
		return s
	}
	return color + s + ansiReset
}
