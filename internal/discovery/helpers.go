package discovery

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
)

const (
	// CookiePrefix starts every engine session cookie.
	CookiePrefix = "bittorrent-lht-"
	// ClientCookiePrefix starts every LhtClient cookie.
	ClientCookiePrefix = "bittorrent-lht-client-"
)

// NewCookie returns prefix + hostname + a random token.
func NewCookie(prefix string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s%s-%s", prefix, host, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// peerEndpoint joins the sender IP with the port the announce declared.
func peerEndpoint(sender *net.UDPAddr, port string) string {
	if sender == nil || sender.IP == nil {
		return ""
	}
	return net.JoinHostPort(sender.IP.String(), port)
}
