package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"lan-lht/internal/announce"
	"lan-lht/internal/netx"
)

const (
	DefaultResendAfter = 2 * time.Second
	DefaultResendEvery = 60 * time.Second
)

type ClientConfig struct {
	Interface       string
	BindToInterface bool

	// Cookie overrides the generated client cookie. It should keep
	// ClientCookiePrefix so servers and other clients can tell it apart.
	Cookie string

	// ResendAfter is the delay of the second query, ResendEvery the period
	// of every query after that.
	ResendAfter time.Duration
	ResendEvery time.Duration

	Clock        clock.Clock
	Logger       log.Logger
	NewTransport netx.NewTransportFunc
}

// Client asks the LAN which peers a server knows for one infohash.
type Client struct {
	cfg    ClientConfig
	log    log.Logger
	cookie string
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Cookie == "" {
		cfg.Cookie = NewCookie(ClientCookiePrefix)
	}
	if cfg.ResendAfter <= 0 {
		cfg.ResendAfter = DefaultResendAfter
	}
	if cfg.ResendEvery <= 0 {
		cfg.ResendEvery = DefaultResendEvery
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	if cfg.NewTransport == nil {
		cfg.NewTransport = netx.New
	}
	return &Client{
		cfg:    cfg,
		log:    log.With(cfg.Logger, "component", "client"),
		cookie: cfg.Cookie,
	}
}

func (c *Client) Cookie() string { return c.cookie }

// Lookup queries infoHash until a server answers or ctx is done. The query
// goes out immediately, again after ResendAfter and then every ResendEvery.
// Replies from other clients are ignored.
func (c *Client) Lookup(ctx context.Context, infoHash string) ([]string, error) {
	if !announce.ValidInfoHash(infoHash) {
		return nil, fmt.Errorf("lookup %q: %w", infoHash, announce.ErrInvalidInfoHash)
	}

	h := &replyHandler{
		infoHash: infoHash,
		log:      c.log,
		replies:  make(chan []string, 1),
	}
	tr := c.cfg.NewTransport(netx.MulticastConfig{
		Interface:       c.cfg.Interface,
		BindToInterface: c.cfg.BindToInterface,
		Logger:          c.cfg.Logger,
	}, h)
	if err := tr.Start(); err != nil {
		return nil, fmt.Errorf("lookup %s: %w", infoHash, err)
	}
	defer tr.Close()

	query := announce.Encode(announce.NewQuery(infoHash, c.cookie))
	send := func() {
		if err := tr.Send(query); err != nil {
			level.Warn(c.log).Log("msg", "LHT query", "infohash", infoHash, "err", err)
			return
		}
		level.Debug(c.log).Log("msg", "LHT query sent", "infohash", infoHash)
	}

	send()

	resend := c.cfg.Clock.Timer(c.cfg.ResendAfter)
	defer resend.Stop()

	var (
		ticker *clock.Ticker
		tick   <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case peers := <-h.replies:
			return peers, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-resend.C:
			send()
			ticker = c.cfg.Clock.Ticker(c.cfg.ResendEvery)
			tick = ticker.C
		case <-tick:
			send()
		}
	}
}

type replyHandler struct {
	infoHash string
	log      log.Logger
	replies  chan []string
}

func (h *replyHandler) HandleDatagram(data []byte, _ *net.UDPAddr) {
	a, err := announce.Decode(data)
	if err != nil {
		level.Debug(h.log).Log("msg", "dropping datagram", "err", err)
		return
	}
	if a.Type != announce.TypeLHT {
		return
	}
	// Our own query and other clients' queries carry this prefix.
	if strings.HasPrefix(a.Cookie, ClientCookiePrefix) {
		return
	}
	if a.InfoHashes[0] != h.infoHash {
		return
	}

	select {
	case h.replies <- a.Peers:
	default:
		// an earlier reply already won
	}
}

func (h *replyHandler) HandleWarning(err error) {
	level.Warn(h.log).Log("msg", "transport", "err", err)
}

func (h *replyHandler) HandleError(err error) {
	level.Error(h.log).Log("msg", "transport", "err", err)
}
