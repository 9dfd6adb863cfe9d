package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"lan-lht/internal/announce"
)

const DefaultAnnounceInterval = 5 * time.Minute

// Sender is the part of the engine the announcer needs.
type Sender interface {
	Send(msg []byte) error
	Cookie() string
	Listening() <-chan struct{}
}

type AnnouncerConfig struct {
	// Port is the listening port advertised for every infohash.
	Port       int
	InfoHashes []string
	Interval   time.Duration
	Clock      clock.Clock
	Logger     log.Logger
}

// Announcer periodically broadcasts one LSD announce for all configured
// infohashes. The announce carries the engine cookie, so the local engine
// ignores it.
type Announcer struct {
	cfg    AnnouncerConfig
	sender Sender
	log    log.Logger
}

func NewAnnouncer(s Sender, cfg AnnouncerConfig) *Announcer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultAnnounceInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	return &Announcer{
		cfg:    cfg,
		sender: s,
		log:    log.With(cfg.Logger, "component", "announcer"),
	}
}

// Serve announces as soon as the engine listens and then every Interval
// until ctx is done.
func (a *Announcer) Serve(ctx context.Context) error {
	select {
	case <-a.sender.Listening():
	case <-ctx.Done():
		return ctx.Err()
	}

	msg := announce.Encode(announce.NewLSD(a.cfg.Port, a.sender.Cookie(), a.cfg.InfoHashes...))

	ticker := a.cfg.Clock.Ticker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		a.announce(msg)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *Announcer) announce(msg []byte) {
	if err := a.sender.Send(msg); err != nil {
		metricAnnounces.WithLabelValues("failed").Inc()
		level.Warn(a.log).Log("msg", "LSD announce failed", "err", err)
		return
	}
	metricAnnounces.WithLabelValues("sent").Inc()
	level.Debug(a.log).Log("msg", "LSD announce sent", "infohashes", len(a.cfg.InfoHashes), "port", a.cfg.Port)
}

func (a *Announcer) String() string {
	return fmt.Sprintf("discovery.Announcer@%p", a)
}
