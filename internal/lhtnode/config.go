package lhtnode

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"

	"lan-lht/internal/announce"
	"lan-lht/internal/netx"
)

type Config struct {
	// Interface names the interface whose IPv4 address joins the LSD group.
	Interface       string
	BindToInterface bool

	HTTPHost    string
	HTTPPort    int
	DisableHTTP bool

	// AnnounceHashes are announced every AnnounceInterval on AnnouncePort.
	// No hashes disables the announcer.
	AnnounceHashes   []string
	AnnouncePort     int
	AnnounceInterval time.Duration

	// Output receives the event lines; nil means stdout. Color adds ANSI
	// colors to it.
	Output io.Writer
	Color  bool

	// NewTransport replaces the multicast transport in tests.
	NewTransport netx.NewTransportFunc
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var err error
	if !c.DisableHTTP && (c.HTTPPort < 0 || c.HTTPPort > 65535) {
		err = multierr.Append(err, fmt.Errorf("http port %d out of range", c.HTTPPort))
	}
	if c.BindToInterface && c.Interface == "" {
		err = multierr.Append(err, errors.New("bind to interface requires a network interface"))
	}
	for _, ih := range c.AnnounceHashes {
		if !announce.ValidInfoHash(ih) {
			err = multierr.Append(err, fmt.Errorf("announce infohash %q: %w", ih, announce.ErrInvalidInfoHash))
		}
	}
	if len(c.AnnounceHashes) > 0 && (c.AnnouncePort <= 0 || c.AnnouncePort > 65535) {
		err = multierr.Append(err, fmt.Errorf("announce port %d out of range", c.AnnouncePort))
	}
	if c.AnnounceInterval < 0 {
		err = multierr.Append(err, fmt.Errorf("negative announce interval %v", c.AnnounceInterval))
	}
	return err
}
