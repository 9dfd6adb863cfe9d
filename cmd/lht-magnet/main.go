// Command lht-magnet asks LHT servers on the LAN which peers they know for an
// infohash and prints a magnet link carrying them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log/level"

	"lan-lht/internal/discovery"
	"lan-lht/internal/magnet"
	"lan-lht/internal/svcutil"
	"lan-lht/internal/telemetry"
)

type cli struct {
	InfoHash string `arg:"" help:"40 character hex infohash to look up"`

	NetworkInterface string        `short:"i" help:"Network interface whose IPv4 address joins the LSD multicast group" env:"LHT_NETWORK_INTERFACE"`
	Bind             bool          `short:"b" help:"Bind the UDP socket to the interface address" env:"LHT_BIND"`
	Timeout          time.Duration `help:"Give up after this long; 0 waits forever" default:"0s" env:"LHT_TIMEOUT"`

	Debug     bool   `help:"Enable debug logging" env:"LHT_DEBUG"`
	LogFormat string `help:"Log format" enum:"logfmt,json" default:"logfmt" env:"LHT_LOG_FORMAT"`
}

func main() {
	var params cli
	kong.Parse(&params, kong.Description("Look up LAN peers for an infohash and print a magnet link."))

	logger, err := telemetry.NewLogger(os.Stderr, params.LogFormat, params.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(svcutil.ExitError.AsInt())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	client := discovery.NewClient(discovery.ClientConfig{
		Interface:       params.NetworkInterface,
		BindToInterface: params.Bind,
		Logger:          logger,
	})

	peers, err := client.Lookup(ctx, params.InfoHash)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		level.Error(logger).Log("msg", "No LHT server answered", "infohash", params.InfoHash, "timeout", params.Timeout)
		os.Exit(svcutil.ExitError.AsInt())
	case errors.Is(err, context.Canceled):
		os.Exit(svcutil.ExitSuccess.AsInt())
	default:
		level.Error(logger).Log("msg", "Lookup failed", "err", err)
		os.Exit(svcutil.ExitError.AsInt())
	}

	fmt.Println(magnet.Link(params.InfoHash, peers))
}
