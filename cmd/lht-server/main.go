// Command lht-server listens for LSD announces on the LAN, keeps a table of
// which peers announced which infohash and answers LHT queries from it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log/level"
	"github.com/mattn/go-isatty"

	"lan-lht/internal/announce"
	"lan-lht/internal/lhtnode"
	"lan-lht/internal/netx"
	"lan-lht/internal/svcutil"
	"lan-lht/internal/telemetry"
)

type cli struct {
	NetworkInterface string `short:"i" help:"Network interface whose IPv4 address joins the LSD multicast group" env:"LHT_NETWORK_INTERFACE"`
	Bind             bool   `short:"b" help:"Bind the UDP socket to the interface address" env:"LHT_BIND"`
	ListInterfaces   bool   `help:"List multicast capable interfaces and exit"`

	HTTPHost string `help:"Host the HTTP API listens on" env:"LHT_HTTP_HOST"`
	HTTPPort int    `short:"p" help:"Port the HTTP API listens on" default:"8080" env:"LHT_HTTP_PORT"`
	NoHTTP   bool   `help:"Disable the HTTP API" env:"LHT_NO_HTTP"`

	Announce         []string      `help:"Infohashes to announce over LSD" sep:"," env:"LHT_ANNOUNCE"`
	AnnouncePort     int           `help:"Listening port advertised with --announce" env:"LHT_ANNOUNCE_PORT"`
	AnnounceInterval time.Duration `help:"Interval between LSD announces" default:"5m" env:"LHT_ANNOUNCE_INTERVAL"`

	Debug     bool   `help:"Enable debug logging" env:"LHT_DEBUG"`
	LogFormat string `help:"Log format" enum:"logfmt,json" default:"logfmt" env:"LHT_LOG_FORMAT"`
}

func main() {
	var params cli
	kong.Parse(&params, kong.Description("LAN Local Host Table server."))

	if params.ListInterfaces {
		if err := listInterfaces(); err != nil {
			fmt.Fprintln(os.Stderr, "list interfaces:", err)
			os.Exit(svcutil.ExitError.AsInt())
		}
		return
	}

	logger, err := telemetry.NewLogger(os.Stderr, params.LogFormat, params.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(svcutil.ExitError.AsInt())
	}

	app, err := lhtnode.New(lhtnode.Config{
		Interface:        params.NetworkInterface,
		BindToInterface:  params.Bind,
		HTTPHost:         params.HTTPHost,
		HTTPPort:         params.HTTPPort,
		DisableHTTP:      params.NoHTTP,
		AnnounceHashes:   params.Announce,
		AnnouncePort:     params.AnnouncePort,
		AnnounceInterval: params.AnnounceInterval,
		Output:           os.Stdout,
		Color:            isatty.IsTerminal(os.Stdout.Fd()),
	}, logger)
	if err != nil {
		level.Error(logger).Log("msg", "Failed to create server", "err", err)
		os.Exit(svcutil.ExitError.AsInt())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := app.Run(ctx)
	if err := app.Error(); err != nil {
		level.Error(logger).Log("msg", "Server stopped", "err", err)
	}
	os.Exit(status.AsInt())
}

func listInterfaces() error {
	ifaces, err := netx.MulticastInterfaces()
	if err != nil {
		return err
	}
	for _, it := range ifaces {
		_, ip, err := netx.LookupInterface(it.Name)
		if err != nil {
			continue
		}
		fmt.Printf("%-16s %s\n", it.Name, ip)
	}
	fmt.Printf("\nLSD group %s\n", announce.HostIPv4)
	return nil
}
