// Package lhtnode wires the discovery engine, the HTTP query API and the
// announcer into one supervised process.
package lhtnode

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/thejerf/suture/v4"

	"lan-lht/internal/discovery"
	"lan-lht/internal/httpapi"
	"lan-lht/internal/svcutil"
	"lan-lht/internal/telemetry"
)

type App struct {
	cfg     Config
	logger  log.Logger
	printer *EventPrinter

	Engine    *discovery.Engine
	HTTP      *httpapi.Server      // nil when disabled
	Announcer *discovery.Announcer // nil without announce hashes

	err        error
	exitStatus svcutil.ExitStatus
}

func New(cfg Config, logger log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		printer: NewEventPrinter(cfg.Output, cfg.Color),
	}

	a.Engine = discovery.NewEngine(discovery.Config{
		Interface:       cfg.Interface,
		BindToInterface: cfg.BindToInterface,
		Logger:          logger,
		ReportError:     telemetry.ErrorFunc(log.With(logger, "component", "engine"), "dropping datagram"),
		NewTransport:    cfg.NewTransport,
	})

	if !cfg.DisableHTTP {
		a.HTTP = httpapi.New(a.Engine, httpapi.Config{
			Host:   cfg.HTTPHost,
			Port:   cfg.HTTPPort,
			Logger: logger,
		})
	}

	if len(cfg.AnnounceHashes) > 0 {
		a.Announcer = discovery.NewAnnouncer(a.Engine, discovery.AnnouncerConfig{
			Port:       cfg.AnnouncePort,
			InfoHashes: cfg.AnnounceHashes,
			Interval:   cfg.AnnounceInterval,
			Logger:     logger,
		})
	}
	return a, nil
}

// Run supervises every component until ctx is done or one of them fails
// fatally, and returns the resulting exit status.
func (a *App) Run(ctx context.Context) svcutil.ExitStatus {
	sup := suture.New("lht-server", svcutil.SpecWithLogger(a.logger))
	sup.Add(a.Engine)
	sup.Add(svcutil.AsService(a.printEvents, "event printer"))
	if a.HTTP != nil {
		sup.Add(a.HTTP)
	}
	if a.Announcer != nil {
		sup.Add(a.Announcer)
	}

	level.Info(a.logger).Log("msg", "starting", "cookie", a.Engine.Cookie(), "http", a.HTTP != nil, "announce", len(a.cfg.AnnounceHashes))
	err := sup.Serve(ctx)

	// The engine normally destroys itself on cancellation; a fatal stop in
	// another service may leave it running.
	if derr := a.Engine.Destroy(); derr != nil {
		level.Warn(a.logger).Log("msg", "destroy engine", "err", derr)
	}

	a.handleMainServiceError(err)
	level.Info(a.logger).Log("msg", "exiting", "status", a.exitStatus.AsInt())
	return a.exitStatus
}

func (a *App) handleMainServiceError(err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		a.exitStatus = svcutil.ExitSuccess
		return
	}
	var fatalErr *svcutil.FatalErr
	if errors.As(err, &fatalErr) {
		a.exitStatus = fatalErr.Status
		a.err = fatalErr.Err
		return
	}
	a.err = err
	a.exitStatus = svcutil.ExitError
}

// Error returns the error that stopped Run, if any.
func (a *App) Error() error {
	return a.err
}

func (a *App) printEvents(ctx context.Context) error {
	events := a.Engine.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return svcutil.NoRestartErr(nil)
			}
			a.printer.Print(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *App) String() string {
	return fmt.Sprintf("lhtnode.App@%p", a)
}
