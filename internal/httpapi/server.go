// Package httpapi serves the peer table over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lan-lht/internal/announce"
	"lan-lht/internal/discovery"
	"lan-lht/internal/magnet"
	"lan-lht/internal/svcutil"
)

// Table is the read side of the discovery engine.
type Table interface {
	PeersFor(infoHash string) []string
	AllEntries() []discovery.Entry
}

type Config struct {
	Host   string
	Port   int
	Logger log.Logger
}

type Server struct {
	cfg    Config
	table  Table
	logger log.Logger
	echo   *echo.Echo
}

func New(table Table, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	s := &Server{
		cfg:    cfg,
		table:  table,
		logger: log.With(cfg.Logger, "component", "http"),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler{logger: s.logger}.handle

	e.GET("/ping", s.ping)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/v1/peers", s.listPeers)
	e.GET("/v1/peers/:infohash", s.getPeers)
	e.GET("/v1/peers/:infohash/magnet", s.getMagnet)

	s.echo = e
	return s
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Addr returns the listening address once Serve has bound.
func (s *Server) Addr() net.Addr { return s.echo.ListenerAddr() }

// Serve listens until ctx is done and then shuts down gracefully. A listen
// failure stops the supervisor tree.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	level.Info(s.logger).Log("msg", "starting HTTP server", "addr", addr)

	errc := make(chan error, 1)
	go func() { errc <- s.echo.Start(addr) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return svcutil.NoRestartErr(nil)
		}
		return svcutil.AsFatalErr(fmt.Errorf("http listen %s: %w", addr, err), svcutil.ExitError)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), svcutil.ServiceTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		level.Warn(s.logger).Log("msg", "HTTP shutdown", "err", err)
	}
	<-errc
	level.Info(s.logger).Log("msg", "HTTP server stopped")
	return svcutil.NoRestartErr(nil)
}

func (s *Server) String() string {
	return fmt.Sprintf("httpapi.Server@%p", s)
}

type peersResponse = discovery.Entry

type magnetResponse struct {
	Magnet string `json:"magnet"`
}

func (s *Server) ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// listPeers (GET /v1/peers) returns the whole table.
func (s *Server) listPeers(c echo.Context) error {
	return c.JSON(http.StatusOK, s.table.AllEntries())
}

// getPeers (GET /v1/peers/:infohash) returns the peers of one infohash; an
// unknown hash has no peers.
func (s *Server) getPeers(c echo.Context) error {
	ih, err := infoHashParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, peersResponse{InfoHash: ih, Peers: s.table.PeersFor(ih)})
}

// getMagnet (GET /v1/peers/:infohash/magnet) returns a magnet link carrying
// the known peers.
func (s *Server) getMagnet(c echo.Context) error {
	ih, err := infoHashParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, magnetResponse{Magnet: magnet.Link(ih, s.table.PeersFor(ih))})
}

func infoHashParam(c echo.Context) (string, error) {
	ih := c.Param("infohash")
	if !announce.ValidInfoHash(ih) {
		return "", NewBadParameterError(fmt.Sprintf("infohash %q must be 40 hex characters", ih), announce.ErrInvalidInfoHash)
	}
	return ih, nil
}
