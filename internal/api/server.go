package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/argus-vision/argus/internal/identity"
	"github.com/argus-vision/argus/internal/radar"
	"github.com/argus-vision/argus/internal/session"
	"github.com/argus-vision/argus/internal/watchlist"
)

// CameraRegistry is the camera-control surface the API needs.
type CameraRegistry interface {
	List() []session.Info
	StartLive(id string) error
	StopLive(id string) error
	Disconnect(id string) error
}

// RadarView exposes the discovery table.
type RadarView interface {
	Snapshot() []radar.Record
}

// WatchlistService enrolls and checks persons of interest.
type WatchlistService interface {
	Enroll(ctx context.Context, name string, crops [][]byte) (*watchlist.Entry, error)
	Check(ctx context.Context) ([]watchlist.Alert, error)
	RecentAlerts() []watchlist.Alert
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port          int
	Registry      CameraRegistry
	Radar         RadarView
	Persons       identity.Repository
	Watchlist     WatchlistService
	WatchlistRepo watchlist.Repository
	Logger        *slog.Logger
	StartTime     time.Time
	ServerID      string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
