package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"

	"github.com/argus-vision/argus/internal/wire"
)

// Server accepts live-channel connections. A camera identifies itself
// with a LiveHello, then streams frames until it disconnects.
type Server struct {
	port   int
	hub    *Hub
	logger *slog.Logger

	ln net.Listener
}

func NewServer(port int, hub *Hub, logger *slog.Logger) *Server {
	return &Server{port: port, hub: hub, logger: logger}
}

// Start binds the live port and accepts connections until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("bind live port: %w", err)
	}
	s.ln = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go s.acceptLoop(ctx)

	s.logger.Info("live relay listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("live accept loop stopped", "error", err)
			}
			return
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn drains one camera's live stream into the hub. A failed
// read means the camera disconnected; the loop exits and the
// connection is released.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var hello wire.LiveHello
	if err := wire.ReceiveInto(conn, &hello); err != nil {
		s.logger.Warn("live handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	if hello.ID == "" {
		s.logger.Warn("live handshake missing camera id", "remote", conn.RemoteAddr().String())
		return
	}

	logger := s.logger.With("camera_id", hello.ID)
	logger.Info("live stream started", "remote", conn.RemoteAddr().String())

	for ctx.Err() == nil {
		payload, err := wire.Receive(conn)
		if err != nil {
			logger.Info("live stream ended", "error", err)
			return
		}

		var frame wire.FramePayload
		if err := json.Unmarshal(payload, &frame); err != nil {
			// Framed but not a frame message; drop it and keep the
			// stream alive, the socket itself is fine.
			logger.Warn("dropping malformed live frame", "error", err)
			continue
		}
		s.hub.Publish(hello.ID, frame)
	}
}
