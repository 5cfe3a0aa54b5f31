package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"

	"github.com/argus-vision/argus/internal/frames"
	"github.com/argus-vision/argus/internal/identity"
	"github.com/argus-vision/argus/internal/wire"
)

// Server accepts camera connections on the main channel, runs the
// handshake and keeps one frame-receive loop per session.
type Server struct {
	port     int
	registry *Registry
	store    *frames.Store
	logger   *slog.Logger

	ln net.Listener
}

func NewServer(port int, registry *Registry, store *frames.Store, logger *slog.Logger) *Server {
	return &Server{
		port:     port,
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

// Start binds the camera port and accepts connections until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("bind camera port: %w", err)
	}
	s.ln = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go s.acceptLoop(ctx)

	s.logger.Info("camera server listening", "addr", ln.Addr().String())
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
				s.logger.Error("camera accept loop stopped", "error", err)
			}
			return
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn runs one camera's whole lifetime: handshake, session
// registration, then the frame-receive loop until the connection dies.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()

	var hs wire.Handshake
	if err := wire.ReceiveInto(conn, &hs); err != nil {
		s.logger.Warn("camera handshake failed", "remote", remote, "error", err)
		return
	}
	if hs.Type != wire.TypeCameraConn {
		s.logger.Warn("rejecting unknown handshake", "remote", remote, "type", hs.Type)
		// The rejection ack is the last thing the camera hears.
		_ = wire.Send(conn, wire.HandshakeAck{Success: false})
		return
	}

	sess := &Session{
		ID:          identity.NewID(),
		Location:    hs.Location,
		RemoteAddr:  remote,
		ConnectedAt: s.registry.now(),
		state:       StateConnected,
		conn:        conn,
	}
	if err := wire.Send(conn, wire.HandshakeAck{Success: true, ID: sess.ID}); err != nil {
		s.logger.Warn("camera ack failed", "remote", remote, "error", err)
		return
	}

	s.registry.add(sess)
	logger := s.logger.With("camera_id", sess.ID)
	logger.Info("camera connected", "remote", remote, "lat", hs.Location.Lat, "lng", hs.Location.Lng)

	s.receiveFrames(ctx, sess, logger)

	sess.close()
	s.registry.remove(sess.ID)
	logger.Info("camera disconnected", "remote", remote)
}

// receiveFrames persists analysis frames until the connection fails.
func (s *Server) receiveFrames(ctx context.Context, sess *Session, logger *slog.Logger) {
	for ctx.Err() == nil {
		payload, err := wire.Receive(sess.conn)
		if err != nil {
			return
		}

		var frame wire.FramePayload
		if err := json.Unmarshal(payload, &frame); err != nil {
			logger.Warn("dropping malformed frame message", "error", err)
			continue
		}

		data, err := base64.StdEncoding.DecodeString(frame.Frame)
		if err != nil {
			logger.Warn("dropping frame with bad encoding", "error", err)
			continue
		}

		if _, err := s.store.Write(sess.Location, data, frame.Time); err != nil {
			logger.Error("persisting frame failed", "error", err)
			continue
		}
		logger.Debug("frame stored", "bytes", len(data), "time", frame.Time)
	}
}
