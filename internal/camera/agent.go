package camera

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/argus-vision/argus/internal/radar"
	"github.com/argus-vision/argus/internal/wire"
)

// frameQueueSize bounds the capture-to-sender queues. Capture never
// waits on a slow network; overflow frames are dropped.
const frameQueueSize = 5

const dialTimeout = 3 * time.Second

// errServerClosed marks a clean closeConn shutdown internally.
var errServerClosed = errors.New("camera: closed by server")

// Options configures one agent.
type Options struct {
	ServerHost string
	CameraPort int
	LivePort   int

	// DiscoveryAddr is the UDP address heartbeats are sent to, and
	// AdvertiseHost/AdvertisePort what they advertise.
	DiscoveryAddr     string
	AdvertiseHost     string
	AdvertisePort     int
	HeartbeatInterval time.Duration

	Location wire.Location
}

// Agent runs one camera: discovery heartbeats while unconnected, the
// main analysis channel once connected, and the live channel on
// command. A dead main channel stops the agent; it never reconnects on
// its own.
type Agent struct {
	opts   Options
	source FrameSource
	logger *slog.Logger

	id        string
	connected atomic.Bool
	live      atomic.Bool

	analysisCh chan wire.FramePayload
	liveCh     chan wire.FramePayload

	now func() time.Time
}

func New(opts Options, source FrameSource, logger *slog.Logger) *Agent {
	return &Agent{
		opts:       opts,
		source:     source,
		logger:     logger,
		analysisCh: make(chan wire.FramePayload, frameQueueSize),
		liveCh:     make(chan wire.FramePayload, frameQueueSize),
		now:        time.Now,
	}
}

// ID returns the camera id assigned at handshake, empty before then.
func (a *Agent) ID() string {
	return a.id
}

// Run drives the agent until ctx is cancelled, the server orders a
// shutdown, or the main channel dies.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.opts.DiscoveryAddr != "" {
		b := radar.NewBroadcaster(a.opts.DiscoveryAddr, a.opts.HeartbeatInterval, wire.DiscoveryPacket{
			Type:     wire.TypeCameraConn,
			Host:     a.opts.AdvertiseHost,
			Port:     a.opts.AdvertisePort,
			Location: a.opts.Location,
		}, a.logger)
		go func() {
			if err := b.Run(ctx, a.connected.Load); err != nil {
				a.logger.Warn("discovery broadcaster stopped", "error", err)
			}
		}()
	}

	conn, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer a.connected.Store(false)

	errc := make(chan error, 3)
	go a.captureLoop(ctx)
	go a.analysisLoop(ctx, conn, errc)
	go a.commandLoop(conn, errc)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		if errors.Is(err, errServerClosed) {
			a.logger.Info("server closed the session")
			return nil
		}
		return err
	}
}

// connect dials the server and retries on the heartbeat interval until
// a handshake succeeds or ctx ends. Discovery keeps advertising in the
// meantime.
func (a *Agent) connect(ctx context.Context) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", a.opts.ServerHost, a.opts.CameraPort)
	for {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err == nil {
			if err := a.handshake(conn); err != nil {
				conn.Close()
				return nil, err
			}
			a.connected.Store(true)
			a.logger.Info("connected to server", "addr", addr, "camera_id", a.id)
			return conn, nil
		}

		a.logger.Debug("server not reachable, retrying", "addr", addr, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.opts.HeartbeatInterval):
		}
	}
}

func (a *Agent) handshake(conn net.Conn) error {
	if err := wire.Send(conn, wire.Handshake{Type: wire.TypeCameraConn, Location: a.opts.Location}); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}

	var ack wire.HandshakeAck
	if err := wire.ReceiveInto(conn, &ack); err != nil {
		return fmt.Errorf("receive ack: %w", err)
	}
	if !ack.Success {
		return errors.New("server rejected handshake")
	}
	a.id = ack.ID
	return nil
}

// captureLoop pulls frames from the source and fans them into the
// analysis and live queues. An exhausted source ends capture but not
// the agent.
func (a *Agent) captureLoop(ctx context.Context) {
	for ctx.Err() == nil {
		data, err := a.source.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				a.logger.Error("frame capture failed", "error", err)
			}
			return
		}

		payload := wire.FramePayload{
			Frame: base64.StdEncoding.EncodeToString(data),
			Time:  a.now().Format(wire.FrameTimeLayout),
		}
		a.enqueue(a.analysisCh, payload)
		if a.live.Load() {
			a.enqueue(a.liveCh, payload)
		}
	}
}

// enqueue never blocks; a full queue drops the frame.
func (a *Agent) enqueue(ch chan wire.FramePayload, payload wire.FramePayload) {
	select {
	case ch <- payload:
	default:
		a.logger.Debug("frame queue full, dropping frame")
	}
}

// analysisLoop pushes captured frames up the main channel. A failed
// send is terminal for the whole agent.
func (a *Agent) analysisLoop(ctx context.Context, conn net.Conn, errc chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-a.analysisCh:
			if err := wire.Send(conn, payload); err != nil {
				errc <- fmt.Errorf("send analysis frame: %w", err)
				return
			}
		}
	}
}

// commandLoop answers server commands on the main channel.
func (a *Agent) commandLoop(conn net.Conn, errc chan<- error) {
	for {
		var cmd wire.Command
		if err := wire.ReceiveInto(conn, &cmd); err != nil {
			errc <- fmt.Errorf("main channel read: %w", err)
			return
		}

		switch cmd.Command {
		case wire.CommandStartLive:
			if a.live.CompareAndSwap(false, true) {
				go a.liveLoop()
			}
		case wire.CommandStopLive:
			a.live.Store(false)
		case wire.CommandCloseConn:
			a.live.Store(false)
			errc <- errServerClosed
			return
		default:
			a.logger.Warn("ignoring unknown command", "command", cmd.Command)
		}
	}
}

// liveLoop streams queued frames on the live channel while the live
// flag holds. Any failure clears the flag; the next startLive opens a
// fresh connection.
func (a *Agent) liveLoop() {
	defer a.live.Store(false)

	addr := fmt.Sprintf("%s:%d", a.opts.ServerHost, a.opts.LivePort)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		a.logger.Error("live channel dial failed", "addr", addr, "error", err)
		return
	}
	defer conn.Close()

	if err := wire.Send(conn, wire.LiveHello{ID: a.id}); err != nil {
		a.logger.Error("live hello failed", "error", err)
		return
	}
	a.logger.Info("live stream started", "addr", addr)

	for a.live.Load() {
		select {
		case payload := <-a.liveCh:
			if err := wire.Send(conn, payload); err != nil {
				a.logger.Warn("live send failed", "error", err)
				return
			}
		case <-time.After(time.Second):
			// Re-check the flag so stopLive ends the loop promptly even
			// with no frames flowing.
		}
	}
	a.logger.Info("live stream stopped")
}
