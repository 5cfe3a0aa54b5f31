// Package session tracks connected cameras. Each accepted connection
// becomes a Session that moves through connected -> live -> closed,
// and the Registry is the single lookup point for admin operations.
package session

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/argus-vision/argus/internal/wire"
)

// State is a session's lifecycle phase.
type State string

const (
	StateConnected State = "connected"
	StateLive      State = "live"
	StateClosed    State = "closed"
)

var (
	ErrNotFound = errors.New("session: camera not found")
	ErrClosed   = errors.New("session: camera disconnected")
)

// Session is one camera's main-channel connection and its state.
type Session struct {
	ID          string
	Location    wire.Location
	RemoteAddr  string
	ConnectedAt time.Time

	mu    sync.Mutex
	state State
	conn  net.Conn
}

// State returns the session's current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// sendCommand writes one control message on the main channel. A write
// failure leaves the state untouched; the read loop notices the dead
// connection and closes the session.
func (s *Session) sendCommand(command string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrClosed
	}
	if err := wire.Send(s.conn, wire.Command{Command: command}); err != nil {
		return fmt.Errorf("send %s: %w", command, err)
	}
	return nil
}

// StartLive orders the camera onto the live channel. Already-live
// sessions get the command again; the camera treats it as a no-op.
func (s *Session) StartLive() error {
	if err := s.sendCommand(wire.CommandStartLive); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnected {
		s.state = StateLive
	}
	return nil
}

// StopLive orders the camera off the live channel.
func (s *Session) StopLive() error {
	if err := s.sendCommand(wire.CommandStopLive); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateLive {
		s.state = StateConnected
	}
	return nil
}

// close transitions to closed and releases the connection. Safe to
// call more than once.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.conn.Close()
}

// Info is a read-only snapshot of a session for listings.
type Info struct {
	ID          string        `json:"id"`
	Location    wire.Location `json:"location"`
	RemoteAddr  string        `json:"remote_addr"`
	State       State         `json:"state"`
	ConnectedAt time.Time     `json:"connected_at"`
}

func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:          s.ID,
		Location:    s.Location,
		RemoteAddr:  s.RemoteAddr,
		State:       s.state,
		ConnectedAt: s.ConnectedAt,
	}
}

// Registry holds every open session, keyed by camera id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns the session for one camera id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List snapshots every open session.
func (r *Registry) List() []Info {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	return out
}

// StartLive switches one camera to live streaming.
func (r *Registry) StartLive(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.StartLive()
}

// StopLive switches one camera back to analysis-only.
func (r *Registry) StopLive(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.StopLive()
}

// Disconnect orders a camera to shut down and drops its session. The
// close command is best effort: a camera that already vanished is
// still removed.
func (r *Registry) Disconnect(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}

	// Best effort: a camera that already vanished still gets removed.
	_ = s.sendCommand(wire.CommandCloseConn)
	s.close()
	r.remove(id)
	return nil
}
