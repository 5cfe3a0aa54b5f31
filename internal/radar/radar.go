// Package radar implements soft-state camera discovery. Cameras
// broadcast a UDP heartbeat while unconnected; the server records one
// DiscoveryRecord per source IP and expires records that go silent.
package radar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/argus-vision/argus/internal/wire"
)

// Record is the server's view of one advertising camera. Keyed by
// source IP; overwritten on every heartbeat.
type Record struct {
	SourceIP string        `json:"source_ip"`
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Location wire.Location `json:"location"`
	LastSeen time.Time     `json:"last_seen"`
}

// Radar listens for discovery datagrams and expires stale records.
type Radar struct {
	port          int
	ttl           time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	records map[string]Record

	conn net.PacketConn
	now  func() time.Time
}

func New(port int, ttl, sweepInterval time.Duration, logger *slog.Logger) *Radar {
	return &Radar{
		port:          port,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		logger:        logger,
		records:       make(map[string]Record),
		now:           time.Now,
	}
}

// Start binds the discovery port and runs the listener and sweeper
// until ctx is cancelled. The bind happens synchronously so a caller
// returning from Start without error knows the port is held.
func (r *Radar) Start(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", r.port))
	if err != nil {
		return fmt.Errorf("bind discovery port: %w", err)
	}
	r.conn = conn

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go r.listen(ctx)
	go r.sweepLoop(ctx)

	r.logger.Info("discovery radar listening", "addr", conn.LocalAddr().String())
	return nil
}

// Addr returns the bound listener address.
func (r *Radar) Addr() net.Addr {
	return r.conn.LocalAddr()
}

func (r *Radar) listen(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			// Closed socket means shutdown; anything else is terminal
			// for the listener too.
			if ctx.Err() == nil {
				r.logger.Error("discovery listener stopped", "error", err)
			}
			return
		}

		sourceIP := addr.String()
		if udp, ok := addr.(*net.UDPAddr); ok {
			sourceIP = udp.IP.String()
		}
		r.handleDatagram(sourceIP, buf[:n])
	}
}

// handleDatagram parses one heartbeat. Malformed datagrams are logged
// and dropped without affecting the listener loop.
func (r *Radar) handleDatagram(sourceIP string, data []byte) {
	var pkt wire.DiscoveryPacket
	if err := json.Unmarshal(data, &pkt); err != nil {
		r.logger.Warn("dropping malformed discovery datagram", "source_ip", sourceIP, "error", err)
		return
	}
	if pkt.Type != wire.TypeCameraConn {
		return
	}
	r.observe(sourceIP, pkt)
}

func (r *Radar) observe(sourceIP string, pkt wire.DiscoveryPacket) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, known := r.records[sourceIP]
	r.records[sourceIP] = Record{
		SourceIP: sourceIP,
		Host:     pkt.Host,
		Port:     pkt.Port,
		Location: pkt.Location,
		LastSeen: r.now(),
	}
	if !known {
		r.logger.Info("discovered camera", "source_ip", sourceIP, "host", pkt.Host, "port", pkt.Port)
	}
}

func (r *Radar) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep evicts every record that has not heartbeated within the TTL.
func (r *Radar) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	for ip, rec := range r.records {
		if rec.LastSeen.Before(cutoff) {
			delete(r.records, ip)
			r.logger.Info("camera expired from radar", "source_ip", ip)
		}
	}
}

// Snapshot returns a copy of the current discovery table.
func (r *Radar) Snapshot() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}
