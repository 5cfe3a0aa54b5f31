package radar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/argus-vision/argus/internal/wire"
)

// Broadcaster is the camera side of discovery: it sends the heartbeat
// datagram on a fixed interval for as long as the camera has no server
// connection. Presence is asserted repeatedly and expires by silence;
// there is no leave message.
type Broadcaster struct {
	addr     string
	interval time.Duration
	packet   wire.DiscoveryPacket
	logger   *slog.Logger
}

func NewBroadcaster(addr string, interval time.Duration, packet wire.DiscoveryPacket, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		addr:     addr,
		interval: interval,
		packet:   packet,
		logger:   logger,
	}
}

// Run sends heartbeats until ctx is cancelled, skipping ticks while
// connected() reports an established server connection. The first
// heartbeat goes out immediately.
func (b *Broadcaster) Run(ctx context.Context, connected func() bool) error {
	conn, err := net.Dial("udp", b.addr)
	if err != nil {
		return fmt.Errorf("open discovery socket: %w", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(b.packet)
	if err != nil {
		return fmt.Errorf("encode discovery packet: %w", err)
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if !connected() {
			if _, err := conn.Write(payload); err != nil {
				b.logger.Warn("discovery heartbeat failed", "error", err)
			} else {
				b.logger.Debug("sent discovery heartbeat", "addr", b.addr)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
