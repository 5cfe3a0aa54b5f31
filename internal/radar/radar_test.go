package radar

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/argus-vision/argus/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRadar(ttl time.Duration) (*Radar, *time.Time) {
	r := New(0, ttl, time.Hour, discardLogger())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestRadar_ObserveAndExpire(t *testing.T) {
	r, now := newTestRadar(10 * time.Second)

	pkt := wire.DiscoveryPacket{Type: wire.TypeCameraConn, Host: "10.0.0.5", Port: 12345}
	r.observe("10.0.0.5", pkt)

	// Just inside the TTL the record survives a sweep.
	*now = now.Add(10*time.Second - time.Millisecond)
	r.sweep()
	if got := len(r.Snapshot()); got != 1 {
		t.Fatalf("records after sweep inside TTL = %d, want 1", got)
	}

	// Just past the TTL it is evicted.
	*now = now.Add(2 * time.Millisecond)
	r.sweep()
	if got := len(r.Snapshot()); got != 0 {
		t.Errorf("records after sweep past TTL = %d, want 0", got)
	}
}

func TestRadar_HeartbeatRefreshesTTL(t *testing.T) {
	r, now := newTestRadar(10 * time.Second)
	pkt := wire.DiscoveryPacket{Type: wire.TypeCameraConn, Host: "10.0.0.5", Port: 12345}

	r.observe("10.0.0.5", pkt)
	*now = now.Add(8 * time.Second)
	r.observe("10.0.0.5", pkt)
	*now = now.Add(8 * time.Second)
	r.sweep()

	if got := len(r.Snapshot()); got != 1 {
		t.Errorf("refreshed record evicted; records = %d, want 1", got)
	}
}

func TestRadar_LastWriteWins(t *testing.T) {
	r, _ := newTestRadar(10 * time.Second)

	r.observe("10.0.0.5", wire.DiscoveryPacket{
		Type: wire.TypeCameraConn, Host: "10.0.0.5", Port: 1111,
		Location: wire.Location{Lat: 1, Lng: 1},
	})
	r.observe("10.0.0.5", wire.DiscoveryPacket{
		Type: wire.TypeCameraConn, Host: "10.0.0.5", Port: 2222,
		Location: wire.Location{Lat: 9, Lng: 9},
	})

	records := r.Snapshot()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1 (keyed by source IP)", len(records))
	}
	if records[0].Port != 2222 || records[0].Location.Lat != 9 {
		t.Errorf("record = %+v, want latest heartbeat values", records[0])
	}
}

func TestRadar_MalformedDatagramIgnored(t *testing.T) {
	r, _ := newTestRadar(10 * time.Second)

	r.handleDatagram("10.0.0.5", []byte("{not json"))
	r.handleDatagram("10.0.0.5", []byte(`{"type":"somethingElse"}`))

	if got := len(r.Snapshot()); got != 0 {
		t.Errorf("records after malformed datagrams = %d, want 0", got)
	}
}

func TestRadar_ListensOnUDP(t *testing.T) {
	r := New(0, 10*time.Second, time.Hour, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	conn, err := net.Dial("udp", r.Addr().String())
	if err != nil {
		t.Fatalf("dial radar: %v", err)
	}
	defer conn.Close()

	payload, _ := json.Marshal(wire.DiscoveryPacket{
		Type: wire.TypeCameraConn, Host: "192.168.1.50", Port: 12345,
		Location: wire.Location{Lat: 32.0, Lng: 34.0},
	})
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("send datagram: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if records := r.Snapshot(); len(records) == 1 {
			if records[0].Host != "192.168.1.50" {
				t.Errorf("record host = %s, want 192.168.1.50", records[0].Host)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("datagram never observed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestBroadcaster_SendsWhileDisconnected(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	pkt := wire.DiscoveryPacket{
		Type: wire.TypeCameraConn, Host: "192.168.1.50", Port: 12345,
		Location: wire.Location{Lat: 32.0, Lng: 34.0},
	}
	b := NewBroadcaster(listener.LocalAddr().String(), 50*time.Millisecond, pkt, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx, func() bool { return false })

	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, _, err := listener.ReadFrom(buf)
	if err != nil {
		t.Fatalf("no heartbeat received: %v", err)
	}

	var got wire.DiscoveryPacket
	if err := json.Unmarshal(buf[:n], &got); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if got != pkt {
		t.Errorf("heartbeat = %+v, want %+v", got, pkt)
	}
}
