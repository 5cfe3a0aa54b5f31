package relay

import (
	"context"
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

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(discardLogger())

	a := hub.Subscribe("cam-1", 4)
	defer a.Close()
	b := hub.Subscribe("cam-1", 4)
	defer b.Close()
	other := hub.Subscribe("cam-2", 4)
	defer other.Close()

	frame := wire.FramePayload{Frame: "abc", Time: "20240501_120000"}
	hub.Publish("cam-1", frame)

	for name, sub := range map[string]*Subscriber{"a": a, "b": b} {
		select {
		case got := <-sub.C:
			if got != frame {
				t.Errorf("subscriber %s got %+v, want %+v", name, got, frame)
			}
		default:
			t.Errorf("subscriber %s received nothing", name)
		}
	}

	select {
	case got := <-other.C:
		t.Errorf("cam-2 subscriber received cam-1 frame %+v", got)
	default:
	}
}

func TestHub_SlowSubscriberDropsFrames(t *testing.T) {
	hub := NewHub(discardLogger())
	sub := hub.Subscribe("cam-1", 2)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		hub.Publish("cam-1", wire.FramePayload{Frame: "f", Time: "20240501_120000"})
	}

	// Only the buffer's worth should be waiting; publish never blocked.
	if got := len(sub.C); got != 2 {
		t.Errorf("buffered frames = %d, want 2", got)
	}
}

func TestHub_CloseDetachesSubscriber(t *testing.T) {
	hub := NewHub(discardLogger())
	sub := hub.Subscribe("cam-1", 1)

	if got := hub.SubscriberCount("cam-1"); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	sub.Close()
	sub.Close() // idempotent

	if got := hub.SubscriberCount("cam-1"); got != 0 {
		t.Errorf("SubscriberCount after Close = %d, want 0", got)
	}

	hub.Publish("cam-1", wire.FramePayload{Frame: "f"})
	select {
	case got := <-sub.C:
		t.Errorf("closed subscriber received %+v", got)
	default:
	}
}

func TestServer_StreamsFramesToSubscribers(t *testing.T) {
	hub := NewHub(discardLogger())
	srv := NewServer(0, hub, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sub := hub.Subscribe("cam-1", 4)
	defer sub.Close()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer conn.Close()

	if err := wire.Send(conn, wire.LiveHello{ID: "cam-1"}); err != nil {
		t.Fatalf("send hello: %v", err)
	}
	frame := wire.FramePayload{Frame: "base64data", Time: "20240501_120000"}
	if err := wire.Send(conn, frame); err != nil {
		t.Fatalf("send frame: %v", err)
	}

	select {
	case got := <-sub.C:
		if got != frame {
			t.Errorf("received %+v, want %+v", got, frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reached subscriber")
	}
}

func TestServer_RejectsEmptyHello(t *testing.T) {
	hub := NewHub(discardLogger())
	srv := NewServer(0, hub, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer conn.Close()

	if err := wire.Send(conn, wire.LiveHello{}); err != nil {
		t.Fatalf("send hello: %v", err)
	}

	// Server closes the connection; the next read reports it.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Error("connection stayed open after empty hello")
	}
}
