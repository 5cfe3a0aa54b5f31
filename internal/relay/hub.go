// Package relay carries live video: cameras push frames on a second
// TCP channel and the hub fans each camera's frames out to any number
// of subscribers.
package relay

import (
	"log/slog"
	"sync"

	"github.com/argus-vision/argus/internal/wire"
)

// Subscriber receives the live frames of one camera on C until Close
// is called or the hub shuts down.
type Subscriber struct {
	C chan wire.FramePayload

	id       int64
	cameraID string
	hub      *Hub
	once     sync.Once
}

// Close detaches the subscriber and releases its channel.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.cameraID, s.id)
	})
}

// Hub is a per-camera frame fan-out. Publishing never blocks: a
// subscriber that cannot keep up loses frames, the same backpressure
// policy the cameras apply at capture time.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID int64
	subs   map[string]map[int64]*Subscriber
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[string]map[int64]*Subscriber),
	}
}

// Subscribe registers interest in one camera's live frames. buffer is
// the channel capacity; frames past it are dropped for this subscriber
// only.
func (h *Hub) Subscribe(cameraID string, buffer int) *Subscriber {
	if buffer < 1 {
		buffer = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscriber{
		C:        make(chan wire.FramePayload, buffer),
		id:       h.nextID,
		cameraID: cameraID,
		hub:      h,
	}
	if h.subs[cameraID] == nil {
		h.subs[cameraID] = make(map[int64]*Subscriber)
	}
	h.subs[cameraID][sub.id] = sub
	return sub
}

// Publish delivers one frame to every subscriber of cameraID. With no
// subscribers the frame is simply discarded; the live loop keeps
// draining regardless.
func (h *Hub) Publish(cameraID string, frame wire.FramePayload) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs[cameraID] {
		select {
		case sub.C <- frame:
		default:
			// Slow subscriber; drop rather than stall the live loop.
		}
	}
}

// SubscriberCount reports the live subscribers of one camera.
func (h *Hub) SubscriberCount(cameraID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[cameraID])
}

func (h *Hub) unsubscribe(cameraID string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m := h.subs[cameraID]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(h.subs, cameraID)
		}
	}
}
