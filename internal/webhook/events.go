package webhook

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/agentworkforce/erpsync/internal/engine"
)

// Hub fans status events out to connected /events websocket clients. It is
// strictly observational: a slow or gone client can never back-pressure the
// executor, so each subscriber gets its own bounded channel, and when that
// channel is full its oldest queued event is discarded instead of blocking.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan engine.StatusEvent]struct{}
	log         *logrus.Logger
}

// NewHub constructs an empty Hub.
func NewHub(log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{subscribers: map[chan engine.StatusEvent]struct{}{}, log: log}
}

// Publish implements engine.EventPublisher: broadcast ev to every current
// subscriber without blocking on any of them.
func (h *Hub) Publish(ev engine.StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber's buffer is full; discard its oldest queued event to
			// make room rather than stall the executor.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func (h *Hub) subscribe() chan engine.StatusEvent {
	ch := make(chan engine.StatusEvent, 32)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan engine.StatusEvent) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
	close(ch)
}

// ServeHTTP upgrades the request to a websocket connection and streams
// StatusEvents to it until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("events: websocket accept failed")
		return
	}
	defer conn.CloseNow()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := r.Context()
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
