package notifier

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grabtube/grabtube/server/internal/events"
)

const clientBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// envelope is one event frame pushed to connected observers.
type envelope struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// Hub subscribes once to the event fabric and fans every event out to all
// connected websocket clients. Clients that fall behind are dropped rather
// than ever blocking a publisher.
type Hub struct {
	mu      sync.Mutex
	clients map[string]chan envelope
}

func NewHub(fabric *events.Fabric) (*Hub, error) {
	h := &Hub{clients: make(map[string]chan envelope)}

	subscriptions := []error{
		fabric.SubscribeProgress(func(e events.Progress) {
			h.broadcast(envelope{Kind: "progress", Data: e})
		}),
		fabric.SubscribeStatus(func(e events.StatusChange) {
			h.broadcast(envelope{Kind: "status", Data: e})
		}),
		fabric.SubscribeCompleted(func(e events.Completed) {
			h.broadcast(envelope{Kind: "completed", Data: e})
		}),
		fabric.SubscribeFailed(func(e events.Failed) {
			h.broadcast(envelope{Kind: "failed", Data: e})
		}),
		fabric.SubscribeQueueStatus(func(e events.QueueStatus) {
			h.broadcast(envelope{Kind: "queue", Data: e})
		}),
	}

	for _, err := range subscriptions {
		if err != nil {
			return nil, err
		}
	}

	return h, nil
}

func (h *Hub) broadcast(e envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.clients {
		select {
		case ch <- e:
		default:
			// slow consumer, disconnect it
			close(ch)
			delete(h.clients, id)
		}
	}
}

func (h *Hub) register() (string, chan envelope) {
	id := uuid.NewString()
	ch := make(chan envelope, clientBuffer)

	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()

	return id, ch
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
	}
	h.mu.Unlock()
}

// Handler upgrades the connection and streams event frames until the client
// goes away.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", slog.Any("err", err))
			return
		}

		id, ch := h.register()
		slog.Info("observer connected", slog.String("client", id))

		defer func() {
			h.unregister(id)
			conn.Close()
			slog.Info("observer disconnected", slog.String("client", id))
		}()

		// discard reads, detect disconnection
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					h.unregister(id)
					return
				}
			}
		}()

		for e := range ch {
			conn.SetWriteDeadline(time.Now().Add(time.Second * 10))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}
