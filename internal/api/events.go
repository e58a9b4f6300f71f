package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/GLINCKER/glinrdock/internal/events"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// upgrader accepts the event-stream connection described in spec.md §6.4.
// Origin checking is delegated to the CORS allow-list already enforced in
// front of this handler; the teacher's EventCache websocket endpoint is
// similarly permissive at the upgrade step and relies on the same layer.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// envelope is the tagged-union frame spec.md §6.4 describes: the client
// sends {"type":"subscribe","topic":"..."} / {"type":"unsubscribe","topic":"..."},
// the server forwards {"type":"event","topic":"...","seq":N,"data":...}.
type envelope struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Seq   uint64 `json:"seq,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Events upgrades an authenticated request to a websocket and forwards
// events.Bus topics the client subscribes to, until reading a client frame
// fails (for example because the client disconnected); unsubscribing from
// every topic keeps the connection open. One goroutine reads client frames and
// mutates the subscription set; a second fans every active subscription's
// channel into the same connection's write side, serialized by a channel
// so concurrent writes never interleave (gorilla/websocket connections are
// not safe for concurrent writers).
func (h *Handlers) Events(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to upgrade event stream connection")
		return
	}
	defer conn.Close()

	subs := make(map[string]*events.Subscription)
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	outbox := make(chan envelope, 64)
	done := make(chan struct{})
	go h.pumpEvents(conn, outbox, done)

	for {
		var frame envelope
		if err := conn.ReadJSON(&frame); err != nil {
			close(done)
			return
		}

		switch frame.Type {
		case "subscribe":
			if frame.Topic == "" || subs[frame.Topic] != nil {
				continue
			}
			sub := h.bus.Subscribe(frame.Topic)
			subs[frame.Topic] = sub
			go h.forwardTopic(sub, outbox, done)
		case "unsubscribe":
			if sub, ok := subs[frame.Topic]; ok {
				sub.Unsubscribe()
				delete(subs, frame.Topic)
			}
		}
	}
}

// forwardTopic relays one subscription's events into outbox until the
// subscription is closed or the connection is done.
func (h *Handlers) forwardTopic(sub *events.Subscription, outbox chan<- envelope, done <-chan struct{}) {
	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			select {
			case outbox <- envelope{Type: "event", Topic: evt.Topic, Seq: evt.Seq, Data: evt.Data}:
			case <-done:
				return
			}
		case <-done:
			return
		}
	}
}

// pumpEvents is the connection's sole writer, serializing every outgoing
// frame and applying a write deadline so a stalled client cannot wedge the
// goroutine forever. It never ranges over outbox (which is never closed —
// concurrent forwardTopic goroutines may still hold a send reference to
// it) and instead exits as soon as done is closed.
func (h *Handlers) pumpEvents(conn *websocket.Conn, outbox <-chan envelope, done <-chan struct{}) {
	for {
		select {
		case frame := <-outbox:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			payload, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
