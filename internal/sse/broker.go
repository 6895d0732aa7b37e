// Package sse streams vault and graph changes to browsers as Server-Sent
// Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/graphnotes/internal/models"
)

const (
	// DefaultGraphThrottle is the graph.updated interval used when none is set.
	DefaultGraphThrottle = 2 * time.Second
	// DefaultKeepAlive is how often an idle stream receives a comment line.
	DefaultKeepAlive = 30 * time.Second

	clientBuffer = 64
	opsBuffer    = 256
)

// Event is one message sent to subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// hub is the state owned by the broker goroutine.
type hub struct {
	clients map[chan []byte]struct{}
	seq     uint64

	throttle  time.Duration
	lastGraph time.Time
	pending   *time.Timer
}

// Broker fans events out to subscribers. All state lives in a hub that only
// the loop goroutine touches; public methods send it closures.
type Broker struct {
	ops       chan func(*hub)
	stop      chan struct{}
	stopped   chan struct{}
	closed    atomic.Bool
	keepAlive time.Duration
}

// NewBroker starts a broker. graph.updated is sent at most once per
// graphThrottle.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = DefaultGraphThrottle
	}
	b := &Broker{
		ops:       make(chan func(*hub), opsBuffer),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
		keepAlive: DefaultKeepAlive,
	}
	h := &hub{clients: make(map[chan []byte]struct{}), throttle: graphThrottle}
	go b.loop(h)
	return b
}

func (b *Broker) loop(h *hub) {
	defer close(b.stopped)
	for {
		var timerC <-chan time.Time
		if h.pending != nil {
			timerC = h.pending.C
		}
		select {
		case <-b.stop:
			if h.pending != nil {
				h.pending.Stop()
			}
			for ch := range h.clients {
				close(ch)
			}
			return
		case op := <-b.ops:
			op(h)
		case <-timerC:
			h.pending = nil
			h.graphUpdated(time.Now())
		}
	}
}

// send queues op for the loop. It reports false once the broker is closed.
func (b *Broker) send(op func(*hub)) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.ops <- op:
		return true
	case <-b.stopped:
		return false
	}
}

// call runs op on the loop and waits for it to finish.
func (b *Broker) call(op func(*hub)) bool {
	done := make(chan struct{})
	if !b.send(func(h *hub) { op(h); close(done) }) {
		return false
	}
	select {
	case <-done:
		return true
	case <-b.stopped:
		return false
	}
}

func (h *hub) broadcast(ev Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	h.seq++
	msg := []byte(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", ev.Type, h.seq, payload))
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			// Slow client, drop.
		}
	}
}

func (h *hub) graphUpdated(now time.Time) {
	h.lastGraph = now
	if h.pending != nil {
		h.pending.Stop()
		h.pending = nil
	}
	h.broadcast(Event{Type: "graph.updated", Data: map[string]string{}})
}

// change sends the event for c, then graph.updated. Inside the throttle
// window graph.updated is deferred to the end of the window, once.
func (h *hub) change(c models.Change) {
	if typ := eventType(c.Kind); typ != "" {
		h.broadcast(Event{Type: typ, Data: c})
	}
	now := time.Now()
	since := now.Sub(h.lastGraph)
	switch {
	case c.Kind == models.ChangeRebuilt || since >= h.throttle:
		h.graphUpdated(now)
	case h.pending == nil:
		h.pending = time.NewTimer(h.throttle - since)
	}
}

// Close stops the broker and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
	}
	<-b.stopped
}

// Subscribe registers a client. The channel is closed by Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if !b.call(func(h *hub) { h.clients[ch] = struct{}{} }) {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.call(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of subscribers.
func (b *Broker) ClientCount() int {
	n := 0
	b.call(func(h *hub) { n = len(h.clients) })
	return n
}

// Publish sends ev to every subscriber.
func (b *Broker) Publish(ev Event) {
	b.send(func(h *hub) { h.broadcast(ev) })
}

// PublishChange sends the note or link event for c followed by a throttled
// graph.updated. A rebuild always gets an immediate graph.updated; unchanged
// re-applies are not published.
func (b *Broker) PublishChange(c models.Change) {
	if c.Kind == models.ChangeUnchanged {
		return
	}
	b.send(func(h *hub) { h.change(c) })
}

func eventType(k models.ChangeKind) string {
	switch k {
	case models.ChangeCreated:
		return "note.created"
	case models.ChangeUpdated:
		return "note.updated"
	case models.ChangeDeleted:
		return "note.deleted"
	case models.ChangeMoved:
		return "note.moved"
	case models.ChangeLinked:
		return "link.updated"
	}
	return ""
}

// ServeHTTP streams events to one client until it disconnects or the broker
// closes. Idle streams get a comment line every keep-alive interval so
// proxies do not time them out.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
		}
		flusher.Flush()
	}
}
