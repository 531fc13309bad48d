package transport

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("transport closed")

// Hub is an in-process chat network. Every connected Endpoint has an
// unbounded ordered inbox; channel lines and private messages to names with
// no endpoint are kept in logs that tests can inspect.
type Hub struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	members   map[string]map[string]bool
	channels  map[string][]string
	direct    map[string][]string
}

func NewHub() *Hub {
	return &Hub{
		endpoints: make(map[string]*Endpoint),
		members:   make(map[string]map[string]bool),
		channels:  make(map[string][]string),
		direct:    make(map[string][]string),
	}
}

// Connect attaches a node to the hub and joins it to channels
func (h *Hub) Connect(id string, channels ...string) *Endpoint {
	e := &Endpoint{
		hub:  h,
		id:   id,
		out:  make(chan Message),
		done: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)

	h.mu.Lock()
	h.endpoints[id] = e
	for _, c := range channels {
		h.joinLocked(c, id)
	}
	h.mu.Unlock()

	go e.pump()
	return e
}

func (h *Hub) joinLocked(channel, id string) {
	m, ok := h.members[channel]
	if !ok {
		m = make(map[string]bool)
		h.members[channel] = m
	}
	m[id] = true
}

// Say posts text to channel as a user would
func (h *Hub) Say(sender, channel, text string) {
	h.mu.Lock()
	h.channels[channel] = append(h.channels[channel], text)
	targets := h.membersLocked(channel, sender)
	h.mu.Unlock()

	for _, e := range targets {
		e.enqueue(Message{Sender: sender, Destination: channel, Text: text})
	}
}

// Tell sends a private message from sender to id
func (h *Hub) Tell(sender, id, text string) {
	h.mu.Lock()
	e, ok := h.endpoints[id]
	if !ok {
		h.direct[id] = append(h.direct[id], text)
	}
	h.mu.Unlock()

	if ok {
		e.enqueue(Message{Sender: sender, Destination: id, Text: text})
	}
}

// ChannelLog returns every line posted to channel so far
func (h *Hub) ChannelLog(channel string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.channels[channel]...)
}

// DirectLog returns private messages sent to a name with no endpoint
func (h *Hub) DirectLog(name string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.direct[name]...)
}

func (h *Hub) membersLocked(channel, except string) []*Endpoint {
	var out []*Endpoint
	for id := range h.members[channel] {
		if id == except {
			continue
		}
		if e, ok := h.endpoints[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (h *Hub) disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, id)
	for _, m := range h.members {
		delete(m, id)
	}
}

// Endpoint is one node's connection to a Hub
type Endpoint struct {
	hub *Hub
	id  string

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Message
	closed bool

	out  chan Message
	done chan struct{}
	once sync.Once
}

func (e *Endpoint) ID() string {
	return e.id
}

func (e *Endpoint) SendToChannel(_ context.Context, channel, text string) error {
	if e.isClosed() {
		return ErrClosed
	}
	e.hub.Say(e.id, channel, text)
	return nil
}

func (e *Endpoint) SendToPeer(_ context.Context, peer, text string) error {
	if e.isClosed() {
		return ErrClosed
	}
	e.hub.Tell(e.id, peer, text)
	return nil
}

func (e *Endpoint) Messages() <-chan Message {
	return e.out
}

func (e *Endpoint) Rejoin(_ context.Context, channels []string) error {
	if e.isClosed() {
		return ErrClosed
	}
	e.hub.mu.Lock()
	defer e.hub.mu.Unlock()
	for _, c := range channels {
		e.hub.joinLocked(c, e.id)
	}
	return nil
}

func (e *Endpoint) Close() error {
	e.once.Do(func() {
		e.hub.disconnect(e.id)
		e.mu.Lock()
		e.closed = true
		e.cond.Broadcast()
		e.mu.Unlock()
		close(e.done)
	})
	return nil
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Endpoint) enqueue(m Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.queue = append(e.queue, m)
	e.cond.Signal()
}

func (e *Endpoint) pump() {
	defer close(e.out)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		m := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		select {
		case e.out <- m:
		case <-e.done:
			return
		}
	}
}
