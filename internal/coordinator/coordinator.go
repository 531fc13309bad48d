// Package coordinator fans user queries out to every node and collects the
// replies, and answers the queries other nodes send here.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"croesus/internal/clock"

	"github.com/rs/zerolog/log"
)

var (
	ErrNoPeers = errors.New("no peers to query")
	// ErrNoReply is returned by a Handler that wants to stay silent
	ErrNoReply = errors.New("no reply")
)

// PeerSender delivers a control message to another node (possibly this one)
type PeerSender interface {
	SendToPeer(ctx context.Context, peer, text string) error
}

// Result is what a callback receives once a query has finished or timed out
type Result struct {
	ID      string
	Sender  string
	ReplyTo string
	Command string
	Args    []string

	// Responses maps peer to its concatenated reply fragments
	Responses map[string]string
	// Order lists peers in the order their first fragment arrived
	Order []string
	// Missing lists peers that had not finished when the query timed out
	Missing  []string
	TimedOut bool
}

// Replies returns the responses in arrival order
func (r Result) Replies() []string {
	out := make([]string, 0, len(r.Order))
	for _, peer := range r.Order {
		out = append(out, r.Responses[peer])
	}
	return out
}

type Callback func(Result)

// Request is a query received from a master
type Request struct {
	ID        string
	Requester string
	Sender    string
	Command   string
	Args      []string
}

// Handler answers a query locally. The returned text is sent back chunked.
type Handler func(ctx context.Context, req Request) (string, error)

// SummaryHandler receives a summary push from a known peer
type SummaryHandler func(ctx context.Context, peer, payload string)

type Options struct {
	// Peers are the nodes a query is sent to
	Peers []string
	// Masters are the nodes allowed to send queries here
	Masters   []string
	Timeout   time.Duration
	ChunkSize int
	Clock     clock.Clock
}

type pendingQuery struct {
	result   Result
	finished map[string]bool
	timer    *clock.Timer
	callback Callback
}

type Coordinator struct {
	sender    PeerSender
	clock     clock.Clock
	timeout   time.Duration
	chunkSize int
	peers     []string
	peerSet   map[string]bool
	masterSet map[string]bool

	mu      sync.Mutex
	nextID  uint64
	pending map[string]*pendingQuery

	handlersMu sync.RWMutex
	handlers   map[string]Handler
	onSummary  SummaryHandler
}

func New(sender PeerSender, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	c := &Coordinator{
		sender:    sender,
		clock:     opts.Clock,
		timeout:   opts.Timeout,
		chunkSize: opts.ChunkSize,
		peerSet:   make(map[string]bool, len(opts.Peers)),
		masterSet: make(map[string]bool, len(opts.Masters)),
		pending:   make(map[string]*pendingQuery),
		handlers:  make(map[string]Handler),
	}
	// a repeated id would be queried twice and could never finish
	for _, p := range opts.Peers {
		if c.peerSet[p] {
			log.Warn().Str("peer", p).Msg("Duplicate peer id ignored")
			continue
		}
		c.peerSet[p] = true
		c.peers = append(c.peers, p)
	}
	for _, m := range opts.Masters {
		c.masterSet[m] = true
	}
	return c
}

// Handle registers the local handler for a query command
func (c *Coordinator) Handle(command string, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[command] = h
}

func (c *Coordinator) OnSummary(h SummaryHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onSummary = h
}

func (c *Coordinator) IsPeer(id string) bool {
	return c.peerSet[id]
}

func (c *Coordinator) IsMaster(id string) bool {
	return c.masterSet[id]
}

// Pending returns the number of queries still waiting for replies
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Dispatch sends words (command first) to every peer under a fresh id and
// calls cb exactly once: when every peer has sent its final fragment, or
// when the timeout expires, whichever comes first.
func (c *Coordinator) Dispatch(ctx context.Context, sender, replyTo string, words []string, cb Callback) (string, error) {
	if len(c.peers) == 0 {
		return "", ErrNoPeers
	}
	if len(words) == 0 {
		return "", fmt.Errorf("empty query")
	}

	c.mu.Lock()
	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)
	q := &pendingQuery{
		result: Result{
			ID:        id,
			Sender:    sender,
			ReplyTo:   replyTo,
			Command:   words[0],
			Args:      append([]string(nil), words[1:]...),
			Responses: make(map[string]string, len(c.peers)),
		},
		finished: make(map[string]bool, len(c.peers)),
		callback: cb,
	}
	c.pending[id] = q
	c.mu.Unlock()

	timer := c.clock.AfterFunc(c.timeout, func() { c.expire(id) })
	c.mu.Lock()
	if _, ok := c.pending[id]; ok {
		q.timer = timer
	} else {
		timer.Stop()
	}
	c.mu.Unlock()

	msg := FormatQuery(id, sender, words)
	for _, peer := range c.peers {
		if err := c.sender.SendToPeer(ctx, peer, msg); err != nil {
			log.Error().Err(err).Str("peer", peer).Str("query", id).Msg("Failed to forward query")
		}
	}

	log.Debug().
		Str("query", id).
		Str("command", words[0]).
		Int("peers", len(c.peers)).
		Msg("Dispatched query")
	return id, nil
}

// ReceiveResponse records a reply fragment from peer. The final fragment
// marks the peer finished; once all peers have finished the query is
// removed and its callback runs.
func (c *Coordinator) ReceiveResponse(peer, id string, final bool, fragment string) {
	if !c.peerSet[peer] {
		log.Warn().Str("peer", peer).Str("query", id).Msg("Response from unknown peer dropped")
		return
	}

	c.mu.Lock()
	q, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		log.Warn().Str("peer", peer).Str("query", id).Msg("Response for unknown or expired query dropped")
		return
	}
	if q.finished[peer] {
		c.mu.Unlock()
		log.Warn().Str("peer", peer).Str("query", id).Msg("Fragment after final response dropped")
		return
	}

	if _, seen := q.result.Responses[peer]; !seen {
		q.result.Order = append(q.result.Order, peer)
	}
	q.result.Responses[peer] += fragment
	if final {
		q.finished[peer] = true
	}

	if len(q.finished) < len(c.peers) {
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	if q.timer != nil {
		q.timer.Stop()
	}
	c.mu.Unlock()

	if q.callback != nil {
		q.callback(q.result)
	}
}

// expire finalises a query with whatever has arrived
func (c *Coordinator) expire(id string) {
	c.mu.Lock()
	q, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	for _, peer := range c.peers {
		if !q.finished[peer] {
			q.result.Missing = append(q.result.Missing, peer)
		}
	}
	q.result.TimedOut = true
	c.mu.Unlock()

	log.Warn().
		Str("query", id).
		Str("command", q.result.Command).
		Strs("missing", q.result.Missing).
		Msg("Query timed out, using partial responses")

	if q.callback != nil {
		q.callback(q.result)
	}
}

// ReceiveRequest answers a query from requester. Queries from nodes that are
// not masters, and unknown commands, are dropped without a reply.
func (c *Coordinator) ReceiveRequest(ctx context.Context, req Request) {
	if !c.masterSet[req.Requester] {
		log.Warn().Str("requester", req.Requester).Str("command", req.Command).Msg("Query from unauthorised node dropped")
		return
	}

	c.handlersMu.RLock()
	h, ok := c.handlers[req.Command]
	c.handlersMu.RUnlock()
	if !ok {
		log.Warn().Str("requester", req.Requester).Str("command", req.Command).Msg("Query for unknown command dropped")
		return
	}

	reply, err := h(ctx, req)
	if errors.Is(err, ErrNoReply) {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("command", req.Command).Str("query", req.ID).Msg("Query handler failed")
		return
	}

	chunks := Chunk(reply, c.chunkSize)
	for i, chunk := range chunks {
		msg := FormatResponse(req.ID, chunk, i == len(chunks)-1)
		if err := c.sender.SendToPeer(ctx, req.Requester, msg); err != nil {
			log.Error().Err(err).Str("requester", req.Requester).Str("query", req.ID).Msg("Failed to send query response")
			return
		}
	}
}

// HandleMessage routes a control message received from another node. It
// returns false when text is not a control message at all.
func (c *Coordinator) HandleMessage(ctx context.Context, from, text string) bool {
	if !IsControl(text) {
		return false
	}
	msg, ok := ParseMessage(text)
	if !ok {
		log.Warn().Str("from", from).Str("text", text).Msg("Malformed control message dropped")
		return true
	}

	switch msg.Tag {
	case TagQuery:
		c.ReceiveRequest(ctx, Request{
			ID:        msg.ID,
			Requester: from,
			Sender:    msg.Sender,
			Command:   msg.Command,
			Args:      msg.Args,
		})
	case TagPartial, TagFinal:
		c.ReceiveResponse(from, msg.ID, msg.Tag == TagFinal, msg.Payload)
	case TagSummary:
		if !c.peerSet[from] {
			log.Warn().Str("from", from).Msg("Summary from unknown peer dropped")
			return true
		}
		c.handlersMu.RLock()
		h := c.onSummary
		c.handlersMu.RUnlock()
		if h != nil {
			h(ctx, from, msg.Payload)
		}
	}
	return true
}
