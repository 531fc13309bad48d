// Package transport is the chat-side boundary of the relay: channel output,
// private messages to users and peer nodes, and the inbound message feed.
package transport

import "context"

// Message is one inbound line. Destination is a channel name for channel
// traffic or the receiving node id for private messages.
type Message struct {
	Sender      string `json:"sender"`
	Destination string `json:"destination"`
	Text        string `json:"text"`
}

// Private reports whether the message was addressed to this node directly
func (m Message) Private(self string) bool {
	return m.Destination == self
}

type Transport interface {
	SendToChannel(ctx context.Context, channel, text string) error
	// SendToPeer sends a private message to a peer node or a user
	SendToPeer(ctx context.Context, peer, text string) error
	// Messages delivers inbound lines in arrival order. It is closed by Close.
	Messages() <-chan Message
	Close() error
}

// Rejoiner is implemented by transports that can re-assert the node's
// identity and channel membership after a network split.
type Rejoiner interface {
	Rejoin(ctx context.Context, channels []string) error
}
