package rabbitmq

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"croesus/internal/transport"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Routing keys on the topic exchange. The chat gateway consumes channel.*
// and user.* and publishes what users say to inbound.<channel> or
// node.<id>.
const (
	HeaderSender      = "sender"
	HeaderDestination = "destination"

	nodeKeyPrefix    = "node."
	userKeyPrefix    = "user."
	channelKeyPrefix = "channel."
	inboundKeyPrefix = "inbound."
)

// Transport carries chat traffic and peer messages over a RabbitMQ topic
// exchange. Each node consumes one durable queue named after its id.
type Transport struct {
	client   Client
	exchange string
	queue    string
	self     string
	peers    map[string]bool

	out    chan transport.Message
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewTransport declares the exchange and this node's queue, binds it to
// the node key and the inbound keys of channels, and starts consuming.
// Private messages to ids in peers are routed to that node's queue; any
// other target is treated as a chat user.
func NewTransport(ctx context.Context, client Client, exchange, queuePrefix, self string, peers, channels []string) (*Transport, error) {
	t := &Transport{
		client:   client,
		exchange: exchange,
		queue:    queuePrefix + "." + self,
		self:     self,
		peers:    make(map[string]bool, len(peers)),
		out:      make(chan transport.Message),
	}
	for _, p := range peers {
		t.peers[p] = true
	}

	if err := client.DeclareExchange(exchange, "topic"); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	if _, err := client.DeclareQueue(t.queue); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", t.queue, err)
	}
	if err := client.BindQueue(t.queue, exchange, nodeKey(self)); err != nil {
		return nil, fmt.Errorf("failed to bind node key: %w", err)
	}
	if err := t.bindChannels(channels); err != nil {
		return nil, err
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(1)
	go t.consume(ctx)

	return t, nil
}

func (t *Transport) bindChannels(channels []string) error {
	for _, ch := range channels {
		if err := t.client.BindQueue(t.queue, t.exchange, inboundKey(ch)); err != nil {
			return fmt.Errorf("failed to bind channel %s: %w", ch, err)
		}
	}
	return nil
}

func (t *Transport) SendToChannel(ctx context.Context, channel, text string) error {
	return t.client.Publish(ctx, t.exchange, channelKey(channel), []byte(text), amqp.Table{
		HeaderSender:      t.self,
		HeaderDestination: channel,
	})
}

func (t *Transport) SendToPeer(ctx context.Context, peer, text string) error {
	key := userKey(peer)
	if t.peers[peer] {
		key = nodeKey(peer)
	}
	return t.client.Publish(ctx, t.exchange, key, []byte(text), amqp.Table{
		HeaderSender:      t.self,
		HeaderDestination: peer,
	})
}

func (t *Transport) Messages() <-chan transport.Message {
	return t.out
}

// Rejoin re-binds the channel keys, which is idempotent on the broker
func (t *Transport) Rejoin(_ context.Context, channels []string) error {
	return t.bindChannels(channels)
}

func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		t.cancel()
		err = t.client.Close()
		t.wg.Wait()
	})
	return err
}

// consume forwards deliveries to Messages, re-subscribing after the broker
// connection drops
func (t *Transport) consume(ctx context.Context) {
	defer t.wg.Done()
	defer close(t.out)

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		deliveries, err := t.client.Consume(t.queue, t.self)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = 1 * time.Second

		if !t.drain(ctx, deliveries) {
			return
		}
		log.Warn().Str("queue", t.queue).Msg("Delivery channel closed, resubscribing")
	}
}

// drain returns false once ctx is done
func (t *Transport) drain(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case d, ok := <-deliveries:
			if !ok {
				return ctx.Err() == nil
			}
			msg := decodeDelivery(d, t.self)
			if err := d.Ack(false); err != nil {
				log.Error().Err(err).Msg("Failed to ack delivery")
			}
			select {
			case t.out <- msg:
			case <-ctx.Done():
				return false
			}
		}
	}
}

func decodeDelivery(d amqp.Delivery, self string) transport.Message {
	msg := transport.Message{
		Sender:      headerString(d.Headers, HeaderSender),
		Destination: headerString(d.Headers, HeaderDestination),
		Text:        string(d.Body),
	}
	if msg.Destination == "" {
		msg.Destination = self
	}
	return msg
}

func headerString(h amqp.Table, key string) string {
	v, ok := h[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func nodeKey(id string) string {
	return nodeKeyPrefix + keyWord(id)
}

func userKey(nick string) string {
	return userKeyPrefix + keyWord(nick)
}

func channelKey(ch string) string {
	return channelKeyPrefix + keyWord(ch)
}

func inboundKey(ch string) string {
	return inboundKeyPrefix + keyWord(ch)
}

// keyWord makes s safe as one topic routing word: no dots, and no leading
// '#' or '*' wildcards
func keyWord(s string) string {
	s = strings.TrimLeft(s, "#*")
	return strings.ReplaceAll(s, ".", "_")
}
