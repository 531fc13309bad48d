// Package mailbox stores !tell messages until the recipient next speaks.
package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"croesus/internal/cache"

	"github.com/rs/zerolog/log"
)

// PRIVATE_THRESHOLD is the number of waiting messages above which delivery
// switches to private messages plus one channel notice
const PRIVATE_THRESHOLD = 2

// Note is one message left for a recipient. ForwardTo is the channel the
// message was left on, or the recipient for a message left privately.
type Note struct {
	ForwardTo string    `json:"forward_to"`
	Sender    string    `json:"sender"`
	Sent      time.Time `json:"sent"`
	Text      string    `json:"text"`
}

type Store interface {
	Leave(ctx context.Context, recipient string, note Note) error
	// Collect returns and removes every note waiting for recipient
	Collect(ctx context.Context, recipient string) ([]Note, error)
}

type store struct {
	cache cache.Cache
}

// New returns a Store on top of c. Backed by Redis the messages survive
// restarts; backed by cache.MemoryCache they do not.
func New(c cache.Cache) Store {
	return &store{cache: c}
}

func key(recipient string) string {
	return "tell:" + strings.ToLower(recipient)
}

func (s *store) Leave(ctx context.Context, recipient string, note Note) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to encode note: %w", err)
	}
	if err := s.cache.Append(ctx, key(recipient), data); err != nil {
		return fmt.Errorf("failed to store note for %s: %w", recipient, err)
	}
	return nil
}

func (s *store) Collect(ctx context.Context, recipient string) ([]Note, error) {
	items, err := s.cache.TakeList(ctx, key(recipient))
	if err != nil {
		return nil, fmt.Errorf("failed to collect notes for %s: %w", recipient, err)
	}

	notes := make([]Note, 0, len(items))
	for _, item := range items {
		var n Note
		if err := json.Unmarshal(item, &n); err != nil {
			log.Warn().Err(err).Str("recipient", recipient).Msg("Dropping undecodable note")
			continue
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// Delivery is one line to send while handing notes over
type Delivery struct {
	Target string
	Text   string
}

// Plan turns the notes waiting for user, who just spoke on channel, into
// deliveries. Up to PRIVATE_THRESHOLD notes go back where they were left.
// More than that are sent privately, with a channel notice naming the
// senders of the non-private ones.
func Plan(user, channel string, notes []Note, private bool) []Delivery {
	var out []Delivery
	if len(notes) <= PRIVATE_THRESHOLD || !private {
		for _, n := range notes {
			out = append(out, Delivery{Target: n.ForwardTo, Text: n.format()})
		}
		return out
	}

	var senders []string
	seen := map[string]bool{}
	for _, n := range notes {
		if !strings.EqualFold(n.ForwardTo, user) && !seen[n.Sender] {
			seen[n.Sender] = true
			senders = append(senders, n.Sender)
		}
		out = append(out, Delivery{Target: user, Text: n.format()})
	}
	if len(senders) > 0 {
		out = append(out, Delivery{
			Target: channel,
			Text:   "Messages from " + joinNames(senders) + " have been forwarded to you privately.",
		})
	}
	return out
}

func (n Note) format() string {
	return "Message from " + n.Sender + " at " + n.Sent.UTC().Format("2006-01-02 15:04 MST") + ": " + n.Text
}

// joinNames renders "tom", "tom and dick", "tom, dick, and harry"
func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
}
