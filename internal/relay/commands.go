package relay

import (
	"context"
	"errors"
	"strings"

	"croesus/internal/coordinator"
	"croesus/internal/mailbox"
	"croesus/internal/transport"

	"github.com/rs/zerolog/log"
)

// Invocation is one chat command. ReplyTo is the channel it was said on,
// or the sender for a private message.
type Invocation struct {
	Sender  string
	ReplyTo string
	Words   []string
}

func (inv Invocation) private() bool {
	return strings.EqualFold(inv.Sender, inv.ReplyTo)
}

type Command func(ctx context.Context, inv Invocation)

var tellAcks = []string{
	"Will do, {0}!",
	"I'm on it, {0}.",
	"No worries, {0}, I've got this!",
	"{1} shall be duly informed at the first opportunity, {0}.",
}

func (r *Relay) commandTable() map[string]Command {
	multi := r.multiServer
	return map[string]Command{
		"ping":     r.doPing,
		"time":     r.doTime,
		"tell":     r.doTell,
		"lastgame": multi,
		"lastasc":  multi,
		"players":  multi,
		"who":      multi,
		"asc":      multi,
		"streak":   multi,
		"whereis":  multi,
		"stats":    multi,
	}
}

// HandleMessage processes one inbound chat or peer message
func (r *Relay) HandleMessage(ctx context.Context, m transport.Message) {
	private := m.Private(r.node.ID)
	if private && r.coord.HandleMessage(ctx, m.Sender, m.Text) {
		return
	}
	if !private && !r.channels[m.Destination] {
		log.Debug().Str("channel", m.Destination).Msg("Message on unknown channel ignored")
		return
	}

	sender, text := m.Sender, m.Text
	// a non-master only takes orders from its masters
	if !r.node.Master && !r.coord.IsMaster(sender) {
		return
	}

	replyTo := sender
	if !private {
		replyTo = m.Destination
		if r.bridges[sender] && strings.HasPrefix(text, "<") {
			if nick, rest, ok := strings.Cut(text[1:], "> "); ok {
				sender, text = nick, rest
			}
		}
		r.deliverNotes(ctx, sender, m.Destination)
	} else {
		r.deliverNotes(ctx, sender, sender)
	}

	if !strings.HasPrefix(text, "!") {
		if private && r.node.Master && r.coord.IsPeer(m.Sender) && m.Sender != r.node.ID {
			r.announceForwarded(ctx, text)
		}
		return
	}

	words := strings.Fields(text[1:])
	if len(words) == 0 {
		return
	}
	words[0] = lower(words[0])
	cmd, ok := r.commands[words[0]]
	if !ok {
		return
	}

	log.Debug().
		Str("sender", sender).
		Str("replyTo", replyTo).
		Str("command", words[0]).
		Msg("Running command")
	cmd(ctx, Invocation{Sender: sender, ReplyTo: replyTo, Words: words})
}

// respond answers privately when the command was private, and addresses the
// sender on the channel otherwise
func (r *Relay) respond(ctx context.Context, replyTo, sender, msg string) {
	var err error
	if strings.EqualFold(replyTo, sender) {
		err = r.transport.SendToPeer(ctx, replyTo, msg)
	} else {
		err = r.transport.SendToChannel(ctx, replyTo, sender+": "+msg)
	}
	if err != nil {
		log.Error().Err(err).Str("replyTo", replyTo).Msg("Failed to send response")
	}
}

func (r *Relay) say(ctx context.Context, channel, msg string) {
	if err := r.transport.SendToChannel(ctx, channel, msg); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Failed to send message")
	}
}

func (r *Relay) doPing(ctx context.Context, inv Invocation) {
	r.respond(ctx, inv.ReplyTo, inv.Sender, strings.TrimSpace("Pong! "+strings.Join(inv.Words[1:], " ")))
}

func (r *Relay) doTime(ctx context.Context, inv Invocation) {
	r.respond(ctx, inv.ReplyTo, inv.Sender, r.window.TimeMessage(r.now()))
}

func (r *Relay) doTell(ctx context.Context, inv Invocation) {
	if len(inv.Words) < 3 {
		r.respond(ctx, inv.ReplyTo, inv.Sender, "!tell <recipient> <message> (leave a message for someone)")
		return
	}

	rcpt, _, _ := strings.Cut(inv.Words[1], ":")
	if rcpt == "" {
		r.respond(ctx, inv.ReplyTo, inv.Sender, "!tell <recipient> <message> (leave a message for someone)")
		return
	}
	text := strings.Join(inv.Words[2:], " ")
	forwardTo := inv.ReplyTo
	if inv.private() {
		forwardTo = rcpt
		text = "[private] " + text
	}

	note := mailbox.Note{ForwardTo: forwardTo, Sender: inv.Sender, Sent: r.now(), Text: text}
	if err := r.mailbox.Leave(ctx, rcpt, note); err != nil {
		log.Error().Err(err).Str("recipient", rcpt).Msg("Failed to leave message")
		r.respond(ctx, inv.ReplyTo, inv.Sender, "Sorry, I could not store that message.")
		return
	}

	ack := tellAcks[r.intn(len(tellAcks))]
	ack = strings.NewReplacer("{0}", inv.Sender, "{1}", rcpt).Replace(ack)
	if inv.private() {
		r.respond(ctx, inv.ReplyTo, inv.Sender, ack)
		return
	}
	r.say(ctx, inv.ReplyTo, ack)
}

// deliverNotes hands over messages waiting for user, who just spoke. A
// bridged user shows up as "@nick"; their notes may be filed under either
// form, and they cannot be messaged privately.
func (r *Relay) deliverNotes(ctx context.Context, user, channel string) {
	keys := []string{user}
	bridged := strings.HasPrefix(user, "@")
	if bridged {
		keys = append(keys, user[1:])
	}

	var notes []mailbox.Note
	for _, key := range keys {
		got, err := r.mailbox.Collect(ctx, key)
		if err != nil {
			log.Error().Err(err).Str("user", key).Msg("Failed to collect messages")
			return
		}
		if len(got) > 0 {
			notes = got
			break
		}
	}
	if len(notes) == 0 {
		return
	}

	log.Info().Str("user", user).Int("messages", len(notes)).Msg("Delivering messages")
	for _, d := range mailbox.Plan(user, channel, notes, !bridged) {
		r.respond(ctx, d.Target, user, d.Text)
	}
}

// usage checks, by command. A false return means a usage reply was sent.
func (r *Relay) checkUsage(ctx context.Context, inv Invocation) bool {
	var usage string
	switch inv.Words[0] {
	case "whereis":
		if len(inv.Words) != 2 {
			usage = "!whereis <player> - finds a player in the dungeon."
		}
	case "asc":
		if len(inv.Words) > 2 {
			usage = "!asc [player] - shows a player's ascensions."
		}
	case "streak":
		if len(inv.Words) > 2 {
			usage = "!streak [player] - shows a player's ascension streaks."
		}
	}
	if usage == "" {
		return true
	}
	r.respond(ctx, inv.ReplyTo, inv.Sender, usage)
	return false
}

// multiServer fans a command out to every node and answers once they have
// all replied or the query times out
func (r *Relay) multiServer(ctx context.Context, inv Invocation) {
	if !r.checkUsage(ctx, inv) {
		return
	}
	_, err := r.coord.Dispatch(ctx, inv.Sender, inv.ReplyTo, inv.Words, r.callbackFor(ctx, inv.Words[0]))
	if errors.Is(err, coordinator.ErrNoPeers) {
		log.Debug().Str("command", inv.Words[0]).Msg("No peers to query")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("command", inv.Words[0]).Msg("Failed to dispatch query")
	}
}
