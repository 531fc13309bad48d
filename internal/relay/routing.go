package relay

import (
	"context"
	"encoding/json"
	"strings"

	"croesus/internal/coordinator"
	"croesus/internal/processor"

	"github.com/rs/zerolog/log"
)

// Lines a non-master forwards as spam carry this prefix
const spamPrefix = "SPAM: "

// emit routes a report line: a master announces it, any other node
// forwards it to its masters
func (r *Relay) emit(ctx context.Context, line processor.Line) {
	if r.node.Master {
		r.announce(ctx, line.Text, line.Spam)
		return
	}

	text := line.Text
	if line.Spam {
		text = spamPrefix + text
	}
	for _, master := range r.masters {
		if err := r.transport.SendToPeer(ctx, master, text); err != nil {
			log.Error().Err(err).Str("master", master).Msg("Failed to forward report line")
		}
	}
}

// announceForwarded announces a line a peer forwarded
func (r *Relay) announceForwarded(ctx context.Context, text string) {
	spam := strings.HasPrefix(text, spamPrefix)
	r.announce(ctx, strings.TrimPrefix(text, spamPrefix), spam)
}

// announce sends text to the channels, or only to the spam channels for
// spam. Outside the tournament and its grace period nothing is announced
// unless the node is in test mode.
func (r *Relay) announce(ctx context.Context, text string, spam bool) {
	if !r.node.Test && !r.window.Announcing(r.now()) {
		log.Debug().Str("text", text).Msg("Outside the tournament, not announcing")
		return
	}
	r.broadcast(ctx, text, spam)
}

// broadcast sends text to the channels regardless of the calendar
func (r *Relay) broadcast(ctx context.Context, text string, spam bool) {
	channels := r.chat.Channels
	if spam {
		channels = r.chat.SpamChannels
	}
	for _, ch := range channels {
		for _, line := range strings.Split(text, "\n") {
			if line == "" {
				continue
			}
			r.say(ctx, ch, line)
		}
	}
}

// pushSummary sends the full-bucket totals to every master
func (r *Relay) pushSummary(ctx context.Context) {
	if len(r.masters) == 0 {
		return
	}
	payload, err := json.Marshal(r.Stats.Summary())
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode summary")
		return
	}
	msg := coordinator.FormatSummary(payload)
	for _, master := range r.masters {
		if err := r.transport.SendToPeer(ctx, master, msg); err != nil {
			log.Error().Err(err).Str("master", master).Msg("Failed to push summary")
		}
	}
}
