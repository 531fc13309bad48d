package relay

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strings"

	"croesus/internal/coordinator"
	"croesus/internal/model"
	"croesus/internal/stats"

	"github.com/rs/zerolog/log"
)

// callbackFor picks how the replies to a fanned-out command are combined
func (r *Relay) callbackFor(ctx context.Context, command string) coordinator.Callback {
	switch command {
	case "players", "who":
		return func(res coordinator.Result) {
			r.reply(ctx, res, strings.Join(res.Replies(), " | "))
		}
	case "whereis":
		return func(res coordinator.Result) {
			r.reply(ctx, res, joinWhereIs(res))
		}
	case "asc", "streak", "lastasc", "lastgame":
		return func(res coordinator.Result) {
			r.reply(ctx, res, joinWithFallback(res))
		}
	default:
		if stats.IsReport(command) {
			return func(res coordinator.Result) {
				r.outStats(ctx, res)
			}
		}
		return nil
	}
}

func (r *Relay) reply(ctx context.Context, res coordinator.Result, msg string) {
	if msg == "" {
		log.Warn().Str("query", res.ID).Str("command", res.Command).Strs("missing", res.Missing).Msg("No replies to send")
		return
	}
	r.respond(ctx, res.ReplyTo, res.Sender, msg)
}

// joinWithFallback joins the replies with " | ", leaving out the "No ..."
// replies unless nothing else came back
func joinWithFallback(res coordinator.Result) string {
	var msgs []string
	fallback := ""
	for _, reply := range res.Replies() {
		if first, _, _ := strings.Cut(reply, " "); first == "No" {
			fallback = reply
			continue
		}
		msgs = append(msgs, reply)
	}
	if len(msgs) == 0 {
		return fallback
	}
	return strings.Join(msgs, " | ")
}

func joinWhereIs(res coordinator.Result) string {
	var msgs []string
	player := ""
	for _, reply := range res.Replies() {
		if strings.Contains(reply, " is not currently playing") {
			if fields := strings.Fields(reply); len(fields) > 1 {
				player = fields[1]
			}
			continue
		}
		msgs = append(msgs, reply)
	}
	if len(msgs) > 0 {
		return strings.Join(msgs, " | ")
	}
	if player == "" && len(res.Args) > 0 {
		player = res.Args[0]
	}
	if player == "" {
		return ""
	}
	return player + " is not playing."
}

// sumStats adds up "<type> <json>" stats replies. The type is taken from
// the replies; an unparseable reply is skipped.
func sumStats(res coordinator.Result) (model.StatBucket, string) {
	total := model.NewStatBucket()
	kind := ""
	for _, peer := range res.Order {
		reply := res.Responses[peer]
		t, payload, ok := strings.Cut(reply, " ")
		if !ok {
			log.Warn().Str("peer", peer).Str("query", res.ID).Msg("Malformed stats reply")
			continue
		}
		var b model.StatBucket
		if err := json.Unmarshal([]byte(payload), &b); err != nil {
			log.Warn().Err(err).Str("peer", peer).Str("query", res.ID).Msg("Undecodable stats reply")
			continue
		}
		kind = t
		total.Merge(b)
	}
	return total, kind
}

// outStats renders the summed report. News reports answer whoever asked;
// scheduled ones go to the spam channels.
func (r *Relay) outStats(ctx context.Context, res coordinator.Result) {
	bucket, kind := sumStats(res)
	if kind == "" {
		log.Warn().Str("command", res.Command).Strs("missing", res.Missing).Msg("No stats replies to report")
		return
	}

	now := r.now()
	var lines []string
	r.withRand(func(rng *rand.Rand) {
		lines = stats.FormatReport(kind, bucket, now, r.window.Countdown(now).ReportSuffix(), rng)
	})
	if len(lines) == 0 {
		log.Info().Str("command", res.Command).Int64("games", bucket.Games).Msg("Too few games for a report")
		return
	}

	targets := r.chat.SpamChannels
	private := false
	if kind == stats.TYPE_NEWS && res.ReplyTo != "" {
		targets = []string{res.ReplyTo}
		private = strings.EqualFold(res.ReplyTo, res.Sender)
	}
	for _, target := range targets {
		for _, line := range lines {
			if private {
				r.respond(ctx, target, target, line)
				continue
			}
			r.say(ctx, target, line)
		}
	}
}
