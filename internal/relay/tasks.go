package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"croesus/internal/coordinator"
	"croesus/internal/orchestrator"
	"croesus/internal/tournament"
	"croesus/internal/transport"

	"github.com/rs/zerolog/log"
)

const (
	TASK_HOURLY   = "hourly"
	TASK_SUMMARY  = "summary"
	TASK_IDENTITY = "identity"
)

func (r *Relay) startTasks() error {
	if r.node.Master {
		first := tournament.NextHour(r.now())
		if err := r.scheduler.At(orchestrator.NewTask(TASK_HOURLY, r.runHourly), first, time.Hour); err != nil {
			return err
		}
	}

	if len(r.masters) > 0 && r.timing.SummaryInterval > 0 {
		task := orchestrator.NewTask(TASK_SUMMARY, func(ctx context.Context) error {
			r.pushSummary(ctx)
			return nil
		})
		if err := r.scheduler.Every(task, r.timing.SummaryInterval); err != nil {
			return err
		}
	}

	if rj, ok := r.transport.(transport.Rejoiner); ok && r.timing.IdentityCheck > 0 {
		task := orchestrator.NewTask(TASK_IDENTITY, func(ctx context.Context) error {
			if err := rj.Rejoin(ctx, r.allChannels()); err != nil {
				log.Warn().Err(err).Msg("Identity check failed")
			}
			return nil
		})
		if err := r.scheduler.Every(task, r.timing.IdentityCheck); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relay) allChannels() []string {
	out := append([]string(nil), r.chat.Channels...)
	for _, ch := range r.chat.SpamChannels {
		if !contains(out, ch) {
			out = append(out, ch)
		}
	}
	return out
}

// runHourly carries out the tournament plan for this hour
func (r *Relay) runHourly(ctx context.Context) error {
	now := r.now()
	plan := r.window.HourlyPlan(now, r.node.Test)

	if plan.Announce != "" {
		r.announce(ctx, plan.Announce, false)
	}
	if plan.Countdown != "" {
		r.scheduleCountdown(plan.Countdown, now)
	}
	if plan.Report != "" {
		if err := r.Report(ctx, plan.Report); err != nil {
			log.Error().Err(err).Str("report", plan.Report).Msg("Failed to start stats report")
		}
	}
	if plan.Stop {
		log.Info().Msg("Tournament over, stopping hourly reports")
		return orchestrator.ErrStopTask
	}
	return nil
}

// Report fans a stats report out to every node; the summed result goes to
// the spam channels
func (r *Relay) Report(ctx context.Context, report string) error {
	_, err := r.coord.Dispatch(ctx, r.node.ID, "", []string{report}, r.callbackFor(ctx, report))
	if errors.Is(err, coordinator.ErrNoPeers) {
		return nil
	}
	return err
}

// scheduleCountdown announces the countdown lines one second apart so the
// last one lands a second before the boundary
func (r *Relay) scheduleCountdown(event string, now time.Time) {
	boundary := r.window.Start
	if event == tournament.EVENT_END {
		boundary = r.window.End
	}

	for i, line := range tournament.CountdownLines(event) {
		at := boundary.Add(time.Duration(i-tournament.COUNTDOWN_FROM) * time.Second)
		task := orchestrator.NewTask(fmt.Sprintf("countdown-%s-%d", event, i), func(ctx context.Context) error {
			r.broadcast(ctx, line, true)
			return nil
		})
		if err := r.scheduler.After(task, at.Sub(now)); err != nil {
			log.Error().Err(err).Str("event", event).Msg("Failed to schedule countdown")
		}
	}
}
