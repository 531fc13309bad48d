// Package tailer follows game log files and hands new lines to a handler.
package tailer

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"croesus/internal/clock"
	"croesus/internal/config"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Handler receives the lines read from src in one poll. replay is set for
// the startup read of an xlogfile, whose output must not be announced.
type Handler func(ctx context.Context, src *Source, lines []string, replay bool)

type Tailer struct {
	sources  []*Source
	clock    clock.Clock
	interval time.Duration
	handler  Handler
}

func New(sources []*Source, clk clock.Clock, interval time.Duration, handler Handler) *Tailer {
	return &Tailer{
		sources:  sources,
		clock:    clk,
		interval: interval,
		handler:  handler,
	}
}

func (t *Tailer) Sources() []*Source {
	return t.sources
}

// Seed applies the startup policy: livelogs start at their end, xlogfiles
// are replayed in full with output suppressed.
func (t *Tailer) Seed(ctx context.Context) {
	for _, src := range t.sources {
		t.seed(ctx, src)
	}
}

// seed applies the startup policy to one source. On failure the source
// stays pending and the next poll retries it, so history is never read as
// new lines.
func (t *Tailer) seed(ctx context.Context, src *Source) {
	logger := log.With().Str("path", src.Path).Str("kind", src.Kind).Logger()

	if src.Kind == config.SourceLivelog {
		if err := src.SeekEnd(); err != nil {
			logger.Error().Err(err).Msg("Failed to seek livelog to end, retrying on the next poll")
			src.setSeedPending(true)
			return
		}
		src.setSeedPending(false)
		return
	}

	lines, err := src.Poll()
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info().Msg("Xlogfile does not exist yet, nothing to replay")
		src.setSeedPending(false)
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Xlogfile replay failed, retrying on the next poll")
		src.setSeedPending(true)
		return
	}
	src.setSeedPending(false)
	t.handler(ctx, src, lines, true)
	logger.Info().Int("lines", len(lines)).Int64("offset", src.Offset()).Msg("Replayed xlogfile")
}

// PollSource reads one source and passes anything new to the handler
func (t *Tailer) PollSource(ctx context.Context, src *Source) {
	if src.SeedPending() {
		t.seed(ctx, src)
		return
	}

	lines, err := src.Poll()
	if err != nil {
		log.Error().Err(err).Str("path", src.Path).Msg("Failed to read log file")
		return
	}
	if len(lines) == 0 {
		return
	}
	log.Debug().Str("path", src.Path).Int("lines", len(lines)).Msg("Read new log lines")
	t.handler(ctx, src, lines, false)
}

// Run polls every source every interval until ctx is cancelled. Each source
// has its own goroutine, so polls of one source never overlap.
func (t *Tailer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range t.sources {
		ticker := t.clock.NewTicker(t.interval)
		g.Go(func() error {
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					t.PollSource(ctx, src)
				}
			}
		})
	}
	return g.Wait()
}
