// Package relay is the chat-facing service: it turns log records into
// announcements, answers chat commands by querying every node, and runs
// the tournament's scheduled reports.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"croesus/internal/aws"
	"croesus/internal/cache"
	"croesus/internal/clock"
	"croesus/internal/config"
	"croesus/internal/coordinator"
	"croesus/internal/database"
	"croesus/internal/history"
	"croesus/internal/mailbox"
	"croesus/internal/orchestrator"
	"croesus/internal/processor"
	"croesus/internal/stats"
	"croesus/internal/streak"
	"croesus/internal/tailer"
	"croesus/internal/tournament"
	"croesus/internal/transport"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators a Relay is built from. Only Transport is
// required; the rest fall back to in-memory versions or are skipped.
type Deps struct {
	Transport transport.Transport
	Clock     clock.Clock
	Mailbox   mailbox.Store
	// State keeps milestone totals across restarts
	State     cache.Cache
	Archive   processor.GameArchiver
	Snapshots database.SnapshotDatabase
	Files     aws.FileService
	Rand      *rand.Rand
}

type Relay struct {
	node   config.NodeConfig
	chat   config.ChatConfig
	dumps  config.DumpsConfig
	timing config.TimingConfig
	window tournament.Window

	transport transport.Transport
	clock     clock.Clock
	mailbox   mailbox.Store
	snapshots database.SnapshotDatabase
	files     aws.FileService
	archive   processor.GameArchiver

	rngMu sync.Mutex
	rng   *rand.Rand

	Stats      *stats.Aggregator
	Streaks    *streak.Tracker
	History    *history.History
	shortGames *streak.ShortGames

	coord      *coordinator.Coordinator
	xlogfile   *processor.XlogfileProcessor
	pipeline   *processor.Pipeline
	tailer     *tailer.Tailer
	milestones *Milestones
	scheduler  *orchestrator.Scheduler
	buffer     *processor.ArchiveBuffer

	// masters receive summaries and forwarded lines; a master is its own
	masters  []string
	commands map[string]Command
	channels map[string]bool
	bridges  map[string]bool

	startedMu sync.Mutex
	started   time.Time
}

// New builds the relay's tables and wiring. Nothing runs until Run.
func New(cfg *config.Config, deps Deps) (*Relay, error) {
	if deps.Transport == nil {
		return nil, errors.New("relay needs a transport")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Mailbox == nil {
		deps.Mailbox = mailbox.New(cache.NewMemoryCache())
	}
	if deps.State == nil {
		deps.State = cache.NewMemoryCache()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewPCG(uint64(deps.Clock.Now().UnixNano()), 0x63726f65))
	}

	r := &Relay{
		node:      cfg.Node,
		chat:      cfg.Chat,
		dumps:     cfg.Dumps,
		timing:    cfg.Timing,
		window:    tournament.New(cfg.Tournament.Start, cfg.Tournament.End, cfg.Tournament.GraceDays),
		transport: deps.Transport,
		clock:     deps.Clock,
		mailbox:   deps.Mailbox,
		snapshots: deps.Snapshots,
		files:     deps.Files,
		archive:   deps.Archive,
		rng:       deps.Rand,

		Stats:      stats.NewAggregator(),
		Streaks:    streak.NewTracker(),
		History:    history.New(),
		shortGames: streak.NewShortGames(),

		channels: toSet(append(append([]string(nil), cfg.Chat.Channels...), cfg.Chat.SpamChannels...)),
		bridges:  toSet(cfg.Chat.BridgeBots),
	}

	peers, masters := r.topology()
	r.masters = masters
	r.coord = coordinator.New(deps.Transport, coordinator.Options{
		Peers:     peers,
		Masters:   masters,
		Timeout:   cfg.Timing.QueryTimeout,
		ChunkSize: cfg.Timing.ChunkSize,
		Clock:     deps.Clock,
	})
	r.registerQueries()
	r.milestones = NewMilestones(deps.State, peers)
	r.coord.OnSummary(r.checkMilestones)

	r.xlogfile = &processor.XlogfileProcessor{
		Stats:      r.Stats,
		Streaks:    r.Streaks,
		ShortGames: r.shortGames,
		History:    r.History,
		Dumps:      processor.NewDumpLocator(cfg.Dumps, cfg.Node.Test),
		Clock:      deps.Clock,
		Server:     cfg.Node.ServerTag,
	}
	r.pipeline = processor.NewPipeline(
		processor.NewRegistry(r.xlogfile, processor.LivelogProcessor{}),
		cfg.Node.ServerTag,
	)

	sources := make([]*tailer.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		sources = append(sources, tailer.NewSource(sc))
	}
	r.tailer = tailer.New(sources, deps.Clock, cfg.Timing.PollInterval, r.handleLines)

	r.commands = r.commandTable()

	log.Info().
		Str("node", r.node.ID).
		Bool("master", r.node.Master).
		Strs("peers", peers).
		Strs("masters", masters).
		Int("sources", len(sources)).
		Msg("Relay initialized")

	return r, nil
}

// topology returns the nodes queries go to and the nodes queries are
// accepted from. A master is always both to itself.
func (r *Relay) topology() (peers, masters []string) {
	masters = append(masters, r.node.Masters...)
	if !r.node.Master {
		return nil, masters
	}
	peers = append(peers, r.node.Peers...)
	if !contains(peers, r.node.ID) {
		peers = append(peers, r.node.ID)
	}
	if !contains(masters, r.node.ID) {
		masters = append(masters, r.node.ID)
	}
	return peers, masters
}

// Run seeds the sources, starts the timers, and serves inbound messages
// until ctx is cancelled or the transport closes
func (r *Relay) Run(ctx context.Context) error {
	r.startedMu.Lock()
	r.started = r.clock.Now()
	r.startedMu.Unlock()

	if r.archive != nil {
		r.buffer = processor.NewArchiveBuffer(ctx, r.archive, r.clock, processor.DEFAULT_ARCHIVE_BUFFER_SIZE)
		r.xlogfile.Sink = r.buffer
		defer r.buffer.Close()
	}
	if r.node.Master {
		r.milestones.Load(ctx)
	}

	r.tailer.Seed(ctx)

	r.scheduler = orchestrator.NewScheduler(ctx, r.clock)
	defer r.scheduler.Stop()
	if err := r.startTasks(); err != nil {
		return fmt.Errorf("failed to schedule tasks: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.tailer.Run(ctx)
	})
	g.Go(func() error {
		return r.serve(ctx)
	})

	log.Info().Str("node", r.node.ID).Msg("Relay running")
	return g.Wait()
}

func (r *Relay) serve(ctx context.Context) error {
	messages := r.transport.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-messages:
			if !ok {
				log.Warn().Str("node", r.node.ID).Msg("Transport closed")
				return transport.ErrClosed
			}
			r.HandleMessage(ctx, m)
		}
	}
}

// handleLines is the tailer callback
func (r *Relay) handleLines(ctx context.Context, src *tailer.Source, lines []string, replay bool) {
	res := r.pipeline.Process(ctx, src, lines, replay)
	if replay {
		log.Info().
			Str("path", src.Path).
			Int("records", res.Counts.Total()).
			Int("failed", res.Counts.Failure).
			Msg("Seeded tables from xlogfile")
		return
	}

	for _, line := range res.Lines {
		r.emit(ctx, line)
	}
	if len(lines) > 0 {
		r.pushSummary(ctx)
	}
}

// Uptime is how long Run has been going
func (r *Relay) Uptime() time.Duration {
	r.startedMu.Lock()
	defer r.startedMu.Unlock()
	if r.started.IsZero() {
		return 0
	}
	return r.clock.Now().Sub(r.started)
}

func (r *Relay) NodeID() string { return r.node.ID }

func (r *Relay) Window() tournament.Window { return r.window }

// Coordinator exposes the query coordinator for operator tooling
func (r *Relay) Coordinator() *coordinator.Coordinator { return r.coord }

func (r *Relay) now() time.Time { return r.clock.Now() }

func (r *Relay) intn(n int) int {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.IntN(n)
}

// withRand runs fn with exclusive use of the relay's random source
func (r *Relay) withRand(fn func(*rand.Rand)) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	fn(r.rng)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

func displayTag(tag string) string {
	return "[" + tag + "]"
}

func lower(s string) string { return strings.ToLower(s) }
