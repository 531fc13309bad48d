package relay

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"croesus/internal/clock"
	"croesus/internal/config"
	"croesus/internal/model"
	"croesus/internal/orchestrator"
	"croesus/internal/processor"
	"croesus/internal/transport"
)

var (
	tournamentStart = time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC)
	midTournament   = time.Date(2024, time.November, 5, 12, 0, 0, 0, time.UTC)
)

type node struct {
	relay    *Relay
	endpoint *transport.Endpoint
	clock    *clock.FakeClock
}

func testConfig(id string, master bool) *config.Config {
	return &config.Config{
		Node: config.NodeConfig{ID: id, ServerTag: strings.ToUpper(id[:2]), Master: master},
		Chat: config.ChatConfig{
			Channels:     []string{"#tnnt"},
			SpamChannels: []string{"#tnnt-spam"},
			BridgeBots:   []string{"bridge"},
		},
		Tournament: config.TournamentConfig{
			Start:     tournamentStart,
			End:       time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC),
			GraceDays: 5,
		},
		Timing: config.TimingConfig{
			PollInterval:    3 * time.Second,
			QueryTimeout:    5 * time.Second,
			SummaryInterval: 5 * time.Minute,
			IdentityCheck:   30 * time.Second,
			ChunkSize:       200,
		},
	}
}

func newNode(t *testing.T, hub *transport.Hub, cfg *config.Config, now time.Time) *node {
	t.Helper()
	var ep *transport.Endpoint
	if cfg.Node.Master {
		ep = hub.Connect(cfg.Node.ID, "#tnnt", "#tnnt-spam")
	} else {
		ep = hub.Connect(cfg.Node.ID)
	}
	t.Cleanup(func() { ep.Close() })

	clk := clock.Fake(now)
	r, err := New(cfg, Deps{Transport: ep, Clock: clk, Rand: rand.New(rand.NewPCG(1, 2))})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &node{relay: r, endpoint: ep, clock: clk}
}

// drain feeds every message waiting in the nodes' inboxes to their relays
// until no node has received anything for a while
func drain(t *testing.T, nodes ...*node) {
	t.Helper()
	ctx := context.Background()
	for {
		progressed := false
		for _, n := range nodes {
			select {
			case m, ok := <-n.endpoint.Messages():
				if !ok {
					t.Fatalf("inbox of %s closed", n.relay.NodeID())
				}
				n.relay.HandleMessage(ctx, m)
				progressed = true
			case <-time.After(50 * time.Millisecond):
			}
		}
		if !progressed {
			return
		}
	}
}

func xlogLine(fields ...string) string {
	base := map[string]string{
		"name": "alice", "role": "Val", "race": "Hum", "gender": "Fem", "align": "Neu",
		"death": "killed by a jackal", "points": "1234", "turns": "500", "realtime": "600",
		"starttime": "1730800000", "endtime": "1730809800",
	}
	for i := 0; i+1 < len(fields); i += 2 {
		base[fields[i]] = fields[i+1]
	}
	parts := make([]string, 0, len(base))
	for k, v := range base {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "\t") + "\n"
}

func appendFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l); err != nil {
			t.Fatal(err)
		}
	}
}

func withXlogfile(t *testing.T, cfg *config.Config) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "xlogfile")
	appendFile(t, path)
	cfg.Sources = []config.SourceConfig{{
		Path:       path,
		Kind:       config.SourceXlogfile,
		Delimiter:  "\t",
		DumpFormat: "{name}.txt",
	}}
	cfg.Dumps = config.DumpsConfig{
		URLPrefix:  "https://dumps.example/",
		FilePrefix: dir + "/",
	}
	return dir
}

func TestAnnouncesAscensionButNotScum(t *testing.T) {
	hub := transport.NewHub()
	cfg := testConfig("Croesus", true)
	cfg.Node.ServerTag = "EU"
	dir := withXlogfile(t, cfg)
	appendFile(t, filepath.Join(dir, "alice.txt"), "dump")
	n := newNode(t, hub, cfg, midTournament)

	ctx := context.Background()
	n.relay.tailer.Seed(ctx)
	appendFile(t, cfg.Sources[0].Path,
		xlogLine("death", "quit", "points", "10", "turns", "150"),
		xlogLine("death", "escaped", "points", "20", "turns", "150"),
		xlogLine("death", "ascended", "points", "400000", "turns", "40000"),
	)
	n.relay.tailer.PollSource(ctx, n.relay.tailer.Sources()[0])

	got := hub.ChannelLog("#tnnt")
	want := []string{
		"[EU] A: alice (Val-Hum-Fem-Neu), 400000 points, 40000 turns, ascended",
		"https://dumps.example/alice.txt",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("#tnnt = %q, want %q", got, want)
	}
	if spam := hub.ChannelLog("#tnnt-spam"); len(spam) != 0 {
		t.Errorf("#tnnt-spam = %q", spam)
	}

	full := n.relay.Stats.Read(model.PERIOD_FULL, false)
	if full.Games != 3 || full.Scum != 2 || full.Ascend != 1 {
		t.Errorf("full bucket games=%d scum=%d ascend=%d", full.Games, full.Scum, full.Ascend)
	}
	if games := n.relay.History.Games("alice"); games != 3 {
		t.Errorf("games played by alice = %d, want 3", games)
	}
	if current, _ := n.relay.Streaks.Get("alice"); current.Length != 1 {
		t.Errorf("streak = %+v", current)
	}
}

func TestSeedReplaysSilently(t *testing.T) {
	hub := transport.NewHub()
	cfg := testConfig("Croesus", true)
	withXlogfile(t, cfg)
	appendFile(t, cfg.Sources[0].Path, xlogLine("death", "ascended"))
	n := newNode(t, hub, cfg, midTournament)

	n.relay.tailer.Seed(context.Background())

	if got := hub.ChannelLog("#tnnt"); len(got) != 0 {
		t.Fatalf("replay announced %q", got)
	}
	if _, ok := n.relay.History.LastGame("alice"); !ok {
		t.Error("replay did not fill history")
	}
}

func TestNothingAnnouncedBeforeTournament(t *testing.T) {
	hub := transport.NewHub()
	cfg := testConfig("Croesus", true)
	n := newNode(t, hub, cfg, tournamentStart.Add(-48*time.Hour))

	n.relay.announce(context.Background(), "hello", false)
	if got := hub.ChannelLog("#tnnt"); len(got) != 0 {
		t.Fatalf("announced %q before the start", got)
	}

	cfg.Node.Test = true
	testHub := transport.NewHub()
	n = newNode(t, testHub, cfg, tournamentStart.Add(-48*time.Hour))
	n.relay.announce(context.Background(), "hello", false)
	if got := testHub.ChannelLog("#tnnt"); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("test mode announced %q", got)
	}
}

func TestSlaveForwardsToMasters(t *testing.T) {
	hub := transport.NewHub()
	cfg := testConfig("Usnode", false)
	cfg.Node.Masters = []string{"Croesus"}
	n := newNode(t, hub, cfg, midTournament)

	ctx := context.Background()
	n.relay.emit(ctx, processor.Line{Text: "[US] bob (Wiz Elf Mal Cha) wished for \"blessed +2 gray dragon scale mail\", on T:9000", Spam: true})
	n.relay.emit(ctx, processor.Line{Text: "[US] D: bob (Wiz-Elf-Mal-Cha), 10 points, 900 turns, killed by a newt"})

	want := []string{
		"SPAM: [US] bob (Wiz Elf Mal Cha) wished for \"blessed +2 gray dragon scale mail\", on T:9000",
		"[US] D: bob (Wiz-Elf-Mal-Cha), 10 points, 900 turns, killed by a newt",
	}
	if got := hub.DirectLog("Croesus"); strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("forwarded = %q, want %q", got, want)
	}
}

func TestMasterAnnouncesForwardedLines(t *testing.T) {
	hub := transport.NewHub()
	cfg := testConfig("Croesus", true)
	cfg.Node.Peers = []string{"Usnode"}
	n := newNode(t, hub, cfg, midTournament)

	ctx := context.Background()
	n.relay.HandleMessage(ctx, transport.Message{Sender: "Usnode", Destination: "Croesus", Text: "SPAM: [US] bob shouted \"hi\""})
	n.relay.HandleMessage(ctx, transport.Message{Sender: "Usnode", Destination: "Croesus", Text: "[US] D: bob died"})
	// not a peer
	n.relay.HandleMessage(ctx, transport.Message{Sender: "mallory", Destination: "Croesus", Text: "[XX] fake"})

	if got := hub.ChannelLog("#tnnt-spam"); len(got) != 1 || got[0] != "[US] bob shouted \"hi\"" {
		t.Errorf("#tnnt-spam = %q", got)
	}
	if got := hub.ChannelLog("#tnnt"); len(got) != 1 || got[0] != "[US] D: bob died" {
		t.Errorf("#tnnt = %q", got)
	}
}

func TestPing(t *testing.T) {
	hub := transport.NewHub()
	n := newNode(t, hub, testConfig("Croesus", true), midTournament)

	hub.Say("bob", "#tnnt", "!PING hello there")
	hub.Say("bridge", "#tnnt", "<@dave> !ping")
	hub.Say("bob", "#elsewhere", "!ping")
	drain(t, n)

	got := hub.ChannelLog("#tnnt")
	want := []string{"!PING hello there", "<@dave> !ping", "bob: Pong! hello there", "@dave: Pong!"}
	if !sameItems(got, want) {
		t.Fatalf("#tnnt = %q, want %q", got, want)
	}
}

func TestSlaveIgnoresUsers(t *testing.T) {
	hub := transport.NewHub()
	cfg := testConfig("Usnode", false)
	cfg.Node.Masters = []string{"Croesus"}
	n := newNode(t, hub, cfg, midTournament)

	hub.Tell("bob", "Usnode", "!ping")
	drain(t, n)

	if got := hub.DirectLog("bob"); len(got) != 0 {
		t.Fatalf("slave answered a user: %q", got)
	}
}

func TestUsage(t *testing.T) {
	hub := transport.NewHub()
	n := newNode(t, hub, testConfig("Croesus", true), midTournament)

	hub.Tell("bob", "Croesus", "!whereis")
	hub.Tell("bob", "Croesus", "!asc a b")
	hub.Tell("bob", "Croesus", "!tell carol")
	drain(t, n)

	want := []string{
		"!whereis <player> - finds a player in the dungeon.",
		"!asc [player] - shows a player's ascensions.",
		"!tell <recipient> <message> (leave a message for someone)",
	}
	if got := hub.DirectLog("bob"); strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("replies = %q, want %q", got, want)
	}
}

func TestTellDeliveredWhenRecipientSpeaks(t *testing.T) {
	hub := transport.NewHub()
	n := newNode(t, hub, testConfig("Croesus", true), midTournament)

	hub.Say("bob", "#tnnt", "!tell carol: see you at the Castle")
	drain(t, n)
	if got := hub.ChannelLog("#tnnt"); len(got) != 2 || !strings.Contains(got[1], "bob") {
		t.Fatalf("#tnnt = %q, want an acknowledgement", got)
	}

	hub.Say("carol", "#tnnt", "hi all")
	hub.Say("carol", "#tnnt", "anyone?")
	drain(t, n)

	got := hub.ChannelLog("#tnnt")
	want := "carol: Message from bob at 2024-11-05 12:00 UTC: see you at the Castle"
	if len(got) != 5 || got[4] != want {
		t.Fatalf("#tnnt = %q, want delivery %q once", got, want)
	}
}

func TestPrivateTell(t *testing.T) {
	hub := transport.NewHub()
	n := newNode(t, hub, testConfig("Croesus", true), midTournament)

	hub.Tell("bob", "Croesus", "!tell carol psst")
	drain(t, n)
	if got := hub.DirectLog("bob"); len(got) != 1 || !strings.Contains(got[0], "bob") {
		t.Fatalf("ack = %q", got)
	}

	hub.Say("carol", "#tnnt", "hi all")
	drain(t, n)

	want := "Message from bob at 2024-11-05 12:00 UTC: [private] psst"
	if got := hub.DirectLog("carol"); len(got) != 1 || got[0] != want {
		t.Fatalf("carol got %q, want %q", got, want)
	}
	if got := hub.ChannelLog("#tnnt"); len(got) != 1 {
		t.Errorf("private note leaked to the channel: %q", got)
	}
}

func TestAscQueryLoopsBackThroughMaster(t *testing.T) {
	hub := transport.NewHub()
	n := newNode(t, hub, testConfig("Croesus", true), midTournament)
	n.relay.History.Record(model.Game{
		Name: "alice", Role: "Val", Race: "Hum", Gender: "Fem", Align: "Neu", Death: "ascended",
	}, "https://dumps.example/alice.txt")

	hub.Say("bob", "#tnnt", "!asc alice")
	hub.Say("bob", "#tnnt", "!lastasc alice")
	hub.Say("bob", "#tnnt", "!asc")
	drain(t, n)

	got := hub.ChannelLog("#tnnt")[3:]
	want := []string{
		"bob: [CR] alice has ascended 1 times in 1 games (100.00%): 1xVal, 1xHum, 1xNeu, 1xFem.",
		"bob: [CR] https://dumps.example/alice.txt",
		"bob: [CR] No ascensions for bob.",
	}
	if !sameItems(got, want) {
		t.Fatalf("replies = %q, want %q", got, want)
	}
	if n.relay.Coordinator().Pending() != 0 {
		t.Error("queries still pending")
	}
}

func TestStatsSummedAcrossNodes(t *testing.T) {
	hub := transport.NewHub()
	masterCfg := testConfig("Croesus", true)
	masterCfg.Node.Peers = []string{"Usnode"}
	slaveCfg := testConfig("Usnode", false)
	slaveCfg.Node.Masters = []string{"Croesus"}
	master := newNode(t, hub, masterCfg, midTournament)
	slave := newNode(t, hub, slaveCfg, midTournament)

	game := model.Game{Name: "alice", Role: "Val", Race: "Hum", Gender: "Fem", Align: "Neu",
		Death: "killed by a jackal", Points: 100, Turns: 1000, RealTime: 60, EndTime: midTournament.Unix()}
	master.relay.Stats.Record(game, midTournament)
	slave.relay.Stats.Record(game, midTournament)
	game.Death = "ascended"
	slave.relay.Stats.Record(game, midTournament)

	hub.Say("bob", "#tnnt", "!stats")
	drain(t, master, slave)

	got := hub.ChannelLog("#tnnt")
	if len(got) != 2 || !strings.HasPrefix(got[1], "Current Day as of 2024-11-05 12:00 UTC: Games: 3, Asc: 1, Scum: 0.") {
		t.Fatalf("#tnnt = %q", got)
	}
	if master.relay.Coordinator().Pending() != 0 {
		t.Error("query still pending")
	}
}

func TestDailyReportGoesToSpamChannels(t *testing.T) {
	hub := transport.NewHub()
	n := newNode(t, hub, testConfig("Croesus", true), midTournament)
	n.relay.Stats.Record(model.Game{Name: "alice", Death: "ascended", Turns: 1000, EndTime: midTournament.Unix()}, midTournament)

	if err := n.relay.Report(context.Background(), "dstats"); err != nil {
		t.Fatalf("Report: %v", err)
	}
	drain(t, n)

	got := hub.ChannelLog("#tnnt-spam")
	if len(got) != 1 || !strings.HasPrefix(got[0], "DAILY STATS AT 2024-11-05 12:00 UTC: Games: 1, Asc: 1") {
		t.Fatalf("#tnnt-spam = %q", got)
	}
	if day := n.relay.Stats.Read(model.PERIOD_DAY, false); day.Games != 0 {
		t.Errorf("daily bucket not reset: %d games", day.Games)
	}
}

func TestCountdownBeforeStart(t *testing.T) {
	hub := transport.NewHub()
	n := newNode(t, hub, testConfig("Croesus", true), tournamentStart.Add(-time.Hour+500*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.relay.scheduler = orchestrator.NewScheduler(ctx, n.clock)

	if err := n.relay.runHourly(ctx); err != nil {
		t.Fatalf("runHourly: %v", err)
	}
	n.clock.Advance(time.Hour)
	n.relay.scheduler.Stop()

	want := []string{"The tournament starts in 3...", "2...", "1..."}
	if got := hub.ChannelLog("#tnnt-spam"); !sameItems(got, want) {
		t.Fatalf("#tnnt-spam = %q, want %q", got, want)
	}
	if got := hub.ChannelLog("#tnnt"); len(got) != 0 {
		t.Errorf("#tnnt = %q", got)
	}
}

func TestHourlyOpensTournament(t *testing.T) {
	hub := transport.NewHub()
	n := newNode(t, hub, testConfig("Croesus", true), tournamentStart.Add(500*time.Millisecond))

	if err := n.relay.runHourly(context.Background()); err != nil {
		t.Fatalf("runHourly: %v", err)
	}
	drain(t, n)

	if got := hub.ChannelLog("#tnnt"); len(got) != 1 || got[0] != "###### TNNT 2024 IS OPEN! ######" {
		t.Fatalf("#tnnt = %q", got)
	}
	if got := hub.ChannelLog("#tnnt-spam"); len(got) != 1 || !strings.HasPrefix(got[0], "DAILY STATS") {
		t.Fatalf("#tnnt-spam = %q", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	hub := transport.NewHub()
	cfg := testConfig("Croesus", true)
	withXlogfile(t, cfg)
	n := newNode(t, hub, cfg, midTournament)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.relay.Run(ctx) }()

	hub.Say("bob", "#tnnt", "!ping")
	deadline := time.After(2 * time.Second)
	for len(hub.ChannelLog("#tnnt")) < 2 {
		select {
		case <-deadline:
			t.Fatalf("no reply while running: %q", hub.ChannelLog("#tnnt"))
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRequiresTransport(t *testing.T) {
	if _, err := New(testConfig("Croesus", true), Deps{}); err == nil {
		t.Fatal("New without a transport succeeded")
	}
}

func sameItems(a, b []string) bool {
	a = append([]string(nil), a...)
	b = append([]string(nil), b...)
	sort.Strings(a)
	sort.Strings(b)
	return strings.Join(a, "\n") == strings.Join(b, "\n")
}
