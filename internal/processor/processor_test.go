package processor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"croesus/internal/clock"
	"croesus/internal/config"
	"croesus/internal/history"
	"croesus/internal/model"
	"croesus/internal/stats"
	"croesus/internal/streak"
	"croesus/internal/tailer"
	"croesus/internal/xlog"
)

const dumpFormat = "tnnt/dumplog/{starttime}.tnnt.txt"

type recordingSink struct {
	mu   sync.Mutex
	docs []model.GameDocument
}

func (s *recordingSink) Add(doc model.GameDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
}

func newXlogfileProcessor(t *testing.T) (*XlogfileProcessor, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	return &XlogfileProcessor{
		Stats:      stats.NewAggregator(),
		Streaks:    streak.NewTracker(),
		ShortGames: streak.NewShortGames(),
		History:    history.New(),
		Dumps: &DumpLocator{
			URLPrefix:  "https://tnnt.example/userdata/{name[0]}/{name}/",
			FilePrefix: "/srv/dgldir/userdata/{name[0]}/{name}/",
			Test:       true,
		},
		Clock:  clock.Fake(time.Date(2024, time.November, 5, 12, 30, 0, 0, time.UTC)),
		Server: "EU",
		Sink:   sink,
	}, sink
}

func gameLine(fields ...string) string {
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
	return strings.Join(parts, "\t")
}

func process(t *testing.T, p RecordProcessor, line string, replay bool) ([]string, StatusError) {
	t.Helper()
	rec, err := xlog.Parse(line, "\t")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p.Process(context.Background(), Input{Record: rec, DumpFormat: dumpFormat, Replay: replay})
}

func TestXlogfileReportsDeath(t *testing.T) {
	p, sink := newXlogfileProcessor(t)

	lines, status := process(t, p, gameLine("while", "helpless"), false)
	if status != nil {
		t.Fatalf("status = %v", status)
	}
	want := "D: alice (Val-Hum-Fem-Neu), 1234 points, 500 turns, killed by a jackal, while helpless"
	if len(lines) != 1 || lines[0] != want {
		t.Fatalf("lines = %q, want %q", lines, want)
	}

	if len(sink.docs) != 1 || sink.docs[0].Server != "EU" || sink.docs[0].Scum {
		t.Fatalf("archived = %+v", sink.docs)
	}
	if got := p.History.Games("alice"); got != 1 {
		t.Errorf("games = %d, want 1", got)
	}
}

func TestXlogfilePlaceholderNameVerbatim(t *testing.T) {
	p, _ := newXlogfileProcessor(t)

	lines, _ := process(t, p, gameLine("name", "{0}}", "death", "killed by {1} {name}"), false)
	want := "D: {0}} (Val-Hum-Fem-Neu), 1234 points, 500 turns, killed by {1} {name}"
	if len(lines) != 1 || lines[0] != want {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
}

func TestXlogfileAscensionCarriesDump(t *testing.T) {
	p, _ := newXlogfileProcessor(t)

	lines, _ := process(t, p, gameLine("death", "ascended", "points", "400000", "turns", "40000"), false)
	want := "A: alice (Val-Hum-Fem-Neu), 400000 points, 40000 turns, ascended\n" +
		"https://tnnt.example/userdata/a/alice/tnnt/dumplog/1730800000.tnnt.txt"
	if len(lines) != 1 || lines[0] != want {
		t.Fatalf("lines = %q, want %q", lines, want)
	}

	current, longest := p.Streaks.Get("alice")
	if current.Length != 1 || longest.Length != 1 {
		t.Errorf("streak = %+v / %+v", current, longest)
	}
	if url, ok := p.History.LastAscension("alice"); !ok || !strings.HasSuffix(url, ".tnnt.txt") {
		t.Errorf("last ascension = %q, %v", url, ok)
	}
}

func TestXlogfileScumIsCountedNotReported(t *testing.T) {
	p, sink := newXlogfileProcessor(t)

	process(t, p, gameLine("death", "ascended"), false)
	lines, status := process(t, p, gameLine("death", "quit", "points", "10"), false)
	if len(lines) != 0 {
		t.Fatalf("scum game reported: %q", lines)
	}
	if status == nil || status.Status() != StatusSkipped {
		t.Fatalf("status = %v, want skipped", status)
	}

	full := p.Stats.Read(model.PERIOD_FULL, false)
	if full.Games != 2 || full.Scum != 1 {
		t.Errorf("full bucket games=%d scum=%d", full.Games, full.Scum)
	}
	if current, _ := p.Streaks.Get("alice"); current.Length != 1 {
		t.Errorf("scum game broke the streak: %+v", current)
	}
	if len(sink.docs) != 2 || !sink.docs[1].Scum {
		t.Errorf("archived = %+v", sink.docs)
	}
}

func TestXlogfileShortGamesBatched(t *testing.T) {
	p, _ := newXlogfileProcessor(t)

	for i := 0; i < 2; i++ {
		if lines, _ := process(t, p, gameLine("turns", "12"), false); len(lines) != 0 {
			t.Fatalf("short game reported: %q", lines)
		}
	}
	lines, _ := process(t, p, gameLine(), false)
	if len(lines) != 1 || !strings.HasSuffix(lines[0], "killed by a jackal (and 2 other games not reported)") {
		t.Fatalf("lines = %q", lines)
	}
}

func TestXlogfileReplayIsSilent(t *testing.T) {
	p, _ := newXlogfileProcessor(t)

	lines, status := process(t, p, gameLine("death", "ascended"), true)
	if len(lines) != 0 {
		t.Fatalf("replay reported: %q", lines)
	}
	if status == nil || status.Message() != "replay" {
		t.Fatalf("status = %v", status)
	}
	if _, ok := p.History.LastGame("alice"); !ok {
		t.Error("replay did not update history")
	}
}

func TestXlogfileSkipsIncompleteRecords(t *testing.T) {
	p, _ := newXlogfileProcessor(t)

	_, status := process(t, p, "role=Val\tturns=3", false)
	if status == nil || status.Status() != StatusSkipped {
		t.Fatalf("status = %v, want skipped", status)
	}
}

func TestDumpLocator(t *testing.T) {
	rec, err := xlog.Parse("name=bob\tstarttime=17", "\t")
	if err != nil {
		t.Fatal(err)
	}

	var checked string
	d := &DumpLocator{
		URLPrefix:  "https://tnnt.example/{name}/",
		FilePrefix: "/srv/{name}/",
		exists: func(path string) bool {
			checked = path
			return false
		},
	}
	if got := d.URL(rec, "dumps/{starttime} x.txt"); got != "(sorry, no dump exists for bob)" {
		t.Errorf("URL = %q", got)
	}
	if checked != "/srv/bob/dumps/17 x.txt" {
		t.Errorf("checked %q", checked)
	}

	d.exists = func(string) bool { return true }
	if got := d.URL(rec, "dumps/{starttime} x.txt"); got != "https://tnnt.example/bob/dumps/17%20x.txt" {
		t.Errorf("URL = %q", got)
	}

	if got := d.URL(rec, "dumps/{nosuchfield}"); got != "(sorry, no dump exists for bob)" {
		t.Errorf("URL with unknown field = %q", got)
	}
}

func TestFormatEvent(t *testing.T) {
	who := "role=Wiz\trace=Elf\tgender=Mal\talign=Cha\tturns=4321\t"
	tests := []struct {
		name string
		line string
		want string
	}{
		{"message", who + "player=bob\tmessage=entered the Gnomish Mines", "bob (Wiz Elf Mal Cha) entered the Gnomish Mines, on T:4321"},
		{"historic", who + "player=bob\thistoric_event=killed Medusa.", "bob (Wiz Elf Mal Cha) killed Medusa, on T:4321"},
		{"wish", who + "player=bob\twish=blessed +2 gray dragon scale mail", "bob (Wiz Elf Mal Cha) wished for \"blessed +2 gray dragon scale mail\", on T:4321"},
		{"shout", who + "player=bob\tshout=hello", "bob (Wiz Elf Mal Cha) shouted \"hello\", on T:4321"},
		{"bones", who + "player=bob\tbones_killed=carol\tbones_monst=ghost\tbones_role=Priestess", "bob (Wiz Elf Mal Cha) killed the ghost of carol, the former Priestess, on T:4321"},
		{"unique", who + "player=bob\tkilled_uniq=the Oracle", "bob (Wiz Elf Mal Cha) killed the Oracle, on T:4321"},
		{"defeated", who + "player=bob\tdefeated=Vlad", "bob (Wiz Elf Mal Cha) defeated Vlad, on T:4321"},
		{"genocide", who + "player=bob\tgenocided_monster=L\tdungeon_wide=no", "bob (Wiz Elf Mal Cha) genocided L locally on T:4321"},
		{"genocide default", who + "player=bob\tgenocided_monster=;", "bob (Wiz Elf Mal Cha) genocided ; dungeon wide on T:4321"},
		{"shoplift", who + "player=bob\tshoplifted=300\tshop=general store\tshopkeeper=Asidonhopo", "bob (Wiz Elf Mal Cha) stole 300 zorkmids of merchandise from the general store of Asidonhopo on T:4321"},
		{"shopkeeper", who + "player=bob\tkilled_shopkeeper=Asidonhopo", "bob (Wiz Elf Mal Cha) killed Asidonhopo on T:4321"},
		{"charname", who + "player=bob\tcharname=Merlin\tmessage=hi", "Merlin (bob) (Wiz Elf Mal Cha) hi, on T:4321"},
		{"charname only", who + "charname=Merlin\tmessage=hi", "Merlin (Wiz Elf Mal Cha) hi, on T:4321"},
		{"braces verbatim", who + "player=bob\tmessage={name} says hi", "bob (Wiz Elf Mal Cha) {name} says hi, on T:4321"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := xlog.Parse(tt.line, "\t")
			if err != nil {
				t.Fatal(err)
			}
			got, ok := FormatEvent(rec)
			if !ok || got != tt.want {
				t.Errorf("FormatEvent = %q, %v\nwant %q", got, ok, tt.want)
			}
		})
	}

	rec, _ := xlog.Parse(who+"player=bob\tachieve=0x1", "\t")
	if _, ok := FormatEvent(rec); ok {
		t.Error("unknown event type was reported")
	}
}

func TestPipelineTagsAndCounts(t *testing.T) {
	p, _ := newXlogfileProcessor(t)
	pipeline := NewPipeline(NewRegistry(p, LivelogProcessor{}), "EU")

	src := &tailer.Source{Kind: config.SourceXlogfile, Delimiter: "\t", DumpFormat: dumpFormat, Spam: true}
	res := pipeline.Process(context.Background(), src, []string{
		gameLine(),
		"",
		gameLine("death", "escaped", "points", "3"),
	}, false)

	if len(res.Lines) != 1 {
		t.Fatalf("lines = %+v", res.Lines)
	}
	if !strings.HasPrefix(res.Lines[0].Text, "[EU] D: alice") || !res.Lines[0].Spam {
		t.Errorf("line = %+v", res.Lines[0])
	}
	if res.Counts.Success != 1 || res.Counts.Skipped != 2 || res.Counts.Total() != 3 {
		t.Errorf("counts = %+v", res.Counts)
	}

	unknown := &tailer.Source{Kind: "scoreboard", Delimiter: "\t"}
	res = pipeline.Process(context.Background(), unknown, []string{"a=b"}, false)
	if len(res.Lines) != 0 || res.Counts.Failure != 1 {
		t.Errorf("unknown kind result = %+v", res)
	}
}

func TestRegistryListsKinds(t *testing.T) {
	p, _ := newXlogfileProcessor(t)
	r := NewRegistry(LivelogProcessor{}, p)

	kinds := r.AvailableProcessors()
	if len(kinds) != 2 || kinds[0] != config.SourceLivelog || kinds[1] != config.SourceXlogfile {
		t.Errorf("kinds = %v", kinds)
	}
	if _, ok := r.Get("scoreboard"); ok {
		t.Error("Get found an unregistered kind")
	}
}
