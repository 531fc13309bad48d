package processor

import (
	"context"
	"fmt"
	"time"

	"croesus/internal/clock"
	"croesus/internal/config"
	"croesus/internal/history"
	"croesus/internal/model"
	"croesus/internal/stats"
	"croesus/internal/streak"
)

// GameSink receives every finished game after the tables are updated
type GameSink interface {
	Add(doc model.GameDocument)
}

// XlogfileProcessor handles finished-game records
type XlogfileProcessor struct {
	Stats      *stats.Aggregator
	Streaks    *streak.Tracker
	ShortGames *streak.ShortGames
	History    *history.History
	Dumps      *DumpLocator
	Clock      clock.Clock
	Server     string
	// Sink is optional
	Sink GameSink
}

func (p *XlogfileProcessor) Kind() string { return config.SourceXlogfile }

func (p *XlogfileProcessor) Name() string { return "xlogfile" }

func (p *XlogfileProcessor) Process(_ context.Context, in Input) ([]string, StatusError) {
	rec := in.Record
	if !rec.Has("name") || !rec.Has("death") {
		return nil, NewSkippedError("record is not a finished game")
	}

	g := rec.Game()
	now := p.Clock.Now()
	dumpURL := p.Dumps.URL(rec, in.DumpFormat)

	p.History.Record(g, dumpURL)
	p.Stats.Record(g, now)
	scum := g.Scummed()
	if !scum {
		p.Streaks.Observe(g)
	}
	if p.Sink != nil {
		p.Sink.Add(model.GameDocument{
			Server:     p.Server,
			Game:       g,
			Scum:       scum,
			DumpURL:    dumpURL,
			ArchivedAt: now.UTC().Truncate(time.Second),
		})
	}

	batch := p.ShortGames.Track(g)
	if batch.Suppressed {
		if batch.Summary != "" && !in.Replay {
			return []string{batch.Summary}, nil
		}
		return nil, NewSkippedError("short game")
	}
	if in.Replay {
		return nil, NewSkippedError("replay")
	}
	if scum {
		return nil, NewSkippedError("scummed game")
	}

	return []string{FormatGame(g, batch.Suffix, dumpURL)}, nil
}

// FormatGame renders the announcement for a finished game. Ascensions
// carry the dump link on a second line.
func FormatGame(g model.Game, shortSuffix, dumpURL string) string {
	death := g.Death
	if g.While != "" {
		death += ", while " + g.While
	}

	line := fmt.Sprintf("%s: %s (%s-%s-%s-%s), %d points, %d turns, %s%s",
		endTag(g.Death), g.Name, g.Role, g.Race, g.Gender, g.Align,
		g.Points, g.Turns, death, shortSuffix)
	if g.Ascended() && dumpURL != "" {
		line += "\n" + dumpURL
	}
	return line
}

func endTag(death string) string {
	switch death {
	case "ascended":
		return "A"
	case "quit":
		return "Q"
	case "escaped":
		return "E"
	default:
		return "D"
	}
}
