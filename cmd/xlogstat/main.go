// Command xlogstat replays an xlogfile offline and prints the tournament
// totals and streak table it produces.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"croesus/internal/clock"
	"croesus/internal/config"
	"croesus/internal/history"
	"croesus/internal/model"
	"croesus/internal/processor"
	"croesus/internal/stats"
	"croesus/internal/streak"
	"croesus/internal/tailer"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

type report struct {
	File    string           `json:"file"`
	Counts  processor.Counts `json:"counts"`
	Full    model.StatBucket `json:"full"`
	Streaks []streak.Entry   `json:"streaks"`
}

func main() {
	delimiter := pflag.StringP("delimiter", "d", "\t", "field delimiter")
	top := pflag.IntP("top", "n", 10, "number of streaks to list")
	showLines := pflag.BoolP("lines", "l", false, "print the announcement each game would get")
	tag := pflag.String("tag", "", "server tag for printed lines")
	verbose := pflag.BoolP("verbose", "v", false, "log skipped records")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: xlogstat [flags] <xlogfile>\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	src := tailer.NewSource(config.SourceConfig{
		Path:      pflag.Arg(0),
		Kind:      config.SourceXlogfile,
		Delimiter: *delimiter,
	})
	lines, err := src.Poll()
	if err != nil {
		log.Fatal().Err(err).Str("path", src.Path).Msg("Failed to read xlogfile")
	}

	xp := &processor.XlogfileProcessor{
		Stats:      stats.NewAggregator(),
		Streaks:    streak.NewTracker(),
		ShortGames: streak.NewShortGames(),
		History:    history.New(),
		Dumps:      &processor.DumpLocator{Test: true},
		Clock:      clock.Real(),
		Server:     *tag,
	}
	pipeline := processor.NewPipeline(processor.NewRegistry(xp), *tag)
	res := pipeline.Process(context.Background(), src, lines, !*showLines)

	for _, line := range res.Lines {
		fmt.Println(line.Text)
	}

	out := report{
		File:    src.Path,
		Counts:  res.Counts,
		Full:    xp.Stats.Read(model.PERIOD_FULL, false),
		Streaks: xp.Streaks.Top(*top),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("Failed to write report")
	}
}
