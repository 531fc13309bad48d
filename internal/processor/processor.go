// Package processor turns parsed log records into report lines and feeds
// finished games to the stat, streak and history tables.
package processor

import (
	"context"
	"errors"
	"fmt"

	"croesus/internal/tailer"
	"croesus/internal/xlog"

	"github.com/rs/zerolog/log"
)

// Input is one parsed record and where it came from
type Input struct {
	Record     xlog.Record
	DumpFormat string
	// Replay is set while reading an xlogfile at startup. Tables are
	// updated but nothing is reported.
	Replay bool
}

type RecordProcessor interface {
	// Process returns the lines to report for one record
	Process(ctx context.Context, in Input) ([]string, StatusError)

	// Kind is the source kind this processor reads
	Kind() string

	Name() string
}

// Line is a report line ready for routing
type Line struct {
	Text string
	Spam bool
}

// Result is the outcome of one poll of one source
type Result struct {
	Lines  []Line
	Counts Counts
}

// Pipeline parses raw lines and dispatches them to the processor
// registered for the source kind
type Pipeline struct {
	registry  ProcessorRegistry
	serverTag string
}

func NewPipeline(registry ProcessorRegistry, serverTag string) *Pipeline {
	return &Pipeline{registry: registry, serverTag: serverTag}
}

func (p *Pipeline) Process(ctx context.Context, src *tailer.Source, lines []string, replay bool) Result {
	var res Result

	proc, ok := p.registry.Get(src.Kind)
	if !ok {
		log.Error().Str("kind", src.Kind).Str("path", src.Path).Msg("No processor for source kind")
		for range lines {
			res.Counts.Add(NewFailureError(fmt.Errorf("no processor for %s", src.Kind)))
		}
		return res
	}

	for _, raw := range lines {
		rec, err := xlog.Parse(raw, src.Delimiter)
		if err != nil {
			if !errors.Is(err, xlog.ErrEmptyLine) {
				log.Warn().Err(err).Str("path", src.Path).Msg("Skipping malformed record")
			}
			res.Counts.Add(NewSkippedError(err.Error()))
			continue
		}

		out, status := proc.Process(ctx, Input{Record: rec, DumpFormat: src.DumpFormat, Replay: replay})
		res.Counts.Add(status)
		if status != nil && status.Status() == StatusFailure {
			log.Error().Str("path", src.Path).Str("error", status.Message()).Msg("Failed to process record")
		}

		for _, text := range out {
			res.Lines = append(res.Lines, Line{Text: p.tag(text), Spam: src.Spam})
		}
	}

	log.Debug().
		Str("path", src.Path).
		Bool("replay", replay).
		Int("records", res.Counts.Total()).
		Int("reported", len(res.Lines)).
		Msg("Processed records")

	return res
}

func (p *Pipeline) tag(text string) string {
	if p.serverTag == "" {
		return text
	}
	return "[" + p.serverTag + "] " + text
}
