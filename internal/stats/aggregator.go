// Package stats aggregates finished games into hourly, daily and
// tournament-long buckets.
package stats

import (
	"sync"
	"time"

	"croesus/internal/model"
)

// Report kinds, named after the query commands that produce them
const (
	REPORT_USER       = "stats"
	REPORT_HOURLY     = "hstats"
	REPORT_CUMULATIVE = "cstats"
	REPORT_DAILY      = "dstats"
	REPORT_FINAL      = "fstats"
)

// Presentation types carried in stats replies
const (
	TYPE_HOUR = "hour"
	TYPE_DAY  = "day"
	TYPE_NEWS = "news"
	TYPE_FULL = "full"
)

type reportSpec struct {
	period string
	kind   string
	resets []string
}

var reports = map[string]reportSpec{
	REPORT_USER:       {period: model.PERIOD_DAY, kind: TYPE_NEWS},
	REPORT_HOURLY:     {period: model.PERIOD_HOUR, kind: TYPE_HOUR, resets: []string{model.PERIOD_HOUR}},
	REPORT_CUMULATIVE: {period: model.PERIOD_DAY, kind: TYPE_NEWS, resets: []string{model.PERIOD_HOUR}},
	REPORT_DAILY:      {period: model.PERIOD_DAY, kind: TYPE_DAY, resets: []string{model.PERIOD_HOUR, model.PERIOD_DAY}},
	REPORT_FINAL:      {period: model.PERIOD_FULL, kind: TYPE_FULL, resets: []string{model.PERIOD_HOUR, model.PERIOD_DAY}},
}

// IsReport reports whether name is a stats query command
func IsReport(name string) bool {
	_, ok := reports[name]
	return ok
}

// ReportPeriod returns the bucket a report reads and the presentation type
// it is rendered as
func ReportPeriod(report string) (period, kind string, ok bool) {
	spec, ok := reports[report]
	return spec.period, spec.kind, ok
}

type Aggregator struct {
	mu      sync.Mutex
	buckets map[string]*model.StatBucket
}

func NewAggregator() *Aggregator {
	a := &Aggregator{buckets: make(map[string]*model.StatBucket, 3)}
	for _, p := range []string{model.PERIOD_HOUR, model.PERIOD_DAY, model.PERIOD_FULL} {
		b := model.NewStatBucket()
		a.buckets[p] = &b
	}
	return a
}

// Record counts g in the full bucket, and in the hour and day buckets when
// it ended in the same calendar hour or day (UTC) as now.
func (a *Aggregator) Record(g model.Game, now time.Time) {
	ended := g.Ended()
	now = now.UTC()

	a.mu.Lock()
	defer a.mu.Unlock()

	add(a.buckets[model.PERIOD_FULL], g)
	if sameDay(ended, now) {
		add(a.buckets[model.PERIOD_DAY], g)
		if ended.Hour() == now.Hour() {
			add(a.buckets[model.PERIOD_HOUR], g)
		}
	}
}

func add(b *model.StatBucket, g model.Game) {
	b.Games++
	if g.Scummed() {
		b.Scum++
		return
	}
	b.Turns += g.Turns
	b.Points += g.Points
	b.RealTime += g.RealTime
	b.Role[g.Role]++
	b.Race[g.Race]++
	b.Gender[g.Gender]++
	b.Align[g.Align]++
	if g.Ascended() {
		b.Ascend++
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Read returns a copy of the bucket for period, zeroing it when reset is set.
// The copy and the reset happen under one lock, so no game is lost between
// them.
func (a *Aggregator) Read(period string, reset bool) model.StatBucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[period]
	if !ok {
		return model.NewStatBucket()
	}
	out := b.Clone()
	if reset {
		fresh := model.NewStatBucket()
		a.buckets[period] = &fresh
	}
	return out
}

// ReadReport returns the bucket a report reads and applies the report's
// resets atomically with the read
func (a *Aggregator) ReadReport(report string) (model.StatBucket, string, bool) {
	spec, ok := reports[report]
	if !ok {
		return model.StatBucket{}, "", false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.buckets[spec.period].Clone()
	for _, p := range spec.resets {
		fresh := model.NewStatBucket()
		a.buckets[p] = &fresh
	}
	return out, spec.kind, true
}

func (a *Aggregator) Summary() model.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buckets[model.PERIOD_FULL].Summary()
}
