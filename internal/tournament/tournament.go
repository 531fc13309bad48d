// Package tournament knows the tournament calendar: whether games count,
// how long is left, and what the hourly scheduler should do at each hour.
package tournament

import (
	"fmt"
	"strconv"
	"time"
)

const (
	EVENT_START = "start"
	EVENT_END   = "end"

	// COUNTDOWN_FROM is where the spoken countdown before a boundary begins
	COUNTDOWN_FROM = 3
)

// Window is the tournament period. All calendar arithmetic is in UTC.
type Window struct {
	Start     time.Time
	End       time.Time
	GraceDays int
}

func New(start, end time.Time, graceDays int) Window {
	return Window{Start: start.UTC(), End: end.UTC(), GraceDays: graceDays}
}

func (w Window) Year() string {
	return strconv.Itoa(w.Start.Year())
}

// GameOn reports whether now is strictly inside the tournament
func (w Window) GameOn(now time.Time) bool {
	return now.After(w.Start) && now.Before(w.End)
}

// Announcing reports whether game lines should go to the channels: from the
// start until GraceDays after the end
func (w Window) Announcing(now time.Time) bool {
	return !now.Before(w.Start) && !now.After(w.End.AddDate(0, 0, w.GraceDays))
}

// Countdown is the time left to the next boundary
type Countdown struct {
	Event     string
	Remaining time.Duration
	Days      int
	Hours     int
	Minutes   int
	Seconds   int
}

// Countdown returns the time to the start, or to the end once the start has
// passed. After the end Remaining is not positive.
func (w Window) Countdown(now time.Time) Countdown {
	var cd Countdown
	for _, ev := range []struct {
		name string
		at   time.Time
	}{{EVENT_START, w.Start}, {EVENT_END, w.End}} {
		// half a second for rounding, then truncate
		td := ev.at.Sub(now) + 500*time.Millisecond
		cd = split(ev.name, td)
		if td > 0 {
			return cd
		}
	}
	return cd
}

func split(event string, td time.Duration) Countdown {
	total := int64(td / time.Second)
	days := total / 86400
	if total < 0 && total%86400 != 0 {
		days--
	}
	rem := total - days*86400
	return Countdown{
		Event:     event,
		Remaining: td,
		Days:      int(days),
		Hours:     int(rem / 3600),
		Minutes:   int(rem / 60 % 60),
		Seconds:   int(rem % 60),
	}
}

func (c Countdown) Over() bool {
	return c.Remaining <= 0
}

// ReportSuffix is appended to stat reports: "3d 04:05 to go!"
func (c Countdown) ReportSuffix() string {
	prep := "remaining."
	if c.Event == EVENT_START {
		prep = "to go!"
	}
	return fmt.Sprintf("%dd %02d:%02d %s", c.Days, c.Hours, c.Minutes, prep)
}

// TimeMessage answers !time
func (w Window) TimeMessage(now time.Time) string {
	msg := now.UTC().Format("2006-01-02 15:04:05 MST. ")
	cd := w.Countdown(now)
	if cd.Over() {
		return msg + "The " + w.Year() + " tournament is OVER!"
	}
	verb := "closes"
	if cd.Event == EVENT_START {
		verb = "begins"
	}
	return msg + fmt.Sprintf("%s Tournament %s in %dd %02d:%02d:%02d", w.Year(), verb, cd.Days, cd.Hours, cd.Minutes, cd.Seconds)
}

// CountdownLines are announced one second apart, the last one
// COUNTDOWN_FROM-1 seconds before the boundary
func CountdownLines(event string) []string {
	lines := []string{fmt.Sprintf("The tournament %ss in %d...", event, COUNTDOWN_FROM)}
	for n := COUNTDOWN_FROM - 1; n > 0; n-- {
		lines = append(lines, fmt.Sprintf("%d...", n))
	}
	return lines
}

// Plan is what the hourly task does at one run
type Plan struct {
	// Announce is sent to every channel when not empty
	Announce string
	// Report is the stats query to fan out, if any
	Report string
	// Countdown names the boundary whose countdown starts
	// COUNTDOWN_FROM seconds before the next hour
	Countdown string
	// Stop ends the hourly task after this run
	Stop bool
}

// HourlyPlan decides the hourly run at now. The run happens just after the
// top of the hour, so being within a minute of a boundary means the
// boundary is this hour.
func (w Window) HourlyPlan(now time.Time, test bool) Plan {
	var p Plan
	switch {
	case near(now, w.Start):
		p.Announce = "###### TNNT " + w.Year() + " IS OPEN! ######"
	case near(now, w.End):
		return Plan{
			Announce: "###### TNNT " + w.Year() + " IS CLOSED! ######",
			Report:   "fstats",
			Stop:     true,
		}
	case near(now.Add(time.Hour), w.Start):
		p.Countdown = EVENT_START
	case near(now.Add(time.Hour), w.End):
		p.Countdown = EVENT_END
	}

	if !w.GameOn(now) && !test {
		return p
	}

	switch h := now.UTC().Hour(); {
	case h == 0:
		p.Report = "dstats"
	case h%6 == 0:
		p.Report = "cstats"
	default:
		p.Report = "hstats"
	}
	return p
}

func near(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < time.Minute
}

// NextHour returns the first top of the hour after now, plus half a second
func NextHour(now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour + 500*time.Millisecond)
}
