package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"croesus/internal/aws"
	"croesus/internal/coordinator"
	"croesus/internal/model"
	"croesus/internal/stats"
	"croesus/internal/xlog"

	"github.com/rs/zerolog/log"
)

// registerQueries installs the handlers that answer queries from masters
func (r *Relay) registerQueries() {
	r.coord.Handle("players", r.queryPlayers)
	r.coord.Handle("who", r.queryPlayers)
	r.coord.Handle("whereis", r.queryWhereIs)
	r.coord.Handle("asc", r.queryAsc)
	r.coord.Handle("streak", r.queryStreak)
	r.coord.Handle("lastgame", r.queryLastGame)
	r.coord.Handle("lastasc", r.queryLastAsc)
	for _, report := range []string{stats.REPORT_USER, stats.REPORT_HOURLY, stats.REPORT_CUMULATIVE, stats.REPORT_DAILY, stats.REPORT_FINAL} {
		r.coord.Handle(report, r.queryStats)
	}
}

func (r *Relay) tag() string {
	return displayTag(r.node.ServerTag)
}

// targetPlayer is the player named in the query, or whoever asked
func targetPlayer(req coordinator.Request) string {
	if len(req.Args) > 0 {
		return req.Args[0]
	}
	return req.Sender
}

// Players returns the names of players with a game in progress
func (r *Relay) Players() []string {
	var names []string
	for _, dir := range r.dumps.InProgressDirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.ttyrec"))
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Bad in-progress directory pattern")
			continue
		}
		for _, m := range matches {
			name, _, _ := strings.Cut(filepath.Base(m), ":")
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Relay) queryPlayers(_ context.Context, _ coordinator.Request) (string, error) {
	players := r.Players()
	if len(players) == 0 {
		return r.tag() + " No current players", nil
	}
	return r.tag() + " " + strings.Join(players, " "), nil
}

func (r *Relay) queryWhereIs(_ context.Context, req coordinator.Request) (string, error) {
	if len(req.Args) == 0 {
		return "", coordinator.ErrNoReply
	}
	want := req.Args[0]

	playing := ""
	for _, p := range r.Players() {
		if strings.EqualFold(p, want) {
			playing = p
			break
		}
	}
	if playing == "" {
		return fmt.Sprintf("%s %s is not currently playing on this server.", r.tag(), want), nil
	}

	for _, dir := range r.dumps.WhereIsDirs {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.whereis"))
		for _, path := range matches {
			base := filepath.Base(path)
			if !strings.EqualFold(base, want+".whereis") {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Failed to read whereis file")
				break
			}
			rec, err := xlog.Parse(strings.TrimSpace(string(data)), ":")
			if err != nil {
				break
			}
			amulet := ""
			if rec.Int("amulet") != 0 {
				amulet = " (with Amulet)"
			}
			return fmt.Sprintf("%s %s : (%s %s %s %s) T:%d %s level: %d%s",
				r.tag(), strings.TrimSuffix(base, ".whereis"),
				rec.Str("role"), rec.Str("race"), rec.Str("gender"), rec.Str("align"),
				rec.Int("turns"), dungeonName(rec.Int("dnum")), rec.Int("depth"), amulet), nil
		}
	}
	return fmt.Sprintf("%s %s : No details available", r.tag(), playing), nil
}

func (r *Relay) queryAsc(_ context.Context, req coordinator.Request) (string, error) {
	player := targetPlayer(req)
	if player == "" {
		return "", coordinator.ErrNoReply
	}
	key := lower(player)
	games := r.History.Games(key)

	asc, ok := r.History.Ascensions(key)
	if !ok {
		reply := r.tag() + " No ascensions for " + player
		if games > 0 {
			reply += fmt.Sprintf(" in %d games", games)
		}
		return reply + ".", nil
	}

	groups := []string{
		breakdown(asc.Role, roleOrder),
		breakdown(asc.Race, raceOrder),
		breakdown(asc.Align, alignOrder),
		breakdown(asc.Gender, genderOrder),
	}
	return fmt.Sprintf("%s %s has ascended %d times in %d games (%0.2f%%): %s.",
		r.tag(), player, asc.Total, games, 100*float64(asc.Total)/float64(max(games, 1)),
		strings.Join(groups, ", ")), nil
}

// breakdown renders counts as "2xVal 1xWiz", known codes first in order
func breakdown(counts map[string]int64, order []string) string {
	var parts []string
	seen := make(map[string]bool, len(order))
	for _, code := range order {
		seen[code] = true
		if n := counts[code]; n > 0 {
			parts = append(parts, fmt.Sprintf("%dx%s", n, code))
		}
	}
	var rest []string
	for code := range counts {
		if !seen[code] {
			rest = append(rest, code)
		}
	}
	sort.Strings(rest)
	for _, code := range rest {
		parts = append(parts, fmt.Sprintf("%dx%s", counts[code], code))
	}
	return strings.Join(parts, " ")
}

func streakDate(stamp int64) string {
	return time.Unix(stamp, 0).UTC().Format("2006-01-02")
}

func (r *Relay) queryStreak(_ context.Context, req coordinator.Request) (string, error) {
	player := targetPlayer(req)
	if player == "" {
		return "", coordinator.ErrNoReply
	}

	current, longest := r.Streaks.Get(lower(player))
	if longest.Length == 0 {
		return "No streaks for " + player + ".", nil
	}

	reply := fmt.Sprintf("%s %s Max: %d (%s - %s)", r.tag(), player, longest.Length, streakDate(longest.Start), streakDate(longest.End))
	if current.Length > 0 {
		if current.Start == longest.Start {
			reply += "(current)"
		} else {
			reply += fmt.Sprintf(". Current: %d (since %s)", current.Length, streakDate(current.Start))
		}
	}
	return reply + ".", nil
}

func (r *Relay) queryLastGame(_ context.Context, req coordinator.Request) (string, error) {
	if len(req.Args) > 0 {
		url, ok := r.History.LastGame(lower(req.Args[0]))
		if !ok {
			return "No last game for " + req.Args[0] + ".", nil
		}
		return r.tag() + " " + url, nil
	}
	url, ok := r.History.LastGame("")
	if !ok {
		return "No last game recorded.", nil
	}
	return r.tag() + " " + url, nil
}

func (r *Relay) queryLastAsc(_ context.Context, req coordinator.Request) (string, error) {
	if len(req.Args) > 0 {
		url, ok := r.History.LastAscension(lower(req.Args[0]))
		if !ok {
			return "No last ascension for " + req.Args[0] + ".", nil
		}
		return r.tag() + " " + url, nil
	}
	url, ok := r.History.LastAscension("")
	if !ok {
		return "No last ascension recorded.", nil
	}
	return r.tag() + " " + url, nil
}

// queryStats replies "<type> <bucket json>" and applies the report's
// bucket resets. Daily and final buckets are also archived.
func (r *Relay) queryStats(ctx context.Context, req coordinator.Request) (string, error) {
	bucket, kind, ok := r.Stats.ReadReport(req.Command)
	if !ok {
		return "", coordinator.ErrNoReply
	}
	data, err := json.Marshal(bucket)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s bucket: %w", req.Command, err)
	}

	if req.Command == stats.REPORT_DAILY || req.Command == stats.REPORT_FINAL {
		r.archiveReport(ctx, req.Command, bucket, data)
	}
	return kind + " " + string(data), nil
}

// archiveReport stores a report's bucket in the snapshot database and the
// report bucket. Failures are logged; the report still goes out.
func (r *Relay) archiveReport(ctx context.Context, report string, bucket model.StatBucket, data []byte) {
	now := r.now()
	period, _, _ := stats.ReportPeriod(report)

	if r.snapshots != nil {
		snap := model.StatSnapshot{
			Server:   r.node.ServerTag,
			Report:   report,
			Period:   period,
			Bucket:   bucket,
			TakenAt:  now.UTC(),
			Complete: report == stats.REPORT_FINAL,
		}
		if err := r.snapshots.SaveSnapshot(ctx, snap); err != nil {
			log.Error().Err(err).Str("report", report).Msg("Failed to save stat snapshot")
		}
	}

	if r.files != nil {
		key := aws.ReportKey(r.node.ServerTag, report, now)
		url, err := r.files.UploadFile(ctx, key, bytes.NewReader(data), "application/json")
		if err != nil {
			log.Error().Err(err).Str("report", report).Str("key", key).Msg("Failed to upload stat report")
			return
		}
		log.Info().Str("report", report).Str("url", url).Msg("Uploaded stat report")
	}
}
