package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"croesus/internal/config"
	"croesus/internal/controller"
	"croesus/internal/database"
	"croesus/internal/history"
	"croesus/internal/model"
	"croesus/internal/stats"
	"croesus/internal/streak"

	"github.com/gin-gonic/gin"
)

type fakeGames struct {
	since time.Time
}

func (f *fakeGames) ArchiveGames(context.Context, []model.GameDocument) (int64, error) {
	return 0, nil
}

func (f *fakeGames) LatestGames(context.Context, string, int64) ([]model.GameDocument, error) {
	return nil, nil
}

func (f *fakeGames) Distribution(_ context.Context, field string, since time.Time) (map[string]int64, error) {
	if field != "role" {
		return nil, fmt.Errorf("%w: %s", database.ErrUnknownField, field)
	}
	f.since = since
	return map[string]int64{"Val": 3, "Wiz": 1}, nil
}

type brokenFiles struct{}

func (brokenFiles) UploadFile(context.Context, string, io.Reader, string) (string, error) {
	return "", errors.New("no bucket")
}

func (brokenFiles) TestConnection(context.Context) error {
	return errors.New("no bucket")
}

func newTestServer(t *testing.T, games database.GameDatabase) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	now := time.Date(2024, time.November, 5, 12, 0, 0, 0, time.UTC)
	agg := stats.NewAggregator()
	tracker := streak.NewTracker()
	hist := history.New()
	for _, g := range []model.Game{
		{Name: "alice", Role: "Val", Race: "Hum", Gender: "Fem", Align: "Neu", Death: "ascended", Turns: 40000, StartTime: 1730700000, EndTime: now.Unix()},
		{Name: "bob", Role: "Wiz", Race: "Elf", Gender: "Mal", Align: "Cha", Death: "killed by a newt", Turns: 900, EndTime: now.Unix()},
	} {
		agg.Record(g, now)
		tracker.Observe(g)
		hist.Record(g, "https://dumps.example/"+g.Name+".txt")
	}

	s := Server{
		sc:  controller.NewServer(nil, nil, nil, nil),
		stc: controller.NewStats(agg, tracker, hist, games),
	}
	return s.RegisterRoutes()
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decoding %q: %v", path, rec.Body.String(), err)
		}
	}
	return rec.Code, body
}

func TestRoutes(t *testing.T) {
	h := newTestServer(t, nil)

	tests := []struct {
		path   string
		status int
		check  func(map[string]any) bool
	}{
		{"/health", http.StatusOK, func(b map[string]any) bool { return len(b) == 0 }},
		{"/stats/day", http.StatusOK, func(b map[string]any) bool { return b["games"] == 2.0 && b["ascend"] == 1.0 }},
		{"/stats/week", http.StatusBadRequest, nil},
		{"/streak/Alice", http.StatusOK, func(b map[string]any) bool {
			longest, _ := b["longest"].(map[string]any)
			return b["player"] == "Alice" && longest["length"] == 1.0
		}},
		{"/streak/bob", http.StatusNotFound, nil},
		{"/asc/alice", http.StatusOK, func(b map[string]any) bool {
			asc, _ := b["ascensions"].(map[string]any)
			return b["games"] == 1.0 && asc["total"] == 1.0
		}},
		{"/asc/bob", http.StatusNotFound, func(b map[string]any) bool { return b["games"] == 1.0 }},
		{"/lastgame", http.StatusOK, func(b map[string]any) bool { return b["url"] == "https://dumps.example/bob.txt" }},
		{"/lastgame?player=ALICE", http.StatusOK, func(b map[string]any) bool { return b["url"] == "https://dumps.example/alice.txt" }},
		{"/lastasc?player=bob", http.StatusNotFound, nil},
		{"/archive/distribution/role", http.StatusServiceUnavailable, nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := get(t, h, tt.path)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (%v)", status, tt.status, body)
			}
			if tt.check != nil && !tt.check(body) {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestOnline(t *testing.T) {
	h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/online", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "Online" {
		t.Fatalf("/online = %d %q", rec.Code, rec.Body.String())
	}
}

func TestTopStreaks(t *testing.T) {
	h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/streaks?limit=5", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var entries []streak.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Player != "alice" {
		t.Fatalf("entries = %+v", entries)
	}

	if status, _ := get(t, h, "/streaks?limit=zero"); status != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", status)
	}
}

func TestDistribution(t *testing.T) {
	games := &fakeGames{}
	h := newTestServer(t, games)

	status, body := get(t, h, "/archive/distribution/role?since=2024-11-01")
	if status != http.StatusOK || body["Val"] != 3.0 || body["Wiz"] != 1.0 {
		t.Fatalf("distribution = %d %v", status, body)
	}
	if want := time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC); !games.since.Equal(want) {
		t.Errorf("since = %v, want %v", games.since, want)
	}

	if status, _ := get(t, h, "/archive/distribution/points"); status != http.StatusBadRequest {
		t.Errorf("unknown field status = %d", status)
	}
	if status, _ := get(t, h, "/archive/distribution/role?since=yesterday"); status != http.StatusBadRequest {
		t.Errorf("bad since status = %d", status)
	}
}

func TestHealthReportsBrokenBackend(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := Server{
		sc:     controller.NewServer(nil, nil, nil, brokenFiles{}),
		stc:    controller.NewStats(stats.NewAggregator(), streak.NewTracker(), history.New(), nil),
		config: config.HTTPConfig{},
	}

	status, body := get(t, s.RegisterRoutes(), "/health")
	if status != http.StatusServiceUnavailable || body["file_service"] != false {
		t.Fatalf("/health = %d %v", status, body)
	}
}
