package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Croesus.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
[node]
id = "Croesus-eu"
server_tag = "hdf-eu"
masters = ["Croesus"]

[tournament]
start = 2024-11-01T00:00:00Z
end = 2024-12-01T00:00:00Z

[timing]
query_timeout = "7s"

[[sources]]
path = "/var/games/xlogfile"
kind = "xlogfile"
dump_format = "tnnt/dumplog/{starttime}.tnnt.txt"

[[sources]]
path = "/var/games/livelog"
kind = "livelog"
delimiter = ":"
spam = true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Node.ID != "Croesus-eu" || cfg.Node.ServerTag != "hdf-eu" {
		t.Fatalf("node = %+v", cfg.Node)
	}
	if !cfg.Node.IsMaster("Croesus") || cfg.Node.IsMaster("Croesus-eu") {
		t.Fatalf("masters = %v", cfg.Node.Masters)
	}
	if cfg.Timing.QueryTimeout != 7*time.Second {
		t.Fatalf("query timeout = %v", cfg.Timing.QueryTimeout)
	}
	if cfg.Timing.PollInterval != defaultPollInterval {
		t.Fatalf("poll interval = %v, want default", cfg.Timing.PollInterval)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("sources = %d", len(cfg.Sources))
	}
	if cfg.Sources[0].Delimiter != "\t" {
		t.Fatalf("default delimiter = %q", cfg.Sources[0].Delimiter)
	}
	if cfg.Sources[1].Delimiter != ":" || !cfg.Sources[1].Spam {
		t.Fatalf("livelog source = %+v", cfg.Sources[1])
	}
	want := time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.Tournament.Start.Equal(want) {
		t.Fatalf("start = %v", cfg.Tournament.Start)
	}
	if cfg.ConfigPath != path {
		t.Fatalf("config path = %q", cfg.ConfigPath)
	}
}

func TestLoadConfigRejectsUnknownKind(t *testing.T) {
	path := writeConfig(t, `
[[sources]]
path = "/var/games/x"
kind = "ttyrec"
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown source kind")
	}
}

func TestValidate(t *testing.T) {
	start := time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC)
	base := Config{
		Node:       NodeConfig{ID: "Croesus"},
		Tournament: TournamentConfig{Start: start, End: start.AddDate(0, 1, 0)},
		Timing:     TimingConfig{PollInterval: time.Second, QueryTimeout: time.Second, ChunkSize: 200},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty id", func(c *Config) { c.Node.ID = "" }},
		{"zero poll", func(c *Config) { c.Timing.PollInterval = 0 }},
		{"zero chunk", func(c *Config) { c.Timing.ChunkSize = 0 }},
		{"end before start", func(c *Config) { c.Tournament.End = start.Add(-time.Hour) }},
		{"empty source path", func(c *Config) { c.Sources = []SourceConfig{{Kind: SourceLivelog}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
