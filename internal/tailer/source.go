package tailer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"croesus/internal/config"

	"github.com/rs/zerolog/log"
)

// Source is one append-only log file and how far into it we have read.
type Source struct {
	Path       string
	Kind       string
	Delimiter  string
	DumpFormat string
	Spam       bool

	mu     sync.Mutex
	offset int64
	// the startup policy has not been applied yet
	seedPending bool
}

func NewSource(cfg config.SourceConfig) *Source {
	delim := cfg.Delimiter
	if delim == "" {
		delim = "\t"
	}
	return &Source{
		Path:       cfg.Path,
		Kind:       cfg.Kind,
		Delimiter:  delim,
		DumpFormat: cfg.DumpFormat,
		Spam:       cfg.Spam,
	}
}

func (s *Source) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// SeedPending reports whether a failed startup read must be retried
// before the source is polled for new lines
func (s *Source) SeedPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seedPending
}

func (s *Source) setSeedPending(pending bool) {
	s.mu.Lock()
	s.seedPending = pending
	s.mu.Unlock()
}

// SeekEnd moves the offset to the current end of the file. A missing file
// leaves the offset at zero so everything written later is new.
func (s *Source) SeekEnd() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		s.offset = 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.Path, err)
	}
	s.offset = info.Size()
	return nil
}

// Poll returns the complete lines appended since the previous poll and moves
// the offset past them. A trailing line without its newline is still being
// written and is left for the next poll. On error the offset is unchanged.
func (s *Source) Poll() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.Path, err)
	}
	if info.Size() < s.offset {
		log.Warn().
			Str("path", s.Path).
			Int64("offset", s.offset).
			Int64("size", info.Size()).
			Msg("Log file shrank, reading from the start")
		s.offset = 0
	}

	if _, err := f.Seek(s.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", s.Path, err)
	}

	var lines []string
	consumed := s.offset
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.Path, err)
		}
		consumed += int64(len(line))
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}

	s.offset = consumed
	return lines, nil
}
