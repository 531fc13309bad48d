package processor

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"croesus/internal/config"
	"croesus/internal/xlog"

	"github.com/rs/zerolog/log"
)

// DumpLocator turns a finished game into the URL of its dump file
type DumpLocator struct {
	URLPrefix  string
	FilePrefix string
	// Test links dumps whether or not the file exists
	Test bool

	exists func(path string) bool
}

func NewDumpLocator(cfg config.DumpsConfig, test bool) *DumpLocator {
	return &DumpLocator{
		URLPrefix:  cfg.URLPrefix,
		FilePrefix: cfg.FilePrefix,
		Test:       test,
		exists:     fileExists,
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist) && err == nil
}

// URL expands format against rec. When no dump file exists the result is
// an apology naming the player instead of a link.
func (d *DumpLocator) URL(rec xlog.Record, format string) string {
	missing := "(sorry, no dump exists for " + rec.Str("name") + ")"
	if format == "" {
		return missing
	}

	rel, err := xlog.Expand(format, rec.Lookup)
	if err != nil {
		log.Warn().Err(err).Str("format", format).Msg("Failed to expand dump format")
		return missing
	}
	file, err := xlog.Expand(d.FilePrefix, rec.Lookup)
	if err != nil {
		log.Warn().Err(err).Str("prefix", d.FilePrefix).Msg("Failed to expand dump file prefix")
		return missing
	}

	exists := d.exists
	if exists == nil {
		exists = fileExists
	}
	if !d.Test && !exists(file+rel) {
		return missing
	}

	prefix, err := xlog.Expand(d.URLPrefix, rec.Lookup)
	if err != nil {
		log.Warn().Err(err).Str("prefix", d.URLPrefix).Msg("Failed to expand dump URL prefix")
		return missing
	}
	return prefix + escapePath(rel)
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
