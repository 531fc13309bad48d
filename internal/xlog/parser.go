// Package xlog parses the key=value records written to xlogfiles and
// livelogs.
package xlog

import (
	"errors"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
)

var ErrEmptyLine = errors.New("empty record line")

// Fields that always hold integers. Unparseable values read as 0.
var numericFields = map[string]bool{
	"points": true, "deathdnum": true, "deathlev": true, "maxlvl": true,
	"hp": true, "maxhp": true, "deaths": true, "uid": true, "turns": true,
	"xplevel": true, "exp": true, "depth": true, "dnum": true, "score": true,
	"amulet": true, "starttime": true, "endtime": true, "curtime": true,
	"realtime": true,
}

// Fields holding flag words or sets, read with ParseLiteral
var literalFields = map[string]bool{
	"conduct": true, "event": true, "carried": true, "flags": true, "achieve": true,
}

// Record is one parsed log line
type Record struct {
	text  map[string]string
	ints  map[string]int64
	flags map[string]Literal
}

// Parse splits line on delim into key=value fields. A field without '='
// becomes a key with an empty value. Invalid UTF-8 is replaced and control
// characters are dropped from text values, so values are always safe to
// put in a chat line verbatim.
func Parse(line, delim string) (Record, error) {
	line = strings.TrimRight(strings.ToValidUTF8(line, "\uFFFD"), "\r\n")
	if strings.TrimSpace(line) == "" {
		return Record{}, ErrEmptyLine
	}

	r := Record{
		text:  make(map[string]string),
		ints:  make(map[string]int64),
		flags: make(map[string]Literal),
	}
	for _, field := range strings.Split(line, delim) {
		key, value, _ := strings.Cut(field, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = sanitize(value)
		r.text[key] = value

		switch {
		case numericFields[key]:
			n, err := ParseInt(value)
			if err != nil && value != "" {
				log.Debug().Str("field", key).Str("value", value).Msg("Non-numeric value in integer field")
			}
			r.ints[key] = n
		case literalFields[key]:
			lit, err := ParseLiteral(value)
			if err != nil {
				log.Debug().Err(err).Str("field", key).Str("value", value).Msg("Unparseable literal field")
				lit = Literal{Kind: LiteralInt}
			}
			r.flags[key] = lit
		}
	}
	return r, nil
}

// sanitize strips control characters (chat formatting codes included)
func sanitize(s string) string {
	if strings.IndexFunc(s, unicode.IsControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func (r Record) Has(key string) bool {
	_, ok := r.text[key]
	return ok
}

// Str returns the text of a field, "" when absent
func (r Record) Str(key string) string {
	return r.text[key]
}

// Int returns an integer field; absent or malformed fields are 0
func (r Record) Int(key string) int64 {
	return r.ints[key]
}

func (r Record) Flag(key string) Literal {
	return r.flags[key]
}

// Lookup returns the display form of a field: integers in decimal, text as is
func (r Record) Lookup(key string) (string, bool) {
	v, ok := r.text[key]
	if !ok {
		return "", false
	}
	if numericFields[key] {
		return formatInt(r.ints[key]), true
	}
	return v, true
}

// Set overrides a text field. Integer fields are re-read from value.
func (r Record) Set(key, value string) {
	r.text[key] = value
	if numericFields[key] {
		n, _ := ParseInt(value)
		r.ints[key] = n
	}
}

func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.text))
	for k := range r.text {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r Record) Len() int {
	return len(r.text)
}
