package xlog

import (
	"fmt"
	"strconv"
	"strings"
)

// Expand fills {field} and {field[N]} placeholders in tmpl from lookup.
// {{ and }} are literal braces. Substituted values are never rescanned, so
// braces inside field values come out exactly as written.
func Expand(tmpl string, lookup func(string) (string, bool)) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder in %q", tmpl)
			}
			value, err := expandField(tmpl[i+1:i+end], lookup)
			if err != nil {
				return "", err
			}
			b.WriteString(value)
			i += end
		case c == '}':
			return "", fmt.Errorf("single '}' in %q", tmpl)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func expandField(spec string, lookup func(string) (string, bool)) (string, error) {
	name, index, hasIndex := strings.Cut(spec, "[")
	value, ok := lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown field %q", name)
	}
	if !hasIndex {
		return value, nil
	}

	n, err := strconv.Atoi(strings.TrimSuffix(index, "]"))
	if err != nil || !strings.HasSuffix(index, "]") {
		return "", fmt.Errorf("bad index in placeholder %q", spec)
	}
	runes := []rune(value)
	if n < 0 || n >= len(runes) {
		return "", fmt.Errorf("index %d out of range for field %q", n, name)
	}
	return string(runes[n]), nil
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
