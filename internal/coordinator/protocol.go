package coordinator

import (
	"strings"
	"unicode/utf8"
)

// Control message tags exchanged between nodes. Every message is
// "TAG ARGS..." separated by single spaces.
const (
	TagQuery   = "#Q#" // #Q# <id> <sender> <command> [args...]
	TagPartial = "#P#" // #P# <id> <fragment>
	TagFinal   = "#R#" // #R# <id> <fragment>
	TagSummary = "#S#" // #S# <json summary>
)

// Message is a decoded control message
type Message struct {
	Tag     string
	ID      string
	Sender  string
	Command string
	Args    []string
	Payload string
}

// IsControl reports whether text starts with a control tag
func IsControl(text string) bool {
	tag, _, _ := strings.Cut(text, " ")
	switch tag {
	case TagQuery, TagPartial, TagFinal, TagSummary:
		return true
	}
	return false
}

// ParseMessage decodes a control message. Response payloads are kept byte
// for byte, including leading and trailing spaces.
func ParseMessage(text string) (Message, bool) {
	tag, rest, _ := strings.Cut(text, " ")
	switch tag {
	case TagQuery:
		words := strings.Fields(rest)
		if len(words) < 3 {
			return Message{}, false
		}
		return Message{
			Tag:     tag,
			ID:      words[0],
			Sender:  words[1],
			Command: strings.ToLower(words[2]),
			Args:    words[3:],
		}, true
	case TagPartial, TagFinal:
		id, payload, _ := strings.Cut(rest, " ")
		if id == "" {
			return Message{}, false
		}
		return Message{Tag: tag, ID: id, Payload: payload}, true
	case TagSummary:
		if strings.TrimSpace(rest) == "" {
			return Message{}, false
		}
		return Message{Tag: tag, Payload: rest}, true
	}
	return Message{}, false
}

// FormatQuery encodes a query; words[0] is the command
func FormatQuery(id, sender string, words []string) string {
	return TagQuery + " " + strings.Join(append([]string{id, sender}, words...), " ")
}

func FormatResponse(id, fragment string, final bool) string {
	tag := TagPartial
	if final {
		tag = TagFinal
	}
	return tag + " " + id + " " + fragment
}

func FormatSummary(payload []byte) string {
	return TagSummary + " " + string(payload)
}

// Chunk splits s into pieces of at most size bytes whose concatenation is s.
// Cuts are moved back to a rune boundary so every piece is valid UTF-8. An
// empty s is a single empty chunk.
func Chunk(s string, size int) []string {
	if size <= 0 {
		return []string{s}
	}
	chunks := make([]string, 0, len(s)/size+1)
	for len(s) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = size
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	return append(chunks, s)
}
