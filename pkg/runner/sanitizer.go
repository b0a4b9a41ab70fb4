package runner

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputSize bounds one user message in bytes.
const DefaultMaxInputSize = 4096

var (
	ErrInputTooLarge = errors.New("message is too long")
	ErrInvalidUTF8   = errors.New("message is not valid UTF-8")

	// ErrBlankInput marks a message with nothing to say. Surfaces treat it
	// as a no-op, the same way the engine ignores blank text.
	ErrBlankInput = errors.New("message is blank")
)

// Sanitizer holds the rules every surface applies to user text before it
// reaches the engine. The zero value uses DefaultMaxInputSize.
type Sanitizer struct {
	MaxSize int
}

func (s Sanitizer) limit() int {
	if s.MaxSize > 0 {
		return s.MaxSize
	}
	return DefaultMaxInputSize
}

// Clean returns the message as it will be recorded in the transcript:
// line endings unified, terminal escape sequences and other control
// characters dropped, surrounding whitespace trimmed.
// Oversized messages are rejected, never truncated.
func (s Sanitizer) Clean(input string) (string, error) {
	if limit := s.limit(); len(input) > limit {
		return "", fmt.Errorf("%w: %d bytes, limit is %d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	input = strings.ReplaceAll(input, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(input))
	for i := 0; i < len(input); {
		r, size := utf8.DecodeRuneInString(input[i:])
		switch {
		case r == '\x1b':
			i += escapeLen(input[i:])
			continue
		case r == '\r':
			b.WriteByte('\n')
		case r == '\n' || r == '\t' || !unicode.IsControl(r):
			b.WriteRune(r)
		}
		i += size
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrBlankInput
	}
	return out, nil
}

// escapeLen measures the escape sequence at the start of s: a CSI sequence
// (ESC [ params final) or ESC plus one character.
func escapeLen(s string) int {
	if len(s) < 2 {
		return len(s)
	}
	if s[1] != '[' {
		_, size := utf8.DecodeRuneInString(s[1:])
		return 1 + size
	}
	for i := 2; i < len(s); i++ {
		if s[i] >= 0x40 && s[i] <= 0x7e {
			return i + 1
		}
	}
	return len(s)
}
