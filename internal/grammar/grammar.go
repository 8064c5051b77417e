// Package grammar holds the delimiter-aware text helpers shared by the
// declaration parser and the type-expression parser: balanced group
// extraction from the front of a buffer and top-level splitting.
package grammar

import (
	"errors"
	"strings"
)

// ErrUnbalanced is returned when a group opened at the front of a buffer is never closed.
var ErrUnbalanced = errors.New("unbalanced group")

// Buffer is a consumable view over declaration text.
type Buffer struct {
	text string
}

// NewBuffer wraps text for consumption.
func NewBuffer(text string) *Buffer {
	return &Buffer{text: text}
}

// String returns the unconsumed remainder.
func (b *Buffer) String() string { return b.text }

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int { return len(b.text) }

// HasPrefix reports whether the remainder starts with open.
func (b *Buffer) HasPrefix(open byte) bool {
	return len(b.text) > 0 && b.text[0] == open
}

// ExtractGroup consumes a balanced open...close group from the front of the
// buffer and returns its content without the outer delimiters.
//
// If the buffer does not start with open, it returns "" and leaves the buffer
// untouched. Quoted literals inside the group are skipped so a ")" inside a
// default string does not close the group. An unterminated group returns
// ErrUnbalanced and leaves the buffer untouched.
func (b *Buffer) ExtractGroup(open, close byte) (string, error) {
	if !b.HasPrefix(open) {
		return "", nil
	}
	end, ok := matchGroup(b.text, 0, open, close)
	if !ok {
		return "", ErrUnbalanced
	}
	content := b.text[1:end]
	b.text = b.text[end+1:]
	return content, nil
}

// matchGroup returns the index of the delimiter closing the group opened at start.
func matchGroup(s string, start int, open, close byte) (int, bool) {
	depth := 0
	for i := start; i < len(s); i++ {
		if skip := literalLen(s, i); skip > 0 {
			i += skip - 1
			continue
		}
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// literalLen returns the byte length of a string or character literal
// starting at s[i], or 0 when s[i] does not start one.
func literalLen(s string, i int) int {
	switch s[i] {
	case '"':
		if strings.HasPrefix(s[i:], `"""`) {
			if end := strings.Index(s[i+3:], `"""`); end >= 0 {
				return end + 6
			}
			return len(s) - i
		}
		for j := i + 1; j < len(s); j++ {
			if s[j] == '\\' {
				j++
				continue
			}
			if s[j] == '"' {
				return j - i + 1
			}
		}
		return len(s) - i
	case '\'':
		// 'a' or '\n' style; a lone quote is not a literal
		if i+2 < len(s) && s[i+1] != '\\' && s[i+2] == '\'' {
			return 3
		}
		if i+1 < len(s) && s[i+1] == '\\' {
			if end := strings.IndexByte(s[i+2:], '\''); end >= 0 {
				return end + 3
			}
		}
	}
	return 0
}

func isOpener(c byte) bool { return c == '(' || c == '[' || c == '{' }
func isCloser(c byte) bool { return c == ')' || c == ']' || c == '}' }

// SplitTopLevel splits s at any byte of seps that is outside every bracket
// pair and quoted literal. Entries are returned untrimmed; empty input yields nil.
func SplitTopLevel(s string, seps string) []string {
	if s == "" {
		return nil
	}
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		if skip := literalLen(s, i); skip > 0 {
			i += skip - 1
			continue
		}
		c := s[i]
		switch {
		case isOpener(c):
			depth++
		case isCloser(c):
			if depth > 0 {
				depth--
			}
		case depth == 0 && strings.IndexByte(seps, c) >= 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	return append(parts, s[last:])
}

// SplitList splits a comma/semicolon separated list at top level and trims each entry.
func SplitList(s string) []string {
	parts := SplitTopLevel(s, ",;")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// SplitAlternatives splits a union type expression on top-level "|".
func SplitAlternatives(s string) []string {
	parts := SplitTopLevel(s, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// IndexTopLevel returns the index of the first c outside brackets and
// literals, or -1.
func IndexTopLevel(s string, c byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		if skip := literalLen(s, i); skip > 0 {
			i += skip - 1
			continue
		}
		switch {
		case isOpener(s[i]):
			depth++
		case isCloser(s[i]):
			if depth > 0 {
				depth--
			}
		case depth == 0 && s[i] == c:
			return i
		}
	}
	return -1
}

// ParensBalanced reports whether s has as many "(" as ")" outside literals.
func ParensBalanced(s string) bool {
	n := 0
	for i := 0; i < len(s); i++ {
		if skip := literalLen(s, i); skip > 0 {
			i += skip - 1
			continue
		}
		switch s[i] {
		case '(':
			n++
		case ')':
			n--
		}
	}
	return n == 0
}

// JoinLines collapses a multi-line declaration: every newline and the
// indentation that follows it are removed.
func JoinLines(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			for i+1 < len(s) && s[i+1] == ' ' {
				i++
			}
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
