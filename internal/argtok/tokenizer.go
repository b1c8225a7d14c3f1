package argtok

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// State is the tokenizer's position relative to arguments and quotes
type State uint8

const (
	// NoToken is the state between arguments
	NoToken State = iota
	// NormalToken is inside an unquoted run of an argument
	NormalToken
	// SingleQuote is inside '...'
	SingleQuote
	// DoubleQuote is inside "..."
	DoubleQuote
)

func (s State) String() string {
	switch s {
	case NoToken:
		return "no-token"
	case NormalToken:
		return "normal-token"
	case SingleQuote:
		return "single-quote"
	case DoubleQuote:
		return "double-quote"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// DefectError reports a tokenizer state outside the defined set. It is
// raised with panic and never returned to callers.
type DefectError struct {
	State State
}

func (e DefectError) Error() string {
	return fmt.Sprintf("argument tokenizer state %s is invalid", e.State)
}

// Tokenize splits input into command-line style arguments, honoring single
// quotes, double quotes and backslash escapes. It never fails: unterminated
// quotes are closed at end of input and a trailing backslash is kept.
func Tokenize(input string) []string {
	return TokenizeStringify(input, false)
}

// TokenizeStringify is Tokenize with optional re-escaping. When stringify
// is set each argument is escaped and wrapped in double quotes so it can be
// embedded in a larger command line.
func TokenizeStringify(input string, stringify bool) []string {
	sc := newScanner(input)
	for sc.pos < len(sc.in) {
		sc.step()
	}
	args := sc.finish()

	if stringify {
		for i, arg := range args {
			args[i] = quote(arg)
		}
	}
	return args
}

// Join stringifies every argument and joins them with single spaces.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = quote(arg)
	}
	return strings.Join(quoted, " ")
}

func quote(arg string) string {
	return `"` + EscapeQuotesAndBackslashes(arg) + `"`
}

// scanner holds the state of a single tokenize call. It walks the input
// one UTF-8 sequence at a time and copies the raw bytes of each sequence,
// so bytes that are not valid UTF-8 pass through unchanged.
type scanner struct {
	in      string
	pos     int
	state   State
	escaped bool
	current strings.Builder
	args    []string
}

func newScanner(input string) *scanner {
	return &scanner{
		in:    input,
		state: NoToken,
		args:  []string{},
	}
}

// next decodes the sequence at pos and advances past it. An invalid byte
// comes back as utf8.RuneError with its single raw byte.
func (s *scanner) next() (rune, string) {
	c, size := utf8.DecodeRuneInString(s.in[s.pos:])
	raw := s.in[s.pos : s.pos+size]
	s.pos += size
	return c, raw
}

// step consumes one sequence, and the one after it when a double-quoted
// backslash looks ahead.
func (s *scanner) step() {
	c, raw := s.next()

	if s.escaped {
		s.escaped = false
		s.current.WriteString(raw)
		return
	}

	switch s.state {
	case SingleQuote:
		if c == '\'' {
			s.state = NormalToken
			return
		}
		s.current.WriteString(raw)

	case DoubleQuote:
		switch c {
		case '"':
			s.state = NormalToken
		case '\\':
			if s.pos >= len(s.in) {
				// Backslash is the last character of an open double quote.
				s.current.WriteByte('\\')
				return
			}
			next, nextRaw := s.next()
			if next != '"' && next != '\\' {
				s.current.WriteByte('\\')
			}
			s.current.WriteString(nextRaw)
		default:
			s.current.WriteString(raw)
		}

	case NoToken, NormalToken:
		switch {
		case c == '\\':
			s.escaped = true
			s.state = NormalToken
		case c == '\'':
			s.state = SingleQuote
		case c == '"':
			s.state = DoubleQuote
		case !IsWhitespace(c):
			s.current.WriteString(raw)
			s.state = NormalToken
		case s.state == NormalToken:
			s.flush()
			s.state = NoToken
		}

	default:
		panic(DefectError{State: s.state})
	}
}

// IsWhitespace reports whether c separates arguments: the Unicode space,
// line and paragraph separators other than the no-break spaces U+00A0,
// U+2007 and U+202F, plus tab, line feed, vertical tab, form feed,
// carriage return and the information separators U+001C to U+001F.
// U+0085 is not a separator.
func IsWhitespace(c rune) bool {
	switch c {
	case '\t', '\n', '\v', '\f', '\r', 0x1C, 0x1D, 0x1E, 0x1F:
		return true
	case 0x00A0, 0x2007, 0x202F:
		return false
	}
	return unicode.In(c, unicode.Zs, unicode.Zl, unicode.Zp)
}

func (s *scanner) flush() {
	s.args = append(s.args, s.current.String())
	s.current.Reset()
}

// finish closes whatever argument is still open at end of input.
func (s *scanner) finish() []string {
	if s.escaped {
		s.current.WriteByte('\\')
		s.flush()
	} else if s.state != NoToken {
		s.flush()
	}
	return s.args
}
