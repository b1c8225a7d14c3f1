package argtok

import "strings"

// Every escape target is ASCII, so both directions work on bytes and leave
// multi-byte and invalid UTF-8 sequences untouched.
var escapes = map[byte]byte{
	'\\': '\\',
	'"':  '"',
	'\n': 'n',
	'\t': 't',
	'\r': 'r',
	'\b': 'b',
	'\f': 'f',
}

var unescapes = map[byte]byte{
	'\\': '\\',
	'"':  '"',
	'n':  '\n',
	't':  '\t',
	'r':  '\r',
	'b':  '\b',
	'f':  '\f',
}

// EscapeQuotesAndBackslashes puts a backslash before every backslash and
// double quote in s and replaces newline, tab, carriage return, backspace
// and form feed with their two-character escapes.
func EscapeQuotesAndBackslashes(s string) string {
	out := make([]byte, 0, len(s)+len(s)/4)

	// Built back to front, then reversed, so no insertion shifts an index
	// that is still to be visited.
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if esc, ok := escapes[c]; ok {
			out = append(out, esc, '\\')
			continue
		}
		out = append(out, c)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// Unescape reverses EscapeQuotesAndBackslashes. A backslash that does not
// start a known escape is kept as is.
func Unescape(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			if r, ok := unescapes[s[i+1]]; ok {
				b.WriteByte(r)
				i++
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
