package oauthcfg

import (
	"errors"
	"strconv"
	"strings"
)

// scanSingleQuoted collects the contents of a single-quoted JS literal
// starting at start (the character after the opening quote). Escape
// sequences are preserved verbatim so nested backslash-escaped characters
// survive until the later unescape pass; only the first unescaped closing
// quote terminates the literal.
func scanSingleQuoted(s string, start int) (string, error) {
	var out strings.Builder
	i := start

	for i < len(s) {
		switch s[i] {
		case '\'':
			return out.String(), nil
		case '\\':
			out.WriteByte(s[i])
			if i+1 < len(s) {
				out.WriteByte(s[i+1])
				i += 2
				continue
			}
			i++
		default:
			out.WriteByte(s[i])
			i++
		}
	}
	return "", errors.New("unterminated single-quoted literal")
}

// unescapeJS interprets general backslash escapes in a raw literal:
// standard control escapes, octal, \xhh, \uhhhh and \Uhhhhhhhh. Unknown
// escapes keep the backslash and character unchanged.
func unescapeJS(raw string) string {
	var out strings.Builder
	i := 0

	for i < len(raw) {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			out.WriteByte(c)
			i++
			continue
		}

		next := raw[i+1]
		switch next {
		case '\\', '\'', '"':
			out.WriteByte(next)
			i += 2
		case 'n':
			out.WriteByte('\n')
			i += 2
		case 't':
			out.WriteByte('\t')
			i += 2
		case 'r':
			out.WriteByte('\r')
			i += 2
		case 'b':
			out.WriteByte('\b')
			i += 2
		case 'f':
			out.WriteByte('\f')
			i += 2
		case 'v':
			out.WriteByte('\v')
			i += 2
		case 'a':
			out.WriteByte('\a')
			i += 2
		case '0', '1', '2', '3', '4', '5', '6', '7':
			val, n := scanOctal(raw[i+1:])
			out.WriteByte(byte(val))
			i += 1 + n
		case 'x':
			if r, ok := scanHex(raw[i+2:], 2); ok {
				out.WriteRune(r)
				i += 4
			} else {
				out.WriteByte(c)
				out.WriteByte(next)
				i += 2
			}
		case 'u':
			if r, ok := scanHex(raw[i+2:], 4); ok {
				out.WriteRune(r)
				i += 6
			} else {
				out.WriteByte(c)
				out.WriteByte(next)
				i += 2
			}
		case 'U':
			if r, ok := scanHex(raw[i+2:], 8); ok {
				out.WriteRune(r)
				i += 10
			} else {
				out.WriteByte(c)
				out.WriteByte(next)
				i += 2
			}
		default:
			// Unknown escape: keep both characters.
			out.WriteByte(c)
			out.WriteByte(next)
			i += 2
		}
	}
	return out.String()
}

// scanOctal reads up to three octal digits, returning the value and the
// number of digits consumed.
func scanOctal(s string) (int, int) {
	val, n := 0, 0
	for n < 3 && n < len(s) && s[n] >= '0' && s[n] <= '7' {
		val = val*8 + int(s[n]-'0')
		n++
	}
	return val, n
}

// scanHex reads exactly width hex digits as a rune.
func scanHex(s string, width int) (rune, bool) {
	if len(s) < width {
		return 0, false
	}
	val, err := strconv.ParseUint(s[:width], 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(val), true
}
