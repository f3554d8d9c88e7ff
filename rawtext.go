package pagelem

import "bytes"

// rawTextTags hold text that is never markup: regular expressions and JSON.
var rawTextTags = []string{"pe-regex", "pe-data"}

// protectRawText entity-escapes the body of raw text elements so that the
// HTML tokenizer hands it back verbatim as a single text token.
func protectRawText(src []byte) []byte {
	lower := bytes.ToLower(src)
	var out []byte
	last := 0
	for i := 0; i < len(src); {
		tag, open := rawTagAt(lower, i)
		if tag == "" {
			i++
			continue
		}
		end := tagEnd(src, open)
		if end < 0 {
			break
		}
		if src[end-1] == '/' {
			i = end + 1
			continue
		}
		closeAt := bytes.Index(lower[end+1:], []byte("</"+tag))
		if closeAt < 0 {
			break
		}
		closeAt += end + 1
		out = append(out, src[last:end+1]...)
		out = appendEscaped(out, src[end+1:closeAt])
		last = closeAt
		i = closeAt
	}
	if out == nil {
		return src
	}
	return append(out, src[last:]...)
}

// rawTagAt reports the raw text tag opened at lower[i], and the offset
// just past its name.
func rawTagAt(lower []byte, i int) (string, int) {
	if lower[i] != '<' {
		return "", 0
	}
	for _, t := range rawTextTags {
		n := i + 1 + len(t)
		if n > len(lower) || string(lower[i+1:n]) != t {
			continue
		}
		if n == len(lower) {
			return "", 0
		}
		switch lower[n] {
		case ' ', '\t', '\n', '\r', '/', '>':
			return t, n
		}
	}
	return "", 0
}

// tagEnd returns the offset of the '>' closing a start tag, skipping
// quoted attribute values.
func tagEnd(src []byte, i int) int {
	var quote byte
	for ; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i
		}
	}
	return -1
}

func appendEscaped(out, text []byte) []byte {
	for _, c := range text {
		switch c {
		case '&':
			out = append(out, "&amp;"...)
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		default:
			out = append(out, c)
		}
	}
	return out
}
