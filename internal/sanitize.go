package internal

import (
	"bufio"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString replaces invalid UTF-8 sequences with the unicode
// replacement character.
func SanitizeString(input string) string {
	return strings.ToValidUTF8(input, string(unicode.ReplacementChar))
}

// NewSanitizeReader wraps r so that the output is valid UTF-8 with LF line
// endings. Invalid byte sequences collapse into a single replacement
// character per run. Used when handing text-mode plaintext to consumers
// that expect clean UTF-8.
func NewSanitizeReader(r io.Reader) io.Reader {
	return &sanitizeReader{r: bufio.NewReader(r)}
}

type sanitizeReader struct {
	r *bufio.Reader
	// pending holds the encoded tail of a rune that did not fit the
	// caller's buffer.
	pending []byte
	scratch [utf8.UTFMax]byte
	// lastInvalid suppresses repeated replacement characters for a run of
	// invalid bytes.
	lastInvalid bool
}

func (sr *sanitizeReader) Read(p []byte) (int, error) {
	n := 0
	if len(sr.pending) > 0 {
		copied := copy(p, sr.pending)
		sr.pending = sr.pending[copied:]
		n += copied
		if len(sr.pending) > 0 {
			return n, nil
		}
	}
	for n < len(p) {
		r, size, err := sr.r.ReadRune()
		if err != nil {
			return n, err
		}
		switch {
		case r == unicode.ReplacementChar && size == 1:
			if sr.lastInvalid {
				continue
			}
			sr.lastInvalid = true
		case r == '\r':
			next, err := sr.r.Peek(1)
			if err == nil && next[0] == '\n' {
				// CRLF collapses to LF; the LF is emitted on the
				// next iteration.
				continue
			}
			sr.lastInvalid = false
		default:
			sr.lastInvalid = false
		}
		encoded := utf8.EncodeRune(sr.scratch[:], r)
		copied := copy(p[n:], sr.scratch[:encoded])
		n += copied
		if copied < encoded {
			sr.pending = sr.scratch[copied:encoded]
			break
		}
	}
	return n, nil
}
