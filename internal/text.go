// Package internal holds text normalization helpers shared by the stream
// package and the command line tool.
package internal

import "bytes"

var (
	lf   = []byte("\n")
	crlf = []byte("\r\n")
)

// CanonicalizeBytes converts all line endings to CRLF, the form signed text
// is hashed in.
func CanonicalizeBytes(text []byte) []byte {
	return bytes.ReplaceAll(bytes.ReplaceAll(text, crlf, lf), lf, crlf)
}

// TrimEachLineBytes strips trailing whitespace from every line, as required
// before hashing the body of a signed MIME part.
func TrimEachLineBytes(text []byte) []byte {
	lines := bytes.Split(text, lf)
	for i := range lines {
		lines[i] = bytes.TrimRight(lines[i], " \t\r")
	}
	return bytes.Join(lines, lf)
}
