package stream

import (
	"io"

	"github.com/pkg/errors"
)

// gateState tracks the release of plaintext relative to verification.
type gateState int8

const (
	stateIdle gateState = iota
	// stateAccumulating reads ahead of the caller; bytes released in this
	// state are unauthenticated.
	stateAccumulating
	// stateDraining serves the verified tail after the trailing packets
	// have been processed.
	stateDraining
	stateExhausted
)

// fillChunk is the unit in which literal data is pulled into the window.
const fillChunk = 1 << 15

// Read streams the literal data. The reader keeps a window of up to twice
// the configured buffer size ahead of the caller and withholds the final
// buffer-sized tail until the trailing packets have been consumed and the
// signatures checked. A message whose literal data fits in the buffer is
// therefore fully verified before its first byte is released; for larger
// messages the caller must treat everything read before MessageProcessed
// reports true as unauthenticated.
func (mr *MessageReader) Read(p []byte) (int, error) {
	if mr.err != nil {
		return 0, mr.err
	}
	for {
		switch mr.state {
		case stateIdle:
			return 0, errors.New("pgpstream: message reader was not started")
		case stateAccumulating:
			if n := mr.serveWindow(p, mr.bufferSize); n > 0 {
				return n, nil
			}
			if err := mr.advance(); err != nil {
				mr.err = err
				return 0, err
			}
		case stateDraining:
			if n := mr.serveWindow(p, 0); n > 0 {
				return n, nil
			}
			mr.state = stateExhausted
			mr.err = io.EOF
			return 0, io.EOF
		case stateExhausted:
			return 0, io.EOF
		}
	}
}

// serveWindow copies window bytes to p, always leaving at least retain
// unserved bytes behind.
func (mr *MessageReader) serveWindow(p []byte, retain int) int {
	available := len(mr.window) - mr.cursor - retain
	if available <= 0 {
		return 0
	}
	if available > len(p) {
		available = len(p)
	}
	n := copy(p, mr.window[mr.cursor:mr.cursor+available])
	mr.cursor += n
	return n
}

// advance pulls more literal data into the window, hashing it on the way
// in, and flips to draining once the remaining tail is small enough to be
// verified before release.
func (mr *MessageReader) advance() error {
	if mr.cursor > 0 {
		mr.window = append(mr.window[:0], mr.window[mr.cursor:]...)
		mr.cursor = 0
	}
	target := 2 * mr.bufferSize
	for !mr.literalEOF && len(mr.window) < target {
		chunk := fillChunk
		if remaining := target - len(mr.window); remaining < chunk {
			chunk = remaining
		}
		start := len(mr.window)
		mr.window = append(mr.window, make([]byte, chunk)...)
		n, err := mr.literal.Body.Read(mr.window[start : start+chunk])
		mr.window = mr.window[:start+n]
		if n > 0 {
			mr.hashLiteral(mr.window[start:])
		}
		if err == io.EOF {
			mr.literalEOF = true
			break
		}
		if err != nil {
			return mr.collapse(err)
		}
	}
	if mr.literalEOF && len(mr.window)-mr.cursor <= mr.bufferSize {
		if err := mr.finishMessage(); err != nil {
			return err
		}
		mr.state = stateDraining
	}
	return nil
}

// DiscardAll consumes the remaining plaintext without keeping it, driving
// the message to full verification.
func (mr *MessageReader) DiscardAll() error {
	_, err := io.Copy(io.Discard, mr)
	return err
}

// ReadAll consumes and returns all remaining plaintext. The returned bytes
// are authenticated: the trailing packets and signatures have been fully
// processed by the time ReadAll returns without error.
func (mr *MessageReader) ReadAll() ([]byte, error) {
	return io.ReadAll(mr)
}
