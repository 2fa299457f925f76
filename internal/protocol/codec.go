package protocol

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
)

// Reader decodes a stream of newline-delimited JSON envelopes.
type Reader struct {
	dec *json.Decoder
}

// NewReader wraps r for envelope reading.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: json.NewDecoder(bufio.NewReader(r))}
}

// Read blocks until the next envelope arrives or the stream fails.
// io.EOF means the peer closed cleanly.
func (r *Reader) Read() (Envelope, error) {
	var e Envelope
	if err := r.dec.Decode(&e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// Writer encodes envelopes onto a stream. Safe for concurrent use: responses
// and unsolicited broadcasts share one connection, so whole-envelope writes
// must not interleave.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
	bw  *bufio.Writer
}

// NewWriter wraps w for envelope writing.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{enc: json.NewEncoder(bw), bw: bw}
}

// Write serializes one envelope followed by a newline and flushes.
func (w *Writer) Write(e Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(e); err != nil {
		return err
	}
	return w.bw.Flush()
}

// Send is a convenience that builds and writes an envelope in one step.
func (w *Writer) Send(msgType string, payload any) error {
	e, err := New(msgType, payload)
	if err != nil {
		return err
	}
	return w.Write(e)
}
