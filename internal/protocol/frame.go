package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// LengthPrefixSize is the size of the big-endian uint32 length prefix that
// precedes every JSON payload on the Executor channel.
const LengthPrefixSize = 4

// MaxFrameLen bounds a single frame so a corrupt length prefix cannot make
// the decoder try to buffer gigabytes of garbage. 4 GiB - 5 per SPEC_FULL.md.
const MaxFrameLen = (4 << 30) - 5

// FrameDecoder reassembles length-prefixed frames out of an arbitrarily
// chunked byte stream, mirroring the original supervisor_socket.py's
// conn.recv(4096) loop: bytes are appended as they arrive and as many
// complete frames as the buffer holds are extracted before more input is
// requested.
type FrameDecoder struct {
	buf []byte
}

// NewFrameDecoder returns an empty decoder ready to Feed.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{buf: make([]byte, 0, 4096)}
}

// Feed appends newly received bytes to the internal buffer.
func (d *FrameDecoder) Feed(chunk []byte) {
	d.buf = append(d.buf, chunk...)
}

// Next extracts one complete frame's payload from the buffer, if present.
// Call it repeatedly until ok is false before feeding more bytes.
func (d *FrameDecoder) Next() (payload []byte, ok bool, err error) {
	if len(d.buf) < LengthPrefixSize {
		return nil, false, nil
	}
	n := binary.BigEndian.Uint32(d.buf[:LengthPrefixSize])
	if n > MaxFrameLen {
		return nil, false, fmt.Errorf("protocol: frame length %d exceeds max %d", n, MaxFrameLen)
	}
	total := LengthPrefixSize + int(n)
	if len(d.buf) < total {
		return nil, false, nil
	}

	payload = make([]byte, n)
	copy(payload, d.buf[LengthPrefixSize:total])

	remaining := len(d.buf) - total
	copy(d.buf, d.buf[total:])
	d.buf = d.buf[:remaining]

	return payload, true, nil
}

// EncodeFrame prefixes payload with its big-endian uint32 length, ready for
// a single atomic Write call.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameLen {
		return nil, fmt.Errorf("protocol: payload of %d bytes exceeds max frame length", len(payload))
	}
	out := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(out[:LengthPrefixSize], uint32(len(payload)))
	copy(out[LengthPrefixSize:], payload)
	return out, nil
}

// WriteFrame JSON-encodes nothing itself -- callers pass an already-encoded
// payload -- and performs the length-prefixed write as one Write call, so a
// concurrent reader never observes a torn frame.
func WriteFrame(w io.Writer, payload []byte) error {
	framed, err := EncodeFrame(payload)
	if err != nil {
		return err
	}
	_, err = w.Write(framed)
	return err
}

// ReadFrame reads exactly one frame from r using blocking io.ReadFull calls.
// It is used by peers (such as the reference Executor) that own a dedicated
// goroutine per connection and don't need FrameDecoder's incremental-buffer
// style reassembly.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameLen {
		return nil, fmt.Errorf("protocol: frame length %d exceeds max %d", n, MaxFrameLen)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
