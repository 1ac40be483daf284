// Package codec implements the wire codec named in spec.md §4.2: the
// 5-byte message frame prefix, the grpc-timeout header, and the
// HTTP-status / RST_STREAM-to-RPC-status mappings. It follows the
// byte-fiddling style of the teacher's pkg/codec/frame.go (manual
// big-endian encode/decode over a growable byte slice; a truncated
// trailing frame is detected through Decoder.Pending) adapted to the
// spec's fixed-width framing in place of the teacher's MQTT-style
// variable length encoding.
package codec

import (
	"encoding/binary"
	"errors"
	"io"

	"google.golang.org/grpc/mem"
)

// DefaultMaxMessageSize bounds a single frame's payload, matching the
// teacher's defaultServerMaxReceiveMessageSize default.
const DefaultMaxMessageSize = 1024 * 1024 * 4

var (
	ErrMessageTooLarge = errors.New("codec: message exceeds configured maximum size")
	errTruncatedFrame  = errors.New("codec: truncated frame")
)

// CompressionFlag is the one-byte flag preceding a frame's length.
// Only Identity is implemented (see SPEC_FULL.md: compression is an
// integration hook, not implemented). The Decoder reports the flag in
// Frame.Flag without acting on it, and the call package does not check
// it, so an Encoded frame's payload is handed on as-is.
type CompressionFlag byte

const (
	Identity CompressionFlag = 0
	Encoded  CompressionFlag = 1
)

// EncodeFrame writes [flag:1][len:4 big-endian][bytes:len] to w.
func EncodeFrame(w io.Writer, flag CompressionFlag, payload []byte) error {
	if len(payload) > 0xFFFFFFFF {
		return ErrMessageTooLarge
	}
	var hdr [5]byte
	hdr[0] = byte(flag)
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// Frame is one decoded, whole message frame.
type Frame struct {
	Flag    CompressionFlag
	Payload mem.Buffer
}

// Decoder is a stateful stream decoder: it accepts arbitrary DATA
// chunks via Write and yields whole frames via Next, buffering any
// partial trailing frame across calls (spec.md §4.2, §2 "Stream
// Decoder").
type Decoder struct {
	pool       mem.BufferPool
	maxMsgSize int

	buf        []byte
	haveHeader bool
	flag       CompressionFlag
	wantLen    uint32
}

func NewDecoder(pool mem.BufferPool, maxMsgSize int) *Decoder {
	if pool == nil {
		pool = mem.DefaultBufferPool()
	}
	if maxMsgSize <= 0 {
		maxMsgSize = DefaultMaxMessageSize
	}
	return &Decoder{pool: pool, maxMsgSize: maxMsgSize}
}

// Write feeds a DATA chunk into the decoder. It never blocks and never
// itself produces frames; call Next in a loop after each Write.
func (d *Decoder) Write(chunk []byte) {
	d.buf = append(d.buf, chunk...)
}

// Next attempts to pull one complete frame out of the buffered bytes.
// ok is false when there isn't a complete frame buffered yet.
func (d *Decoder) Next() (fr Frame, ok bool, err error) {
	if !d.haveHeader {
		if len(d.buf) < 5 {
			return Frame{}, false, nil
		}
		d.flag = CompressionFlag(d.buf[0])
		d.wantLen = binary.BigEndian.Uint32(d.buf[1:5])
		if d.wantLen > uint32(d.maxMsgSize) {
			return Frame{}, false, ErrMessageTooLarge
		}
		d.buf = d.buf[5:]
		d.haveHeader = true
	}
	if uint32(len(d.buf)) < d.wantLen {
		return Frame{}, false, nil
	}
	payload := d.buf[:d.wantLen]
	d.buf = d.buf[d.wantLen:]
	d.haveHeader = false

	bs := d.pool.Get(int(d.wantLen))
	copy(*bs, payload)
	buf := mem.NewBuffer(bs, d.pool)
	return Frame{Flag: d.flag, Payload: buf}, true, nil
}

// Reset discards any partially-buffered frame. The call package does
// not use it: at end of stream it checks Pending and fails the call.
func (d *Decoder) Reset() {
	d.buf = nil
	d.haveHeader = false
}

// Pending reports whether a partial frame (header or body) is
// buffered — used to detect a truncated stream at end-of-stream.
func (d *Decoder) Pending() bool {
	return d.haveHeader || len(d.buf) > 0
}

var ErrTruncatedStream = errTruncatedFrame
