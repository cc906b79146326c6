// Package frame reads and writes streams of varint length-prefixed messages,
// the framing protobuf tooling calls "delimited".
package frame

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/protocol/codec"
	"github.com/danmuck/protokit/internal/protocol/wire"
)

var (
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrEmptyPrefix     = errors.New("frame: missing length prefix")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

func (l Limits) check(n uint64) error {
	if l.MaxPayloadBytes > 0 && n > l.MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, n, l.MaxPayloadBytes)
	}
	return nil
}

// AppendDelimited appends the length prefix and payload to b.
func AppendDelimited(b, payload []byte) []byte {
	return wire.AppendBytes(b, payload)
}

// SplitDelimited reads one frame from the front of b. It returns the payload
// and the number of bytes consumed.
func SplitDelimited(b []byte, limits Limits) ([]byte, int, error) {
	if len(b) == 0 {
		return nil, 0, ErrEmptyPrefix
	}
	n, pn, err := wire.ConsumeVarint(b)
	if err != nil {
		return nil, 0, err
	}
	if err := limits.check(n); err != nil {
		return nil, 0, err
	}
	if uint64(len(b)-pn) < n {
		return nil, 0, &protocol.DecodeError{Reason: protocol.Truncated, Err: io.ErrUnexpectedEOF}
	}
	end := pn + int(n)
	return b[pn:end], end, nil
}

// WriteDelimited writes one frame.
func WriteDelimited(w io.Writer, payload []byte, limits Limits) error {
	if err := limits.check(uint64(len(payload))); err != nil {
		return err
	}
	var prefix [wire.MaxVarintLen]byte
	p := wire.AppendVarint(prefix[:0], uint64(len(payload)))
	if _, err := w.Write(p); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadDelimited reads one frame. The prefix is read byte by byte so nothing
// past the frame is consumed from r. A clean end of stream before the first
// prefix byte returns io.EOF.
func ReadDelimited(r io.Reader, limits Limits) ([]byte, error) {
	n, err := readPrefix(r)
	if err != nil {
		return nil, err
	}
	if err := limits.check(n); err != nil {
		return nil, err
	}
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	if n > allocChunk {
		return readGrowing(r, int64(n))
	}
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, truncated(err)
		}
	}
	return payload, nil
}

// allocChunk is the largest payload allocated from the prefix alone. Longer
// payloads grow with the bytes that actually arrive, so a lying prefix costs
// at most one chunk.
const allocChunk = 64 * 1024

func readGrowing(r io.Reader, n int64) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(allocChunk)
	if _, err := io.CopyN(&buf, r, n); err != nil {
		return nil, truncated(err)
	}
	return buf.Bytes(), nil
}

func truncated(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &protocol.DecodeError{Reason: protocol.Truncated, Err: io.ErrUnexpectedEOF}
	}
	return err
}

func readPrefix(r io.Reader) (uint64, error) {
	var buf [wire.MaxVarintLen]byte
	for i := range buf {
		if _, err := io.ReadFull(r, buf[i:i+1]); err != nil {
			if errors.Is(err, io.EOF) {
				if i == 0 {
					return 0, io.EOF
				}
				return 0, &protocol.DecodeError{Reason: protocol.TruncatedVarint, Err: io.ErrUnexpectedEOF}
			}
			return 0, err
		}
		if buf[i] < 0x80 {
			v, _, err := wire.ConsumeVarint(buf[:i+1])
			return v, err
		}
	}
	_, _, err := wire.ConsumeVarint(buf[:])
	return 0, err
}

// Writer encodes messages onto a delimited stream.
type Writer struct {
	w      io.Writer
	limits Limits
	opts   codec.MarshalOptions
	buf    []byte
}

func NewWriter(w io.Writer, limits Limits, opts codec.MarshalOptions) *Writer {
	return &Writer{w: w, limits: limits, opts: opts}
}

// WriteMessage encodes m and writes it as one frame.
func (w *Writer) WriteMessage(m any) error {
	payload, err := w.opts.Append(w.buf[:0], m)
	if err != nil {
		return err
	}
	w.buf = payload
	return WriteDelimited(w.w, payload, w.limits)
}

// Reader decodes messages from a delimited stream.
type Reader struct {
	r      *bufio.Reader
	limits Limits
	opts   codec.UnmarshalOptions
}

func NewReader(r io.Reader, limits Limits, opts codec.UnmarshalOptions) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br, limits: limits, opts: opts}
}

// Next returns the payload of the next frame, io.EOF at a clean end.
func (r *Reader) Next() ([]byte, error) {
	return ReadDelimited(r.r, r.limits)
}

// ReadMessage decodes the next frame into m.
func (r *Reader) ReadMessage(m any) error {
	payload, err := r.Next()
	if err != nil {
		return err
	}
	return r.opts.Unmarshal(payload, m)
}
