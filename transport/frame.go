// Package transport
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/augustjohansson/xmm7360-pci/codec"
)

// Wire layout of one frame, after a little-endian length prefix counting the
// remaining bytes:
//
//	[0:4]    total length, little-endian
//	[4:10]   total length again, generic integer
//	[10:16]  command or response code, generic integer
//	[16:20]  channel tag word, big-endian
//	[20:]    body
//
// Transacted frames repeat the tag word as a generic integer at the head of
// the body.
const (
	// ChannelTagBase is or-ed with a transaction id to form the tag word
	// of a transacted frame. The bare base marks a synchronous frame, a
	// zero word an unsolicited one.
	ChannelTagBase uint32 = 0x11000100

	HeaderLength   = 20
	minFrameLength = 16

	// DefaultMaxFrameSize bounds a single frame during reassembly.
	DefaultMaxFrameSize uint32 = 64 << 10
)

type Frame struct {
	TotalLength    uint32 // from the length prefix
	EmbeddedLength uint32 // generic-integer copy of the prefix
	Code           uint32
	Tag            uint32
	Body           []byte
}

// NewFrame builds an outbound frame. A nonzero transaction id is folded into
// the tag word and echoed at the head of the body.
func NewFrame(code uint32, tid uint8, body []byte) *Frame {
	tag := ChannelTagBase | uint32(tid)
	b := body
	if tid != 0 {
		b = make([]byte, 0, 6+len(body))
		b = codec.AppendInt(b, 4, tag)
		b = append(b, body...)
	}
	total := uint32(minFrameLength + len(b))
	return &Frame{
		TotalLength:    total,
		EmbeddedLength: total,
		Code:           code,
		Tag:            tag,
		Body:           b,
	}
}

// TID extracts the transaction id, zero for synchronous, unsolicited or
// foreign tag words.
func (f *Frame) TID() uint8 {
	if f.Tag&^uint32(0xff) != ChannelTagBase {
		return 0
	}
	return uint8(f.Tag & 0xff)
}

func (f *Frame) IsSync() bool {
	return f.Tag == ChannelTagBase
}

func (f *Frame) IsUnsolicited() bool {
	return f.Tag == 0
}

// LengthMismatch reports a frame whose embedded length field disagrees with
// the length prefix. The prefix governs framing; the disagreement is left
// for the receiver to log.
func (f *Frame) LengthMismatch() bool {
	return f.EmbeddedLength != f.TotalLength
}

// WireSize is the encoded size including the length prefix.
func (f *Frame) WireSize() int {
	return 4 + minFrameLength + len(f.Body)
}

func (f *Frame) Encode() []byte {
	total := uint32(minFrameLength + len(f.Body))
	out := make([]byte, 0, 4+total)
	out = binary.LittleEndian.AppendUint32(out, total)
	out = codec.AppendInt(out, 4, total)
	out = codec.AppendInt(out, 4, f.Code)
	out = binary.BigEndian.AppendUint32(out, f.Tag)
	return append(out, f.Body...)
}

// ParseFrame decodes one whole frame including its length prefix. A prefix
// that disagrees with the embedded length field is preserved in the returned
// frame rather than rejected.
func ParseFrame(wire []byte) (*Frame, error) {
	if len(wire) < HeaderLength {
		return nil, ErrShortFrame
	}

	f := &Frame{TotalLength: binary.LittleEndian.Uint32(wire)}

	var err error
	rest := wire[4:]
	f.EmbeddedLength, rest, err = codec.TakeInt(rest)
	if err != nil {
		return nil, fmt.Errorf("transport: length field: %w", err)
	}
	f.Code, rest, err = codec.TakeInt(rest)
	if err != nil {
		return nil, fmt.Errorf("transport: code field: %w", err)
	}
	if len(rest) < 4 {
		return nil, ErrShortFrame
	}
	f.Tag = binary.BigEndian.Uint32(rest)
	f.Body = rest[4:]
	return f, nil
}

func newFrameReader(r io.Reader, max uint32) *frameReader {
	if max == 0 {
		max = DefaultMaxFrameSize
	}
	return &frameReader{
		r:   bufio.NewReader(r),
		max: max,
	}
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{
		w: w,
	}
}

type frameReader struct {
	r         *bufio.Reader
	max       uint32
	prefixBuf [4]byte
}

// Read reassembles one frame from the stream: the length prefix first, then
// exactly that many bytes.
func (f *frameReader) Read() (*Frame, error) {
	_, err := io.ReadFull(f.r, f.prefixBuf[:])
	if err != nil {
		return nil, err
	}

	total := binary.LittleEndian.Uint32(f.prefixBuf[:])
	if total < minFrameLength || total > f.max {
		return nil, fmt.Errorf("transport: frame length %d: %w", total, ErrFrameBounds)
	}

	wire := make([]byte, 4+total)
	copy(wire, f.prefixBuf[:])
	if _, err := io.ReadFull(f.r, wire[4:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	// The prefix was honored, so the stream stays frame-aligned even when
	// the header fields inside do not decode.
	fr, err := ParseFrame(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameMalformed, err)
	}
	return fr, nil
}

type frameWriter struct {
	w io.Writer
}

func (f *frameWriter) Write(m *Frame) (int, error) {
	return f.w.Write(m.Encode())
}
