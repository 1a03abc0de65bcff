// Package codec implements the ASN.1-flavored field encoding the XMM7360
// firmware speaks on its RPC channel.
//
// Pack consumes one format character per argument:
//
//	B, H, L          scalar integer on 1/2/4 wire bytes
//	s<capacity>      byte array with a fixed capacity, e.g. s260
//	S<B|H|L><cap>    array with 1/2/4-byte elements, e.g. SL8
//
// Scalars travel as generic integers (tag 0x02, length, big-endian value).
// Arrays carry an element-type tag, the occupied element count, the slot and
// padding byte counts as generic integers, the occupied elements and zero
// padding up to the declared capacity.
//
// Unpack mirrors this with 'n' (generic integer of any width) and 's'
// (array, yielding the occupied bytes).
package codec

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// Array element-type tags by element width.
const (
	tagBytes     = 0x55
	tagHalfwords = 0x56
	tagWords     = 0x57
)

// Pack encodes args into wire bytes, consuming format left to right. Each
// field specifier takes exactly one argument; a surplus or shortfall of
// arguments fails with ErrArgumentCount.
func Pack(format string, args ...any) ([]byte, error) {
	out := make([]byte, 0, 64)
	argi := 0

	for i := 0; i < len(format); {
		spec := format[i]
		i++

		if argi >= len(args) {
			return nil, fmt.Errorf("pack %q: %w", format, ErrArgumentCount)
		}
		arg := args[argi]
		argi++

		switch spec {
		case 'B', 'H', 'L':
			width := scalarWidth(spec)
			v, err := intValue(arg, width)
			if err != nil {
				return nil, fmt.Errorf("pack field %d: %w", argi-1, err)
			}
			out = AppendInt(out, width, v)

		case 's':
			capacity, n, err := takeCapacity(format[i:])
			if err != nil {
				return nil, fmt.Errorf("pack field %d: %w", argi-1, err)
			}
			i += n
			out, err = appendArray(out, capacity, 1, arg)
			if err != nil {
				return nil, fmt.Errorf("pack field %d: %w", argi-1, err)
			}

		case 'S':
			if i >= len(format) {
				return nil, fmt.Errorf("pack field %d: %w", argi-1, ErrFormat)
			}
			width := scalarWidth(format[i])
			i++
			if width == 0 {
				return nil, fmt.Errorf("pack field %d: %w", argi-1, ErrFormat)
			}
			capacity, n, err := takeCapacity(format[i:])
			if err != nil {
				return nil, fmt.Errorf("pack field %d: %w", argi-1, err)
			}
			i += n
			out, err = appendArray(out, capacity, width, arg)
			if err != nil {
				return nil, fmt.Errorf("pack field %d: %w", argi-1, err)
			}

		default:
			return nil, fmt.Errorf("pack: field %q: %w", spec, ErrFormat)
		}
	}

	if argi != len(args) {
		return nil, fmt.Errorf("pack %q: %w", format, ErrArgumentCount)
	}
	return out, nil
}

// Unpack decodes data per format, yielding uint32 for 'n' and []byte for 's'.
// Bytes past the last field are tolerated; running out of bytes mid-field is
// ErrTruncated.
func Unpack(format string, data []byte) ([]any, error) {
	out := make([]any, 0, len(format))
	for i := 0; i < len(format); i++ {
		switch format[i] {
		case 'n':
			v, rest, err := TakeInt(data)
			if err != nil {
				return nil, fmt.Errorf("unpack field %d: %w", i, err)
			}
			data = rest
			out = append(out, v)

		case 's':
			payload, rest, err := takeArray(data)
			if err != nil {
				return nil, fmt.Errorf("unpack field %d: %w", i, err)
			}
			data = rest
			out = append(out, payload)

		default:
			return nil, fmt.Errorf("unpack: field %q: %w", format[i], ErrFormat)
		}
	}
	return out, nil
}

func scalarWidth(spec byte) int {
	switch spec {
	case 'B':
		return 1
	case 'H':
		return 2
	case 'L':
		return 4
	}
	return 0
}

func takeCapacity(format string) (capacity, n int, err error) {
	for n < len(format) && format[n] >= '0' && format[n] <= '9' {
		n++
	}
	if n == 0 {
		return 0, 0, ErrFormat
	}
	capacity, err = strconv.Atoi(format[:n])
	if err != nil {
		return 0, 0, ErrFormat
	}
	return capacity, n, nil
}

func intValue(arg any, width int) (uint32, error) {
	var v uint64
	switch a := arg.(type) {
	case int:
		if a < 0 {
			return 0, ErrValueRange
		}
		v = uint64(a)
	case int8:
		if a < 0 {
			return 0, ErrValueRange
		}
		v = uint64(a)
	case int16:
		if a < 0 {
			return 0, ErrValueRange
		}
		v = uint64(a)
	case int32:
		if a < 0 {
			return 0, ErrValueRange
		}
		v = uint64(a)
	case int64:
		if a < 0 {
			return 0, ErrValueRange
		}
		v = uint64(a)
	case uint:
		v = uint64(a)
	case uint8:
		v = uint64(a)
	case uint16:
		v = uint64(a)
	case uint32:
		v = uint64(a)
	case uint64:
		v = a
	default:
		return 0, ErrValueType
	}
	if width < 4 && v > uint64(1)<<(8*width)-1 {
		return 0, ErrValueRange
	}
	if v > 0xffffffff {
		return 0, ErrValueRange
	}
	return uint32(v), nil
}

func appendArray(out []byte, capacity, width int, arg any) ([]byte, error) {
	var payload []byte
	var occupied int

	switch v := arg.(type) {
	case []byte:
		if width != 1 {
			return nil, ErrValueType
		}
		occupied = len(v)
		payload = v
	case string:
		if width != 1 {
			return nil, ErrValueType
		}
		occupied = len(v)
		payload = []byte(v)
	case []uint16:
		if width != 2 {
			return nil, ErrValueType
		}
		occupied = len(v)
		payload = make([]byte, 0, occupied*2)
		for _, e := range v {
			payload = binary.LittleEndian.AppendUint16(payload, e)
		}
	case []uint32:
		if width != 4 {
			return nil, ErrValueType
		}
		occupied = len(v)
		payload = make([]byte, 0, occupied*4)
		for _, e := range v {
			payload = binary.LittleEndian.AppendUint32(payload, e)
		}
	default:
		return nil, ErrValueType
	}

	if occupied > capacity {
		return nil, fmt.Errorf("occupied %d of %d: %w", occupied, capacity, ErrCapacityExceeded)
	}

	switch width {
	case 1:
		out = append(out, tagBytes)
	case 2:
		out = append(out, tagHalfwords)
	case 4:
		out = append(out, tagWords)
	}
	out = appendCount(out, occupied)
	out = AppendInt(out, 4, uint32(capacity*width))
	out = AppendInt(out, 4, uint32((capacity-occupied)*width))
	out = append(out, payload...)
	out = append(out, make([]byte, (capacity-occupied)*width)...)
	return out, nil
}

// appendCount emits the occupied element count: one byte below 128, else a
// 0x80+n lead byte followed by n count bytes, least significant first.
func appendCount(dst []byte, occupied int) []byte {
	if occupied < 0x80 {
		return append(dst, byte(occupied))
	}
	lead := byte(0x80)
	var bs []byte
	for rem := occupied; rem > 0; rem >>= 8 {
		bs = append(bs, byte(rem))
		lead++
	}
	dst = append(dst, lead)
	return append(dst, bs...)
}

func takeArray(data []byte) (payload, rest []byte, err error) {
	if len(data) < 2 {
		return nil, data, ErrTruncated
	}

	var width int
	switch data[0] {
	case tagBytes:
		width = 1
	case tagHalfwords:
		width = 2
	case tagWords:
		width = 4
	default:
		return nil, data, ErrBadTag
	}

	occupied := int(data[1])
	data = data[2:]
	if occupied&0x80 != 0 {
		n := occupied & 0x0f
		if n > 4 {
			return nil, data, ErrCount
		}
		if len(data) < n {
			return nil, data, ErrTruncated
		}
		occupied = 0
		for j := n - 1; j >= 0; j-- {
			occupied = occupied<<8 | int(data[j])
		}
		data = data[n:]
	}
	occupiedBytes := occupied * width

	slot, data, err := TakeInt(data)
	if err != nil {
		return nil, data, err
	}
	padding, data, err := TakeInt(data)
	if err != nil {
		return nil, data, err
	}

	// A zero slot size is taken at face value and the occupied byte count
	// stands in for it; the firmware omits the slot size on some fields.
	if slot != 0 && int(slot) != occupiedBytes+int(padding) {
		return nil, data, fmt.Errorf("slot %d, occupied %d, padding %d: %w",
			slot, occupiedBytes, padding, ErrLengthConflict)
	}

	if len(data) < occupiedBytes+int(padding) {
		return nil, data, ErrTruncated
	}
	payload = make([]byte, occupiedBytes)
	copy(payload, data[:occupiedBytes])
	return payload, data[occupiedBytes+int(padding):], nil
}
