package codec

// integerTag marks a generic integer field: tag, length byte, big-endian value.
const integerTag = 0x02

// AppendInt appends the generic-integer encoding of v at the given wire
// width (1, 2 or 4 bytes).
func AppendInt(dst []byte, width int, v uint32) []byte {
	dst = append(dst, integerTag, byte(width))
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

// TakeInt consumes one generic integer from data regardless of its declared
// width and returns the value together with the remaining bytes. The value is
// reconstructed by shifting in each length byte, so callers need not know the
// width in advance.
func TakeInt(data []byte) (uint32, []byte, error) {
	if len(data) < 2 {
		return 0, data, ErrTruncated
	}
	if data[0] != integerTag {
		return 0, data, ErrBadTag
	}
	n := int(data[1])
	if len(data) < 2+n {
		return 0, data, ErrTruncated
	}
	var v uint32
	for _, b := range data[2 : 2+n] {
		v = v<<8 | uint32(b)
	}
	return v, data[2+n:], nil
}
