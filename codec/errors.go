package codec

import "errors"

var (
	ErrTruncated        = errors.New("codec: truncated buffer")
	ErrBadTag           = errors.New("codec: unrecognized field tag")
	ErrCapacityExceeded = errors.New("codec: occupied length exceeds capacity")
	ErrArgumentCount    = errors.New("codec: argument count does not match format")
	ErrFormat           = errors.New("codec: malformed format string")
	ErrCount            = errors.New("codec: invalid occupied count")
	ErrLengthConflict   = errors.New("codec: slot length conflict")
	ErrValueRange       = errors.New("codec: value out of range for field width")
	ErrValueType        = errors.New("codec: unsupported value type for field")
)
