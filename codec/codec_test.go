// Package codec
package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestPackScalarZero(t *testing.T) {
	out, err := Pack("L", 0)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	want := []byte{0x02, 0x04, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(out, want) {
		t.Fatalf("got % x, want % x", out, want)
	}

	vals, err := Unpack("n", out)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if vals[0].(uint32) != 0 {
		t.Fatalf("got %v, want 0", vals[0])
	}
}

func TestPackScalarWidths(t *testing.T) {
	out, err := Pack("BHL", 0x7f, 0xbeef, 0xdeadbeef)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	want := []byte{
		0x02, 0x01, 0x7f,
		0x02, 0x02, 0xbe, 0xef,
		0x02, 0x04, 0xde, 0xad, 0xbe, 0xef,
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("got % x, want % x", out, want)
	}

	vals, err := Unpack("nnn", out)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	for i, want := range []uint32{0x7f, 0xbeef, 0xdeadbeef} {
		if vals[i].(uint32) != want {
			t.Fatalf("field %d: got %#x, want %#x", i, vals[i], want)
		}
	}
}

func TestPackScalarRange(t *testing.T) {
	if _, err := Pack("B", 256); !errors.Is(err, ErrValueRange) {
		t.Fatalf("expected ErrValueRange, got %v", err)
	}
	if _, err := Pack("H", 0x10000); !errors.Is(err, ErrValueRange) {
		t.Fatalf("expected ErrValueRange, got %v", err)
	}
	if _, err := Pack("L", -1); !errors.Is(err, ErrValueRange) {
		t.Fatalf("expected ErrValueRange, got %v", err)
	}
}

func TestPackByteArray(t *testing.T) {
	out, err := Pack("s4", []byte{0xaa, 0xbb})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	want := []byte{
		0x55, 0x02,
		0x02, 0x04, 0x00, 0x00, 0x00, 0x04, // slot = capacity
		0x02, 0x04, 0x00, 0x00, 0x00, 0x02, // padding
		0xaa, 0xbb,
		0x00, 0x00,
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("got % x, want % x", out, want)
	}
}

func TestPackArrayAtCapacity(t *testing.T) {
	out, err := Pack("s3", []byte("abc"))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	// padding byte count field must be zero and no padding bytes follow
	want := []byte{
		0x55, 0x03,
		0x02, 0x04, 0x00, 0x00, 0x00, 0x03,
		0x02, 0x04, 0x00, 0x00, 0x00, 0x00,
		'a', 'b', 'c',
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("got % x, want % x", out, want)
	}
}

func TestPackArrayOverCapacity(t *testing.T) {
	_, err := Pack("s4", []byte("hello"))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestPackExtendedCount(t *testing.T) {
	out, err := Pack("s260", make([]byte, 130))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if out[0] != 0x55 || out[1] != 0x81 || out[2] != 130 {
		t.Fatalf("extended count prefix: got % x", out[:3])
	}

	vals, err := Unpack("s", out)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if len(vals[0].([]byte)) != 130 {
		t.Fatalf("got %d occupied bytes, want 130", len(vals[0].([]byte)))
	}
}

func TestExtendedCountBoundary(t *testing.T) {
	// 127 is the last single-byte count, 128 the first extended one.
	out, err := Pack("s260", make([]byte, 127))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if out[1] != 0x7f {
		t.Fatalf("count byte: got %#x, want 0x7f", out[1])
	}

	out, err = Pack("s260", make([]byte, 128))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if out[1] != 0x81 || out[2] != 0x80 {
		t.Fatalf("extended count prefix: got % x", out[1:3])
	}
	vals, err := Unpack("s", out)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if len(vals[0].([]byte)) != 128 {
		t.Fatalf("got %d occupied bytes, want 128", len(vals[0].([]byte)))
	}
}

func TestExtendedCountTwoBytes(t *testing.T) {
	out, err := Pack("s300", make([]byte, 260))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	// 260 = 0x104, least significant byte first
	if out[1] != 0x82 || out[2] != 0x04 || out[3] != 0x01 {
		t.Fatalf("extended count: got % x", out[1:4])
	}

	vals, err := Unpack("s", out)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if len(vals[0].([]byte)) != 260 {
		t.Fatalf("got %d occupied bytes, want 260", len(vals[0].([]byte)))
	}
}

func TestPackTypedArray(t *testing.T) {
	out, err := Pack("SH4", []uint16{1, 2})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	want := []byte{
		0x56, 0x02,
		0x02, 0x04, 0x00, 0x00, 0x00, 0x08,
		0x02, 0x04, 0x00, 0x00, 0x00, 0x04,
		0x01, 0x00, 0x02, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("got % x, want % x", out, want)
	}

	vals, err := Unpack("s", out)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !bytes.Equal(vals[0].([]byte), []byte{0x01, 0x00, 0x02, 0x00}) {
		t.Fatalf("occupied bytes: got % x", vals[0])
	}
}

func TestPackArity(t *testing.T) {
	if _, err := Pack("BB", 1); !errors.Is(err, ErrArgumentCount) {
		t.Fatalf("too few args: got %v", err)
	}
	if _, err := Pack("B", 1, 2); !errors.Is(err, ErrArgumentCount) {
		t.Fatalf("too many args: got %v", err)
	}
}

func TestPackBadFormat(t *testing.T) {
	if _, err := Pack("x", 1); !errors.Is(err, ErrFormat) {
		t.Fatalf("unknown char: got %v", err)
	}
	if _, err := Pack("s", []byte{}); !errors.Is(err, ErrFormat) {
		t.Fatalf("missing capacity: got %v", err)
	}
	if _, err := Pack("S9", []byte{}); !errors.Is(err, ErrFormat) {
		t.Fatalf("missing element width: got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	out, err := Pack("BLs6HS", 7, 0x11223344, []byte("ab"), 0xffff)
	if err == nil {
		t.Fatalf("trailing S without element width must fail, got % x", out)
	}

	out, err = Pack("BLs6H", 7, 0x11223344, []byte("ab"), 0xffff)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	vals, err := Unpack("nnsn", out)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if vals[0].(uint32) != 7 || vals[1].(uint32) != 0x11223344 {
		t.Fatalf("scalars: got %v", vals[:2])
	}
	if !bytes.Equal(vals[2].([]byte), []byte("ab")) {
		t.Fatalf("array: got %q", vals[2])
	}
	if vals[3].(uint32) != 0xffff {
		t.Fatalf("trailing scalar: got %v", vals[3])
	}
}

func TestUnpackZeroSlotFallback(t *testing.T) {
	// slot size omitted (zero): the occupied count stands in, the cursor
	// still advances past occupied + padding
	data := []byte{
		0x55, 0x01,
		0x02, 0x04, 0x00, 0x00, 0x00, 0x00, // slot = 0
		0x02, 0x04, 0x00, 0x00, 0x00, 0x02, // padding = 2
		'x', 0x00, 0x00,
		0x02, 0x01, 0x07, // following integer field
	}
	vals, err := Unpack("sn", data)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !bytes.Equal(vals[0].([]byte), []byte("x")) {
		t.Fatalf("payload: got %q", vals[0])
	}
	if vals[1].(uint32) != 7 {
		t.Fatalf("trailing field: got %v", vals[1])
	}
}

func TestUnpackLengthConflict(t *testing.T) {
	data := []byte{
		0x55, 0x03,
		0x02, 0x04, 0x00, 0x00, 0x00, 0x05, // slot = 5
		0x02, 0x04, 0x00, 0x00, 0x00, 0x01, // padding = 1, but 3+1 != 5
		'a', 'b', 'c', 0x00,
	}
	if _, err := Unpack("s", data); !errors.Is(err, ErrLengthConflict) {
		t.Fatalf("expected ErrLengthConflict, got %v", err)
	}
}

func TestUnpackMalformed(t *testing.T) {
	if _, err := Unpack("n", []byte{0x02}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("short integer: got %v", err)
	}
	if _, err := Unpack("n", []byte{0x07, 0x01, 0x00}); !errors.Is(err, ErrBadTag) {
		t.Fatalf("wrong integer tag: got %v", err)
	}
	if _, err := Unpack("s", []byte{0x99, 0x00}); !errors.Is(err, ErrBadTag) {
		t.Fatalf("wrong array tag: got %v", err)
	}
	if _, err := Unpack("s", []byte{0x55, 0x04, 0x02, 0x04, 0x00, 0x00, 0x00, 0x00, 0x02, 0x04, 0x00, 0x00, 0x00, 0x00, 'a'}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("short payload: got %v", err)
	}
	if _, err := Unpack("q", []byte{}); !errors.Is(err, ErrFormat) {
		t.Fatalf("unknown format char: got %v", err)
	}
}

func TestTakeIntAnyWidth(t *testing.T) {
	for _, tc := range []struct {
		data []byte
		want uint32
	}{
		{[]byte{0x02, 0x01, 0x2a}, 42},
		{[]byte{0x02, 0x02, 0x01, 0x00}, 256},
		{[]byte{0x02, 0x04, 0x11, 0x00, 0x01, 0x00}, 0x11000100},
	} {
		v, rest, err := TakeInt(tc.data)
		if err != nil {
			t.Fatalf("take % x: %v", tc.data, err)
		}
		if v != tc.want {
			t.Fatalf("take % x: got %#x, want %#x", tc.data, v, tc.want)
		}
		if len(rest) != 0 {
			t.Fatalf("take % x: %d bytes left over", tc.data, len(rest))
		}
	}
}

func BenchmarkPackUnpack(b *testing.B) {
	body := make([]byte, 200)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		out, err := Pack("BLs260", 1, 0xffff, body)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Unpack("nns", out); err != nil {
			b.Fatal(err)
		}
	}
}
