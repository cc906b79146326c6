package wire

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/testutil/testlog"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestVarintBoundarySizes(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		v    uint64
		size int
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{math.MaxUint32, 5},
		{^uint64(0), 10},
		{math.MaxUint64, 10},
	}
	for _, tc := range cases {
		b := AppendVarint(nil, tc.v)
		if len(b) != tc.size {
			t.Fatalf("varint %d: got %d bytes want %d", tc.v, len(b), tc.size)
		}
		if SizeVarint(tc.v) != tc.size {
			t.Fatalf("size varint %d: got %d want %d", tc.v, SizeVarint(tc.v), tc.size)
		}
		if !bytes.Equal(b, protowire.AppendVarint(nil, tc.v)) {
			t.Fatalf("varint %d differs from protowire: %x", tc.v, b)
		}
		got, n, err := ConsumeVarint(b)
		if err != nil {
			t.Fatalf("consume varint %d: %v", tc.v, err)
		}
		if got != tc.v || n != tc.size {
			t.Fatalf("consume varint: got (%d,%d) want (%d,%d)", got, n, tc.v, tc.size)
		}
	}
}

func TestNegativeInt64UsesMaximalVarint(t *testing.T) {
	testlog.Start(t)

	b := AppendVarint(nil, ^uint64(0))
	want := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}
	if !bytes.Equal(b, want) {
		t.Fatalf("unexpected encoding: %x", b)
	}
	v, _, err := ConsumeVarint(b)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if int64(v) != -1 {
		t.Fatalf("expected -1, got %d", int64(v))
	}
}

func TestConsumeVarintMalformedIsDeterministic(t *testing.T) {
	testlog.Start(t)

	_, _, err := ConsumeVarint([]byte{0x80, 0x80})
	var de *protocol.DecodeError
	if !errors.As(err, &de) || de.Reason != protocol.TruncatedVarint {
		t.Fatalf("expected truncated varint, got %v", err)
	}
	if !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}

	overflow := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02}
	_, _, err = ConsumeVarint(overflow)
	if !errors.Is(err, protocol.ErrVarintOverflow) {
		t.Fatalf("expected ErrVarintOverflow, got %v", err)
	}
}

func TestFixedValuesAreLittleEndian(t *testing.T) {
	testlog.Start(t)

	b := AppendFixed32(nil, 0x01020304)
	if !bytes.Equal(b, []byte{4, 3, 2, 1}) {
		t.Fatalf("fixed32: %x", b)
	}
	b = AppendDouble(nil, 1.5)
	if !bytes.Equal(b, protowire.AppendFixed64(nil, math.Float64bits(1.5))) {
		t.Fatalf("double: %x", b)
	}
	v, n, err := ConsumeFixed64(b)
	if err != nil || n != 8 || math.Float64frombits(v) != 1.5 {
		t.Fatalf("consume fixed64: v=%v n=%d err=%v", v, n, err)
	}
	if _, _, err := ConsumeFixed32([]byte{1, 2}); !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected truncated fixed32, got %v", err)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	testlog.Start(t)

	b := AppendKey(nil, 1, Bytes)
	if !bytes.Equal(b, []byte{0x0a}) {
		t.Fatalf("key 1/bytes: %x", b)
	}
	b = AppendKey(nil, MaxNumber, Fixed32)
	num, typ, n, err := ConsumeKey(b)
	if err != nil {
		t.Fatalf("consume key: %v", err)
	}
	if num != MaxNumber || typ != Fixed32 || n != len(b) {
		t.Fatalf("key mismatch: num=%d typ=%s n=%d", num, typ, n)
	}
	if _, _, _, err := ConsumeKey([]byte{0x02}); !errors.Is(err, protocol.ErrInvalidFieldNumber) {
		t.Fatalf("expected ErrInvalidFieldNumber for number 0, got %v", err)
	}
}

func TestConsumeBytesRejectsOverrun(t *testing.T) {
	testlog.Start(t)

	_, _, err := ConsumeBytes([]byte{5, 'a', 'b'})
	if !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	data, n, err := ConsumeBytes(AppendString(nil, "Lukas"))
	if err != nil || n != 6 || string(data) != "Lukas" {
		t.Fatalf("consume bytes: data=%q n=%d err=%v", data, n, err)
	}
}

func TestConsumeReasonsMatchProtowire(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name   string
		in     []byte
		reason protocol.DecodeReason
	}{
		{"prefix cut", []byte{0x80}, protocol.TruncatedVarint},
		{"payload cut", []byte{0x03, 'a'}, protocol.Truncated},
		{"prefix overflow", bytes.Repeat([]byte{0xff}, 10), protocol.VarintOverflow},
	}
	for _, tc := range cases {
		_, n, err := ConsumeBytes(tc.in)
		var de *protocol.DecodeError
		if !errors.As(err, &de) || de.Reason != tc.reason {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.reason, err)
		}
		if _, pn := protowire.ConsumeBytes(tc.in); pn >= 0 || n != 0 {
			t.Fatalf("%s: protowire accepted input (n=%d)", tc.name, pn)
		}
	}
	if EncodeKey(MaxNumber, Bytes) != protowire.EncodeTag(protowire.MaxValidNumber, protowire.BytesType) {
		t.Fatalf("key encoding differs from protowire")
	}
	num, typ := DecodeKey(EncodeKey(150, Fixed64))
	if num != 150 || typ != Fixed64 {
		t.Fatalf("decode key: num=%d typ=%s", num, typ)
	}
}
