package wire

import (
	"errors"
	"testing"

	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/testutil/testlog"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestParseRecordsOccurrencesInEncounterOrder(t *testing.T) {
	testlog.Start(t)

	var b []byte
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, "Lukas")
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 150)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, "Kollmer")
	b = protowire.AppendTag(b, 3, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 7)
	b = protowire.AppendTag(b, 4, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 9)

	table, err := Parse(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if table.Len() != 5 {
		t.Fatalf("expected 5 occurrences, got %d", table.Len())
	}
	names := table.All(2)
	if len(names) != 2 {
		t.Fatalf("expected 2 occurrences of field 2, got %d", len(names))
	}
	if string(table.Data(names[0])) != "Lukas" || string(table.Data(names[1])) != "Kollmer" {
		t.Fatalf("unexpected payloads: %q %q", table.Data(names[0]), table.Data(names[1]))
	}
	if names[0].KeyOffset != 0 || names[0].ValueOffset != 1 || names[0].Length != 7 {
		t.Fatalf("unexpected offsets: %+v", names[0])
	}
	last, ok := table.Last(2)
	if !ok || last.KeyOffset != names[1].KeyOffset {
		t.Fatalf("last occurrence mismatch: %+v", last)
	}
	v, _ := table.Last(1)
	if v.Type != Varint || v.Varint != 150 {
		t.Fatalf("varint field: %+v", v)
	}
	f32, _ := table.Last(3)
	f64, _ := table.Last(4)
	if f32.Fixed32 != 7 || f64.Fixed64 != 9 {
		t.Fatalf("fixed fields: %+v %+v", f32, f64)
	}
	got := table.Numbers()
	if len(got) != 4 || got[0] != 1 || got[3] != 4 {
		t.Fatalf("numbers: %v", got)
	}
	if table.Has(5) {
		t.Fatalf("field 5 should be absent")
	}
	if len(table.Raw(v)) != v.Length {
		t.Fatalf("raw span length mismatch")
	}
}

func TestParseEmptyInput(t *testing.T) {
	testlog.Start(t)

	table, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if table.Len() != 0 || len(table.Numbers()) != 0 {
		t.Fatalf("expected empty table")
	}
}

func TestParseMalformedInputIsDeterministic(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name   string
		in     []byte
		reason protocol.DecodeReason
	}{
		{"truncated key", []byte{0x80}, protocol.TruncatedVarint},
		{"truncated varint value", []byte{0x08, 0x80}, protocol.TruncatedVarint},
		{"truncated fixed32", []byte{0x0d, 1, 2, 3}, protocol.Truncated},
		{"truncated fixed64", []byte{0x09, 1, 2, 3, 4, 5, 6, 7}, protocol.Truncated},
		{"length overrun", []byte{0x0a, 0x05, 'a'}, protocol.Truncated},
		{"start group", []byte{0x0b}, protocol.UnsupportedWireType},
		{"end group", []byte{0x0c}, protocol.UnsupportedWireType},
		{"wire type 6", []byte{0x0e}, protocol.UnsupportedWireType},
		{"field zero", []byte{0x00, 0x01}, protocol.InvalidFieldNumber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.in)
			var de *protocol.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if de.Reason != tc.reason {
				t.Fatalf("expected reason %s, got %s", tc.reason, de.Reason)
			}
		})
	}
}

func TestParseTruncationReportsOffset(t *testing.T) {
	testlog.Start(t)

	b := AppendKey(nil, 1, Varint)
	b = AppendVarint(b, 1)
	b = AppendKey(b, 2, Bytes)
	b = append(b, 0x09, 'x')

	_, err := Parse(b)
	var de *protocol.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if de.Field != 2 || de.Offset != 3 {
		t.Fatalf("expected field=2 offset=3, got field=%d offset=%d", de.Field, de.Offset)
	}
}
