package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/danmuck/protokit/internal/protocol/frame"
	"github.com/danmuck/protokit/internal/protocol/wire"
)

// maxInlineBytes caps how much of an opaque payload is printed as hex.
const maxInlineBytes = 32

type dumpOptions struct {
	delimited bool
	// maxNest bounds how deep length-delimited payloads are expanded as
	// nested messages.
	maxNest int
	limits  frame.Limits
}

type dumper struct {
	w    io.Writer
	opts dumpOptions
	err  error
}

func (d *dumper) printf(depth int, format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, "%s%s\n", strings.Repeat("  ", depth), fmt.Sprintf(format, args...))
}

// dump writes one line per field occurrence, expanding payloads that parse
// as messages.
func dump(w io.Writer, data []byte, opts dumpOptions) error {
	d := &dumper{w: w, opts: opts}
	if !opts.delimited {
		tab, err := wire.Parse(data)
		if err != nil {
			return fmt.Errorf("parse message: %w", err)
		}
		d.table(tab, 0)
		d.printf(0, "# %d fields, %s", tab.Len(), humanize.Bytes(uint64(len(data))))
		return d.err
	}

	var count int
	for off := 0; off < len(data); {
		payload, n, err := frame.SplitDelimited(data[off:], opts.limits)
		if err != nil {
			return fmt.Errorf("frame %d at offset %d: %w", count, off, err)
		}
		tab, err := wire.Parse(payload)
		if err != nil {
			return fmt.Errorf("frame %d: parse message: %w", count, err)
		}
		d.printf(0, "# message %d (%s)", count, humanize.Bytes(uint64(len(payload))))
		d.table(tab, 0)
		off += n
		count++
	}
	d.printf(0, "# %s messages, %s", humanize.Comma(int64(count)), humanize.Bytes(uint64(len(data))))
	return d.err
}

func (d *dumper) table(tab *wire.Table, depth int) {
	for _, f := range tab.Fields() {
		switch f.Type {
		case wire.Varint:
			d.printf(depth, "%d: %d", f.Number, f.Varint)
		case wire.Fixed32:
			d.printf(depth, "%d: 0x%08x (%g)", f.Number, f.Fixed32, math.Float32frombits(f.Fixed32))
		case wire.Fixed64:
			d.printf(depth, "%d: 0x%016x (%g)", f.Number, f.Fixed64, math.Float64frombits(f.Fixed64))
		case wire.Bytes:
			d.payload(f.Number, tab.Data(f), depth)
		}
	}
}

func (d *dumper) payload(n wire.Number, data []byte, depth int) {
	switch {
	case len(data) == 0:
		d.printf(depth, "%d: \"\"", n)
	case printable(data):
		d.printf(depth, "%d: %s", n, strconv.Quote(string(data)))
	case depth < d.opts.maxNest:
		if nested, err := wire.Parse(data); err == nil {
			d.printf(depth, "%d {", n)
			d.table(nested, depth+1)
			d.printf(depth, "}")
			return
		}
		d.opaque(n, data, depth)
	default:
		d.opaque(n, data, depth)
	}
}

func (d *dumper) opaque(n wire.Number, data []byte, depth int) {
	if len(data) <= maxInlineBytes {
		d.printf(depth, "%d: <% x>", n, data)
		return
	}
	d.printf(depth, "%d: <% x ...> (%s)", n, data[:maxInlineBytes], humanize.Bytes(uint64(len(data))))
}

// printable reports whether data reads as text: valid UTF-8 made of
// printable runes and ordinary whitespace.
func printable(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, r := range string(data) {
		if !unicode.IsPrint(r) && r != '\n' && r != '\t' && r != '\r' {
			return false
		}
	}
	return true
}
