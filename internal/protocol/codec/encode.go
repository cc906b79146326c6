package codec

import (
	"fmt"

	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/protocol/wire"
)

type encoder struct {
	maxDepth int
	depth    int
}

// appendMessage writes every declared field of m in declaration order.
func (e *encoder) appendMessage(b []byte, info *MessageInfo, m any) ([]byte, error) {
	for _, f := range info.fields {
		var err error
		if b, err = f.ops.encode(e, b, m); err != nil {
			return b, err
		}
	}
	return b, nil
}

// appendNested encodes m into a scratch buffer, then splices it into b as
// one length-delimited value. The key is written by the caller.
func (e *encoder) appendNested(b []byte, info *MessageInfo, m any) ([]byte, error) {
	if e.depth >= e.maxDepth {
		return b, &protocol.EncodeError{
			Reason:  protocol.UnrepresentableType,
			Message: info.name,
			Detail:  fmt.Sprintf("nesting deeper than %d", e.maxDepth),
		}
	}
	e.depth++
	defer func() { e.depth-- }()

	buf := getBuffer()
	defer putBuffer(buf)
	data, err := e.appendMessage((*buf)[:0], info, m)
	*buf = data
	if err != nil {
		return b, err
	}
	return wire.AppendBytes(b, data), nil
}
