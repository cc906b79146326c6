package codec

import (
	"github.com/pkg/errors"

	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/protocol/wire"
)

type decoder struct {
	maxDepth int
	depth    int
}

// decodeMessage resets every declared field of m and fills it from b.
// Absent fields keep their zero value except proto2 singular fields, which
// are required.
func (d *decoder) decodeMessage(info *MessageInfo, m any, b []byte) error {
	tab, err := wire.Parse(b)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) && de.Message == "" {
			de.Message = info.name
		}
		return err
	}
	for _, f := range info.fields {
		f.ops.reset(m)
		if f.Oneof != nil {
			if err := f.ops.decode(d, tab, nil, m); err != nil {
				return errors.Wrapf(err, "%s.%s", info.name, f.Name)
			}
			continue
		}
		occ := tab.All(f.Number)
		if len(occ) == 0 {
			if info.syntax == Proto2 && f.Label == LabelSingular {
				return &protocol.DecodeError{
					Reason:  protocol.MissingRequiredField,
					Message: info.name,
					Field:   int32(f.Number),
				}
			}
			continue
		}
		if err := f.ops.decode(d, tab, occ, m); err != nil {
			return errors.Wrapf(err, "%s.%s", info.name, f.Name)
		}
	}
	return nil
}

func (d *decoder) decodeNested(info *MessageInfo, m any, data []byte) error {
	if d.depth >= d.maxDepth {
		return &protocol.DecodeError{Reason: protocol.DepthExceeded, Message: info.name}
	}
	d.depth++
	defer func() { d.depth-- }()
	return d.decodeMessage(info, m, data)
}
