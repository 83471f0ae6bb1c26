package backup

import (
	"fmt"

	"github.com/i5heu/simplechain/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldHeight            protowire.Number = 1
	fieldHash              protowire.Number = 2
	fieldBody              protowire.Number = 3
	fieldTime              protowire.Number = 4
	fieldPreviousBlockHash protowire.Number = 5
)

// marshalRecord encodes a block as a protobuf message. Empty strings and
// zero numbers are omitted like proto3 does.
func marshalRecord(b types.Block) []byte {
	var buf []byte

	if b.Height != 0 {
		buf = protowire.AppendTag(buf, fieldHeight, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(b.Height))
	}
	if b.Hash != "" {
		buf = protowire.AppendTag(buf, fieldHash, protowire.BytesType)
		buf = protowire.AppendString(buf, b.Hash)
	}
	if b.Body != "" {
		buf = protowire.AppendTag(buf, fieldBody, protowire.BytesType)
		buf = protowire.AppendString(buf, b.Body)
	}
	if b.Time != 0 {
		buf = protowire.AppendTag(buf, fieldTime, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(b.Time)))
	}
	if b.PreviousBlockHash != "" {
		buf = protowire.AppendTag(buf, fieldPreviousBlockHash, protowire.BytesType)
		buf = protowire.AppendString(buf, b.PreviousBlockHash)
	}

	return buf
}

// unmarshalRecord decodes a message written by marshalRecord. Unknown fields
// are skipped.
func unmarshalRecord(buf []byte) (types.Block, error) {
	var b types.Block

	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return types.Block{}, fmt.Errorf("error reading tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]

		switch {
		case num == fieldHeight && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return types.Block{}, fmt.Errorf("error reading height: %w", protowire.ParseError(n))
			}
			b.Height = types.Height(v)
			buf = buf[n:]
		case num == fieldTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return types.Block{}, fmt.Errorf("error reading time: %w", protowire.ParseError(n))
			}
			b.Time = types.Timestamp(protowire.DecodeZigZag(v))
			buf = buf[n:]
		case typ == protowire.BytesType && (num == fieldHash || num == fieldBody || num == fieldPreviousBlockHash):
			v, n := protowire.ConsumeString(buf)
			if n < 0 {
				return types.Block{}, fmt.Errorf("error reading field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case fieldHash:
				b.Hash = v
			case fieldBody:
				b.Body = v
			case fieldPreviousBlockHash:
				b.PreviousBlockHash = v
			}
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return types.Block{}, fmt.Errorf("error skipping field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}

	return b, nil
}
