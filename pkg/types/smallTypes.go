package types

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"
)

// GenesisBody is the fixed payload of the block at height 0.
const GenesisBody = "First Block - Genesis Block"

// Height is the zero-based position of a block in the chain. It is also the
// key the block is stored under.
type Height uint64

func (h Height) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// Bytes returns the big-endian encoding so that byte order equals height order.
func (h Height) Bytes() []byte {
	heightBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(heightBytes, uint64(h))
	return heightBytes
}

func (h *Height) FromBytes(b []byte) error {
	if len(b) != 8 {
		return fmt.Errorf("invalid byte length for Height: %d", len(b))
	}
	*h = Height(binary.BigEndian.Uint64(b))
	return nil
}

// Timestamp is a unix timestamp in seconds (UTC).
type Timestamp int64

func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(t.UTC().Unix())
}

func (ts Timestamp) Time() time.Time {
	return time.Unix(int64(ts), 0).UTC()
}

func (ts Timestamp) String() string {
	return strconv.FormatInt(int64(ts), 10)
}
