package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrInvalidBlock is returned for blocks whose text fields cannot be encoded
// without being altered.
var ErrInvalidBlock = errors.New("invalid block")

// MarshalCanonical returns the canonical serialization of the block: a compact
// JSON object with the keys hash, height, body, time and previousBlockHash in
// that order. Hashing and storage both use this form.
func (b Block) MarshalCanonical() ([]byte, error) {
	// encoding/json replaces invalid UTF-8 with U+FFFD, which would break the round trip
	fields := []struct{ name, value string }{
		{"hash", b.Hash},
		{"body", b.Body},
		{"previousBlockHash", b.PreviousBlockHash},
	}
	for _, f := range fields {
		if !utf8.ValidString(f.value) {
			return nil, fmt.Errorf("%w: %s of block %d is not valid UTF-8", ErrInvalidBlock, f.name, b.Height)
		}
	}

	var buffer bytes.Buffer

	enc := json.NewEncoder(&buffer)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(canonicalBlock(b)); err != nil {
		return nil, fmt.Errorf("error encoding block %d: %w", b.Height, err)
	}

	// json.Encoder terminates every value with a newline
	return bytes.TrimSuffix(buffer.Bytes(), []byte("\n")), nil
}

// canonicalBlock carries no methods, so a MarshalJSON on Block can never
// alter the canonical form.
type canonicalBlock Block

// Encode serializes a block into the value written to the store.
func Encode(b Block) ([]byte, error) {
	return b.MarshalCanonical()
}

// Decode parses a stored value back into a block. The value must hold exactly
// one JSON object.
func Decode(data []byte) (Block, error) {
	var cb canonicalBlock

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cb); err != nil {
		return Block{}, fmt.Errorf("error decoding block: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Block{}, fmt.Errorf("error decoding block: trailing data after object")
	}

	return Block(cb), nil
}

func (b Block) String() string {
	jsonBytes, err := json.MarshalIndent(canonicalBlock(b), "", "    ")
	if err != nil {
		return fmt.Sprintf("Block{Height: %d, Hash: %s}", b.Height, b.Hash)
	}
	return string(jsonBytes)
}

func (b Block) PrettyPrint() {
	fmt.Println(b.String())
}
