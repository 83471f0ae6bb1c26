package types

import (
	"crypto/sha256"
	"encoding/hex"
)

// Block is a single record of the chain. A caller only fills Body; the chain
// engine assigns Height, Time, PreviousBlockHash and Hash on append.
//
// The field order is the canonical serialization order and must not change.
type Block struct {
	Hash              string    `json:"hash"`
	Height            Height    `json:"height"`
	Body              string    `json:"body"`
	Time              Timestamp `json:"time"`
	PreviousBlockHash string    `json:"previousBlockHash"`
}

func NewBlock(body string) Block {
	return Block{Body: body}
}

// ComputeHash returns the hex encoded SHA-256 of the canonical form of b with
// the Hash field blanked. b itself is not modified.
func ComputeHash(b Block) (string, error) {
	b.Hash = ""
	canonical, err := b.MarshalCanonical()
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Seal sets the hash of b to ComputeHash(b).
func (b *Block) Seal() error {
	hash, err := ComputeHash(*b)
	if err != nil {
		return err
	}
	b.Hash = hash
	return nil
}

// Validate reports whether the stored hash matches the content of the block.
func (b Block) Validate() bool {
	hash, err := ComputeHash(b)
	if err != nil {
		return false
	}
	return hash == b.Hash
}

// IsGenesis reports whether b sits at height 0.
func (b Block) IsGenesis() bool {
	return b.Height == 0
}
