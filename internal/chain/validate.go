package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/i5heu/simplechain/pkg/storage"
	"github.com/i5heu/simplechain/pkg/types"

	"github.com/sirupsen/logrus"
)

// FindingKind classifies a problem found while validating the chain.
type FindingKind int

const (
	// TamperedContent: the stored hash does not match the block content.
	TamperedContent FindingKind = iota
	// BrokenLink: the previous hash of a block does not match the hash of its
	// predecessor, or the genesis block declares a predecessor.
	BrokenLink
	// HeightMismatch: the height field differs from the key the block is stored under.
	HeightMismatch
	// Unreadable: the stored value is not a block.
	Unreadable
	// Missing: the height lies below the chain height but nothing is stored there.
	Missing
)

func (k FindingKind) String() string {
	switch k {
	case TamperedContent:
		return "TamperedContent"
	case BrokenLink:
		return "BrokenLink"
	case HeightMismatch:
		return "HeightMismatch"
	case Unreadable:
		return "Unreadable"
	case Missing:
		return "Missing"
	}
	return "Unknown"
}

type Finding struct {
	Height   types.Height
	Kind     FindingKind
	Expected string
	Actual   string
}

func (f Finding) String() string {
	return fmt.Sprintf("block %d: %s (expected %q, got %q)", f.Height, f.Kind, f.Expected, f.Actual)
}

// Report is the result of a full validation pass.
type Report struct {
	ChainHeight uint64
	Findings    []Finding
}

func (r Report) Valid() bool {
	return len(r.Findings) == 0
}

// InvalidHeights returns every height with at least one finding, ascending.
func (r Report) InvalidHeights() []types.Height {
	seen := make(map[types.Height]bool, len(r.Findings))
	heights := []types.Height{}
	for _, f := range r.Findings {
		if seen[f.Height] {
			continue
		}
		seen[f.Height] = true
		heights = append(heights, f.Height)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights
}

// ValidateBlock recomputes the hash of the block at height and compares it to
// the stored one. A value that does not decode is reported as invalid.
func (e *Engine) ValidateBlock(ctx context.Context, height types.Height) (bool, error) {
	block, err := e.GetBlock(ctx, height)
	if errors.Is(err, ErrChainCorrupt) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	valid := block.Validate()
	if !valid {
		e.log.WithFields(logrus.Fields{"height": height, "hash": block.Hash}).Warn("block hash mismatch")
	}
	return valid, nil
}

// ValidateChain returns the heights of all blocks that fail validation. An
// empty result means the chain is intact.
func (e *Engine) ValidateChain(ctx context.Context) ([]types.Height, error) {
	report, err := e.ValidateChainReport(ctx)
	if err != nil {
		return nil, err
	}
	return report.InvalidHeights(), nil
}

// ValidateChainReport checks every block for self integrity and every
// non-last block for its link to the next one. A broken link is reported at
// the later block. Nothing is written.
func (e *Engine) ValidateChainReport(ctx context.Context) (Report, error) {
	height, err := e.ChainHeight(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("error reading chain height: %w", err)
	}

	report := Report{ChainHeight: height}
	if height == 0 {
		return report, nil
	}

	add := func(f Finding) {
		e.log.WithFields(logrus.Fields{
			"height":   f.Height,
			"kind":     f.Kind.String(),
			"expected": f.Expected,
			"actual":   f.Actual,
		}).Warn("chain validation finding")
		report.Findings = append(report.Findings, f)
	}

	// load returns ok=false if the block could not be used for link checks
	load := func(h types.Height) (types.Block, bool, error) {
		block, err := e.GetBlock(ctx, h)
		switch {
		case err == nil:
			return block, true, nil
		case errors.Is(err, storage.ErrNotFound):
			add(Finding{Height: h, Kind: Missing})
			return types.Block{}, false, nil
		case errors.Is(err, ErrChainCorrupt):
			add(Finding{Height: h, Kind: Unreadable, Actual: err.Error()})
			return types.Block{}, false, nil
		}
		return types.Block{}, false, err
	}

	current, currentOK, err := load(0)
	if err != nil {
		return Report{}, err
	}

	for h := types.Height(0); uint64(h) < height; h++ {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}

		if currentOK {
			e.checkBlock(h, current, add)
		}

		if uint64(h)+1 == height {
			break
		}

		next, nextOK, err := load(h + 1)
		if err != nil {
			return Report{}, err
		}

		if currentOK && nextOK && current.Hash != next.PreviousBlockHash {
			add(Finding{Height: h + 1, Kind: BrokenLink, Expected: current.Hash, Actual: next.PreviousBlockHash})
		}

		current, currentOK = next, nextOK
	}

	e.log.WithFields(logrus.Fields{
		"height":   height,
		"findings": len(report.Findings),
	}).Info("chain validated")

	return report, nil
}

// checkBlock runs the checks that only need the block itself.
func (e *Engine) checkBlock(h types.Height, block types.Block, add func(Finding)) {
	e.log.WithFields(logrus.Fields{"height": h, "hash": block.Hash}).Debug("validating block")

	if recomputed, err := types.ComputeHash(block); err != nil || recomputed != block.Hash {
		add(Finding{Height: h, Kind: TamperedContent, Expected: recomputed, Actual: block.Hash})
	}
	if block.Height != h {
		add(Finding{Height: h, Kind: HeightMismatch, Expected: h.String(), Actual: block.Height.String()})
	}
	if h == 0 && block.PreviousBlockHash != "" {
		add(Finding{Height: h, Kind: BrokenLink, Expected: "", Actual: block.PreviousBlockHash})
	}
}
