// Package backup exports a chain to a compressed stream and imports it back.
//
// A backup is an xz stream that starts with a magic header followed by one
// record per block in height order. Every record is a uvarint length and a
// protobuf encoded block.
package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/i5heu/simplechain/internal/chain"
	"github.com/i5heu/simplechain/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

var magic = []byte("SCBACKUP\x01")

// maxRecordSize bounds the allocation for a single record read from a backup.
const maxRecordSize = 64 * 1024 * 1024

// ErrInvalidBackup is returned for streams that are not backups or are truncated.
var ErrInvalidBackup = errors.New("backup: invalid backup stream")

// Source is the read side of the chain engine.
type Source interface {
	ChainHeight(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, height types.Height) (types.Block, error)
}

// Target is the write side of the chain engine used for restoring.
type Target interface {
	Source
	AppendVerified(ctx context.Context, block types.Block) error
}

type Manager struct {
	log *logrus.Logger
}

func NewManager(logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{log: logger}
}

// Export writes every block of src to w and returns the number of blocks written.
func (m *Manager) Export(ctx context.Context, src Source, w io.Writer) (uint64, error) {
	height, err := src.ChainHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("error reading chain height: %w", err)
	}

	xw, err := xz.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("error creating xz writer: %w", err)
	}

	if _, err := xw.Write(magic); err != nil {
		return 0, fmt.Errorf("error writing backup header: %w", err)
	}

	for h := types.Height(0); uint64(h) < height; h++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		block, err := src.GetBlock(ctx, h)
		if err != nil {
			return 0, fmt.Errorf("error reading block %d: %w", h, err)
		}

		record := marshalRecord(block)
		frame := binary.AppendUvarint(nil, uint64(len(record)))
		if _, err := xw.Write(append(frame, record...)); err != nil {
			return 0, fmt.Errorf("error writing block %d: %w", h, err)
		}
	}

	if err := xw.Close(); err != nil {
		return 0, fmt.Errorf("error finishing xz stream: %w", err)
	}

	m.log.WithFields(logrus.Fields{"blocks": height}).Info("chain exported")
	return height, nil
}

// Import restores the blocks in r into dst. Blocks dst already holds must be
// identical to the backup; the remaining ones are appended with
// AppendVerified, so a backup that fails validation stops the import at the
// first bad block. Returns the number of appended blocks.
func (m *Manager) Import(ctx context.Context, r io.Reader, dst Target) (uint64, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}
	br := bufio.NewReader(xr)

	header := make([]byte, len(magic))
	if _, err := io.ReadFull(br, header); err != nil || !bytes.Equal(header, magic) {
		return 0, fmt.Errorf("%w: bad header", ErrInvalidBackup)
	}

	existing, err := dst.ChainHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("error reading chain height: %w", err)
	}

	var appended uint64
	for h := types.Height(0); ; h++ {
		if err := ctx.Err(); err != nil {
			return appended, err
		}

		block, err := readRecord(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return appended, fmt.Errorf("record %d: %w", h, err)
		}

		if uint64(h) < existing {
			stored, err := dst.GetBlock(ctx, h)
			if err != nil {
				return appended, fmt.Errorf("error reading block %d: %w", h, err)
			}
			if stored != block {
				return appended, fmt.Errorf("%w: block %d differs from the backup", chain.ErrChainCorrupt, h)
			}
			continue
		}

		if err := dst.AppendVerified(ctx, block); err != nil {
			return appended, fmt.Errorf("error restoring block %d: %w", h, err)
		}
		appended++
	}

	m.log.WithFields(logrus.Fields{
		"existing": existing,
		"appended": appended,
	}).Info("chain imported")
	return appended, nil
}

// readRecord returns io.EOF only at a clean record boundary.
func readRecord(br *bufio.Reader) (types.Block, error) {
	size, err := binary.ReadUvarint(br)
	if errors.Is(err, io.EOF) {
		return types.Block{}, io.EOF
	}
	if err != nil {
		return types.Block{}, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}
	if size > maxRecordSize {
		return types.Block{}, fmt.Errorf("%w: record of %d bytes", ErrInvalidBackup, size)
	}

	record := make([]byte, size)
	if _, err := io.ReadFull(br, record); err != nil {
		return types.Block{}, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}

	block, err := unmarshalRecord(record)
	if err != nil {
		return types.Block{}, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}
	return block, nil
}
