package main

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/i5heu/simplechain/pkg/storage"
	"github.com/i5heu/simplechain/pkg/types"
	"github.com/spf13/cobra"
)

func main() {
	var path string
	cmd := &cobra.Command{
		Use:   "readDB",
		Short: "List the raw keys of a badger data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return readDB(path)
		},
	}
	cmd.Flags().StringVar(&path, "data", "./chaindata", "badger data directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readDB lists every key of a badger data directory without going through
// the chain engine, so it also shows keys the engine would skip.
func readDB(path string) error {
	opts := badger.DefaultOptions(path).WithReadOnly(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	var blocks, foreign int

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			height, err := storage.HeightFromKey(item.Key())
			if err != nil {
				fmt.Printf("foreign key: %x\n", item.Key())
				foreign++
				continue
			}

			err = item.Value(func(val []byte) error {
				block, err := types.Decode(val)
				if err != nil {
					fmt.Printf("%d: undecodable value (%v)\n", height, err)
					return nil
				}
				status := "ok"
				if !block.Validate() {
					status = "hash mismatch"
				}
				fmt.Printf("%d: %s %q [%s]\n", height, block.Hash, block.Body, status)
				return nil
			})
			if err != nil {
				return err
			}
			blocks++
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Total blocks: %d, foreign keys: %d\n", blocks, foreign)
	return nil
}
