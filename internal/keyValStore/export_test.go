package keyValStore

import "github.com/dgraph-io/badger/v4"

// WriteRaw stores a key outside of the block key space.
func (k *KeyValStore) WriteRaw(key, value []byte) error {
	return k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}
