package badgerkv

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by point reads when the key is absent.
var ErrNotFound = errors.New("badgerkv: key not found")

// ErrConflict is returned by AtomicWrite when two concurrent transactions
// touched overlapping keys and one must be retried by the caller.
var ErrConflict = badger.ErrConflict

// Entry is a single key/value pair returned by a range scan. Key is the
// caller-facing key (table prefix stripped).
type Entry struct {
	Key   string
	Value []byte
}

func tableKey(table, key string) []byte {
	return []byte(table + "/" + key)
}

func tablePrefix(table string) []byte {
	return []byte(table + "/")
}

func stripPrefix(table string, raw []byte) string {
	return string(raw[len(table)+1:])
}

// Store exposes the persistence adapter's logical tables (typed and
// string) over one badger.DB: point get/put/delete, ordered range scan, and
// atomic multi-key group writes.
type Store struct {
	db *badger.DB
}

// NewStore wraps an opened *badger.DB.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

// Get performs a point read of table/key.
func (s *Store) Get(table, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		v, err := txnGet(txn, table, key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}

// Put writes table/key=value in its own transaction.
func (s *Store) Put(table, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txnPut(txn, table, key, value)
	})
}

// Delete removes table/key in its own transaction. Deleting an absent key
// is not an error.
func (s *Store) Delete(table, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txnDelete(txn, table, key)
	})
}

// ScanFrom returns up to limit entries of table in key order, starting at
// the first key >= start. A limit <= 0 means unbounded.
func (s *Store) ScanFrom(table, start string, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		entries, err = txnScanFrom(txn, table, start, limit)
		return err
	})
	return entries, err
}

// Tx is the view of the store available inside an atomic group write: every
// operation runs against the same underlying badger.Txn, so either all of
// them become visible together or none do.
type Tx struct {
	txn *badger.Txn
}

// Get performs a point read within the transaction.
func (t *Tx) Get(table, key string) ([]byte, error) {
	return txnGet(t.txn, table, key)
}

// Put writes table/key=value within the transaction.
func (t *Tx) Put(table, key string, value []byte) error {
	return txnPut(t.txn, table, key, value)
}

// Delete removes table/key within the transaction.
func (t *Tx) Delete(table, key string) error {
	return txnDelete(t.txn, table, key)
}

// ScanFrom scans table within the transaction's consistent snapshot.
func (t *Tx) ScanFrom(table, start string, limit int) ([]Entry, error) {
	return txnScanFrom(t.txn, table, start, limit)
}

// AtomicWrite runs fn against a single badger transaction: either every
// operation fn performs commits together, or (on error, or on a write
// conflict detected at commit time) none of them do.
func (s *Store) AtomicWrite(fn func(tx *Tx) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&Tx{txn: txn})
	})
}

func txnGet(txn *badger.Txn, table, key string) ([]byte, error) {
	item, err := txn.Get(tableKey(table, key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("badgerkv: get %s/%s: %w", table, key, err)
	}
	return item.ValueCopy(nil)
}

func txnPut(txn *badger.Txn, table, key string, value []byte) error {
	if err := txn.Set(tableKey(table, key), value); err != nil {
		return fmt.Errorf("badgerkv: put %s/%s: %w", table, key, err)
	}
	return nil
}

func txnDelete(txn *badger.Txn, table, key string) error {
	if err := txn.Delete(tableKey(table, key)); err != nil {
		return fmt.Errorf("badgerkv: delete %s/%s: %w", table, key, err)
	}
	return nil
}

func txnScanFrom(txn *badger.Txn, table, start string, limit int) ([]Entry, error) {
	prefix := tablePrefix(table)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var entries []Entry
	for it.Seek(tableKey(table, start)); it.ValidForPrefix(prefix); it.Next() {
		if limit > 0 && len(entries) >= limit {
			break
		}
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("badgerkv: scan %s: %w", table, err)
		}
		entries = append(entries, Entry{
			Key:   stripPrefix(table, item.KeyCopy(nil)),
			Value: value,
		})
	}
	return entries, nil
}
