package storage

import (
	"sync"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
)

// BadgerTx implements Tx over a badger transaction
type BadgerTx struct {
	sync.RWMutex

	db *badger.DB

	// tx is the active badger transaction
	tx *badger.Txn

	// finished indicates the transaction can no longer be used
	finished bool

	// autoFinish commits after each successful operation
	autoFinish bool

	// renew reinitializes the transaction after it finishes
	renew bool
}

// NewBadgerTx creates a transaction wrapper around db
func NewBadgerTx(db *badger.DB, autoFinish, renew bool) *BadgerTx {
	return &BadgerTx{
		db:         db,
		tx:         db.NewTransaction(true),
		autoFinish: autoFinish,
		renew:      renew,
	}
}

// NewTx creates a child transaction with its own lifetime
func (t *BadgerTx) NewTx(autoFinish, renew bool) Tx {
	return NewBadgerTx(t.db, autoFinish, renew)
}

// CanFinish checks whether the transaction can be committed or discarded
func (t *BadgerTx) CanFinish() bool {
	t.RLock()
	defer t.RUnlock()
	return !t.finished
}

// RenewTx starts a fresh underlying transaction, discarding the
// current one when it is still open
func (t *BadgerTx) RenewTx() {
	t.Lock()
	defer t.Unlock()
	if !t.finished {
		t.tx.Discard()
	}
	t.tx = t.db.NewTransaction(true)
	t.finished = false
}

// commit commits if auto-finish is enabled, renewing afterwards when
// renewal is enabled.
func (t *BadgerTx) commitIfAuto() error {
	if !t.autoFinish {
		return nil
	}
	err := t.Commit()
	if t.renew {
		t.RenewTx()
	}
	return err
}

// Commit commits the transaction.
// Returns ErrTxConflict when the transaction lost a write conflict.
func (t *BadgerTx) Commit() error {
	t.Lock()
	defer t.Unlock()
	if t.finished {
		return nil
	}
	err := t.tx.Commit()
	t.finished = true
	if err == badger.ErrConflict {
		return ErrTxConflict
	}
	return err
}

// Discard drops the transaction
func (t *BadgerTx) Discard() {
	t.Lock()
	defer t.Unlock()
	if t.finished {
		return
	}
	t.tx.Discard()
	t.finished = true
}

// Put adds a record. The transaction is discarded when the write fails.
func (t *BadgerTx) Put(record *Record) error {
	t.RLock()
	err := t.tx.Set(record.GetKey(), record.Value)
	t.RUnlock()
	if err != nil {
		t.Discard()
		if t.renew {
			t.RenewTx()
		}
		return errors.Wrap(err, "failed to put record")
	}
	return t.commitIfAuto()
}

// Get returns a record by key
func (t *BadgerTx) Get(key []byte) (*Record, error) {
	t.RLock()
	item, err := t.tx.Get(key)
	t.RUnlock()
	if err != nil {
		if err == badger.ErrKeyNotFound {
			err = ErrRecordNotFound
		} else {
			err = errors.Wrap(err, "failed to get record")
		}
		if err2 := t.commitIfAuto(); err2 != nil {
			return nil, err2
		}
		return nil, err
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read record value")
	}

	rec := NewFromKeyValue(key, val)
	return rec, t.commitIfAuto()
}

// Del deletes a record by key
func (t *BadgerTx) Del(key []byte) error {
	t.RLock()
	err := t.tx.Delete(key)
	t.RUnlock()
	if err != nil {
		return errors.Wrap(err, "failed to delete record")
	}
	return t.commitIfAuto()
}

// Iterate finds records by prefix, passing each to iterFunc until it
// returns true. first begins from the first record, otherwise the last.
func (t *BadgerTx) Iterate(prefix []byte, first bool, iterFunc func(rec *Record) bool) {
	t.RLock()
	tx := t.tx
	t.RUnlock()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = !first
	it := tx.NewIterator(opts)
	defer it.Close()

	seek := prefix
	if !first {
		// Largest key under the prefix
		seek = append(append([]byte{}, prefix...), 0xFF)
	}

	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			break
		}
		if iterFunc(NewFromKeyValue(item.KeyCopy(nil), val)) {
			break
		}
	}

	_ = t.commitIfAuto()
}
