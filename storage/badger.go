package storage

import (
	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
)

// noLogger silences badger's internal logging
type noLogger struct{}

func (*noLogger) Errorf(string, ...interface{})   {}
func (*noLogger) Warningf(string, ...interface{}) {}
func (*noLogger) Infof(string, ...interface{})    {}
func (*noLogger) Debugf(string, ...interface{})   {}

// Badger implements Engine on top of badger
type Badger struct {
	*BadgerTx
	db *badger.DB
}

// NewBadger creates an uninitialized badger engine
func NewBadger() *Badger {
	return &Badger{}
}

// Init opens the database at dir
func (b *Badger) Init(dir string) error {
	opts := badger.DefaultOptions(dir)
	opts.Logger = &noLogger{}
	db, err := badger.Open(opts)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}

	b.db = db

	// The default transaction auto-commits on success, discards on
	// failure and renews after each operation.
	b.BadgerTx = NewBadgerTx(db, true, true)

	return nil
}

// NewTx creates a transaction
func (b *Badger) NewTx(autoFinish, renew bool) Tx {
	return NewBadgerTx(b.db, autoFinish, renew)
}

// Close closes the database and frees resources
func (b *Badger) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
