package keepers

import (
	"github.com/pkg/errors"

	"github.com/reviewos/kit/storage"
	"github.com/reviewos/kit/util"
)

// SystemKeeper manages system-wide records such as id sequences
type SystemKeeper struct {
	db storage.Tx
}

// NewSystemKeeper creates an instance of SystemKeeper
func NewSystemKeeper(db storage.Tx) *SystemKeeper {
	return &SystemKeeper{db: db}
}

// GetChangeSeq returns the last allocated change id.
// Returns 0 when no id has been allocated yet.
func (s *SystemKeeper) GetChangeSeq() (int64, error) {
	rec, err := s.db.Get(MakeChangeSeqKey())
	if err != nil {
		if err == storage.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return int64(util.DecodeNumber(rec.Value)), nil
}

// NextChangeID allocates and persists the next change id.
// Ids are dense and strictly increasing, starting at 1. The read and
// the increment commit in one transaction; a lost write conflict is
// retried so concurrent callers never share an id.
func (s *SystemKeeper) NextChangeID() (int64, error) {
	return nextSeq(s.db, MakeChangeSeqKey(), "change")
}

// nextSeq allocates the next value of the sequence stored at key
func nextSeq(db storage.Tx, key []byte, name string) (int64, error) {
	for {
		tx := db.NewTx(false, false)

		var cur int64
		rec, err := tx.Get(key)
		if err != nil && err != storage.ErrRecordNotFound {
			tx.Discard()
			return 0, errors.Wrapf(err, "failed to read %s id sequence", name)
		}
		if err == nil {
			cur = int64(util.DecodeNumber(rec.Value))
		}

		next := cur + 1
		if err = tx.Put(storage.NewFromKeyValue(key, util.EncodeNumber(uint64(next)))); err != nil {
			tx.Discard()
			return 0, errors.Wrapf(err, "failed to update %s id sequence", name)
		}

		err = tx.Commit()
		if err == storage.ErrTxConflict {
			continue
		}
		if err != nil {
			return 0, errors.Wrapf(err, "failed to commit %s id sequence", name)
		}

		// Refresh the read snapshot so the commit is visible to the
		// keeper's own transaction
		db.RenewTx()

		return next, nil
	}
}
