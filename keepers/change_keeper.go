package keepers

import (
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"

	"github.com/reviewos/kit/storage"
	"github.com/reviewos/kit/types/state"
	"github.com/reviewos/kit/util"
)

// ChangeKeeper manages change records
type ChangeKeeper struct {
	db storage.Tx
}

// NewChangeKeeper creates an instance of ChangeKeeper
func NewChangeKeeper(db storage.Tx) *ChangeKeeper {
	return &ChangeKeeper{db: db}
}

// GetByID finds a change by its numeric id.
// Returns a bare change if the id is unknown.
func (c *ChangeKeeper) GetByID(id int64) (*state.Change, error) {
	rec, err := c.db.Get(MakeChangeKey(id))
	if err != nil {
		if err == storage.ErrRecordNotFound {
			return state.BareChange(), nil
		}
		return nil, errors.Wrap(err, "failed to get change record")
	}

	change, err := state.NewChangeFromBytes(rec.Value)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode change record")
	}

	return change, nil
}

// GetByKey finds a change by its change key (I + 40 hex).
// Returns a bare change if the key is unknown.
func (c *ChangeKeeper) GetByKey(changeKey string) (*state.Change, error) {
	rec, err := c.db.Get(MakeChangeKeyIndexKey(changeKey))
	if err != nil {
		if err == storage.ErrRecordNotFound {
			return state.BareChange(), nil
		}
		return nil, errors.Wrap(err, "failed to get change key index")
	}
	return c.GetByID(int64(util.DecodeNumber(rec.Value)))
}

// Save persists a change and maintains its lookup indexes.
// The record and both indexes commit in one transaction.
func (c *ChangeKeeper) Save(change *state.Change) error {
	idBz := util.EncodeNumber(uint64(change.ID))

	tx := c.db.NewTx(false, false)
	defer tx.Discard()

	rec := storage.NewFromKeyValue(MakeChangeKey(change.ID), change.Bytes())
	if err := tx.Put(rec); err != nil {
		return errors.Wrap(err, "failed to save change record")
	}

	keyIdx := storage.NewFromKeyValue(MakeChangeKeyIndexKey(change.Key), idBz)
	if err := tx.Put(keyIdx); err != nil {
		return errors.Wrap(err, "failed to save change key index")
	}

	projIdx := storage.NewFromKeyValue(MakeProjectChangeIndexKey(change.Project, change.ID), idBz)
	if err := tx.Put(projIdx); err != nil {
		return errors.Wrap(err, "failed to save project change index")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit change record")
	}

	// Refresh the read snapshot so the commit is visible to this keeper
	c.db.RenewTx()

	return nil
}

// ListByProject returns all changes of a project in ascending id order.
// When statuses is non-empty, only changes in one of the statuses are
// returned.
func (c *ChangeKeeper) ListByProject(project string, statuses ...string) ([]*state.Change, error) {
	var ids []int64
	c.db.Iterate(MakeQueryProjectChangeIndexKey(project), true, func(rec *storage.Record) bool {
		ids = append(ids, int64(util.DecodeNumber(rec.Value)))
		return false
	})

	var changes []*state.Change
	for _, id := range ids {
		change, err := c.GetByID(id)
		if err != nil {
			return nil, err
		}
		if change.IsNil() {
			continue
		}
		if len(statuses) > 0 && !funk.ContainsString(statuses, change.Status) {
			continue
		}
		changes = append(changes, change)
	}

	return changes, nil
}
