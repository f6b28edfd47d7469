package keepers

import (
	"time"

	"github.com/pkg/errors"

	"github.com/reviewos/kit/storage"
	"github.com/reviewos/kit/types/state"
)

// AccountKeeper manages account records
type AccountKeeper struct {
	db storage.Tx
}

// NewAccountKeeper creates an instance of AccountKeeper
func NewAccountKeeper(db storage.Tx) *AccountKeeper {
	return &AccountKeeper{db: db}
}

// Get finds an account by its numeric id.
// Returns a bare account if the id is unknown.
func (a *AccountKeeper) Get(id int64) (*state.Account, error) {
	rec, err := a.db.Get(MakeAccountKey(id))
	if err != nil {
		if err == storage.ErrRecordNotFound {
			return state.BareAccount(), nil
		}
		return nil, errors.Wrap(err, "failed to get account record")
	}
	return state.NewAccountFromBytes(rec.Value)
}

// Save persists an account record
func (a *AccountKeeper) Save(account *state.Account) error {
	rec := storage.NewFromKeyValue(MakeAccountKey(account.ID), account.Bytes())
	if err := a.db.Put(rec); err != nil {
		return errors.Wrap(err, "failed to save account record")
	}
	return nil
}

// Register allocates an id for the account and persists it
func (a *AccountKeeper) Register(account *state.Account) error {
	id, err := a.nextID()
	if err != nil {
		return err
	}
	account.ID = id
	if account.CreatedOn == 0 {
		account.CreatedOn = time.Now().UTC().Unix()
	}
	return a.Save(account)
}

// List returns all accounts in ascending id order
func (a *AccountKeeper) List() ([]*state.Account, error) {
	var accounts []*state.Account
	var ferr error
	a.db.Iterate(MakeQueryAccountKey(), true, func(rec *storage.Record) bool {
		account, err := state.NewAccountFromBytes(rec.Value)
		if err != nil {
			ferr = errors.Wrap(err, "failed to decode account record")
			return true
		}
		accounts = append(accounts, account)
		return false
	})
	return accounts, ferr
}

func (a *AccountKeeper) nextID() (int64, error) {
	return nextSeq(a.db, MakeAccountSeqKey(), "account")
}
