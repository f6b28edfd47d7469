package state

import (
	"github.com/reviewos/kit/util"
)

// Account is a registered user of the server
type Account struct {
	ID        int64  `json:"id" msgpack:"id"`
	Username  string `json:"username" msgpack:"username"`
	Email     string `json:"email" msgpack:"email"`
	FullName  string `json:"fullName" msgpack:"fullName"`
	Active    bool   `json:"active" msgpack:"active"`
	CreatedOn int64  `json:"createdOn" msgpack:"createdOn"`
}

// BareAccount returns an empty account
func BareAccount() *Account {
	return &Account{Active: true}
}

// IsNil checks whether the account has no identity
func (a *Account) IsNil() bool {
	return a.ID == 0 && a.Username == ""
}

// Bytes returns the msgpack-serialized equivalent of the account
func (a *Account) Bytes() []byte {
	return util.ToBytes(a)
}

// NewAccountFromBytes decodes bz into an Account
func NewAccountFromBytes(bz []byte) (*Account, error) {
	var a Account
	if err := util.ToObject(bz, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
