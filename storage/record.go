package storage

import (
	"bytes"
	"fmt"

	"github.com/reviewos/kit/util"
)

// ErrRecordNotFound indicates that a record was not found
var ErrRecordNotFound = fmt.Errorf("record not found")

// ErrTxConflict indicates that a transaction lost a write conflict
// and may be retried
var ErrTxConflict = fmt.Errorf("transaction conflict")

const (
	// KeyPrefixSeparator separates the prefix from the key
	KeyPrefixSeparator = ";"
	prefixSeparator    = ":"
)

// Record represents an item in the database
type Record struct {
	Key    []byte `json:"key"`
	Value  []byte `json:"value"`
	Prefix []byte `json:"prefix"`
}

// NewRecord creates a record. The prefixes are joined and prepended
// to the key on insertion.
func NewRecord(key, value []byte, prefixes ...[]byte) *Record {
	return &Record{Key: key, Value: value, Prefix: MakePrefix(prefixes...)}
}

// NewFromKeyValue reconstructs a Record from a raw database key and value
func NewFromKeyValue(key []byte, value []byte) *Record {
	var k, p []byte
	parts := bytes.SplitN(key, []byte(KeyPrefixSeparator), 2)
	if len(parts) == 1 {
		k = parts[0]
	} else {
		p, k = parts[0], parts[1]
	}
	return &Record{Key: k, Value: value, Prefix: p}
}

// IsEmpty checks whether the record is empty
func (r *Record) IsEmpty() bool {
	return len(r.Key) == 0 && len(r.Value) == 0
}

// Scan decodes the msgpack value into dest
func (r *Record) Scan(dest interface{}) error {
	return util.ToObject(r.Value, dest)
}

// GetKey returns the full database key (prefix + separator + key)
func (r *Record) GetKey() []byte {
	return MakeKey(r.Key, r.Prefix)
}

// Equal performs equality check with another record
func (r *Record) Equal(other *Record) bool {
	return bytes.Equal(r.Key, other.Key) && bytes.Equal(r.Value, other.Value)
}

// MakePrefix joins prefixes into one
func MakePrefix(prefixes ...[]byte) []byte {
	return bytes.Join(prefixes, []byte(prefixSeparator))
}

// SplitPrefix splits a joined prefix into its parts
func SplitPrefix(prefixes []byte) [][]byte {
	return bytes.Split(prefixes, []byte(prefixSeparator))
}

// MakeKey constructs a full key from a key and prefixes
func MakeKey(key []byte, prefixes ...[]byte) []byte {
	prefix := MakePrefix(prefixes...)
	sep := []byte(KeyPrefixSeparator)
	if len(key) == 0 || len(prefix) == 0 {
		sep = []byte{}
	}
	return append(prefix, append(sep, key...)...)
}
