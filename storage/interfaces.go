package storage

// Engine describes a storage engine
type Engine interface {
	Operations

	// Init opens the database files at dir
	Init(dir string) error

	// Close closes the database and frees resources
	Close() error

	// NewTx creates a transaction.
	// autoFinish commits the underlying transaction after each successful
	// operation. renew reinitializes the transaction after it finishes;
	// it requires autoFinish.
	NewTx(autoFinish, renew bool) Tx
}

// Operations describes the data operations
type Operations interface {

	// Put adds a record to the database
	Put(record *Record) error

	// Get returns a record by key.
	// Returns ErrRecordNotFound if the key is unknown.
	Get(key []byte) (*Record, error)

	// Del deletes a record by key
	Del(key []byte) error

	// Iterate finds records by prefix and passes them to iterFunc.
	// Iteration stops when iterFunc returns true.
	// first starts iteration from the first record, otherwise the last.
	Iterate(prefix []byte, first bool, iterFunc func(rec *Record) bool)
}

// TxCommitDiscarder commits or discards a transaction
type TxCommitDiscarder interface {
	CanFinish() bool
	Commit() error
	Discard()
}

// Tx describes a transaction
type Tx interface {
	Operations
	TxCommitDiscarder
	RenewTx()

	// NewTx creates a sibling transaction over the same database with
	// its own lifetime
	NewTx(autoFinish, renew bool) Tx
}
