package keepers

import (
	"fmt"

	"github.com/reviewos/kit/util"
)

const (
	// Separator separates prefixes
	Separator = ":"
	// TagChange is the prefix for change records
	TagChange = "c"
	// TagChangeKeyIndex is the prefix for the change-key index
	TagChangeKeyIndex = "ck"
	// TagProjectChangeIndex is the prefix for the project/branch change index
	TagProjectChangeIndex = "pc"
	// TagProject is the prefix for project records
	TagProject = "p"
	// TagAccount is the prefix for account records
	TagAccount = "a"
	// TagSequence is the prefix for id sequences
	TagSequence = "seq"
)

// MakeChangeKey creates a key for storing a change record by numeric id
func MakeChangeKey(id int64) []byte {
	return append([]byte(TagChange+Separator), util.EncodeNumber(uint64(id))...)
}

// MakeChangeKeyIndexKey creates a key for the change-key -> id index
func MakeChangeKeyIndexKey(changeKey string) []byte {
	return []byte(fmt.Sprintf("%s%s%s", TagChangeKeyIndex, Separator, changeKey))
}

// MakeProjectChangeIndexKey creates a key indexing a change under its project
func MakeProjectChangeIndexKey(project string, id int64) []byte {
	return append([]byte(TagProjectChangeIndex+Separator+project+Separator),
		util.EncodeNumber(uint64(id))...)
}

// MakeQueryProjectChangeIndexKey creates a key for querying a project's changes
func MakeQueryProjectChangeIndexKey(project string) []byte {
	return []byte(TagProjectChangeIndex + Separator + project + Separator)
}

// MakeProjectKey creates a key for storing a project record
func MakeProjectKey(name string) []byte {
	return []byte(fmt.Sprintf("%s%s%s", TagProject, Separator, name))
}

// MakeQueryProjectKey creates a key for querying all projects
func MakeQueryProjectKey() []byte {
	return []byte(TagProject + Separator)
}

// MakeAccountKey creates a key for storing an account record by numeric id
func MakeAccountKey(id int64) []byte {
	return append([]byte(TagAccount+Separator), util.EncodeNumber(uint64(id))...)
}

// MakeQueryAccountKey creates a key for querying all accounts
func MakeQueryAccountKey() []byte {
	return []byte(TagAccount + Separator)
}

// MakeChangeSeqKey creates the key of the change id sequence
func MakeChangeSeqKey() []byte {
	return []byte(TagSequence + Separator + "change")
}

// MakeAccountSeqKey creates the key of the account id sequence
func MakeAccountSeqKey() []byte {
	return []byte(TagSequence + Separator + "account")
}
