package plumbing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MagicRefPrefix is the virtual push namespace for review uploads
	MagicRefPrefix = "refs/for/"

	// ChangeRefPrefix is the namespace of server-materialized change refs
	ChangeRefPrefix = "refs/changes/"

	// BranchRefPrefix is the branch namespace
	BranchRefPrefix = "refs/heads/"

	// TagRefPrefix is the tag namespace
	TagRefPrefix = "refs/tags/"
)

// HiddenRefPrefixes are namespaces never advertised to clients
var HiddenRefPrefixes = []string{
	"refs/meta/",
	"refs/users/",
	"refs/groups/",
	"refs/cache-automerge/",
}

// IsMagicRef checks whether name is within the refs/for/ namespace
func IsMagicRef(name string) bool {
	return strings.HasPrefix(name, MagicRefPrefix)
}

// MagicRefTarget returns the branch a magic ref targets.
// Returns an error when the target portion is empty.
func MagicRefTarget(name string) (string, error) {
	target := strings.TrimPrefix(name, MagicRefPrefix)
	if target == name || target == "" {
		return "", errors.New("Invalid refs/for/ format")
	}
	return target, nil
}

// IsChangeRef checks whether name is within the refs/changes/ namespace
func IsChangeRef(name string) bool {
	return strings.HasPrefix(name, ChangeRefPrefix)
}

// IsBranchRef checks whether name is within the branch namespace
func IsBranchRef(name string) bool {
	return strings.HasPrefix(name, BranchRefPrefix)
}

// IsTagRef checks whether name is within the tag namespace
func IsTagRef(name string) bool {
	return strings.HasPrefix(name, TagRefPrefix)
}

// IsHiddenRef checks whether name is within a hidden namespace
func IsHiddenRef(name string) bool {
	for _, p := range HiddenRefPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// MakeChangeRef builds the synthetic ref name of a patch set.
// The shard is the last two characters of the key's hash portion.
func MakeChangeRef(changeKey string, patchSet int) string {
	hash := strings.TrimPrefix(changeKey, "I")
	return fmt.Sprintf("%s%s/%s/%d", ChangeRefPrefix, hash[len(hash)-2:], hash, patchSet)
}

// ParseChangeRef splits a synthetic ref name into its change key and
// patch set number.
func ParseChangeRef(name string) (changeKey string, patchSet int, err error) {
	if !IsChangeRef(name) {
		return "", 0, errors.Errorf("not a change ref: %s", name)
	}

	parts := strings.Split(strings.TrimPrefix(name, ChangeRefPrefix), "/")
	if len(parts) != 3 {
		return "", 0, errors.Errorf("malformed change ref: %s", name)
	}

	shard, hash := parts[0], parts[1]
	changeKey = "I" + hash
	if !IsValidChangeID(changeKey) || shard != hash[len(hash)-2:] {
		return "", 0, errors.Errorf("malformed change ref: %s", name)
	}

	patchSet, err = strconv.Atoi(parts[2])
	if err != nil || patchSet < 1 {
		return "", 0, errors.Errorf("malformed change ref: %s", name)
	}

	return changeKey, patchSet, nil
}
