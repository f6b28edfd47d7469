package policy

import (
	"strings"

	"github.com/reviewos/kit/config"
	plumbing2 "github.com/reviewos/kit/remote/plumbing"
	errors2 "github.com/reviewos/kit/util/errors"
)

// CheckPush decides whether refName accepts a direct push.
// Magic refs are always pushable. Branches other than the trunk are
// closed unless direct pushes are allowed. Tags, change refs and
// hidden namespaces never accept pushes.
func CheckPush(p *config.PolicyConfig, refName string) error {
	if plumbing2.IsMagicRef(refName) {
		return nil
	}

	for _, prefix := range p.ProtectedPrefixes {
		if strings.HasPrefix(refName, prefix) {
			return errors2.Wrap(errors2.ErrPermissionDenied, "ref %s is protected", refName)
		}
	}

	if plumbing2.IsBranchRef(refName) {
		branch := strings.TrimPrefix(refName, plumbing2.BranchRefPrefix)
		if branch == p.TrunkBranch || p.AllowDirectPush {
			return nil
		}
		return errors2.Wrap(errors2.ErrPermissionDenied,
			"direct push to %s is not allowed; push to refs/for/%s to create a change", refName, branch)
	}

	return errors2.Wrap(errors2.ErrPermissionDenied, "pushes to %s are not allowed", refName)
}

// CheckRead decides whether refName may be advertised for fetches
func CheckRead(refName string) bool {
	return !plumbing2.IsHiddenRef(refName)
}
