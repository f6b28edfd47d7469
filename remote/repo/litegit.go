package repo

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// ExecGitCmd executes git commands and returns the output
// gitBinDir: The path of the git executable.
// repoDir: The directory of the target repository.
// args: Arguments for the git sub-command
func ExecGitCmd(gitBinDir, repoDir string, args ...string) ([]byte, error) {
	cmd := exec.Command(gitBinDir, args...)
	cmd.Dir = repoDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, errors.Wrap(err, fmt.Sprintf("exec error: cmd=%s, output=%s",
			cmd.String(), string(out)))
	}
	return out, nil
}

// ErrRefNotFound means a reference was not found
var ErrRefNotFound = fmt.Errorf("ref not found")

// LiteGit provides convenience methods that utilize
// the git tool to access and modify a repository
type LiteGit struct {
	gitBinPath string
	path       string
}

// NewLiteGit creates an instance of LiteGit.
// gitBinPath: Git executable path
// path: The target repository path
func NewLiteGit(gitBinPath, path string) *LiteGit {
	return &LiteGit{gitBinPath: gitBinPath, path: path}
}

// RefDelete executes `git update-ref -d <refname>` to delete a reference
func (lg *LiteGit) RefDelete(refname string) error {
	_, err := ExecGitCmd(lg.gitBinPath, lg.path, "update-ref", "-d", refname)
	if err != nil {
		return errors.Wrap(err, "reference delete failed")
	}
	return nil
}

// RefUpdate executes `git update-ref <refname> <commit hash>` to update/create a reference
func (lg *LiteGit) RefUpdate(refname, commitHash string) error {
	_, err := ExecGitCmd(lg.gitBinPath, lg.path, "update-ref", refname, commitHash)
	if err != nil {
		return errors.Wrap(err, "reference update failed")
	}
	return nil
}

// RefGet returns the hash content of a reference.
// Returns ErrRefNotFound if ref does not exist
func (lg *LiteGit) RefGet(refname string) (string, error) {
	out, err := ExecGitCmd(lg.gitBinPath, lg.path, "rev-parse", "--verify", refname)
	if err != nil {
		if strings.Contains(err.Error(), "fatal: Needed a single revision") {
			return "", ErrRefNotFound
		}
		return "", errors.Wrap(err, "failed to get ref hash")
	}
	return strings.TrimSpace(string(out)), nil
}

// GetHEAD returns the reference stored in HEAD
// short: When set to true, the short reference name is returned
func (lg *LiteGit) GetHEAD(short bool) (string, error) {
	var args = []string{"symbolic-ref", "HEAD"}
	if short {
		args = []string{"symbolic-ref", "--short", "HEAD"}
	}

	out, err := ExecGitCmd(lg.gitBinPath, lg.path, args...)
	if err != nil {
		return "", errors.Wrap(err, "failed to get current branch")
	}

	return strings.TrimSpace(string(out)), nil
}

// SetHEAD updates HEAD to point at ref
func (lg *LiteGit) SetHEAD(ref string) error {
	_, err := ExecGitCmd(lg.gitBinPath, lg.path, "symbolic-ref", "HEAD", ref)
	if err != nil {
		return errors.Wrap(err, "failed to set HEAD")
	}
	return nil
}

// Checkout switches the working tree to branch
func (lg *LiteGit) Checkout(branch string, create, force bool) error {
	args := []string{"checkout"}
	if create {
		args = append(args, "-b")
	}
	args = append(args, branch)
	if force {
		args = append(args, "-f")
	}
	_, err := ExecGitCmd(lg.gitBinPath, lg.path, args...)
	if err != nil {
		return errors.Wrap(err, "checkout failed")
	}
	return nil
}

// Merge merges rev into the checked out branch.
// Returns the raw git output so callers can detect conflicts.
func (lg *LiteGit) Merge(rev, message string, noFF bool) (string, error) {
	args := []string{"merge", rev, "-m", message}
	if noFF {
		args = append(args, "--no-ff")
	}
	out, err := ExecGitCmd(lg.gitBinPath, lg.path, args...)
	return string(out), err
}

// AbortMerge aborts an in-progress merge
func (lg *LiteGit) AbortMerge() error {
	_, err := ExecGitCmd(lg.gitBinPath, lg.path, "merge", "--abort")
	return err
}

// CherryPick replays rev onto the checked out branch
func (lg *LiteGit) CherryPick(rev string) (string, error) {
	out, err := ExecGitCmd(lg.gitBinPath, lg.path, "cherry-pick", rev)
	return string(out), err
}

// AbortCherryPick aborts an in-progress cherry-pick
func (lg *LiteGit) AbortCherryPick() error {
	_, err := ExecGitCmd(lg.gitBinPath, lg.path, "cherry-pick", "--abort")
	return err
}

// Revert creates a commit reverting rev on the checked out branch
func (lg *LiteGit) Revert(rev string) (string, error) {
	out, err := ExecGitCmd(lg.gitBinPath, lg.path, "revert", rev, "--no-edit")
	return string(out), err
}

// AmendMessage rewrites the tip commit message of the checked out branch
func (lg *LiteGit) AmendMessage(message string) error {
	_, err := ExecGitCmd(lg.gitBinPath, lg.path, "commit", "--amend", "-m", message)
	if err != nil {
		return errors.Wrap(err, "amend failed")
	}
	return nil
}

// FetchRef fetches src from remote into the local ref dst
func (lg *LiteGit) FetchRef(remote, src, dst string) error {
	_, err := ExecGitCmd(lg.gitBinPath, lg.path, "fetch", remote, fmt.Sprintf("%s:%s", src, dst))
	if err != nil {
		return errors.Wrap(err, "fetch failed")
	}
	return nil
}

// PushRefspec pushes a refspec to remote
func (lg *LiteGit) PushRefspec(remote, refspec string, force bool) error {
	args := []string{"push", remote, refspec}
	if force {
		args = append(args, "-f")
	}
	_, err := ExecGitCmd(lg.gitBinPath, lg.path, args...)
	if err != nil {
		return errors.Wrap(err, "push failed")
	}
	return nil
}

// GC runs garbage collection and packs loose references
func (lg *LiteGit) GC() error {
	if _, err := ExecGitCmd(lg.gitBinPath, lg.path, "gc", "--quiet"); err != nil {
		return errors.Wrap(err, "gc failed")
	}
	if _, err := ExecGitCmd(lg.gitBinPath, lg.path, "pack-refs", "--all"); err != nil {
		return errors.Wrap(err, "pack-refs failed")
	}
	return nil
}

// Var returns the value of a git logical variable
func (lg *LiteGit) Var(name string) (string, error) {
	out, err := ExecGitCmd(lg.gitBinPath, lg.path, "var", name)
	if err != nil {
		return "", errors.Wrap(err, "failed to get git var")
	}
	return strings.TrimSpace(string(out)), nil
}
