package repo

import (
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	gitplumbing "github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	"github.com/pkg/errors"
)

// Repo is a handle to a local repository. It combines go-git access
// with git-tool convenience methods.
type Repo struct {
	*git.Repository
	*LiteGit
	name string
	path string
}

// Get opens the repository at path
func Get(path string) (*Repo, error) {
	return GetWithGitModule("git", path)
}

// GetWithGitModule opens the repository at path using the given
// git executable for tool-backed operations
func GetWithGitModule(gitBinPath, path string) (*Repo, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, err
	}
	return &Repo{
		Repository: r,
		LiteGit:    NewLiteGit(gitBinPath, path),
		name:       filepath.Base(path),
		path:       path,
	}, nil
}

// GetStorer returns the repository's object and reference storage
func (r *Repo) GetStorer() storage.Storer {
	return r.Storer
}

// GetName returns the repository's name
func (r *Repo) GetName() string {
	return r.name
}

// GetPath returns the repository's path
func (r *Repo) GetPath() string {
	return r.path
}

// Head returns the fully qualified name of the reference HEAD points at
func (r *Repo) Head() (string, error) {
	ref, err := r.Repository.Head()
	if err != nil {
		return "", err
	}
	return ref.Name().String(), nil
}

// ObjectExist checks whether an object exists in the object database
func (r *Repo) ObjectExist(objHash string) bool {
	_, err := r.Object(gitplumbing.AnyObject, gitplumbing.NewHash(objHash))
	return err == nil
}

// CommitByHash returns the commit object identified by hash
func (r *Repo) CommitByHash(hash string) (*object.Commit, error) {
	return r.CommitObject(gitplumbing.NewHash(hash))
}

// TipCommit returns the commit HEAD points at
func (r *Repo) TipCommit() (*object.Commit, error) {
	ref, err := r.Repository.Head()
	if err != nil {
		return nil, err
	}
	return r.CommitObject(ref.Hash())
}

// GetReference returns the hash a reference points at.
// Returns ErrRefNotFound if the reference is unknown.
func (r *Repo) GetReference(name string) (string, error) {
	ref, err := r.Reference(gitplumbing.ReferenceName(name), false)
	if err != nil {
		if err == gitplumbing.ErrReferenceNotFound {
			return "", ErrRefNotFound
		}
		return "", err
	}
	return ref.Hash().String(), nil
}

// UpdateRef forcibly points the named reference at hash
func (r *Repo) UpdateRef(name, hash string) error {
	ref := gitplumbing.NewHashReference(gitplumbing.ReferenceName(name), gitplumbing.NewHash(hash))
	return r.Storer.SetReference(ref)
}

// DeleteRef removes the named reference
func (r *Repo) DeleteRef(name string) error {
	return r.Storer.RemoveReference(gitplumbing.ReferenceName(name))
}

// GetReferences returns the name of every reference in the repository
func (r *Repo) GetReferences() (refs []string, err error) {
	iter, err := r.References()
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	err = iter.ForEach(func(ref *gitplumbing.Reference) error {
		refs = append(refs, ref.Name().String())
		return nil
	})
	return refs, err
}

// ListBranches returns the short name of every branch
func (r *Repo) ListBranches() (branches []string, err error) {
	iter, err := r.Branches()
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	err = iter.ForEach(func(ref *gitplumbing.Reference) error {
		branches = append(branches, ref.Name().Short())
		return nil
	})
	return branches, err
}

// IsAncestor checks whether ancestor is reachable from descendant
func (r *Repo) IsAncestor(ancestor, descendant string) (bool, error) {
	a, err := r.CommitByHash(ancestor)
	if err != nil {
		return false, errors.Wrap(err, "failed to get ancestor commit")
	}
	d, err := r.CommitByHash(descendant)
	if err != nil {
		return false, errors.Wrap(err, "failed to get descendant commit")
	}
	return a.IsAncestor(d)
}
