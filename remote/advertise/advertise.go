package advertise

import (
	gitplumbing "github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp"
	"github.com/pkg/errors"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/keepers"
	"github.com/reviewos/kit/pkgs/logger"
	"github.com/reviewos/kit/remote/policy"
	plumbing2 "github.com/reviewos/kit/remote/plumbing"
	repo2 "github.com/reviewos/kit/remote/repo"
	"github.com/reviewos/kit/types/state"
)

// Advertisement modes
const (
	ForUpload  = "upload"
	ForReceive = "receive"
)

// Advertiser computes the ref set a client is shown for an operation
type Advertiser struct {
	cfg     *config.AppConfig
	log     logger.Logger
	changes *keepers.ChangeKeeper
}

// NewAdvertiser creates an instance of Advertiser
func NewAdvertiser(cfg *config.AppConfig, changes *keepers.ChangeKeeper) *Advertiser {
	return &Advertiser{
		cfg:     cfg,
		log:     cfg.G().Log.Module("advertiser"),
		changes: changes,
	}
}

// Refs returns the filtered advertisement set for the given mode.
// Hidden namespaces are dropped, receive advertisements drop refs the
// caller cannot push to, and synthetic refs of open changes are
// injected from the change store.
func (a *Advertiser) Refs(repo *repo2.Repo, mode string) (map[string]string, error) {

	refs := make(map[string]string)

	iter, err := repo.References()
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate refs")
	}
	defer iter.Close()

	err = iter.ForEach(func(ref *gitplumbing.Reference) error {
		if ref.Type() != gitplumbing.HashReference {
			return nil
		}
		name := ref.Name().String()
		if plumbing2.IsHiddenRef(name) {
			return nil
		}
		if mode == ForReceive && policy.CheckPush(a.cfg.Policy, name) != nil {
			return nil
		}
		refs[name] = ref.Hash().String()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err = a.injectSyntheticRefs(repo, refs); err != nil {
		return nil, err
	}

	return refs, nil
}

// injectSyntheticRefs adds refs/changes/XX/HASH/N entries for every
// patch set of the project's open changes. Patch sets whose commit is
// missing from the object database are skipped with a warning.
func (a *Advertiser) injectSyntheticRefs(repo *repo2.Repo, refs map[string]string) error {

	open, err := a.changes.ListByProject(repo.GetName(), state.ChangeStatusNew)
	if err != nil {
		return errors.Wrap(err, "failed to list open changes")
	}

	for _, change := range open {
		for _, ps := range change.PatchSets {
			if !repo.ObjectExist(ps.CommitID) {
				a.log.Warn("Skipping synthetic ref with missing commit",
					"Change", change.Key, "PatchSet", ps.Number, "Commit", ps.CommitID)
				continue
			}
			refs[plumbing2.MakeChangeRef(change.Key, ps.Number)] = ps.CommitID
		}
	}

	return nil
}

// BuildAdvRefs renders a ref set as a protocol advertisement, using the
// repository HEAD as the advertised head when it resolves.
func BuildAdvRefs(repo *repo2.Repo, refs map[string]string) *packp.AdvRefs {
	adv := packp.NewAdvRefs()
	for name, hash := range refs {
		adv.References[name] = gitplumbing.NewHash(hash)
	}
	if head, err := repo.Repository.Head(); err == nil {
		h := head.Hash()
		adv.Head = &h
	}
	return adv
}
