package revops

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/keepers"
	"github.com/reviewos/kit/pkgs/logger"
	"github.com/reviewos/kit/remote/changes"
	plumbing2 "github.com/reviewos/kit/remote/plumbing"
	repo2 "github.com/reviewos/kit/remote/repo"
	"github.com/reviewos/kit/types/state"
	errors2 "github.com/reviewos/kit/util/errors"
)

const pickRef = "refs/ps/pick"

// Ops runs revision-scoped operations on changes: submit, rebase,
// cherry-pick, revert and move. Work happens in a throwaway clone of
// the project repository and the results are pushed back.
type Ops struct {
	cfg      *config.AppConfig
	log      logger.Logger
	engine   *changes.Engine
	gw       *repo2.Gateway
	projects *keepers.ProjectKeeper
}

// NewOps creates an instance of Ops
func NewOps(cfg *config.AppConfig, engine *changes.Engine, gw *repo2.Gateway,
	projects *keepers.ProjectKeeper) *Ops {
	return &Ops{
		cfg:      cfg,
		log:      cfg.G().Log.Module("revops"),
		engine:   engine,
		gw:       gw,
		projects: projects,
	}
}

// workspace clones the project repository into a temp directory and
// checks out branch. The caller must invoke cleanup on every path.
func (o *Ops) workspace(project, branch string) (*repo2.Repo, func(), error) {

	tmp, err := ioutil.TempDir("", "revops")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { os.RemoveAll(tmp) }

	gitBin := o.cfg.Node.GitBinPath
	if _, err = repo2.ExecGitCmd(gitBin, os.TempDir(), "clone", o.gw.Path(project), tmp); err != nil {
		cleanup()
		return nil, nil, errors.Wrap(err, "failed to clone project repository")
	}

	ws, err := repo2.GetWithGitModule(gitBin, tmp)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	repo2.ExecGitCmd(gitBin, tmp, "config", "user.name", config.AppName)
	repo2.ExecGitCmd(gitBin, tmp, "config", "user.email", config.AppName+"@localhost")

	if cur, err2 := ws.GetHEAD(true); err2 != nil || cur != branch {
		if err = ws.Checkout(branch, false, false); err != nil {
			cleanup()
			return nil, nil, errors2.Wrap(errors2.ErrConflict, "branch %s cannot be checked out", branch)
		}
	}

	return ws, cleanup, nil
}

// loadOpenChange fetches a change that must be in the given status
func (o *Ops) loadChange(changeKey, wantStatus string) (*state.Change, error) {
	change, err := o.engine.Store().GetByKey(changeKey)
	if err != nil {
		return nil, err
	}
	if change.IsNil() {
		return nil, errors2.Wrap(errors2.ErrNotFound, "change %s does not exist", changeKey)
	}
	if change.Status != wantStatus {
		return nil, errors2.Wrap(errors2.ErrConflict, "change %s is %s, expected %s",
			changeKey, strings.ToLower(change.Status), strings.ToLower(wantStatus))
	}
	return change, nil
}

// patchSet resolves a patch set of a change. A zero revision selects
// the current patch set.
func patchSet(change *state.Change, revision int) (*state.PatchSet, error) {
	if revision == 0 {
		revision = change.CurrentPatchSet
	}
	ps := change.GetPatchSet(revision)
	if ps == nil {
		return nil, errors2.Wrap(errors2.ErrNotFound, "change %s has no patch set %d", change.Key, revision)
	}
	return ps, nil
}

// Submit merges the current patch set of a NEW change into its
// destination branch and marks the change MERGED.
func (o *Ops) Submit(changeKey string) (*state.Change, error) {

	change, err := o.loadChange(changeKey, state.ChangeStatusNew)
	if err != nil {
		return nil, err
	}

	ps, err := patchSet(change, 0)
	if err != nil {
		return nil, err
	}

	ws, cleanup, err := o.workspace(change.Project, change.DestBranch)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	srcRef := plumbing2.MakeChangeRef(change.Key, ps.Number)
	if err = ws.FetchRef("origin", srcRef, pickRef); err != nil {
		return nil, errors2.Wrap(errors2.ErrConflict, "patch set %d of %s is not available", ps.Number, change.Key)
	}

	msg := fmt.Sprintf("Merge change %s: %s", change.Key, change.Subject)
	noFF, err := o.useMergeCommit(change.Project)
	if err != nil {
		return nil, err
	}

	out, err := ws.Merge(pickRef, msg, noFF)
	if err != nil {
		if strings.Contains(out, "CONFLICT") {
			ws.AbortMerge()
			return nil, errors2.Wrap(errors2.ErrConflict, "change %s conflicts with %s", change.Key, change.DestBranch)
		}
		return nil, errors2.Wrap(errors2.ErrConflict, "merge of change %s failed", change.Key)
	}

	if err = ws.PushRefspec("origin", "HEAD:refs/heads/"+change.DestBranch, false); err != nil {
		return nil, errors.Wrap(err, "failed to push merge result")
	}

	return o.engine.MarkMerged(change.Key)
}

// useMergeCommit maps the project's submit type to the merge mode
func (o *Ops) useMergeCommit(project string) (noFF bool, err error) {
	proj, err := o.projects.Get(project)
	if err != nil {
		return false, err
	}
	return proj.SubmitType == state.SubmitTypeMergeAlways, nil
}

// Rebase replays the current patch set of a NEW change onto the tip of
// its destination branch and appends the result as a new patch set.
func (o *Ops) Rebase(changeKey, uploader string) (*state.Change, error) {

	change, err := o.loadChange(changeKey, state.ChangeStatusNew)
	if err != nil {
		return nil, err
	}

	ps, err := patchSet(change, 0)
	if err != nil {
		return nil, err
	}

	ws, cleanup, err := o.workspace(change.Project, change.DestBranch)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	srcRef := plumbing2.MakeChangeRef(change.Key, ps.Number)
	if err = ws.FetchRef("origin", srcRef, pickRef); err != nil {
		return nil, errors2.Wrap(errors2.ErrConflict, "patch set %d of %s is not available", ps.Number, change.Key)
	}

	if _, err = ws.CherryPick(pickRef); err != nil {
		ws.AbortCherryPick()
		return nil, errors2.Wrap(errors2.ErrConflict, "change %s conflicts with %s", change.Key, change.DestBranch)
	}

	return o.adoptTip(ws, change.Project, change.Key, change.DestBranch, change.CurrentPatchSet+1, uploader)
}

// CherryPick replays a patch set of a change onto destination and
// creates a new change with a fresh key there.
func (o *Ops) CherryPick(changeKey string, revision int, destination, message, uploader string) (*state.Change, error) {

	change, err := o.engine.Store().GetByKey(changeKey)
	if err != nil {
		return nil, err
	}
	if change.IsNil() {
		return nil, errors2.Wrap(errors2.ErrNotFound, "change %s does not exist", changeKey)
	}

	ps, err := patchSet(change, revision)
	if err != nil {
		return nil, err
	}

	ws, cleanup, err := o.workspace(change.Project, destination)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	srcRef := plumbing2.MakeChangeRef(change.Key, ps.Number)
	if err = ws.FetchRef("origin", srcRef, pickRef); err != nil {
		return nil, errors2.Wrap(errors2.ErrConflict, "patch set %d of %s is not available", ps.Number, change.Key)
	}

	if _, err = ws.CherryPick(pickRef); err != nil {
		ws.AbortCherryPick()
		return nil, errors2.Wrap(errors2.ErrConflict, "change %s conflicts with %s", change.Key, destination)
	}

	if message != "" {
		if err = o.replaceSubject(ws, message); err != nil {
			return nil, err
		}
	}

	newKey, err := o.rekeyTip(ws)
	if err != nil {
		return nil, err
	}

	return o.adoptTip(ws, change.Project, newKey, destination, 1, uploader)
}

// Revert creates a new change on the same branch undoing a MERGED
// change.
func (o *Ops) Revert(changeKey, message, topic, uploader string) (*state.Change, error) {

	change, err := o.loadChange(changeKey, state.ChangeStatusMerged)
	if err != nil {
		return nil, err
	}

	ps, err := patchSet(change, 0)
	if err != nil {
		return nil, err
	}

	ws, cleanup, err := o.workspace(change.Project, change.DestBranch)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if _, err = ws.Revert(ps.CommitID); err != nil {
		return nil, errors2.Wrap(errors2.ErrConflict, "change %s cannot be reverted cleanly", change.Key)
	}

	subject := fmt.Sprintf("Revert %q", change.Subject)
	if message != "" {
		subject = message
	}
	if err = o.replaceSubject(ws, subject); err != nil {
		return nil, err
	}

	newKey, err := o.rekeyTip(ws)
	if err != nil {
		return nil, err
	}

	reverting, err := o.adoptTip(ws, change.Project, newKey, change.DestBranch, 1, uploader)
	if err != nil {
		return nil, err
	}

	if topic != "" {
		reverting.Topic = topic
		if err = o.engine.Store().Save(reverting); err != nil {
			return nil, err
		}
	}

	return reverting, nil
}

// Move retargets a NEW change at another branch. Only dest_branch
// changes; patch sets and refs stay put.
func (o *Ops) Move(changeKey, newBranch string) (*state.Change, error) {

	change, err := o.loadChange(changeKey, state.ChangeStatusNew)
	if err != nil {
		return nil, err
	}

	change.DestBranch = newBranch
	change.LastUpdatedOn = time.Now().UTC().Unix()
	if err = o.engine.Store().Save(change); err != nil {
		return nil, err
	}

	return change, nil
}

// replaceSubject rewrites the subject of the workspace tip, keeping
// body and footers intact.
func (o *Ops) replaceSubject(ws *repo2.Repo, subject string) error {
	tip, err := ws.TipCommit()
	if err != nil {
		return err
	}
	msg := plumbing2.ParseCommitMessage(tip.Message)
	msg.Subject = subject
	return ws.AmendMessage(msg.String())
}

// rekeyTip amends the workspace tip with a freshly generated change id
func (o *Ops) rekeyTip(ws *repo2.Repo) (string, error) {
	tip, err := ws.TipCommit()
	if err != nil {
		return "", err
	}
	newKey := plumbing2.GenerateChangeIDFromCommit(tip)
	newMsg := plumbing2.InsertChangeID(plumbing2.StripChangeIDs(tip.Message), newKey)
	if err = ws.AmendMessage(newMsg); err != nil {
		return "", err
	}
	return newKey, nil
}

// adoptTip pushes the workspace tip to the project repository as the
// synthetic ref of the given patch set and records it through the
// change engine.
func (o *Ops) adoptTip(ws *repo2.Repo, project, changeKey, destBranch string, patchSetNum int, uploader string) (*state.Change, error) {

	dstRef := plumbing2.MakeChangeRef(changeKey, patchSetNum)
	if err := ws.PushRefspec("origin", "HEAD:"+dstRef, true); err != nil {
		return nil, errors.Wrap(err, "failed to push new patch set")
	}

	src, err := o.gw.Open(project)
	if err != nil {
		return nil, err
	}

	tipHash, err := src.GetReference(dstRef)
	if err != nil {
		return nil, err
	}
	commit, err := src.CommitByHash(tipHash)
	if err != nil {
		return nil, err
	}

	res := o.engine.Apply(src, changeKey, commit, destBranch, uploader)
	if !res.Success {
		return nil, errors2.Wrap(errors2.ErrConflict, "%s", res.Message)
	}

	return o.engine.Store().GetByKey(changeKey)
}
