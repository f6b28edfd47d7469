package changes

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/keepers"
	"github.com/reviewos/kit/pkgs/logger"
	plumbing2 "github.com/reviewos/kit/remote/plumbing"
	"github.com/reviewos/kit/storage"
	"github.com/reviewos/kit/types/state"
	errors2 "github.com/reviewos/kit/util/errors"
)

// LocalRepo is the repository access the engine needs
type LocalRepo interface {
	GetName() string
	ObjectExist(objHash string) bool
	UpdateRef(name, hash string) error
}

// Result is the outcome of handing a magic push to the engine
type Result struct {
	Success   bool
	Message   string
	ChangeKey string
	PatchSet  int
}

func failure(format string, a ...interface{}) *Result {
	return &Result{Message: fmt.Sprintf(format, a...)}
}

// Engine owns change records and their synthetic refs
type Engine struct {
	cfg     *config.AppConfig
	log     logger.Logger
	changes *keepers.ChangeKeeper
	sys     *keepers.SystemKeeper
}

// NewEngine creates an instance of Engine
func NewEngine(cfg *config.AppConfig, db storage.Engine) *Engine {
	tx := db.NewTx(true, true)
	return &Engine{
		cfg:     cfg,
		log:     cfg.G().Log.Module("change-engine"),
		changes: keepers.NewChangeKeeper(tx),
		sys:     keepers.NewSystemKeeper(tx),
	}
}

// Store exposes the underlying change keeper
func (e *Engine) Store() *keepers.ChangeKeeper {
	return e.changes
}

// Apply reconciles a magic push with the change store: an unknown key
// creates a change, a known key appends a patch set. The synthetic ref
// of the new patch set is published on success.
func (e *Engine) Apply(repo LocalRepo, changeKey string, commit *object.Commit, target, uploader string) *Result {

	change, err := e.changes.GetByKey(changeKey)
	if err != nil {
		e.log.Error("Failed to load change", "Key", changeKey, "Err", err.Error())
		return failure("internal error while loading change %s", changeKey)
	}

	if change.IsNil() {
		return e.create(repo, changeKey, commit, target, uploader)
	}

	return e.update(repo, change, commit, target, uploader)
}

func (e *Engine) create(repo LocalRepo, changeKey string, commit *object.Commit, target, uploader string) *Result {

	id, err := e.sys.NextChangeID()
	if err != nil {
		e.log.Error("Failed to allocate change id", "Err", err.Error())
		return failure("internal error while allocating change id")
	}

	now := time.Now().UTC().Unix()
	change := state.BareChange()
	change.ID = id
	change.Key = changeKey
	change.Project = repo.GetName()
	change.DestBranch = target
	change.OwnerID = uploader
	change.CreatedOn = now
	change.LastUpdatedOn = now
	change.SetSubject(firstLine(commit.Message))

	ps := &state.PatchSet{
		Number:     1,
		CommitID:   commit.Hash.String(),
		UploaderID: uploader,
		CreatedOn:  now,
	}
	if err = change.AddPatchSet(ps); err != nil {
		return failure("%s", err.Error())
	}

	if err = e.changes.Save(change); err != nil {
		e.log.Error("Failed to save change", "Key", changeKey, "Err", err.Error())
		return failure("internal error while saving change %s", changeKey)
	}

	e.publishSyntheticRef(repo, change.Key, ps.Number, ps.CommitID)
	e.cfg.G().Bus.Emit(config.EvtChangeCreated, change)

	return &Result{Success: true, ChangeKey: change.Key, PatchSet: ps.Number,
		Message: fmt.Sprintf("new change %s created for %s", change.Key, target)}
}

func (e *Engine) update(repo LocalRepo, change *state.Change, commit *object.Commit, target, uploader string) *Result {

	if change.DestBranch != target {
		return failure("Change-Id %s is for branch %s, but you're pushing to %s",
			change.Key, change.DestBranch, target)
	}

	if change.IsTerminal() {
		return failure("change %s is %s", change.Key, strings.ToLower(change.Status))
	}

	now := time.Now().UTC().Unix()
	ps := &state.PatchSet{
		Number:     change.CurrentPatchSet + 1,
		CommitID:   commit.Hash.String(),
		UploaderID: uploader,
		CreatedOn:  now,
	}
	if err := change.AddPatchSet(ps); err != nil {
		return failure("%s", err.Error())
	}

	change.SetSubject(firstLine(commit.Message))
	change.LastUpdatedOn = now

	if err := e.changes.Save(change); err != nil {
		e.log.Error("Failed to save change", "Key", change.Key, "Err", err.Error())
		return failure("internal error while saving change %s", change.Key)
	}

	e.publishSyntheticRef(repo, change.Key, ps.Number, ps.CommitID)
	e.cfg.G().Bus.Emit(config.EvtChangeUpdated, change)

	return &Result{Success: true, ChangeKey: change.Key, PatchSet: ps.Number,
		Message: fmt.Sprintf("change %s updated to patch set %d", change.Key, ps.Number)}
}

// publishSyntheticRef force-updates the ref of a patch set. The change
// record is authoritative; a publish failure logs and the ref is
// reconciled on the next advertisement.
func (e *Engine) publishSyntheticRef(repo LocalRepo, changeKey string, patchSet int, commitID string) {
	ref := plumbing2.MakeChangeRef(changeKey, patchSet)
	if err := repo.UpdateRef(ref, commitID); err != nil {
		e.log.Error("Failed to publish synthetic ref", "Ref", ref, "Err", err.Error())
	}
}

// Abandon moves a NEW change to ABANDONED
func (e *Engine) Abandon(changeKey string) (*state.Change, error) {
	return e.transition(changeKey, state.ChangeStatusNew, state.ChangeStatusAbandoned)
}

// Restore moves an ABANDONED change back to NEW
func (e *Engine) Restore(changeKey string) (*state.Change, error) {
	return e.transition(changeKey, state.ChangeStatusAbandoned, state.ChangeStatusNew)
}

// MarkMerged moves a NEW change to its terminal MERGED status
func (e *Engine) MarkMerged(changeKey string) (*state.Change, error) {
	change, err := e.transition(changeKey, state.ChangeStatusNew, state.ChangeStatusMerged)
	if err != nil {
		return nil, err
	}
	e.cfg.G().Bus.Emit(config.EvtChangeMerged, change)
	return change, nil
}

func (e *Engine) transition(changeKey, from, to string) (*state.Change, error) {
	change, err := e.changes.GetByKey(changeKey)
	if err != nil {
		return nil, err
	}
	if change.IsNil() {
		return nil, errors2.Wrap(errors2.ErrNotFound, "change %s does not exist", changeKey)
	}
	if change.Status != from {
		return nil, errors2.Wrap(errors2.ErrConflict, "change %s is %s, expected %s",
			changeKey, strings.ToLower(change.Status), strings.ToLower(from))
	}
	change.Status = to
	change.LastUpdatedOn = time.Now().UTC().Unix()
	if err = e.changes.Save(change); err != nil {
		return nil, err
	}
	return change, nil
}

func firstLine(message string) string {
	if i := strings.Index(message, "\n"); i >= 0 {
		return message[:i]
	}
	return message
}
