package push

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/pktline"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp/capability"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp/sideband"
	"github.com/pkg/errors"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/pkgs/logger"
	"github.com/reviewos/kit/remote/changes"
	"github.com/reviewos/kit/remote/policy"
	plumbing2 "github.com/reviewos/kit/remote/plumbing"
	repo2 "github.com/reviewos/kit/remote/repo"
	"github.com/reviewos/kit/util/colorfmt"
)

// RefResult is the outcome of one reference update command
type RefResult struct {
	Ok        bool
	Reason    string
	ChangeKey string
	PatchSet  int
}

// Handler runs the receive pipeline for one push: it buffers the pack
// stream, runs the pre-receive hooks per command, applies the accepted
// updates, reports status and fires post-receive side effects.
type Handler struct {
	cfg      *config.AppConfig
	log      logger.Logger
	Repo     *repo2.Repo
	Engine   *changes.Engine
	Reader   *Reader
	Uploader string
	Results  map[string]*RefResult
}

// NewHandler creates an instance of Handler
func NewHandler(cfg *config.AppConfig, r *repo2.Repo, engine *changes.Engine, uploader string) *Handler {
	return &Handler{
		cfg:      cfg,
		log:      cfg.G().Log.Module("push-handler"),
		Repo:     r,
		Engine:   engine,
		Uploader: uploader,
		Results:  make(map[string]*RefResult),
	}
}

// HandleStream processes a receive-pack request read from pack and
// writes the report-status response to w.
func (h *Handler) HandleStream(pack io.Reader, w io.Writer) error {

	var err error
	h.Reader, err = NewReader(h.Repo.GetStorer())
	if err != nil {
		return errors.Wrap(err, "failed to create push reader")
	}

	if _, err = io.Copy(h.Reader, pack); err != nil {
		return errors.Wrap(err, "failed to buffer push stream")
	}

	if err = h.Reader.Read(); err != nil {
		return err
	}

	h.HandleReferences()
	h.applyUpdates()

	if err = h.writeReportStatus(w); err != nil {
		return err
	}

	h.postReceive()

	return nil
}

// HandleReferences runs the pre-receive checks for every command.
// A failing command does not abort the others.
func (h *Handler) HandleReferences() {
	for _, cmd := range h.Reader.GetUpdateRequest().Commands {
		h.Results[cmd.Name.String()] = h.handleReference(cmd)
	}
}

func (h *Handler) handleReference(cmd *packp.Command) *RefResult {
	if plumbing2.IsMagicRef(cmd.Name.String()) {
		return h.handleMagicReference(cmd)
	}
	return h.handleDirectReference(cmd)
}

// handleMagicReference interprets a push to refs/for/<branch> and hands
// it to the change engine. The ref itself is never stored.
func (h *Handler) handleMagicReference(cmd *packp.Command) *RefResult {

	name := cmd.Name.String()

	target, err := plumbing2.MagicRefTarget(name)
	if err != nil {
		return &RefResult{Reason: err.Error()}
	}

	if cmd.New.IsZero() {
		return &RefResult{Reason: fmt.Sprintf("cannot delete %s", name)}
	}

	commit, err := h.Repo.CommitByHash(cmd.New.String())
	if err != nil {
		return &RefResult{Reason: fmt.Sprintf("unknown commit %s", cmd.New.String())}
	}

	if plumbing2.CountChangeIDs(commit.Message) > 1 {
		return &RefResult{Reason: "multiple Change-Id lines in commit message"}
	}

	changeKey := plumbing2.ExtractChangeID(commit.Message)
	if changeKey == "" {
		generated := plumbing2.GenerateChangeIDFromCommit(commit)
		if !h.cfg.Policy.AutoChangeID {
			return &RefResult{Reason: fmt.Sprintf(
				"Missing Change-Id in commit message. Add the footer 'Change-Id: %s' and try again", generated)}
		}
		changeKey = generated
	}

	res := h.Engine.Apply(h.Repo, changeKey, commit, target, h.Uploader)
	if !res.Success {
		return &RefResult{Reason: res.Message}
	}

	return &RefResult{Ok: true, ChangeKey: res.ChangeKey, PatchSet: res.PatchSet}
}

// handleDirectReference enforces branch protection and tip validation
// for an ordinary ref update
func (h *Handler) handleDirectReference(cmd *packp.Command) *RefResult {

	name := cmd.Name.String()

	if err := policy.CheckPush(h.cfg.Policy, name); err != nil {
		return &RefResult{Reason: err.Error()}
	}

	if cmd.New.IsZero() {
		if !h.cfg.Policy.AllowDeletes {
			return &RefResult{Reason: "deletes are not allowed"}
		}
		return &RefResult{Ok: true}
	}

	if cmd.Old.IsZero() && !h.cfg.Policy.AllowCreates {
		return &RefResult{Reason: "creates are not allowed"}
	}

	commit, err := h.Repo.CommitByHash(cmd.New.String())
	if err != nil {
		return &RefResult{Reason: fmt.Sprintf("unknown commit %s", cmd.New.String())}
	}

	message := strings.TrimSpace(commit.Message)
	if message == "" {
		return &RefResult{Reason: "commit message is required"}
	}
	if min := h.cfg.Policy.MinCommitMsgLen; len(message) < min {
		return &RefResult{Reason: fmt.Sprintf("commit message is too short; minimum is %d characters", min)}
	}

	if !cmd.Old.IsZero() && !h.cfg.Policy.AllowNonFastForwards {
		ff, err := h.Repo.IsAncestor(cmd.Old.String(), cmd.New.String())
		if err == nil && !ff {
			return &RefResult{Reason: "non-fast-forward pushes are not allowed"}
		}
	}

	return &RefResult{Ok: true}
}

// applyUpdates writes the accepted direct updates to the repository.
// Magic refs are never materialized.
func (h *Handler) applyUpdates() {
	for _, cmd := range h.Reader.GetUpdateRequest().Commands {
		name := cmd.Name.String()
		res := h.Results[name]
		if !res.Ok || plumbing2.IsMagicRef(name) {
			continue
		}

		if reason := h.applyUpdate(cmd); reason != "" {
			res.Ok = false
			res.Reason = reason
		}
	}
}

func (h *Handler) applyUpdate(cmd *packp.Command) string {

	name := cmd.Name.String()
	current, err := h.Repo.GetReference(name)

	switch {
	case cmd.Old.IsZero():
		if err == nil {
			return "reference already exists"
		}
	case err == repo2.ErrRefNotFound:
		return "reference does not exist"
	case err != nil:
		h.log.Error("Failed to read reference", "Ref", name, "Err", err.Error())
		return "internal error"
	case current != cmd.Old.String():
		return "reference has moved"
	}

	if cmd.New.IsZero() {
		err = h.Repo.DeleteRef(name)
	} else {
		err = h.Repo.UpdateRef(name, cmd.New.String())
	}
	if err != nil {
		h.log.Error("Failed to update reference", "Ref", name, "Err", err.Error())
		return "internal error"
	}

	return ""
}

// writeReportStatus encodes the per-command results as a report-status
// response, honoring the client's side-band capability.
func (h *Handler) writeReportStatus(w io.Writer) error {

	report := packp.NewReportStatus()
	report.UnpackStatus = "ok"
	for _, cmd := range h.Reader.GetUpdateRequest().Commands {
		res := h.Results[cmd.Name.String()]
		status := "ok"
		if !res.Ok {
			status = res.Reason
		}
		report.CommandStatuses = append(report.CommandStatuses, &packp.CommandStatus{
			ReferenceName: cmd.Name,
			Status:        status,
		})
	}

	caps := h.Reader.GetUpdateRequest().Capabilities
	if caps != nil && (caps.Supports(capability.Sideband64k) || caps.Supports(capability.Sideband)) {
		chanSize := sideband.Sideband64k
		if !caps.Supports(capability.Sideband64k) {
			chanSize = sideband.Sideband
		}
		mux := sideband.NewMuxer(chanSize, w)
		h.writeProgress(mux)
		if err := report.Encode(mux); err != nil {
			return errors.Wrap(err, "failed to encode report status")
		}
		return pktline.NewEncoder(w).Flush()
	}

	return errors.Wrap(report.Encode(w), "failed to encode report status")
}

// writeProgress prints the outcome of magic-ref commands on the
// progress channel so the pushing client sees the resulting patch sets
func (h *Handler) writeProgress(mux *sideband.Muxer) {
	for _, cmd := range h.Reader.GetUpdateRequest().Commands {
		name := cmd.Name.String()
		if !plumbing2.IsMagicRef(name) {
			continue
		}
		res := h.Results[name]
		var msg string
		if res.Ok {
			msg = colorfmt.GreenString("change %s: patch set %d\n", res.ChangeKey, res.PatchSet)
		} else {
			msg = colorfmt.RedString("%s\n", res.Reason)
		}
		mux.WriteChannel(sideband.ProgressMessage, []byte(msg))
	}
}

// postReceive fires the side effects of accepted commands. Failures
// are logged and swallowed; the push has already committed.
func (h *Handler) postReceive() {
	for _, cmd := range h.Reader.GetUpdateRequest().Commands {
		name := cmd.Name.String()
		res := h.Results[name]
		if !res.Ok {
			continue
		}

		if plumbing2.IsMagicRef(name) {
			h.log.Debug("Patch set received", "Change", res.ChangeKey, "PatchSet", res.PatchSet)
			continue
		}

		if !cmd.New.IsZero() && plumbing2.IsBranchRef(name) {
			h.cfg.G().Bus.Emit(config.EvtBranchPushed, h.Repo.GetName(), name, cmd.New.String())
			h.log.Debug("Branch updated", "Repo", h.Repo.GetName(), "Ref", name)
		}
	}
}
