package review

import (
	"strconv"
	"strings"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/keepers"
	"github.com/reviewos/kit/pkgs/logger"
	"github.com/reviewos/kit/types/state"
	errors2 "github.com/reviewos/kit/util/errors"
)

// Surface exposes the review operations of a change: the reviewer set,
// votes and comments.
type Surface struct {
	cfg      *config.AppConfig
	log      logger.Logger
	changes  *keepers.ChangeKeeper
	accounts *keepers.AccountKeeper
	projects *keepers.ProjectKeeper
}

// NewSurface creates an instance of Surface
func NewSurface(cfg *config.AppConfig, changes *keepers.ChangeKeeper,
	accounts *keepers.AccountKeeper, projects *keepers.ProjectKeeper) *Surface {
	return &Surface{
		cfg:      cfg,
		log:      cfg.G().Log.Module("review"),
		changes:  changes,
		accounts: accounts,
		projects: projects,
	}
}

func (s *Surface) loadChange(changeKey string) (*state.Change, error) {
	change, err := s.changes.GetByKey(changeKey)
	if err != nil {
		return nil, err
	}
	if change.IsNil() {
		return nil, errors2.Wrap(errors2.ErrNotFound, "change %s does not exist", changeKey)
	}
	return change, nil
}

// GetReviewers returns every member of the change's reviewer set, both
// REVIEWER and CC entries.
func (s *Surface) GetReviewers(changeKey string) ([]*state.Reviewer, error) {
	change, err := s.loadChange(changeKey)
	if err != nil {
		return nil, err
	}
	return change.Metadata.Reviewers, nil
}

// AddReviewer resolves reviewerStr to an account and adds it to the
// change's reviewer set in the given state. An account already in the
// set is reported with an AlreadyExists error and the set is unchanged.
func (s *Surface) AddReviewer(changeKey, reviewerStr, reviewerState string) (*state.Reviewer, error) {

	if reviewerState == "" {
		reviewerState = state.ReviewerStateReviewer
	}
	if reviewerState != state.ReviewerStateReviewer && reviewerState != state.ReviewerStateCC {
		return nil, errors2.Wrap(errors2.ErrBadRequest, "unknown reviewer state %q", reviewerState)
	}

	change, err := s.loadChange(changeKey)
	if err != nil {
		return nil, err
	}

	account, err := s.resolveAccount(reviewerStr)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, errors2.Wrap(errors2.ErrBadRequest, "account %s is inactive", account.Username)
	}
	if s.isOwner(change, account) {
		return nil, errors2.Wrap(errors2.ErrBadRequest, "the change owner cannot be added as a reviewer")
	}

	accountID := strconv.FormatInt(account.ID, 10)
	if change.GetReviewer(accountID) != nil {
		return nil, errors2.Wrap(errors2.ErrAlreadyExists, "account %s is already a reviewer", account.Username)
	}

	reviewer := &state.Reviewer{AccountID: accountID, State: reviewerState}
	change.Metadata.Reviewers = append(change.Metadata.Reviewers, reviewer)
	change.LastUpdatedOn = time.Now().UTC().Unix()
	if err = s.changes.Save(change); err != nil {
		return nil, err
	}

	return reviewer, nil
}

// RemoveReviewer removes the account identified by identifier from the
// change's reviewer set, whatever its state.
func (s *Surface) RemoveReviewer(changeKey, identifier string) error {

	change, err := s.loadChange(changeKey)
	if err != nil {
		return err
	}

	account, err := s.resolveAccount(identifier)
	if err != nil {
		return err
	}

	accountID := strconv.FormatInt(account.ID, 10)
	reviewers := change.Metadata.Reviewers
	for i, r := range reviewers {
		if r.AccountID == accountID {
			change.Metadata.Reviewers = append(reviewers[:i], reviewers[i+1:]...)
			change.LastUpdatedOn = time.Now().UTC().Unix()
			return s.changes.Save(change)
		}
	}

	return errors2.Wrap(errors2.ErrNotFound, "account %s is not a reviewer", account.Username)
}

// Review records one vote per label on a revision of the change. A
// label's value must fall in the project's configured range. A new vote
// replaces the caller's prior vote on the same label.
func (s *Surface) Review(changeKey string, revision int, labels map[string]int, accountID string) ([]*state.Approval, error) {

	change, err := s.loadChange(changeKey)
	if err != nil {
		return nil, err
	}

	ps := change.GetPatchSet(revision)
	if revision == 0 {
		ps = change.CurrentPatchSetObj()
	}
	if ps == nil {
		return nil, errors2.Wrap(errors2.ErrNotFound, "change %s has no patch set %d", changeKey, revision)
	}

	proj, err := s.projects.Get(change.Project)
	if err != nil {
		return nil, err
	}

	for label, value := range labels {
		r := proj.LabelRangeOf(label)
		if value < r.Min || value > r.Max {
			return nil, errors2.Wrap(errors2.ErrBadRequest,
				"value %d is out of range for label %s (allowed: %d..%d)", value, label, r.Min, r.Max)
		}
	}

	now := time.Now().UTC().Unix()
	var granted []*state.Approval
	for label, value := range labels {
		approval := change.GetApproval(label, accountID)
		if approval == nil {
			approval = &state.Approval{Label: label, AccountID: accountID}
			change.Approvals = append(change.Approvals, approval)
		}
		approval.Value = value
		approval.Revision = ps.CommitID
		approval.GrantedAt = now
		granted = append(granted, approval)
	}

	change.LastUpdatedOn = now
	if err = s.changes.Save(change); err != nil {
		return nil, err
	}

	return granted, nil
}

// isOwner checks whether the account is the change owner. Owners are
// recorded by the identity the push arrived with, which may be a
// username or a numeric account id.
func (s *Surface) isOwner(change *state.Change, account *state.Account) bool {
	return change.OwnerID == account.Username ||
		change.OwnerID == strconv.FormatInt(account.ID, 10)
}

// resolveAccount maps an identifier to an account. Numeric ids are
// tried first, then email, username and full name, and finally a
// unique case-insensitive partial match.
func (s *Surface) resolveAccount(identifier string) (*state.Account, error) {

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors2.Wrap(errors2.ErrBadRequest, "reviewer identifier is required")
	}

	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		account, err := s.accounts.Get(id)
		if err != nil {
			return nil, err
		}
		if !account.IsNil() {
			return account, nil
		}
	}

	accounts, err := s.accounts.List()
	if err != nil {
		return nil, err
	}

	for _, a := range accounts {
		if a.Email != "" && a.Email == identifier {
			return a, nil
		}
	}
	for _, a := range accounts {
		if a.Username == identifier {
			return a, nil
		}
	}
	for _, a := range accounts {
		if a.FullName != "" && a.FullName == identifier {
			return a, nil
		}
	}

	// Fall back to a partial match, accepted only when unambiguous
	var matches []*state.Account
	needle := strings.ToLower(identifier)
	for _, a := range accounts {
		if strings.Contains(strings.ToLower(a.Username), needle) ||
			strings.Contains(strings.ToLower(a.FullName), needle) {
			matches = append(matches, a)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return nil, errors2.Wrap(errors2.ErrBadRequest, "%q matches more than one account", identifier)
	}

	return nil, errors2.Wrap(errors2.ErrNotFound, "no account matches %q", identifier)
}

// revisionKey normalizes a patch set number to the map key used by the
// comment stores.
func revisionKey(change *state.Change, revision int) (string, error) {
	if revision == 0 {
		revision = change.CurrentPatchSet
	}
	if change.GetPatchSet(revision) == nil {
		return "", errors2.Wrap(errors2.ErrNotFound, "change %s has no patch set %d", change.Key, revision)
	}
	return strconv.Itoa(revision), nil
}

// PutDraft stores a draft comment on a file of a revision. A draft with
// an id updates the stored draft in place; otherwise an id is assigned.
func (s *Surface) PutDraft(changeKey string, revision int, comment *state.Comment) (*state.Comment, error) {

	change, err := s.loadChange(changeKey)
	if err != nil {
		return nil, err
	}
	rev, err := revisionKey(change, revision)
	if err != nil {
		return nil, err
	}
	if comment.Path == "" {
		return nil, errors2.Wrap(errors2.ErrBadRequest, "comment path is required")
	}

	comment.Updated = time.Now().UTC().Unix()

	drafts := change.Metadata.Drafts
	if drafts[rev] == nil {
		drafts[rev] = map[string][]*state.Comment{}
	}

	if comment.ID != "" {
		for i, c := range drafts[rev][comment.Path] {
			if c.ID == comment.ID {
				drafts[rev][comment.Path][i] = comment
				return comment, s.changes.Save(change)
			}
		}
		return nil, errors2.Wrap(errors2.ErrNotFound, "draft %s does not exist", comment.ID)
	}

	comment.ID = uuid.NewV4().String()
	drafts[rev][comment.Path] = append(drafts[rev][comment.Path], comment)

	return comment, s.changes.Save(change)
}

// DiscardDraft removes a draft comment. Unlike published comments,
// drafts are deleted outright.
func (s *Surface) DiscardDraft(changeKey string, revision int, path, id string) error {

	change, err := s.loadChange(changeKey)
	if err != nil {
		return err
	}
	rev, err := revisionKey(change, revision)
	if err != nil {
		return err
	}

	list := change.Metadata.Drafts[rev][path]
	for i, c := range list {
		if c.ID == id {
			change.Metadata.Drafts[rev][path] = append(list[:i], list[i+1:]...)
			return s.changes.Save(change)
		}
	}

	return errors2.Wrap(errors2.ErrNotFound, "draft %s does not exist", id)
}

// PublishDrafts moves every draft of a revision into the published
// comments of the change.
func (s *Surface) PublishDrafts(changeKey string, revision int) ([]*state.Comment, error) {

	change, err := s.loadChange(changeKey)
	if err != nil {
		return nil, err
	}
	rev, err := revisionKey(change, revision)
	if err != nil {
		return nil, err
	}

	comments := change.Metadata.Comments
	if comments[rev] == nil {
		comments[rev] = map[string][]*state.Comment{}
	}

	now := time.Now().UTC().Unix()
	var published []*state.Comment
	for path, list := range change.Metadata.Drafts[rev] {
		for _, c := range list {
			c.Updated = now
			comments[rev][path] = append(comments[rev][path], c)
			published = append(published, c)
		}
	}
	delete(change.Metadata.Drafts, rev)

	change.LastUpdatedOn = now
	if err = s.changes.Save(change); err != nil {
		return nil, err
	}

	return published, nil
}

// ListComments returns the published comments of a revision keyed by
// file path.
func (s *Surface) ListComments(changeKey string, revision int) (map[string][]*state.Comment, error) {
	change, err := s.loadChange(changeKey)
	if err != nil {
		return nil, err
	}
	rev, err := revisionKey(change, revision)
	if err != nil {
		return nil, err
	}
	return change.Metadata.Comments[rev], nil
}

// ListDrafts returns the draft comments of a revision keyed by file path
func (s *Surface) ListDrafts(changeKey string, revision int) (map[string][]*state.Comment, error) {
	change, err := s.loadChange(changeKey)
	if err != nil {
		return nil, err
	}
	rev, err := revisionKey(change, revision)
	if err != nil {
		return nil, err
	}
	return change.Metadata.Drafts[rev], nil
}

// TombstoneComment blanks a published comment. The entry stays in the
// list with its message replaced and its deleted flag set.
func (s *Surface) TombstoneComment(changeKey string, revision int, path, id string) error {

	change, err := s.loadChange(changeKey)
	if err != nil {
		return err
	}
	rev, err := revisionKey(change, revision)
	if err != nil {
		return err
	}

	for _, c := range change.Metadata.Comments[rev][path] {
		if c.ID == id {
			c.Message = "Comment removed"
			c.Deleted = true
			c.Updated = time.Now().UTC().Unix()
			return s.changes.Save(change)
		}
	}

	return errors2.Wrap(errors2.ErrNotFound, "comment %s does not exist", id)
}
