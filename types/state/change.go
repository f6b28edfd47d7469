package state

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/reviewos/kit/util"
	errors2 "github.com/reviewos/kit/util/errors"
)

// Change statuses
const (
	ChangeStatusNew       = "NEW"
	ChangeStatusMerged    = "MERGED"
	ChangeStatusAbandoned = "ABANDONED"
)

// Reviewer states
const (
	ReviewerStateReviewer = "REVIEWER"
	ReviewerStateCC       = "CC"
)

// MaxSubjectLen is the maximum length of a change subject
const MaxSubjectLen = 1000

// NoSubject is used when the tip commit has an empty first line
const NoSubject = "No subject"

// ChangeKeyRegexp matches a well-formed change key
var ChangeKeyRegexp = regexp.MustCompile(`^I[0-9a-f]{40}$`)

// IsValidChangeKey checks whether key is a well-formed change key
func IsValidChangeKey(key string) bool {
	return ChangeKeyRegexp.MatchString(key)
}

// PatchSet is an immutable record of one commit revision of a change
type PatchSet struct {
	Number      int    `json:"number" msgpack:"number"`
	CommitID    string `json:"commitID" msgpack:"commitID"`
	UploaderID  string `json:"uploaderID" msgpack:"uploaderID"`
	CreatedOn   int64  `json:"createdOn" msgpack:"createdOn"`
	Description string `json:"description" msgpack:"description"`
	Draft       bool   `json:"draft" msgpack:"draft"`
}

// Reviewer is a member of a change's reviewer set
type Reviewer struct {
	AccountID string `json:"accountID" msgpack:"accountID"`
	State     string `json:"state" msgpack:"state"`
}

// CommentRange is a character range a comment is anchored to
type CommentRange struct {
	StartLine int `json:"startLine" msgpack:"startLine"`
	StartChar int `json:"startChar" msgpack:"startChar"`
	EndLine   int `json:"endLine" msgpack:"endLine"`
	EndChar   int `json:"endChar" msgpack:"endChar"`
}

// Comment is a review comment on a file of a revision
type Comment struct {
	ID         string        `json:"id" msgpack:"id"`
	Path       string        `json:"path" msgpack:"path"`
	Side       string        `json:"side" msgpack:"side"`
	Line       int           `json:"line" msgpack:"line"`
	Range      *CommentRange `json:"range,omitempty" msgpack:"range"`
	Message    string        `json:"message" msgpack:"message"`
	Author     string        `json:"author" msgpack:"author"`
	Updated    int64         `json:"updated" msgpack:"updated"`
	Unresolved bool          `json:"unresolved" msgpack:"unresolved"`
	Deleted    bool          `json:"deleted" msgpack:"deleted"`
	InReplyTo  string        `json:"inReplyTo,omitempty" msgpack:"inReplyTo"`
}

// Approval is one user's vote on one label of a change
type Approval struct {
	Label     string `json:"label" msgpack:"label"`
	Value     int    `json:"value" msgpack:"value"`
	AccountID string `json:"accountID" msgpack:"accountID"`
	Revision  string `json:"revision" msgpack:"revision"`
	GrantedAt int64  `json:"grantedAt" msgpack:"grantedAt"`
}

// ChangeMetadata holds the weakly-structured portions of a change document
type ChangeMetadata struct {
	IsPrivate      bool                            `json:"isPrivate" msgpack:"isPrivate"`
	WorkInProgress bool                            `json:"workInProgress" msgpack:"workInProgress"`
	Reviewers      []*Reviewer                     `json:"reviewers" msgpack:"reviewers"`
	Comments       map[string]map[string][]*Comment `json:"comments" msgpack:"comments"`
	Drafts         map[string]map[string][]*Comment `json:"drafts" msgpack:"drafts"`
}

// BareChangeMetadata returns an initialized metadata document
func BareChangeMetadata() *ChangeMetadata {
	return &ChangeMetadata{
		Reviewers: []*Reviewer{},
		Comments:  map[string]map[string][]*Comment{},
		Drafts:    map[string]map[string][]*Comment{},
	}
}

// Change is the canonical reviewable unit
type Change struct {
	ID              int64           `json:"id" msgpack:"id"`
	Key             string          `json:"key" msgpack:"key"`
	Project         string          `json:"project" msgpack:"project"`
	DestBranch      string          `json:"destBranch" msgpack:"destBranch"`
	Subject         string          `json:"subject" msgpack:"subject"`
	Topic           string          `json:"topic" msgpack:"topic"`
	Status          string          `json:"status" msgpack:"status"`
	OwnerID         string          `json:"ownerID" msgpack:"ownerID"`
	CurrentPatchSet int             `json:"currentPatchSet" msgpack:"currentPatchSet"`
	CreatedOn       int64           `json:"createdOn" msgpack:"createdOn"`
	LastUpdatedOn   int64           `json:"lastUpdatedOn" msgpack:"lastUpdatedOn"`
	PatchSets       []*PatchSet     `json:"patchSets" msgpack:"patchSets"`
	Metadata        *ChangeMetadata `json:"metadata" msgpack:"metadata"`
	Approvals       []*Approval     `json:"approvals" msgpack:"approvals"`
}

// BareChange returns an empty change
func BareChange() *Change {
	return &Change{
		Status:    ChangeStatusNew,
		PatchSets: []*PatchSet{},
		Metadata:  BareChangeMetadata(),
		Approvals: []*Approval{},
	}
}

// IsNil checks whether the change has no identity
func (c *Change) IsNil() bool {
	return c.ID == 0 && c.Key == ""
}

// IsTerminal checks whether the change can no longer accept patch sets
func (c *Change) IsTerminal() bool {
	return c.Status == ChangeStatusMerged || c.Status == ChangeStatusAbandoned
}

// CurrentPatchSetObj returns the current patch set or nil
func (c *Change) CurrentPatchSetObj() *PatchSet {
	for _, ps := range c.PatchSets {
		if ps.Number == c.CurrentPatchSet {
			return ps
		}
	}
	return nil
}

// GetPatchSet returns the patch set with the given number or nil
func (c *Change) GetPatchSet(number int) *PatchSet {
	for _, ps := range c.PatchSets {
		if ps.Number == number {
			return ps
		}
	}
	return nil
}

// AddPatchSet appends a patch set, enforcing density and the terminal-status
// rule. The new patch set must carry number CurrentPatchSet+1.
func (c *Change) AddPatchSet(ps *PatchSet) error {
	if c.IsTerminal() {
		return errors2.Wrap(errors2.ErrConflict, "change is %s and cannot accept new patch sets", strings.ToLower(c.Status))
	}
	if ps.Number != c.CurrentPatchSet+1 {
		return errors.Errorf("expected patch set number %d, got %d", c.CurrentPatchSet+1, ps.Number)
	}
	c.PatchSets = append(c.PatchSets, ps)
	c.CurrentPatchSet = ps.Number
	return nil
}

// SetSubject sets the subject from a commit message first line,
// trimming and truncating per the subject rules. Truncation is on
// rune boundaries so a multi-byte character is never split.
func (c *Change) SetSubject(firstLine string) {
	s := strings.TrimSpace(firstLine)
	if s == "" {
		s = NoSubject
	}
	if utf8.RuneCountInString(s) > MaxSubjectLen {
		s = string([]rune(s)[:MaxSubjectLen])
	}
	c.Subject = s
}

// GetReviewer finds a reviewer entry by account id
func (c *Change) GetReviewer(accountID string) *Reviewer {
	for _, r := range c.Metadata.Reviewers {
		if r.AccountID == accountID {
			return r
		}
	}
	return nil
}

// GetApproval finds an approval by label and account id
func (c *Change) GetApproval(label, accountID string) *Approval {
	for _, a := range c.Approvals {
		if a.Label == label && a.AccountID == accountID {
			return a
		}
	}
	return nil
}

// Bytes returns the msgpack-serialized equivalent of the change
func (c *Change) Bytes() []byte {
	return util.ToBytes(c)
}

// NewChangeFromBytes decodes bz into a Change
func NewChangeFromBytes(bz []byte) (*Change, error) {
	var c Change
	if err := util.ToObject(bz, &c); err != nil {
		return nil, err
	}
	if c.Metadata == nil {
		c.Metadata = BareChangeMetadata()
	}
	return &c, nil
}
