package state

import (
	"github.com/reviewos/kit/util"
)

// Project states
const (
	ProjectStateActive   = "ACTIVE"
	ProjectStateReadOnly = "READ_ONLY"
	ProjectStateHidden   = "HIDDEN"
)

// Submit types
const (
	SubmitTypeMergeIfNecessary = "MERGE_IF_NECESSARY"
	SubmitTypeMergeAlways      = "MERGE_ALWAYS"
	SubmitTypeFastForwardOnly  = "FAST_FORWARD_ONLY"
)

// LabelRange describes the allowed vote range for a label
type LabelRange struct {
	Min int `json:"min" msgpack:"min"`
	Max int `json:"max" msgpack:"max"`
}

// DefaultLabelRanges returns the built-in label configuration
func DefaultLabelRanges() map[string]*LabelRange {
	return map[string]*LabelRange{
		"Code-Review": {Min: -2, Max: 2},
		"Verified":    {Min: -1, Max: 1},
	}
}

// FallbackLabelRange is used for labels without explicit configuration
var FallbackLabelRange = &LabelRange{Min: -2, Max: 2}

// Project describes a hosted repository and its review configuration
type Project struct {
	Name        string                 `json:"name" msgpack:"name"`
	Parent      string                 `json:"parent" msgpack:"parent"`
	Description string                 `json:"description" msgpack:"description"`
	State       string                 `json:"state" msgpack:"state"`
	SubmitType  string                 `json:"submitType" msgpack:"submitType"`
	Labels      map[string]*LabelRange `json:"labels" msgpack:"labels"`
	HEAD        string                 `json:"head" msgpack:"head"`
}

// BareProject returns a project with defaults applied
func BareProject() *Project {
	return &Project{
		State:      ProjectStateActive,
		SubmitType: SubmitTypeMergeIfNecessary,
		Labels:     map[string]*LabelRange{},
		HEAD:       "refs/heads/master",
	}
}

// IsNil checks whether the project has no identity
func (p *Project) IsNil() bool {
	return p.Name == ""
}

// LabelRangeOf returns the configured range for label, falling back to the
// defaults and finally the fallback range.
func (p *Project) LabelRangeOf(label string) *LabelRange {
	if r, ok := p.Labels[label]; ok {
		return r
	}
	if r, ok := DefaultLabelRanges()[label]; ok {
		return r
	}
	return FallbackLabelRange
}

// Bytes returns the msgpack-serialized equivalent of the project
func (p *Project) Bytes() []byte {
	return util.ToBytes(p)
}

// NewProjectFromBytes decodes bz into a Project
func NewProjectFromBytes(bz []byte) (*Project, error) {
	var p Project
	if err := util.ToObject(bz, &p); err != nil {
		return nil, err
	}
	if p.Labels == nil {
		p.Labels = map[string]*LabelRange{}
	}
	return &p, nil
}
