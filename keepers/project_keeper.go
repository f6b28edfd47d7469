package keepers

import (
	"github.com/pkg/errors"

	"github.com/reviewos/kit/storage"
	"github.com/reviewos/kit/types/state"
	errors2 "github.com/reviewos/kit/util/errors"
)

// ProjectKeeper manages project records
type ProjectKeeper struct {
	db storage.Tx
}

// NewProjectKeeper creates an instance of ProjectKeeper
func NewProjectKeeper(db storage.Tx) *ProjectKeeper {
	return &ProjectKeeper{db: db}
}

// Get finds a project by name.
// Returns a bare project if the name is unknown.
func (p *ProjectKeeper) Get(name string) (*state.Project, error) {
	rec, err := p.db.Get(MakeProjectKey(name))
	if err != nil {
		if err == storage.ErrRecordNotFound {
			return state.BareProject(), nil
		}
		return nil, errors.Wrap(err, "failed to get project record")
	}

	proj, err := state.NewProjectFromBytes(rec.Value)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode project record")
	}

	return proj, nil
}

// Update persists a project record.
// The project's parent chain is walked to reject cycles.
func (p *ProjectKeeper) Update(proj *state.Project) error {
	if proj.Parent != "" {
		if err := p.checkParentCycle(proj.Name, proj.Parent); err != nil {
			return err
		}
	}

	rec := storage.NewFromKeyValue(MakeProjectKey(proj.Name), proj.Bytes())
	if err := p.db.Put(rec); err != nil {
		return errors.Wrap(err, "failed to save project record")
	}

	return nil
}

// Remove deletes a project record
func (p *ProjectKeeper) Remove(name string) error {
	return p.db.Del(MakeProjectKey(name))
}

// List returns every known project
func (p *ProjectKeeper) List() (projects []*state.Project, err error) {
	p.db.Iterate(MakeQueryProjectKey(), true, func(rec *storage.Record) bool {
		var proj *state.Project
		proj, err = state.NewProjectFromBytes(rec.Value)
		if err != nil {
			err = errors.Wrap(err, "failed to decode project record")
			return true
		}
		projects = append(projects, proj)
		return false
	})
	return
}

// checkParentCycle walks the parent chain from parent and fails if
// name is encountered.
func (p *ProjectKeeper) checkParentCycle(name, parent string) error {
	seen := map[string]struct{}{name: {}}
	cur := parent
	for cur != "" {
		if _, ok := seen[cur]; ok {
			return errors2.Wrap(errors2.ErrConflict, "project parent chain contains a cycle through %q", cur)
		}
		seen[cur] = struct{}{}
		next, err := p.Get(cur)
		if err != nil {
			return err
		}
		if next.IsNil() {
			break
		}
		cur = next.Parent
	}
	return nil
}
