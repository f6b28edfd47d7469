package keepers

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/storage"
	"github.com/reviewos/kit/testutil"
	"github.com/reviewos/kit/types/state"
	errors2 "github.com/reviewos/kit/util/errors"
)

var _ = Describe("ProjectKeeper", func() {
	var cfg *config.AppConfig
	var err error
	var db *storage.Badger
	var pk *ProjectKeeper

	BeforeEach(func() {
		cfg, err = testutil.SetTestCfg()
		Expect(err).To(BeNil())
		db = testutil.GetDB(cfg)
		pk = NewProjectKeeper(db.NewTx(true, true))
	})

	AfterEach(func() {
		Expect(db.Close()).To(BeNil())
		testutil.Teardown(cfg)
	})

	Describe(".Get", func() {
		When("project does not exist", func() {
			It("should return a bare project", func() {
				proj, err := pk.Get("unknown")
				Expect(err).To(BeNil())
				Expect(proj.IsNil()).To(BeTrue())
			})
		})

		When("project exists", func() {
			BeforeEach(func() {
				proj := state.BareProject()
				proj.Name = "proj"
				proj.Description = "a project"
				Expect(pk.Update(proj)).To(BeNil())
			})

			It("should return the saved project", func() {
				proj, err := pk.Get("proj")
				Expect(err).To(BeNil())
				Expect(proj.Description).To(Equal("a project"))
				Expect(proj.State).To(Equal(state.ProjectStateActive))
			})
		})
	})

	Describe(".Update", func() {
		It("should reject a parent chain cycle", func() {
			a := state.BareProject()
			a.Name = "a"
			Expect(pk.Update(a)).To(BeNil())

			b := state.BareProject()
			b.Name = "b"
			b.Parent = "a"
			Expect(pk.Update(b)).To(BeNil())

			a.Parent = "b"
			err := pk.Update(a)
			Expect(err).ToNot(BeNil())
			Expect(errors2.IsKind(err, errors2.ErrConflict)).To(BeTrue())
		})

		It("should allow a parent naming an unknown project", func() {
			proj := state.BareProject()
			proj.Name = "child"
			proj.Parent = "not-yet-created"
			Expect(pk.Update(proj)).To(BeNil())
		})
	})

	Describe(".Remove", func() {
		It("should delete the project record", func() {
			proj := state.BareProject()
			proj.Name = "proj"
			Expect(pk.Update(proj)).To(BeNil())
			Expect(pk.Remove("proj")).To(BeNil())

			res, err := pk.Get("proj")
			Expect(err).To(BeNil())
			Expect(res.IsNil()).To(BeTrue())
		})
	})

	Describe(".List", func() {
		It("should return every saved project", func() {
			for _, name := range []string{"a", "b", "c"} {
				proj := state.BareProject()
				proj.Name = name
				Expect(pk.Update(proj)).To(BeNil())
			}

			projects, err := pk.List()
			Expect(err).To(BeNil())
			Expect(projects).To(HaveLen(3))
		})
	})
})
