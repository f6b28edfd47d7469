package keepers

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/storage"
	"github.com/reviewos/kit/testutil"
	"github.com/reviewos/kit/types/state"
)

var _ = Describe("ChangeKeeper", func() {
	var cfg *config.AppConfig
	var err error
	var db *storage.Badger
	var ck *ChangeKeeper

	BeforeEach(func() {
		cfg, err = testutil.SetTestCfg()
		Expect(err).To(BeNil())
		db = testutil.GetDB(cfg)
		ck = NewChangeKeeper(db.NewTx(true, true))
	})

	AfterEach(func() {
		Expect(db.Close()).To(BeNil())
		testutil.Teardown(cfg)
	})

	Describe(".GetByID", func() {
		When("change does not exist", func() {
			It("should return a bare change", func() {
				change, err := ck.GetByID(10)
				Expect(err).To(BeNil())
				Expect(change.IsNil()).To(BeTrue())
			})
		})

		When("change exists", func() {
			var saved *state.Change

			BeforeEach(func() {
				saved = state.BareChange()
				saved.ID = 1
				saved.Key = "I0123456789012345678901234567890123456789"
				saved.Project = "proj"
				saved.DestBranch = "main"
				saved.Subject = "Add feature"
				Expect(ck.Save(saved)).To(BeNil())
			})

			It("should return the saved change", func() {
				change, err := ck.GetByID(1)
				Expect(err).To(BeNil())
				Expect(change.ID).To(Equal(int64(1)))
				Expect(change.Subject).To(Equal("Add feature"))
				Expect(change.Status).To(Equal(state.ChangeStatusNew))
			})
		})
	})

	Describe(".GetByKey", func() {
		When("no change carries the key", func() {
			It("should return a bare change", func() {
				change, err := ck.GetByKey("Iaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
				Expect(err).To(BeNil())
				Expect(change.IsNil()).To(BeTrue())
			})
		})

		When("a change carries the key", func() {
			BeforeEach(func() {
				change := state.BareChange()
				change.ID = 7
				change.Key = "Iaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
				change.Project = "proj"
				Expect(ck.Save(change)).To(BeNil())
			})

			It("should resolve the key to the change", func() {
				change, err := ck.GetByKey("Iaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
				Expect(err).To(BeNil())
				Expect(change.ID).To(Equal(int64(7)))
			})
		})
	})

	Describe(".Save", func() {
		It("should commit the record and both indexes together", func() {
			change := state.BareChange()
			change.ID = 9
			change.Key = "Icccccccccccccccccccccccccccccccccccccccc"
			change.Project = "proj"
			Expect(ck.Save(change)).To(BeNil())

			// A keeper over an independent transaction sees the record,
			// the key index and the project index
			other := NewChangeKeeper(db.NewTx(true, true))
			byKey, err := other.GetByKey(change.Key)
			Expect(err).To(BeNil())
			Expect(byKey.ID).To(Equal(int64(9)))

			listed, err := other.ListByProject("proj")
			Expect(err).To(BeNil())
			Expect(listed).To(HaveLen(1))
			Expect(listed[0].Key).To(Equal(change.Key))
		})

		It("should persist updates to an existing change", func() {
			change := state.BareChange()
			change.ID = 3
			change.Key = "Ibbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
			change.Project = "proj"
			Expect(ck.Save(change)).To(BeNil())

			change.Status = state.ChangeStatusMerged
			Expect(ck.Save(change)).To(BeNil())

			res, err := ck.GetByID(3)
			Expect(err).To(BeNil())
			Expect(res.Status).To(Equal(state.ChangeStatusMerged))
		})
	})

	Describe(".ListByProject", func() {
		BeforeEach(func() {
			for i, key := range []string{
				"I1111111111111111111111111111111111111111",
				"I2222222222222222222222222222222222222222",
				"I3333333333333333333333333333333333333333",
			} {
				change := state.BareChange()
				change.ID = int64(i + 1)
				change.Key = key
				change.Project = "proj"
				if i == 2 {
					change.Status = state.ChangeStatusAbandoned
				}
				Expect(ck.Save(change)).To(BeNil())
			}

			other := state.BareChange()
			other.ID = 4
			other.Key = "I4444444444444444444444444444444444444444"
			other.Project = "other"
			Expect(ck.Save(other)).To(BeNil())
		})

		It("should return only the project's changes in id order", func() {
			changes, err := ck.ListByProject("proj")
			Expect(err).To(BeNil())
			Expect(changes).To(HaveLen(3))
			Expect(changes[0].ID).To(Equal(int64(1)))
			Expect(changes[2].ID).To(Equal(int64(3)))
		})

		It("should filter by status when statuses are given", func() {
			changes, err := ck.ListByProject("proj", state.ChangeStatusNew)
			Expect(err).To(BeNil())
			Expect(changes).To(HaveLen(2))
		})
	})
})
