package revops

import (
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/keepers"
	"github.com/reviewos/kit/remote/changes"
	plumbing2 "github.com/reviewos/kit/remote/plumbing"
	repo2 "github.com/reviewos/kit/remote/repo"
	"github.com/reviewos/kit/storage"
	"github.com/reviewos/kit/testutil"
	"github.com/reviewos/kit/types/state"
	errors2 "github.com/reviewos/kit/util/errors"
)

func TestRevOps(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "RevOps Suite")
}

var _ = Describe("Ops", func() {
	var cfg *config.AppConfig
	var err error
	var db *storage.Badger
	var eng *changes.Engine
	var gw *repo2.Gateway
	var pk *keepers.ProjectKeeper
	var ops *Ops
	var srcPath, barePath string
	var key = "I" + strings.Repeat("a", 40)

	// seedChange commits msg on a work branch of the source repository,
	// ships the objects to the project repository and records the
	// commit as a patch set of key.
	var seedChange = func(branch, file, data, msg string) *state.Change {
		testutil.CreateCheckoutBranch(srcPath, branch)
		testutil.AppendCommit(srcPath, file, data, msg)
		hash := testutil.GetRecentCommitHash(srcPath, "HEAD")
		testutil.ExecGit(srcPath, "push", barePath, "HEAD:refs/tmp/seed")
		testutil.CheckoutBranch(srcPath, "main")

		bare, err := gw.Open("demo")
		Expect(err).To(BeNil())
		commit, err := bare.CommitByHash(hash)
		Expect(err).To(BeNil())
		res := eng.Apply(bare, key, commit, "main", "jane")
		Expect(res.Success).To(BeTrue())

		change, err := eng.Store().GetByKey(key)
		Expect(err).To(BeNil())
		return change
	}

	var advanceMain = func(file, data, msg string) {
		testutil.AppendCommit(srcPath, file, data, msg)
		testutil.ExecGit(srcPath, "push", barePath, "main:main")
	}

	BeforeEach(func() {
		cfg, err = testutil.SetTestCfg()
		Expect(err).To(BeNil())
		db = testutil.GetDB(cfg)
		eng = changes.NewEngine(cfg, db)
		gw = repo2.NewGateway(cfg)
		pk = keepers.NewProjectKeeper(db.NewTx(true, true))
		ops = NewOps(cfg, eng, gw, pk)

		_, err = gw.Create("demo")
		Expect(err).To(BeNil())
		barePath = gw.Path("demo")

		srcPath = filepath.Join(cfg.DataDir(), "src")
		testutil.InitTestRepo(srcPath, "main")
		testutil.AppendCommit(srcPath, "base.txt", "base", "base commit")
		testutil.ExecGit(srcPath, "push", barePath, "main:main")
		Expect(gw.SetHead("demo", "refs/heads/main")).To(BeNil())
	})

	AfterEach(func() {
		Expect(db.Close()).To(BeNil())
		testutil.Teardown(cfg)
	})

	Describe(".Submit", func() {
		It("should merge the patch set and mark the change MERGED", func() {
			proj := state.BareProject()
			proj.Name = "demo"
			proj.SubmitType = state.SubmitTypeMergeAlways
			Expect(pk.Update(proj)).To(BeNil())

			seedChange("ps1", "feature.txt", "f", "Add feature\n\nChange-Id: "+key+"\n")

			change, err := ops.Submit(key)
			Expect(err).To(BeNil())
			Expect(change.Status).To(Equal(state.ChangeStatusMerged))

			subject := strings.Split(testutil.GetCommitMessage(barePath, "main"), "\n")[0]
			Expect(subject).To(Equal("Merge change " + key + ": Add feature"))
		})

		It("should fail with Conflict when the merge conflicts", func() {
			seedChange("ps1", "base.txt", "ours", "Edit base\n\nChange-Id: "+key+"\n")
			advanceMain("base.txt", "theirs", "competing edit of base")

			_, err := ops.Submit(key)
			Expect(errors2.IsKind(err, errors2.ErrConflict)).To(BeTrue())

			change, err2 := eng.Store().GetByKey(key)
			Expect(err2).To(BeNil())
			Expect(change.Status).To(Equal(state.ChangeStatusNew))
		})

		It("should fail with Conflict on a non-NEW change", func() {
			seedChange("ps1", "feature.txt", "f", "Add feature\n\nChange-Id: "+key+"\n")
			_, err := eng.Abandon(key)
			Expect(err).To(BeNil())

			_, err = ops.Submit(key)
			Expect(errors2.IsKind(err, errors2.ErrConflict)).To(BeTrue())
		})
	})

	Describe(".Rebase", func() {
		It("should append a rebased patch set on the new tip", func() {
			seedChange("ps1", "feature.txt", "f", "Add feature\n\nChange-Id: "+key+"\n")
			advanceMain("other.txt", "o", "unrelated mainline work")

			change, err := ops.Rebase(key, "jane")
			Expect(err).To(BeNil())
			Expect(change.CurrentPatchSet).To(Equal(2))

			bare, err := gw.Open("demo")
			Expect(err).To(BeNil())

			ps2, err := bare.GetReference(plumbing2.MakeChangeRef(key, 2))
			Expect(err).To(BeNil())
			mainTip, err := bare.GetReference("refs/heads/main")
			Expect(err).To(BeNil())

			isChild, err := bare.IsAncestor(mainTip, ps2)
			Expect(err).To(BeNil())
			Expect(isChild).To(BeTrue())

			commit, err := bare.CommitByHash(ps2)
			Expect(err).To(BeNil())
			Expect(plumbing2.ExtractChangeID(commit.Message)).To(Equal(key))
		})

		It("should fail with Conflict when the replay conflicts", func() {
			seedChange("ps1", "base.txt", "ours", "Edit base\n\nChange-Id: "+key+"\n")
			advanceMain("base.txt", "theirs", "competing edit of base")

			_, err := ops.Rebase(key, "jane")
			Expect(errors2.IsKind(err, errors2.ErrConflict)).To(BeTrue())
		})
	})

	Describe(".CherryPick", func() {
		It("should create a new change with a fresh key on the destination", func() {
			testutil.ExecGit(srcPath, "push", barePath, "main:refs/heads/release")
			seedChange("ps1", "feature.txt", "f", "Add feature\n\nChange-Id: "+key+"\n")

			picked, err := ops.CherryPick(key, 0, "release", "", "jane")
			Expect(err).To(BeNil())
			Expect(picked.Key).ToNot(Equal(key))
			Expect(picked.Key).To(MatchRegexp(`^I[0-9a-f]{40}$`))
			Expect(picked.DestBranch).To(Equal("release"))
			Expect(picked.Subject).To(Equal("Add feature"))
			Expect(picked.CurrentPatchSet).To(Equal(1))
			Expect(picked.Status).To(Equal(state.ChangeStatusNew))
		})

		It("should use the caller's subject when given", func() {
			testutil.ExecGit(srcPath, "push", barePath, "main:refs/heads/release")
			seedChange("ps1", "feature.txt", "f", "Add feature\n\nChange-Id: "+key+"\n")

			picked, err := ops.CherryPick(key, 0, "release", "Backport feature", "jane")
			Expect(err).To(BeNil())
			Expect(picked.Subject).To(Equal("Backport feature"))
		})
	})

	Describe(".Revert", func() {
		It("should create a NEW change undoing a merged one", func() {
			seedChange("ps1", "feature.txt", "f", "Add feature\n\nChange-Id: "+key+"\n")
			_, err := ops.Submit(key)
			Expect(err).To(BeNil())

			reverting, err := ops.Revert(key, "", "cleanup", "jane")
			Expect(err).To(BeNil())
			Expect(reverting.Key).ToNot(Equal(key))
			Expect(reverting.Subject).To(Equal(`Revert "Add feature"`))
			Expect(reverting.DestBranch).To(Equal("main"))
			Expect(reverting.Status).To(Equal(state.ChangeStatusNew))
			Expect(reverting.Topic).To(Equal("cleanup"))
		})

		It("should fail with Conflict on an unmerged change", func() {
			seedChange("ps1", "feature.txt", "f", "Add feature\n\nChange-Id: "+key+"\n")
			_, err := ops.Revert(key, "", "", "jane")
			Expect(errors2.IsKind(err, errors2.ErrConflict)).To(BeTrue())
		})
	})

	Describe(".Move", func() {
		It("should retarget a NEW change", func() {
			seedChange("ps1", "feature.txt", "f", "Add feature\n\nChange-Id: "+key+"\n")

			change, err := ops.Move(key, "release")
			Expect(err).To(BeNil())
			Expect(change.DestBranch).To(Equal("release"))
			Expect(change.CurrentPatchSet).To(Equal(1))
		})

		It("should fail with NotFound for an unknown change", func() {
			_, err := ops.Move("I"+strings.Repeat("b", 40), "release")
			Expect(errors2.IsKind(err, errors2.ErrNotFound)).To(BeTrue())
		})
	})
})
