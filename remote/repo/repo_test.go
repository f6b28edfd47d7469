package repo

import (
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/testutil"
)

var _ = Describe("Repo", func() {
	var cfg *config.AppConfig
	var err error
	var path string
	var r *Repo

	BeforeEach(func() {
		cfg, err = testutil.SetTestCfg()
		Expect(err).To(BeNil())
		path = filepath.Join(cfg.GetRepoRoot(), "demo")
		testutil.InitTestRepo(path, "main")
		r, err = Get(path)
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		testutil.Teardown(cfg)
	})

	Describe(".Head", func() {
		It("should return the checked out branch", func() {
			testutil.AppendCommit(path, "file.txt", "hello", "first commit")
			head, err := r.Head()
			Expect(err).To(BeNil())
			Expect(head).To(Equal("refs/heads/main"))
		})
	})

	Describe(".ObjectExist", func() {
		It("should find an existing commit and miss an unknown one", func() {
			testutil.AppendCommit(path, "file.txt", "hello", "first commit")
			hash := testutil.GetRecentCommitHash(path, "refs/heads/main")
			Expect(r.ObjectExist(hash)).To(BeTrue())
			Expect(r.ObjectExist("0000000000000000000000000000000000000001")).To(BeFalse())
		})
	})

	Describe(".GetReference", func() {
		It("should return ErrRefNotFound for an unknown ref", func() {
			_, err := r.GetReference("refs/heads/nothing")
			Expect(err).To(Equal(ErrRefNotFound))
		})

		It("should return the hash of a known ref", func() {
			testutil.AppendCommit(path, "file.txt", "hello", "first commit")
			hash := testutil.GetRecentCommitHash(path, "refs/heads/main")
			got, err := r.GetReference("refs/heads/main")
			Expect(err).To(BeNil())
			Expect(got).To(Equal(hash))
		})
	})

	Describe(".UpdateRef / .DeleteRef", func() {
		It("should create, move and delete a reference", func() {
			testutil.AppendCommit(path, "file.txt", "hello", "first commit")
			hash := testutil.GetRecentCommitHash(path, "refs/heads/main")

			Expect(r.UpdateRef("refs/changes/ab/abc/1", hash)).To(BeNil())
			got, err := r.GetReference("refs/changes/ab/abc/1")
			Expect(err).To(BeNil())
			Expect(got).To(Equal(hash))

			Expect(r.DeleteRef("refs/changes/ab/abc/1")).To(BeNil())
			_, err = r.GetReference("refs/changes/ab/abc/1")
			Expect(err).To(Equal(ErrRefNotFound))
		})
	})

	Describe(".IsAncestor", func() {
		It("should detect ancestry between commits", func() {
			testutil.AppendCommit(path, "file.txt", "a", "first commit")
			first := testutil.GetRecentCommitHash(path, "refs/heads/main")
			testutil.AppendCommit(path, "file.txt", "b", "second commit")
			second := testutil.GetRecentCommitHash(path, "refs/heads/main")

			yes, err := r.IsAncestor(first, second)
			Expect(err).To(BeNil())
			Expect(yes).To(BeTrue())

			no, err := r.IsAncestor(second, first)
			Expect(err).To(BeNil())
			Expect(no).To(BeFalse())
		})
	})

	Describe(".ListBranches", func() {
		It("should list every branch", func() {
			testutil.AppendCommit(path, "file.txt", "a", "first commit")
			testutil.CreateCheckoutBranch(path, "dev")
			testutil.AppendCommit(path, "file.txt", "b", "second commit")

			branches, err := r.ListBranches()
			Expect(err).To(BeNil())
			Expect(branches).To(ConsistOf("main", "dev"))
		})
	})
})
