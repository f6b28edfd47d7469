package push

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"

	gitplumbing "github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/packfile"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp"
	"github.com/go-git/go-git/v5/plumbing/revlist"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/remote/changes"
	plumbing2 "github.com/reviewos/kit/remote/plumbing"
	repo2 "github.com/reviewos/kit/remote/repo"
	"github.com/reviewos/kit/storage"
	"github.com/reviewos/kit/testutil"
)

var _ = Describe("Handler", func() {
	var cfg *config.AppConfig
	var err error
	var db *storage.Badger
	var eng *changes.Engine
	var srcPath string
	var src *repo2.Repo
	var target *repo2.Repo
	var key = "I" + strings.Repeat("a", 40)

	// makePush builds the wire form of a push carrying the objects
	// reachable from newHash
	var makePush = func(refName string, old, new gitplumbing.Hash) *bytes.Buffer {
		req := packp.NewReferenceUpdateRequest()
		req.Commands = []*packp.Command{{Name: gitplumbing.ReferenceName(refName), Old: old, New: new}}

		if !new.IsZero() {
			hashes, err := revlist.Objects(src.GetStorer(), []gitplumbing.Hash{new}, nil)
			Expect(err).To(BeNil())
			var pack bytes.Buffer
			enc := packfile.NewEncoder(&pack, src.GetStorer(), false)
			_, err = enc.Encode(hashes, 10)
			Expect(err).To(BeNil())
			req.Packfile = ioutil.NopCloser(&pack)
		}

		var buf bytes.Buffer
		Expect(req.Encode(&buf)).To(BeNil())
		return &buf
	}

	var run = func(refName string, old, new gitplumbing.Hash) (*Handler, *RefResult, string) {
		h := NewHandler(cfg, target, eng, "jane")
		var out bytes.Buffer
		Expect(h.HandleStream(makePush(refName, old, new), &out)).To(BeNil())
		return h, h.Results[refName], out.String()
	}

	var srcTip = func() gitplumbing.Hash {
		return gitplumbing.NewHash(testutil.GetRecentCommitHash(srcPath, "HEAD"))
	}

	BeforeEach(func() {
		cfg, err = testutil.SetTestCfg()
		Expect(err).To(BeNil())
		db = testutil.GetDB(cfg)
		eng = changes.NewEngine(cfg, db)

		srcPath = filepath.Join(cfg.DataDir(), "src")
		testutil.InitTestRepo(srcPath, "main")
		testutil.AppendCommit(srcPath, "file.txt", "a", "Add feature\n\nChange-Id: "+key+"\n")
		src, err = repo2.Get(srcPath)
		Expect(err).To(BeNil())

		targetPath := filepath.Join(cfg.GetRepoRoot(), "demo")
		testutil.InitBareTestRepo(targetPath, "trunk")
		target, err = repo2.Get(targetPath)
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		Expect(db.Close()).To(BeNil())
		testutil.Teardown(cfg)
	})

	When("a commit with a Change-Id is pushed to refs/for/main", func() {
		It("should create a change and publish its synthetic ref", func() {
			_, res, out := run("refs/for/main", gitplumbing.ZeroHash, srcTip())
			Expect(res.Ok).To(BeTrue())
			Expect(res.ChangeKey).To(Equal(key))
			Expect(res.PatchSet).To(Equal(1))
			Expect(out).To(ContainSubstring("ok refs/for/main"))

			change, err := eng.Store().GetByKey(key)
			Expect(err).To(BeNil())
			Expect(change.CurrentPatchSet).To(Equal(1))

			hash, err := target.GetReference(plumbing2.MakeChangeRef(key, 1))
			Expect(err).To(BeNil())
			Expect(hash).To(Equal(srcTip().String()))

			// The magic ref itself is never materialized
			_, err = target.GetReference("refs/for/main")
			Expect(err).To(Equal(repo2.ErrRefNotFound))
		})
	})

	When("a second commit with the same Change-Id is pushed", func() {
		BeforeEach(func() {
			_, res, _ := run("refs/for/main", gitplumbing.ZeroHash, srcTip())
			Expect(res.Ok).To(BeTrue())
			testutil.AppendCommit(srcPath, "file.txt", "b", "Add feature v2\n\nChange-Id: "+key+"\n")
		})

		It("should append patch set 2 and keep both synthetic refs", func() {
			_, res, _ := run("refs/for/main", gitplumbing.ZeroHash, srcTip())
			Expect(res.Ok).To(BeTrue())
			Expect(res.PatchSet).To(Equal(2))

			_, err := target.GetReference(plumbing2.MakeChangeRef(key, 1))
			Expect(err).To(BeNil())
			hash, err := target.GetReference(plumbing2.MakeChangeRef(key, 2))
			Expect(err).To(BeNil())
			Expect(hash).To(Equal(srcTip().String()))
		})

		It("should reject the same Change-Id on another branch", func() {
			_, res, out := run("refs/for/release", gitplumbing.ZeroHash, srcTip())
			Expect(res.Ok).To(BeFalse())
			Expect(res.Reason).To(Equal(
				"Change-Id " + key + " is for branch main, but you're pushing to release"))
			Expect(out).To(ContainSubstring("ng refs/for/release"))
		})
	})

	When("a commit without a Change-Id is pushed to refs/for/main", func() {
		BeforeEach(func() {
			testutil.AppendCommit(srcPath, "file.txt", "c", "No footer here")
		})

		It("should reject with a generated id in the message", func() {
			_, res, _ := run("refs/for/main", gitplumbing.ZeroHash, srcTip())
			Expect(res.Ok).To(BeFalse())
			Expect(res.Reason).To(ContainSubstring("Missing Change-Id in commit message"))
			Expect(res.Reason).To(MatchRegexp(`I[0-9a-f]{40}`))
		})

		It("should adopt a generated id under auto-id", func() {
			cfg.Policy.AutoChangeID = true
			_, res, _ := run("refs/for/main", gitplumbing.ZeroHash, srcTip())
			Expect(res.Ok).To(BeTrue())
			Expect(res.ChangeKey).To(MatchRegexp(`^I[0-9a-f]{40}$`))
		})
	})

	When("a branch is pushed directly", func() {
		It("should steer non-trunk branches to the magic namespace", func() {
			_, res, _ := run("refs/heads/main", gitplumbing.ZeroHash, srcTip())
			Expect(res.Ok).To(BeFalse())
			Expect(res.Reason).To(ContainSubstring("refs/for/main"))
		})

		It("should accept the trunk branch and update the ref", func() {
			_, res, out := run("refs/heads/trunk", gitplumbing.ZeroHash, srcTip())
			Expect(res.Ok).To(BeTrue())
			Expect(out).To(ContainSubstring("ok refs/heads/trunk"))

			hash, err := target.GetReference("refs/heads/trunk")
			Expect(err).To(BeNil())
			Expect(hash).To(Equal(srcTip().String()))
		})

		It("should reject a too-short commit message", func() {
			testutil.AppendCommit(srcPath, "file.txt", "d", "short")
			_, res, _ := run("refs/heads/trunk", gitplumbing.ZeroHash, srcTip())
			Expect(res.Ok).To(BeFalse())
			Expect(res.Reason).To(ContainSubstring("too short"))
		})

		It("should reject a non-fast-forward update", func() {
			_, res, _ := run("refs/heads/trunk", gitplumbing.ZeroHash, srcTip())
			Expect(res.Ok).To(BeTrue())
			older := srcTip()

			testutil.AppendCommit(srcPath, "file.txt", "e", "another valid commit")
			newer := srcTip()
			_, res, _ = run("refs/heads/trunk", older, newer)
			Expect(res.Ok).To(BeTrue())

			_, res, _ = run("refs/heads/trunk", newer, older)
			Expect(res.Ok).To(BeFalse())
			Expect(res.Reason).To(Equal("non-fast-forward pushes are not allowed"))
		})

		It("should reject deletes when disallowed", func() {
			_, res, _ := run("refs/heads/trunk", gitplumbing.ZeroHash, srcTip())
			Expect(res.Ok).To(BeTrue())

			cfg.Policy.AllowDeletes = false
			_, res, _ = run("refs/heads/trunk", srcTip(), gitplumbing.ZeroHash)
			Expect(res.Ok).To(BeFalse())
			Expect(res.Reason).To(Equal("deletes are not allowed"))
		})
	})
})
