package repo

import (
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/reviewos/kit/config"
	"github.com/reviewos/kit/testutil"
	errors2 "github.com/reviewos/kit/util/errors"
)

var _ = Describe("Gateway", func() {
	var cfg *config.AppConfig
	var err error
	var gw *Gateway

	BeforeEach(func() {
		cfg, err = testutil.SetTestCfg()
		Expect(err).To(BeNil())
		gw = NewGateway(cfg)
	})

	AfterEach(func() {
		testutil.Teardown(cfg)
	})

	Describe(".ValidateName", func() {
		It("should reject empty and whitespace names", func() {
			Expect(errors2.IsKind(gw.ValidateName(""), errors2.ErrInvalidName)).To(BeTrue())
			Expect(errors2.IsKind(gw.ValidateName("   "), errors2.ErrInvalidName)).To(BeTrue())
		})

		It("should reject traversal and separators", func() {
			Expect(errors2.IsKind(gw.ValidateName("a..b"), errors2.ErrInvalidName)).To(BeTrue())
			Expect(errors2.IsKind(gw.ValidateName("a/b"), errors2.ErrInvalidName)).To(BeTrue())
			Expect(errors2.IsKind(gw.ValidateName(`a\b`), errors2.ErrInvalidName)).To(BeTrue())
		})

		It("should reject names longer than the limit", func() {
			name := strings.Repeat("a", cfg.Repo.MaxNameLen+1)
			Expect(errors2.IsKind(gw.ValidateName(name), errors2.ErrInvalidName)).To(BeTrue())
		})

		It("should reject names failing the allow-pattern", func() {
			Expect(errors2.IsKind(gw.ValidateName("-repo"), errors2.ErrInvalidName)).To(BeTrue())
		})

		It("should accept a conforming name", func() {
			Expect(gw.ValidateName("my-repo.2")).To(BeNil())
		})
	})

	Describe(".Create", func() {
		It("should initialize a bare repository with server settings", func() {
			r, err := gw.Create("demo")
			Expect(err).To(BeNil())
			Expect(gw.Exists("demo")).To(BeTrue())

			c, err := r.Config()
			Expect(err).To(BeNil())
			Expect(c.Core.IsBare).To(BeTrue())
			Expect(c.Raw.Section("receive").Option("denyCurrentBranch")).To(Equal("ignore"))
			Expect(c.Raw.Section("uploadpack").Option("allowTipSHA1InWant")).To(Equal("true"))
		})

		It("should fail with AlreadyExists on duplicate create", func() {
			_, err := gw.Create("demo")
			Expect(err).To(BeNil())
			_, err = gw.Create("demo")
			Expect(errors2.IsKind(err, errors2.ErrAlreadyExists)).To(BeTrue())
		})
	})

	Describe(".Open", func() {
		It("should fail with NotFound for an unknown repository", func() {
			_, err := gw.Open("unknown")
			Expect(errors2.IsKind(err, errors2.ErrNotFound)).To(BeTrue())
		})

		It("should return a cached handle on repeat open", func() {
			_, err := gw.Create("demo")
			Expect(err).To(BeNil())
			a, err := gw.Open("demo")
			Expect(err).To(BeNil())
			b, err := gw.Open("demo")
			Expect(err).To(BeNil())
			Expect(a).To(BeIdenticalTo(b))
		})
	})

	Describe(".Delete", func() {
		It("should remove the repository", func() {
			_, err := gw.Create("demo")
			Expect(err).To(BeNil())
			Expect(gw.Delete("demo")).To(BeNil())
			Expect(gw.Exists("demo")).To(BeFalse())
		})

		It("should fail with NotFound for an unknown repository", func() {
			err := gw.Delete("unknown")
			Expect(errors2.IsKind(err, errors2.ErrNotFound)).To(BeTrue())
		})
	})

	Describe(".List", func() {
		It("should return every repository", func() {
			for _, name := range []string{"a1", "b2"} {
				_, err := gw.Create(name)
				Expect(err).To(BeNil())
			}
			names, err := gw.List()
			Expect(err).To(BeNil())
			Expect(names).To(ConsistOf("a1", "b2"))
		})
	})

	Describe(".GetHead / .SetHead", func() {
		It("should read and update HEAD", func() {
			_, err := gw.Create("demo")
			Expect(err).To(BeNil())

			Expect(gw.SetHead("demo", "refs/heads/main")).To(BeNil())
			head, err := gw.GetHead("demo")
			Expect(err).To(BeNil())
			Expect(head).To(Equal("refs/heads/main"))
		})
	})
})
