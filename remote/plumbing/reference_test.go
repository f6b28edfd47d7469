package plumbing

import (
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reference", func() {
	var key = "I" + strings.Repeat("a", 38) + "fe"

	Describe(".IsMagicRef", func() {
		It("should detect the refs/for/ namespace", func() {
			Expect(IsMagicRef("refs/for/main")).To(BeTrue())
			Expect(IsMagicRef("refs/heads/main")).To(BeFalse())
		})
	})

	Describe(".MagicRefTarget", func() {
		It("should return the target branch", func() {
			target, err := MagicRefTarget("refs/for/release/1.0")
			Expect(err).To(BeNil())
			Expect(target).To(Equal("release/1.0"))
		})

		It("should fail on an empty target", func() {
			_, err := MagicRefTarget("refs/for/")
			Expect(err).ToNot(BeNil())
			Expect(err.Error()).To(Equal("Invalid refs/for/ format"))
		})
	})

	Describe(".IsHiddenRef", func() {
		It("should hide meta, users, groups and cache-automerge", func() {
			Expect(IsHiddenRef("refs/meta/config")).To(BeTrue())
			Expect(IsHiddenRef("refs/users/01/1000001")).To(BeTrue())
			Expect(IsHiddenRef("refs/groups/ab")).To(BeTrue())
			Expect(IsHiddenRef("refs/cache-automerge/ab")).To(BeTrue())
			Expect(IsHiddenRef("refs/heads/main")).To(BeFalse())
		})
	})

	Describe(".MakeChangeRef", func() {
		It("should shard by the last two characters of the hash", func() {
			ref := MakeChangeRef(key, 3)
			Expect(ref).To(Equal("refs/changes/fe/" + strings.TrimPrefix(key, "I") + "/3"))
		})
	})

	Describe(".ParseChangeRef", func() {
		It("should invert MakeChangeRef", func() {
			gotKey, gotNum, err := ParseChangeRef(MakeChangeRef(key, 2))
			Expect(err).To(BeNil())
			Expect(gotKey).To(Equal(key))
			Expect(gotNum).To(Equal(2))
		})

		It("should reject a bad shard", func() {
			hash := strings.TrimPrefix(key, "I")
			_, _, err := ParseChangeRef("refs/changes/zz/" + hash + "/1")
			Expect(err).ToNot(BeNil())
		})

		It("should reject a non-positive patch set number", func() {
			hash := strings.TrimPrefix(key, "I")
			_, _, err := ParseChangeRef("refs/changes/fe/" + hash + "/0")
			Expect(err).ToNot(BeNil())
		})
	})
})
