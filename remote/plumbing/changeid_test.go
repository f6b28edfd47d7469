package plumbing

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("ChangeID", func() {
	var id = "I" + strings.Repeat("ab", 20)

	Describe(".IsValidChangeID", func() {
		It("should accept I followed by 40 lowercase hex chars", func() {
			Expect(IsValidChangeID(id)).To(BeTrue())
		})

		It("should reject malformed ids", func() {
			Expect(IsValidChangeID("I123")).To(BeFalse())
			Expect(IsValidChangeID(strings.Repeat("a", 41))).To(BeFalse())
			Expect(IsValidChangeID("I" + strings.Repeat("AB", 20))).To(BeFalse())
		})
	})

	Describe(".ExtractChangeID", func() {
		It("should return empty when no Change-Id line exists", func() {
			Expect(ExtractChangeID("Add feature\n\nSome body\n")).To(Equal(""))
		})

		It("should return the id of the last matching line", func() {
			first := "I" + strings.Repeat("11", 20)
			msg := "Add feature\n\nChange-Id: " + first + "\n\nChange-Id: " + id + "\n"
			Expect(ExtractChangeID(msg)).To(Equal(id))
		})

		It("should ignore indented or suffixed lines", func() {
			msg := "Add feature\n\n  Change-Id: " + id + "\nChange-Id: " + id + " trailing\n"
			Expect(ExtractChangeID(msg)).To(Equal(""))
		})
	})

	Describe(".CountChangeIDs", func() {
		It("should count every Change-Id line", func() {
			msg := "Subject\n\nChange-Id: " + id + "\nChange-Id: " + id + "\n"
			Expect(CountChangeIDs(msg)).To(Equal(2))
		})
	})

	Describe(".FormatSignature", func() {
		It("should render name, email, epoch and zone offset", func() {
			when := time.Unix(1600000000, 0).In(time.FixedZone("", 3600))
			Expect(FormatSignature("Jane Dev", "jane@example.test", when)).
				To(Equal("Jane Dev <jane@example.test> 1600000000 +0100"))
		})
	})

	Describe(".GenerateChangeID", func() {
		var treeID = strings.Repeat("0a", 20)
		var parent = strings.Repeat("0b", 20)
		var author = "Jane Dev <jane@example.test> 1600000000 +0100"

		It("should be byte-deterministic", func() {
			a := GenerateChangeID(treeID, []string{parent}, author, author, "Subject\n")
			b := GenerateChangeID(treeID, []string{parent}, author, author, "Subject\n")
			Expect(a).To(Equal(b))
			Expect(IsValidChangeID(a)).To(BeTrue())
		})

		It("should vary with the message", func() {
			a := GenerateChangeID(treeID, []string{parent}, author, author, "Subject\n")
			b := GenerateChangeID(treeID, []string{parent}, author, author, "Other\n")
			Expect(a).ToNot(Equal(b))
		})
	})

	Describe(".InsertChangeID", func() {
		It("should be a no-op when a valid id is present", func() {
			msg := "Subject\n\nBody\n\nChange-Id: " + id + "\n"
			Expect(InsertChangeID(msg, "I"+strings.Repeat("22", 20))).To(Equal(msg))
		})

		It("should append a footer block when none exists", func() {
			out := InsertChangeID("Subject\n\nBody\n", id)
			Expect(out).To(Equal("Subject\n\nBody\n\nChange-Id: " + id + "\n"))
		})

		It("should place the id ahead of existing trailers", func() {
			out := InsertChangeID("Subject\n\nSigned-off-by: Jane <jane@example.test>\n", id)
			Expect(out).To(Equal("Subject\n\nChange-Id: " + id +
				"\nSigned-off-by: Jane <jane@example.test>\n"))
		})
	})

	Describe(".StripChangeIDs", func() {
		It("should remove every Change-Id line", func() {
			msg := "Subject\n\nChange-Id: " + id + "\n"
			Expect(StripChangeIDs(msg)).To(Equal("Subject\n\n"))
		})
	})
})
