package plumbing

import (
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("CommitMessage", func() {
	var id = "I" + strings.Repeat("cd", 20)

	Describe(".ParseCommitMessage", func() {
		It("should handle a subject-only message", func() {
			msg := ParseCommitMessage("Fix crash on empty input\n")
			Expect(msg.Subject).To(Equal("Fix crash on empty input"))
			Expect(msg.Body).To(BeEmpty())
			Expect(msg.Footers).To(BeEmpty())
		})

		It("should split subject, body and footers", func() {
			raw := "Add retries\n\nRetry transient failures\nup to three times.\n\n" +
				"Bug: 1234\nSigned-off-by: Jane <jane@example.test>\nChange-Id: " + id + "\n"
			msg := ParseCommitMessage(raw)
			Expect(msg.Subject).To(Equal("Add retries"))
			Expect(msg.Body).To(Equal("Retry transient failures\nup to three times."))
			Expect(msg.Footers).To(HaveLen(3))
			Expect(msg.ChangeID).To(Equal(id))
			Expect(msg.Bugs).To(Equal([]string{"1234"}))
			Expect(msg.SignedOffBy).To(Equal([]string{"Jane <jane@example.test>"}))
		})

		It("should not treat a body paragraph with a colon as footers", func() {
			raw := "Subject\n\nNote: this is prose\nwith a second line\n"
			msg := ParseCommitMessage(raw)
			Expect(msg.Footers).To(BeEmpty())
			Expect(msg.Body).To(Equal("Note: this is prose\nwith a second line"))
		})

		It("should not treat a line glued to the subject as a footer", func() {
			raw := "Subject\nChange-Id: " + id + "\n"
			msg := ParseCommitMessage(raw)
			Expect(msg.Footers).To(BeEmpty())
			Expect(msg.ChangeID).To(BeEmpty())
			Expect(msg.Body).To(Equal("Change-Id: " + id))
		})

		It("should collect repeated footer keys in order", func() {
			raw := "Subject\n\nReviewed-by: A <a@example.test>\nReviewed-by: B <b@example.test>\n"
			msg := ParseCommitMessage(raw)
			Expect(msg.ReviewedBy).To(Equal([]string{"A <a@example.test>", "B <b@example.test>"}))
		})
	})

	Describe(".String", func() {
		It("should round-trip subject, body and footers", func() {
			raw := "Add retries\n\nRetry transient failures.\n\n" +
				"Bug: 1234\nChange-Id: " + id + "\n"
			Expect(ParseCommitMessage(raw).String()).To(Equal(raw))
		})

		It("should round-trip a subject-only message", func() {
			Expect(ParseCommitMessage("Subject\n").String()).To(Equal("Subject\n"))
		})
	})
})
