package plumbing

import (
	"crypto/sha1"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// ChangeIDRegexp matches a well-formed change id
var ChangeIDRegexp = regexp.MustCompile(`^I[0-9a-f]{40}$`)

// ChangeIDLineRegexp matches a Change-Id footer line
var ChangeIDLineRegexp = regexp.MustCompile(`^Change-Id:\s*(I[0-9a-f]{40})\s*$`)

// IsValidChangeID checks whether id is a well-formed change id
func IsValidChangeID(id string) bool {
	return ChangeIDRegexp.MatchString(id)
}

// ExtractChangeID returns the id of the last Change-Id line in message.
// Returns an empty string when no line matches.
func ExtractChangeID(message string) string {
	var id string
	for _, line := range strings.Split(message, "\n") {
		if m := ChangeIDLineRegexp.FindStringSubmatch(line); m != nil {
			id = m[1]
		}
	}
	return id
}

// CountChangeIDs returns the number of Change-Id lines in message
func CountChangeIDs(message string) int {
	var n int
	for _, line := range strings.Split(message, "\n") {
		if ChangeIDLineRegexp.MatchString(line) {
			n++
		}
	}
	return n
}

// FormatSignature renders an identity as `Name <email> <epoch> <±HHMM>`
func FormatSignature(name, email string, when time.Time) string {
	return fmt.Sprintf("%s <%s> %d %s", name, email, when.Unix(), when.Format("-0700"))
}

// GenerateChangeID deterministically derives a change id from commit
// metadata. The digest covers the tree, parents, author, committer and
// the message with any Change-Id lines removed.
func GenerateChangeID(treeID string, parentIDs []string, author, committer string, message string) string {
	var b strings.Builder
	b.WriteString("tree " + treeID + "\n")
	for _, p := range parentIDs {
		b.WriteString("parent " + p + "\n")
	}
	b.WriteString("author " + author + "\n")
	b.WriteString("committer " + committer + "\n")
	b.WriteString("\n")
	b.WriteString(message)
	return fmt.Sprintf("I%x", sha1.Sum([]byte(b.String())))
}

// GenerateChangeIDFromCommit derives a change id from a commit object
func GenerateChangeIDFromCommit(commit *object.Commit) string {
	var parents []string
	for _, p := range commit.ParentHashes {
		parents = append(parents, p.String())
	}
	return GenerateChangeID(
		commit.TreeHash.String(),
		parents,
		FormatSignature(commit.Author.Name, commit.Author.Email, commit.Author.When),
		FormatSignature(commit.Committer.Name, commit.Committer.Email, commit.Committer.When),
		StripChangeIDs(commit.Message),
	)
}

// StripChangeIDs removes every Change-Id line from message
func StripChangeIDs(message string) string {
	var out []string
	for _, line := range strings.Split(message, "\n") {
		if ChangeIDLineRegexp.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// InsertChangeID adds a Change-Id footer carrying id to message.
// A message that already carries a valid Change-Id is returned
// unchanged. The footer is placed ahead of existing trailers,
// preserving blank-line separation.
func InsertChangeID(message, id string) string {
	if ExtractChangeID(message) != "" {
		return message
	}

	msg := ParseCommitMessage(message)
	msg.Footers = append([]*Footer{{Key: "Change-Id", Value: id}}, msg.Footers...)
	return msg.String()
}
