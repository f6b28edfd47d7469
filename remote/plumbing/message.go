package plumbing

import (
	"regexp"
	"strings"
)

// FooterLineRegexp matches a footer-shaped line
var FooterLineRegexp = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9-]*):\s*(.*)$`)

// Footer is one Key: Value trailer of a commit message
type Footer struct {
	Key   string
	Value string
}

// CommitMessage is the parsed form of a commit message
type CommitMessage struct {
	Subject     string
	Body        string
	ChangeID    string
	Footers     []*Footer
	SignedOffBy []string
	ReviewedBy  []string
	Bugs        []string
}

// ParseCommitMessage splits a commit message into subject, body and the
// trailing footer block. The footer block is the trailing contiguous
// run of footer-shaped lines separated from the rest by a blank line.
func ParseCommitMessage(message string) *CommitMessage {
	msg := &CommitMessage{}

	lines := strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return msg
	}

	msg.Subject = lines[0]

	// Locate the footer block at the tail
	footerStart := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if !FooterLineRegexp.MatchString(lines[i]) {
			break
		}
		footerStart = i
	}

	// The block must form its own paragraph. A footer-shaped line
	// glued to the subject or the body is ordinary text.
	if footerStart < len(lines) {
		if strings.TrimSpace(lines[footerStart-1]) != "" {
			footerStart = len(lines)
		}
	}

	for _, line := range lines[footerStart:] {
		m := FooterLineRegexp.FindStringSubmatch(line)
		f := &Footer{Key: m[1], Value: strings.TrimSpace(m[2])}
		msg.Footers = append(msg.Footers, f)
		switch f.Key {
		case "Change-Id":
			if IsValidChangeID(f.Value) {
				msg.ChangeID = f.Value
			}
		case "Signed-off-by":
			msg.SignedOffBy = append(msg.SignedOffBy, f.Value)
		case "Reviewed-by":
			msg.ReviewedBy = append(msg.ReviewedBy, f.Value)
		case "Bug":
			msg.Bugs = append(msg.Bugs, f.Value)
		}
	}

	body := lines[1:footerStart]
	for len(body) > 0 && strings.TrimSpace(body[0]) == "" {
		body = body[1:]
	}
	for len(body) > 0 && strings.TrimSpace(body[len(body)-1]) == "" {
		body = body[:len(body)-1]
	}
	msg.Body = strings.Join(body, "\n")

	return msg
}

// String reassembles the message from its parts
func (m *CommitMessage) String() string {
	var b strings.Builder
	b.WriteString(m.Subject)
	if m.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(m.Body)
	}
	if len(m.Footers) > 0 {
		b.WriteString("\n\n")
		for _, f := range m.Footers {
			b.WriteString(f.Key + ": " + f.Value + "\n")
		}
		return b.String()
	}
	b.WriteString("\n")
	return b.String()
}
