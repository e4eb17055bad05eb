package reply

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antonajp/ai4joy-sub002/core"
)

// Section labels the model is prompted to emit, matched case-insensitively.
const (
	LabelPartner = "PARTNER"
	LabelRoom    = "ROOM"
	LabelCoach   = "COACH"
)

// labelLine matches a section label opening a trimmed line, followed by a
// colon. Occurrences of a label word inside running prose never match.
var labelLine = regexp.MustCompile(`^\s*(?i:(partner|room|coach))\s*:\s*`)

// Parse extracts labeled sections from one raw generation.
//
// Content for a section runs from just after its label to the next labeled
// line or end of text. A missing PARTNER label triggers the full-text
// fallback: the whole raw text becomes the partner line. Missing secondary
// sections default to empty strings and are not an error. The only hard
// failure is raw text that is empty after trimming.
func Parse(raw string) (core.Reply, error) {
	if strings.TrimSpace(raw) == "" {
		return core.Reply{}, fmt.Errorf("%w: empty generation", core.ErrMalformedReply)
	}

	sections := map[string][]string{}
	current := ""
	for _, line := range strings.Split(raw, "\n") {
		if m := labelLine.FindStringSubmatch(line); m != nil {
			current = strings.ToUpper(m[1])
			rest := line[len(m[0]):]
			sections[current] = append(sections[current], rest)
			continue
		}
		if current != "" {
			sections[current] = append(sections[current], line)
		}
	}

	r := core.Reply{
		Partner: joinSection(sections[LabelPartner]),
		Room:    joinSection(sections[LabelRoom]),
		Coach:   joinSection(sections[LabelCoach]),
	}
	if _, labeled := sections[LabelPartner]; !labeled {
		// Full fallback keeps the turn usable when the model ignored the
		// labeling contract.
		r.Partner = strings.TrimSpace(raw)
	}
	if r.Partner == "" {
		return core.Reply{}, fmt.Errorf("%w: no partner content", core.ErrMalformedReply)
	}
	return r, nil
}

func joinSection(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
