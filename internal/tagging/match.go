package tagging

import (
	"strings"

	"github.com/joescharf/tagger/internal/models"
)

// Wildcard marks the open end of a name pattern.
const Wildcard = "%"

// MatchMode says how a name pattern is compared against tag names.
type MatchMode int

const (
	MatchExact MatchMode = iota
	MatchPrefix
	MatchSuffix
	MatchContains
)

func (m MatchMode) String() string {
	switch m {
	case MatchPrefix:
		return "prefix"
	case MatchSuffix:
		return "suffix"
	case MatchContains:
		return "contains"
	default:
		return "exact"
	}
}

// Pattern is a normalized name pattern with the wildcards stripped.
type Pattern struct {
	Mode MatchMode
	Text string
}

// ParsePattern normalizes a name token. "%x%" contains, "x%" starts with, "%x" ends
// with, anything else is exact.
func ParsePattern(token string) Pattern {
	leading := strings.HasPrefix(token, Wildcard)
	text := strings.TrimPrefix(token, Wildcard)
	trailing := strings.HasSuffix(text, Wildcard)
	text = strings.TrimSuffix(text, Wildcard)

	switch {
	case leading && trailing:
		return Pattern{Mode: MatchContains, Text: text}
	case trailing:
		return Pattern{Mode: MatchPrefix, Text: text}
	case leading:
		return Pattern{Mode: MatchSuffix, Text: text}
	default:
		return Pattern{Mode: MatchExact, Text: token}
	}
}

// Matches reports whether name satisfies the pattern.
func (p Pattern) Matches(name string) bool {
	switch p.Mode {
	case MatchContains:
		return strings.Contains(name, p.Text)
	case MatchPrefix:
		return strings.HasPrefix(name, p.Text)
	case MatchSuffix:
		return strings.HasSuffix(name, p.Text)
	default:
		return name == p.Text
	}
}

// MatchTag reports whether a tag is selected by any of the match tokens. An empty
// token list selects every tag.
func MatchTag(t *models.Tag, match []Ref) bool {
	if len(match) == 0 {
		return true
	}
	for _, m := range match {
		if m.IsID() {
			if t.ID == m.ID {
				return true
			}
			continue
		}
		if ParsePattern(m.Name).Matches(t.Name) {
			return true
		}
	}
	return false
}
