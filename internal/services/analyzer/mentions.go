package analyzer

import (
	"regexp"
	"strings"
)

var (
	mentionPattern   = regexp.MustCompile(`@[a-zA-Z0-9_.]+`)
	usernamePattern  = regexp.MustCompile(`^/([a-zA-Z0-9_.]+)/?$`)
	separatorPattern = regexp.MustCompile(`[\s,]+`)
)

// ExtractMentions returns the distinct lower-cased usernames tagged in a
// comment's text.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var mentions []string
	for _, m := range matches {
		name := strings.ToLower(strings.TrimPrefix(m, "@"))
		if !seen[name] {
			seen[name] = true
			mentions = append(mentions, name)
		}
	}
	return mentions
}

// QualifiesComment applies the engagement rule: after removing the author and
// every competitor (case-insensitively), at least mentionThreshold distinct
// tagged users must remain.
func QualifiesComment(author, text string, competitors map[string]bool) bool {
	if len(text) < minCommentLength || !strings.Contains(text, "@") {
		return false
	}

	author = strings.ToLower(author)
	count := 0
	for _, mention := range ExtractMentions(text) {
		if mention == author || competitors[mention] {
			continue
		}
		count++
	}
	return count >= mentionThreshold
}

// CompetitorSet builds a lower-cased lookup set from a competitor list.
func CompetitorSet(competitors []string) map[string]bool {
	set := make(map[string]bool, len(competitors))
	for _, c := range competitors {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			set[c] = true
		}
	}
	return set
}

// SplitCompetitors normalizes raw competitor input: each entry may carry
// several names separated by whitespace or commas.
func SplitCompetitors(raw []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, entry := range raw {
		for _, name := range separatorPattern.Split(entry, -1) {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if !seen[key] {
				seen[key] = true
				out = append(out, name)
			}
		}
	}
	return out
}
