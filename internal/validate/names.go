package validate

import (
	"fmt"
	"strings"
)

// ClassicNames are the alias prefixes handed out when an agent registers
// without choosing its own alias.
var ClassicNames = []string{
	"alice", "bob", "charlie", "dave", "eve", "frank", "grace", "henry",
	"ivy", "jack", "kate", "leo", "mia", "noah", "olivia", "peter",
	"quinn", "rose", "sam", "tara", "uma", "victor", "wendy", "xavier",
	"yara", "zoe",
}

// ExtractNamePrefix returns the classic-name prefix of an alias:
// "bob-03-builder" -> "bob-03", "alice-web" -> "alice".
func ExtractNamePrefix(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return ""
	}
	parts := strings.Split(alias, "-")
	if len(parts) >= 2 && isDigits(parts[1]) {
		return strings.ToLower(parts[0] + "-" + parts[1])
	}
	return strings.ToLower(parts[0])
}

// CandidateNamePrefixes yields classic names, then numbered rounds
// ("alice-01" .. "zoe-99").
func CandidateNamePrefixes() []string {
	out := make([]string, 0, len(ClassicNames)*100)
	out = append(out, ClassicNames...)
	for num := 1; num < 100; num++ {
		for _, name := range ClassicNames {
			out = append(out, fmt.Sprintf("%s-%02d", name, num))
		}
	}
	return out
}

// SuggestNamePrefix returns the first candidate not already used by an
// existing alias, or "" when every prefix is taken.
func SuggestNamePrefix(existingAliases []string) string {
	used := make(map[string]struct{}, len(existingAliases))
	for _, alias := range existingAliases {
		if p := ExtractNamePrefix(alias); p != "" {
			used[p] = struct{}{}
		}
	}
	for _, cand := range CandidateNamePrefixes() {
		if _, ok := used[cand]; !ok {
			return cand
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
