package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Alias charset excludes '/' which is reserved for cross-namespace
// addresses of the form "<project_slug>/<alias>".
var aliasRx = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Project slugs may contain '/' (nested namespaces).
var slugRx = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)

var contactRx = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)

const (
	AliasMaxLength       = 64
	ProjectSlugMaxLength = 256
)

// AgentAlias validates and returns a trimmed agent alias.
func AgentAlias(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("alias is required")
	}
	if len(v) > AliasMaxLength {
		return "", fmt.Errorf("alias exceeds %d characters", AliasMaxLength)
	}
	if strings.Contains(v, "/") {
		return "", fmt.Errorf("alias must not contain '/'")
	}
	if !aliasRx.MatchString(v) {
		return "", fmt.Errorf("invalid alias format")
	}
	return v, nil
}

// ProjectSlug validates and returns a trimmed project slug.
func ProjectSlug(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("project_slug is required")
	}
	if len(v) > ProjectSlugMaxLength {
		return "", fmt.Errorf("project_slug too long")
	}
	if !slugRx.MatchString(v) {
		return "", fmt.Errorf("invalid project_slug format")
	}
	return v, nil
}

// ContactAddress validates a contact address ("slug", "slug/alias" or
// same-project "alias").
func ContactAddress(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" || !contactRx.MatchString(v) {
		return "", fmt.Errorf("invalid contact_address format")
	}
	return v, nil
}

// ClampTTL bounds ttl to [1, max]. Non-positive ttl falls back to def.
func ClampTTL(ttl, def, max int) int {
	if ttl <= 0 {
		ttl = def
	}
	if ttl > max {
		return max
	}
	if ttl < 1 {
		return 1
	}
	return ttl
}

// EscapeLike escapes '%', '_' and '\' for use in a SQL LIKE pattern.
func EscapeLike(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `%`, `\%`)
	return strings.ReplaceAll(v, `_`, `\_`)
}
