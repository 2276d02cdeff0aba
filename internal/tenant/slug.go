package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

// Slug constraints. DNS labels cap at 63 characters; the minimum of 3 keeps
// slugs readable and leaves short labels free for platform use.
const (
	SlugMinLength = 3
	SlugMaxLength = 63
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// reservedSlugs are labels the platform uses itself or that would confuse
// tenant routing.
var reservedSlugs = map[string]bool{
	"www":     true,
	"api":     true,
	"app":     true,
	"admin":   true,
	"auth":    true,
	"mail":    true,
	"status":  true,
	"staging": true,
}

// ValidateSlug checks an organization slug against the subdomain rules:
// 3 to 63 characters, lowercase letters, digits and single hyphens, starting
// and ending with an alphanumeric, and not a reserved platform label.
func ValidateSlug(slug string) error {
	if len(slug) < SlugMinLength || len(slug) > SlugMaxLength {
		return fmt.Errorf("slug must be between %d and %d characters", SlugMinLength, SlugMaxLength)
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("slug may only contain lowercase letters, digits, and hyphens, and must start and end with a letter or digit")
	}
	if strings.Contains(slug, "--") {
		return fmt.Errorf("slug must not contain consecutive hyphens")
	}
	if reservedSlugs[slug] {
		return fmt.Errorf("slug %q is reserved", slug)
	}
	return nil
}

// NormalizeSlug lowercases and trims a candidate slug before validation
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
