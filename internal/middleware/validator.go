package middleware

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var tenantIDPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?$`)

// ValidateTenantID enforces the tenant slug format used in URLs and
// storage keys.
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant id is required")
	}
	if !tenantIDPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant id %q: lowercase alphanumerics and hyphens only", tenant)
	}
	return nil
}

// ValidateRepoURL accepts http(s) and ssh git remotes.
func ValidateRepoURL(raw string) error {
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "git@") {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid repository url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ssh":
		return nil
	}
	return fmt.Errorf("invalid repository url scheme %q", u.Scheme)
}

// ValidateBranch rejects branch names that could smuggle flags or paths
// into the checkout command.
func ValidateBranch(branch string) error {
	if branch == "" {
		return nil
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid branch name %q", branch)
	}
	if strings.ContainsAny(branch, " \t\n") || strings.Contains(branch, "..") {
		return fmt.Errorf("invalid branch name %q", branch)
	}
	for _, r := range branch {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("invalid branch name %q", branch)
		}
	}
	return nil
}
