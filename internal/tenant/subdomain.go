// Package tenant resolves the organization scope of a request from the Host
// header and validates organization slugs. Each organization is addressed by a
// subdomain of the base domain (acme.30x30.app); the bare base domain, the www
// alias, and non-matching hosts such as localhost all resolve to the root
// (global) scope.
package tenant

import "strings"

// Resolve extracts the organization slug from a request host. It returns the
// empty string for the root scope. Matching is case-insensitive and ignores
// any port suffix.
func Resolve(host, baseDomain string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	baseDomain = strings.ToLower(strings.TrimSpace(baseDomain))

	if h, _, ok := splitHostPort(host); ok {
		host = h
	}

	if host == "" || baseDomain == "" {
		return ""
	}

	if host == baseDomain || host == "www."+baseDomain {
		return ""
	}

	suffix := "." + baseDomain
	if !strings.HasSuffix(host, suffix) {
		// localhost, raw IPs, previews on other domains
		return ""
	}

	sub := strings.TrimSuffix(host, suffix)
	if sub == "" || sub == "www" || strings.Contains(sub, ".") {
		// nested subdomains (a.b.base) are not tenant hosts
		return ""
	}
	if !slugPattern.MatchString(sub) {
		// Malformed labels cannot be slugs; treat them as root scope
		// rather than redirecting on a lookup that can never match.
		return ""
	}

	return sub
}

// splitHostPort strips a :port suffix without requiring a valid port number.
// net.SplitHostPort errors on hosts without a port, which is the common case.
func splitHostPort(host string) (string, string, bool) {
	i := strings.LastIndexByte(host, ':')
	if i < 0 {
		return host, "", false
	}
	// Bracketed IPv6 literals keep their colons.
	if strings.Contains(host[i:], "]") {
		return host, "", false
	}
	return host[:i], host[i+1:], true
}
