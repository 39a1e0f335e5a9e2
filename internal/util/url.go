package util

import (
	"net/url"
	"strings"
)

// IsSafeRedirectTarget reports whether a redirect URI may be used as the
// target of an HTTP redirect. Registration already pins the exact URI;
// this is the last line of defense before writing a Location header.
// It rejects values that would allow header injection or script-scheme
// navigation: control characters, backslashes, non-http(s) schemes, and
// URIs without a host.
func IsSafeRedirectTarget(redirectURL string) bool {
	if redirectURL == "" {
		return false
	}
	if strings.ContainsAny(redirectURL, "\r\n") {
		return false
	}
	// Browsers normalize "\" to "/", turning "https:/\evil.com" into a
	// protocol-relative redirect.
	if strings.Contains(redirectURL, "\\") {
		return false
	}

	u, err := url.Parse(redirectURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
