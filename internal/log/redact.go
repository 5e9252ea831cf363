package log

import (
	"net/url"
	"regexp"
	"strings"
)

// MaskValue replaces attribute values that look secret.
const MaskValue = "***REDACTED***"

// urlMaskValue replaces secrets inside URLs. It survives query encoding.
const urlMaskValue = "REDACTED"

// secretKeys are attribute keys and header names masked on exact match,
// compared in lower case.
var secretKeys = toSet(`
	authorization proxy-authorization cookie set-cookie
	x-api-key x-auth-token x-csrf-token
	api_key apikey api-key access_token refresh_token
	session session_id sessionid sid jsessionid phpsessid
`)

// secretFragments mask any key containing them. "key" alone is not listed
// because it would hide "primary_key" or "monkey".
var secretFragments = []string{
	"password", "passwd", "secret", "token", "auth", "credential", "cookie",
}

// secretQueryParams are query parameters scrubbed from logged URLs.
var secretQueryParams = toSet(`
	token access_token refresh_token api_key apikey key
	password passwd secret session sessionid sid sig signature auth
`)

// secretValuePatterns mask string values whatever their key.
var secretValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`), // JWT
	regexp.MustCompile(`(?i)^bearer\s+\S+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
}

func toSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// isSecretKey reports whether an attribute key or header name names a
// secret.
func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	if _, ok := secretKeys[key]; ok {
		return true
	}
	for _, fragment := range secretFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}

// isSecretValue reports whether a string looks like a credential.
func isSecretValue(value string) bool {
	for _, pattern := range secretValuePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// ScrubURL removes credentials from an absolute URL: the userinfo password
// and the values of well-known secret query parameters. It reports whether
// anything was replaced. Strings that are not absolute URLs are returned
// unchanged.
func ScrubURL(raw string) (string, bool) {
	if !strings.Contains(raw, "://") {
		return raw, false
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, false
	}

	if !scrubParsedURL(u) {
		return raw, false
	}
	return u.String(), true
}

// scrubParsedURL scrubs u in place and reports whether it changed.
func scrubParsedURL(u *url.URL) bool {
	changed := false

	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), urlMaskValue)
			changed = true
		}
	}

	if u.RawQuery == "" {
		return changed
	}

	query := u.Query()
	queryChanged := false
	for name := range query {
		if _, ok := secretQueryParams[strings.ToLower(name)]; ok {
			query.Set(name, urlMaskValue)
			queryChanged = true
		}
	}
	if queryChanged {
		u.RawQuery = query.Encode()
	}

	return changed || queryChanged
}

// redactHeaders returns a copy of a site header map with secret header
// values masked. It returns nil when nothing needed masking.
func redactHeaders(headers map[string]string) map[string]string {
	var out map[string]string
	for name := range headers {
		if !isSecretKey(name) && !isSecretValue(headers[name]) {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(headers))
			for k, v := range headers {
				out[k] = v
			}
		}
		out[name] = MaskValue
	}
	return out
}
