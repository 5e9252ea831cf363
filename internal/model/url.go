package model

import "net/url"

// hostOf returns the host component of link.
// Links without a host (mailto:, javascript:, ...) are grouped by scheme.
func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if u.Host != "" {
		return u.Host
	}
	if u.Scheme != "" {
		return u.Scheme + ":"
	}
	return link
}
