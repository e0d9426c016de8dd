// Package security masks credentials before they reach the logs.
package security

import (
	"net/url"
	"strings"
)

const mask = "***"

// MaskSecret shows the first prefixLen characters of secret followed by
// "...". Secrets not longer than prefixLen, or a prefixLen of zero, give
// "***". An empty secret stays empty.
//
//	MaskSecret("s3cr3t-value", 3) -> "s3c..."
//	MaskSecret("s3cr3t", 0)       -> "***"
func MaskSecret(secret string, prefixLen int) string {
	if secret == "" {
		return ""
	}
	if prefixLen <= 0 || len(secret) <= prefixLen {
		return mask
	}
	return secret[:prefixLen] + "..."
}

// MaskDatabaseURL replaces the password of a connection URL.
//
//	MaskDatabaseURL("mysql://analyzer:secret@db:3306/analytics") ->
//	"mysql://analyzer:***@db:3306/analytics"
//
// Strings that are not URLs with a user password are returned unchanged.
func MaskDatabaseURL(dbURL string) string {
	if u, err := url.Parse(dbURL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); !ok {
			return dbURL
		}
		// url.URL.String would escape the mask.
		prefix := u.Scheme + "://" + u.User.Username() + ":" + mask + "@"
		rest := u.Host + u.EscapedPath()
		if u.RawQuery != "" {
			rest += "?" + u.RawQuery
		}
		return prefix + rest
	}

	// Unparseable, e.g. an unescaped '@' in the password: the userinfo
	// ends at the last '@' before the path.
	schemeEnd := strings.Index(dbURL, "://")
	if schemeEnd == -1 {
		return dbURL
	}
	authority := dbURL[schemeEnd+3:]
	if slash := strings.Index(authority, "/"); slash != -1 {
		authority = authority[:slash]
	}
	at := strings.LastIndex(authority, "@")
	if at == -1 {
		return dbURL
	}
	userPass := authority[:at]
	colon := strings.Index(userPass, ":")
	if colon == -1 {
		return dbURL
	}
	return dbURL[:schemeEnd+3] + userPass[:colon] + ":" + mask + dbURL[schemeEnd+3+at:]
}
