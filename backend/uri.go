package backend

import (
	"fmt"
	"strings"

	"github.com/mwantia/robinhood/data"
)

// URI generic syntax: scheme:[//authority]path[?query][#fragment]
//
// where authority is: [userinfo@]host[:port]
//
// cf. RFC 3986 for more information. Parsing here is purely syntactic:
// the string is split into its parts with no semantic validation of
// host, port or path, no normalization, and no I/O.

// RawURI holds the syntactic parts of a connection string. Parts that
// are absent are empty; HasAuthority distinguishes an absent authority
// from an empty one.
type RawURI struct {
	Scheme       string
	Userinfo     string
	Host         string
	Port         string
	Path         string
	Query        string
	Fragment     string
	HasAuthority bool
}

// String reassembles the URI from its parts. Parsing a well-formed
// URI and printing it back returns the original string.
func (u *RawURI) String() string {
	var sb strings.Builder
	sb.WriteString(u.Scheme)
	sb.WriteByte(':')
	if u.HasAuthority {
		sb.WriteString("//")
		if u.Userinfo != "" {
			sb.WriteString(u.Userinfo)
			sb.WriteByte('@')
		}
		sb.WriteString(u.Host)
		if u.Port != "" {
			sb.WriteByte(':')
			sb.WriteString(u.Port)
		}
	}
	sb.WriteString(u.Path)
	if u.Query != "" {
		sb.WriteByte('?')
		sb.WriteString(u.Query)
	}
	if u.Fragment != "" {
		sb.WriteByte('#')
		sb.WriteString(u.Fragment)
	}
	return sb.String()
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSchemeByte(c byte) bool {
	return isAlpha(c) || (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}

// ParseRawURI splits a connection string into its syntactic parts.
// The scheme is ALPHA *( ALPHA / DIGIT / "+" / "-" / "." ).
func ParseRawURI(raw string) (*RawURI, error) {
	if raw == "" || !isAlpha(raw[0]) {
		return nil, fmt.Errorf("%w: URI %q: scheme must start with a letter",
			data.ErrInvalid, raw)
	}

	i := 1
	for i < len(raw) && isSchemeByte(raw[i]) {
		i++
	}
	if i >= len(raw) || raw[i] != ':' {
		return nil, fmt.Errorf("%w: URI %q: missing ':' after scheme",
			data.ErrInvalid, raw)
	}

	uri := &RawURI{Scheme: raw[:i]}
	rest := raw[i+1:]

	// rest = [//authority]path[?query][#fragment]
	if j := strings.LastIndexByte(rest, '#'); j >= 0 {
		uri.Fragment = rest[j+1:]
		rest = rest[:j]
	}

	// rest = [//authority]path[?query]
	if j := strings.LastIndexByte(rest, '?'); j >= 0 {
		uri.Query = rest[j+1:]
		rest = rest[:j]
	}

	// rest = [//authority]path
	if !strings.HasPrefix(rest, "//") {
		uri.Path = rest
		return uri, nil
	}
	uri.HasAuthority = true

	// rest = //[userinfo@]host[:port]path
	//
	// where path is either empty or starts with a '/'
	authority := rest[2:]
	if j := strings.IndexByte(authority, '/'); j >= 0 {
		uri.Path = authority[j:]
		authority = authority[:j]
	}

	// authority = [userinfo@]host[:port]
	if j := strings.IndexByte(authority, '@'); j >= 0 {
		uri.Userinfo = authority[:j]
		authority = authority[j+1:]
	}

	// authority = host[:port]
	if j := strings.LastIndexByte(authority, ':'); j >= 0 {
		uri.Port = authority[j+1:]
		authority = authority[:j]
	}

	uri.Host = authority
	return uri, nil
}
