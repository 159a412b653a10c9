// Package routing maps raw URL paths onto product endpoints and RPC
// services. Browser GET paths carry an optional product prefix followed
// by a static resource path; RPC POST paths carry an optional product
// prefix, an API version and a service name. All functions here are
// pure: they never touch the product registry or the filesystem.
package routing

import (
	"errors"
	"strconv"
	"strings"
)

// ErrMalformedPath is returned when a POST path does not follow the
// /{endpoint}/v{major}/{Service} or /v{major}/{Service} layout.
var ErrMalformedPath = errors.New("malformed request path")

// supportedVersions maps the API major versions this server implements
// to the highest minor version available for each.
var supportedVersions = map[int]int{
	6: 0,
}

// reservedRoots are top-level path segments that can never be product
// endpoints. A GET whose first segment is one of these is served
// directly from the web root.
var reservedRoots = map[string]struct{}{
	"index.html":    {},
	"products.html": {},
	"styles":        {},
	"scripts":       {},
	"images":        {},
	"fonts":         {},
	"docs":          {},
	"favicon.ico":   {},
}

// SplitGETRequest splits a browser GET path into a candidate product
// endpoint and the remainder used for static resource resolution. When
// the path has no segments, or its first segment is a reserved root
// name, the endpoint is empty and the whole path is the remainder.
func SplitGETRequest(path string) (endpoint, remainder string) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "", path
	}

	first, rest, _ := strings.Cut(trimmed, "/")
	if _, reserved := reservedRoots[first]; reserved {
		return "", path
	}

	return first, rest
}

// SplitPOSTRequest decodes an RPC POST path. Product-scoped calls look
// like /{endpoint}/v{major}/{Service}; global calls omit the endpoint.
// The returned version string is the raw text after the "v" prefix and
// has not been validated against the supported set.
func SplitPOSTRequest(path string) (endpoint, version, service string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch len(parts) {
	case 2:
		endpoint = ""
		version, service = parts[0], parts[1]
	case 3:
		endpoint = parts[0]
		version, service = parts[1], parts[2]
	default:
		return "", "", "", ErrMalformedPath
	}

	if len(version) < 2 || version[0] != 'v' {
		return "", "", "", ErrMalformedPath
	}
	version = version[1:]

	if endpoint == "" && len(parts) == 3 {
		return "", "", "", ErrMalformedPath
	}
	if service == "" {
		return "", "", "", ErrMalformedPath
	}

	return endpoint, version, service, nil
}

// SupportedVersion reports whether the given API version (as it appears
// in the URL, e.g. "6" or "6.12") names a major version this server
// implements. On success it returns the major version and the highest
// minor version served for it.
func SupportedVersion(version string) (major, minor int, ok bool) {
	majorStr, _, _ := strings.Cut(version, ".")

	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return 0, 0, false
	}

	minor, ok = supportedVersions[major]
	return major, minor, ok
}
