package fstree

import "github.com/google/safearchive/sanitizer"

// DefaultSentinel is the byte substituted for '/' in incoming names, per
// §4.4 ("default |").
const DefaultSentinel = '|'

// emptyNamePlaceholder replaces a component that sanitizer.SanitizePath
// collapses to "" (".", "..", "/", and similar). It is two underscores
// rather than "." or "..", so it can never itself be mistaken for a
// current- or parent-directory shortcut by Tree.Find.
const emptyNamePlaceholder = "__"

// FilterName rewrites an incoming name so it is safe to store as a single
// path component: '/' becomes sentinel, and if stripControl is set, bytes
// below 32 become '.'. The filter runs the name through
// safearchive/sanitizer first to collapse any lexical path-traversal
// tricks (a crafted "../../etc/passwd"-shaped single component, or
// embedded ".." segments smuggled in via a long-name extension) before the
// byte-level substitution, so a node's name can never be used to escape
// its parent directory. sanitizer.SanitizePath returns "" for a component
// that is itself pure traversal (".", "..", "/", ...); falling back to the
// raw name in that case would let a literal ".." survive unfiltered, since
// Tree.Find treats ".." as an upward-navigation shortcut rather than a
// lookup miss, so that case is replaced with emptyNamePlaceholder instead.
// The filter is idempotent: running it twice
// produces the same result as running it once, and it returns the
// original string unchanged (same underlying bytes avoided via a plain
// return) when no substitution was necessary.
func FilterName(name string, sentinel byte, stripControl bool) string {
	sanitized := sanitizer.SanitizePath(name)
	if sanitized == "" {
		return emptyNamePlaceholder
	}

	changed := false
	buf := []byte(sanitized)
	for i, b := range buf {
		switch {
		case b == '/':
			buf[i] = sentinel
			changed = true
		case stripControl && b < 32:
			buf[i] = '.'
			changed = true
		}
	}
	if !changed && sanitized == name {
		return name
	}
	return string(buf)
}
