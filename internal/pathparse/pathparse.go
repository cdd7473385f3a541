// Package pathparse normalizes the single path component the kernel hands
// the Dispatcher in each Lookup callback, stripping the presentation-only
// dot prefix per spec §4.1.
package pathparse

import "strings"

// DeleteMeSentinel is the magic rename destination that deletes a tag
// (spec §4.1, §4.6 case 1): "rename /empty -> /..deleteme".
const DeleteMeSentinel = "..deleteme"

// dedot strips a single leading '.' from a component, except for the
// literal ..deleteme sentinel, which is a two-dot-prefixed name that must
// survive intact to be recognized in the Mutation Planner's rename case 1.
func dedot(seg string) string {
	if seg == DeleteMeSentinel {
		return seg
	}
	return strings.TrimPrefix(seg, ".")
}

// Dedot exports dedot for single path components the Dispatcher resolves
// one at a time (e.g. a kernel Lookup callback).
func Dedot(seg string) string {
	return dedot(seg)
}
