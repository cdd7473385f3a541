// Package content implements the symlink read-time target translation of
// spec §4.7. File bytes themselves are read and written through the
// Mutation Planner (internal/planner).
package content

import "strings"

// TranslateSymlinkTarget rewrites a stored symlink target for a reader at
// path depth d, per spec §4.7: absolute targets are returned unchanged;
// relative targets are prefixed with d ascents of "..", since relative
// symlinks are defined as if the mount root were the link's parent.
func TranslateSymlinkTarget(target string, depth int) string {
	if strings.HasPrefix(target, "/") {
		return target
	}
	if depth <= 0 {
		return target
	}
	return strings.Repeat("../", depth) + target
}
