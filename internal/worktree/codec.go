package worktree

import (
	"regexp"
	"strings"
)

// GroupPrefix is the prefix shared by every OS group this service owns.
// Groups without it belong to somebody else and are never touched.
const GroupPrefix = "agor_wt_"

// shortIdLength is the number of hex characters taken from a worktree uuid.
const shortIdLength = 8

var groupNameRegex = regexp.MustCompile(`^agor_wt_([0-9a-f]{8})$`)

// DeriveGroupName maps a worktree uuid to its OS group name. The mapping is
// total and deterministic: the same worktree id always yields the same name.
func DeriveGroupName(worktreeId string) string {

	short := strings.ToLower(strings.ReplaceAll(worktreeId, "-", ""))
	if len(short) > shortIdLength {
		short = short[:shortIdLength]
	}

	return GroupPrefix + short
}

// ParseGroupName extracts the short worktree id from a group name.
// It succeeds only on an exact pattern match: wrong prefix, wrong length,
// uppercase, or non-hex characters all return ok=false rather than an error,
// so callers can probe arbitrary OS group names safely.
func ParseGroupName(name string) (shortId string, ok bool) {

	match := groupNameRegex.FindStringSubmatch(name)
	if match == nil {
		return "", false
	}

	return match[1], true
}

// IsGroupName reports whether name is a group name owned by this service.
func IsGroupName(name string) bool {
	_, ok := ParseGroupName(name)
	return ok
}
