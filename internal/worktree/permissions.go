package worktree

import "fmt"

// AccessLevel describes what non-member OS principals may do to a worktree's
// files. Group members always get full read/write/execute regardless of level;
// only the "others" bits vary.
type AccessLevel string

const (
	AccessNone  AccessLevel = "none"
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"

	// DefaultAccess is applied when a call site does not name a level.
	DefaultAccess = AccessRead
)

// Command is a single, self-contained shell command produced by this package.
// Commands are specifications only: execution (typically under elevated
// privilege) is the caller's responsibility. No command depends on shell
// state left behind by a prior command.
type Command string

// sudoPrefix is the non-interactive privilege-escalation prefix applied to
// every group- or filesystem-mutating command. Query commands run unprefixed.
const sudoPrefix = "sudo -n "

// ModeFor returns the 4-digit octal mode string for an access level. The
// leading 2 is the setgid bit, the group digit is always 7, and the others
// digit carries the level. Unknown levels fall back to the read default.
func ModeFor(level AccessLevel) string {

	switch level {
	case AccessNone:
		return "2770"
	case AccessRead:
		return "2775"
	case AccessWrite:
		return "2777"
	default:
		return ModeFor(DefaultAccess)
	}
}

// ModeForDefault is ModeFor with an empty level defaulting to read, for call
// sites that omit an explicit access level.
func ModeForDefault(level AccessLevel) string {

	if level == "" {
		level = DefaultAccess
	}

	return ModeFor(level)
}

// othersAclPerm maps the others digit of a mode string to its symbolic ACL
// form. The capital X grants execute only where execute is already set, so
// plain files never gain spurious execute bits.
func othersAclPerm(mode string) string {

	if len(mode) == 0 {
		return "rX"
	}

	switch mode[len(mode)-1] {
	case '0':
		return "---"
	case '5':
		return "rX"
	case '7':
		return "rwX"
	default:
		return "rX"
	}
}

// RealizeDirectoryPolicy produces the ordered command sequence that applies a
// group and mode to a worktree directory tree. Every command is idempotent:
// provisioning may be retried after a partial failure (crash mid-sequence)
// and re-issuing the full sequence converges to the same end state.
//
// Order: recursive group ownership, setgid on directories only, then the four
// ACL rules (owner/group/others/mask) and one combined default-ACL rule so
// files created after provisioning inherit the policy. The ACL mask is always
// rwX to preserve directory traversal without granting execute on plain files.
func RealizeDirectoryPolicy(path, groupName, mode string) []Command {

	quoted := fmt.Sprintf("%q", path)
	others := othersAclPerm(mode)

	return []Command{
		Command(sudoPrefix + "chgrp -R " + groupName + " " + quoted),
		Command(sudoPrefix + "find " + quoted + " -type d -exec chmod g+s {} +"),
		Command(sudoPrefix + "setfacl -R -m u::rwX " + quoted),
		Command(sudoPrefix + "setfacl -R -m g::rwX " + quoted),
		Command(sudoPrefix + "setfacl -R -m o::" + others + " " + quoted),
		Command(sudoPrefix + "setfacl -R -m m::rwX " + quoted),
		Command(sudoPrefix + "setfacl -R -m d:u::rwX,d:g::rwX,d:o::" + others + ",d:m::rwX " + quoted),
	}
}
