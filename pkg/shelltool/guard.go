package shelltool

import "strings"

// DefaultDeniedPrefixes lists command prefixes refused outright. Destructive
// file operations are allowed only with an interactive flag.
func DefaultDeniedPrefixes() []string {
	return []string{
		"rm ",
		"mv ",
		"dd",
		"mkfs",
		"fdisk",
		"shutdown",
		"reboot",
	}
}

// isDenied reports whether the command matches a denied prefix. Matching is
// case-insensitive on the trimmed command. "rm" and "mv" pass when invoked
// with -i/--interactive.
func isDenied(command string, prefixes []string) bool {
	lowered := strings.ToLower(strings.TrimSpace(command))

	for _, prefix := range prefixes {
		if !strings.HasPrefix(lowered, prefix) {
			continue
		}
		if prefix == "rm " || prefix == "mv " {
			if strings.Contains(lowered, "-i") || strings.Contains(lowered, "--interactive") {
				continue
			}
		}
		return true
	}
	return false
}
