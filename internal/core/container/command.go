package container

import (
	"strings"

	"github.com/artpar/riptide-engine/internal/core/project"
)

// CommandLine is a container command: nothing, a shell string, or an argv
// list. Argv wins when both are set.
type CommandLine struct {
	Shell string
	Argv  []string
}

// ShellCommand returns a shell-form command.
func ShellCommand(s string) CommandLine {
	return CommandLine{Shell: s}
}

// ArgvCommand returns an exec-form command.
func ArgvCommand(argv ...string) CommandLine {
	return CommandLine{Argv: argv}
}

// FromInvocation converts a resolved document command.
func FromInvocation(inv project.Invocation) CommandLine {
	return CommandLine{Shell: inv.Shell, Argv: inv.Argv}
}

// IsZero reports whether no command is set.
func (c CommandLine) IsZero() bool {
	return c.Shell == "" && len(c.Argv) == 0
}

// IsArgv reports whether the command is in exec form.
func (c CommandLine) IsArgv() bool {
	return len(c.Argv) > 0
}

// String renders the command as one shell string. The first argv element
// is kept verbatim and the rest are quoted.
func (c CommandLine) String() string {
	if c.IsArgv() {
		return joinQuoted(c.Argv[0], c.Argv[1:])
	}
	return c.Shell
}

// WithArgs returns the command with extra arguments appended: added to
// an argv command, quoted onto a shell command.
func (c CommandLine) WithArgs(args []string) CommandLine {
	if len(args) == 0 {
		return c
	}
	if c.IsArgv() {
		argv := make([]string, 0, len(c.Argv)+len(args))
		argv = append(argv, c.Argv...)
		return CommandLine{Argv: append(argv, args...)}
	}
	if c.Shell == "" {
		return CommandLine{Argv: append([]string(nil), args...)}
	}
	return CommandLine{Shell: joinQuoted(c.Shell, args)}
}

// quote wraps each argument in double quotes.
func quote(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = `"` + a + `"`
	}
	return strings.Join(quoted, " ")
}

func joinQuoted(head string, args []string) string {
	if len(args) == 0 {
		return head
	}
	return head + " " + quote(args)
}
