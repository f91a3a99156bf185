package project

import (
	"gopkg.in/yaml.v3"
)

// Invocation is one concrete command: either a shell string or an argv list.
type Invocation struct {
	Shell string
	Argv  []string
}

// IsZero reports whether no command is set.
func (i Invocation) IsZero() bool {
	return i.Shell == "" && len(i.Argv) == 0
}

// CommandSpec is a service command. In YAML it is a string, a list, or a map
// from command group to either of those.
type CommandSpec struct {
	Groups map[string]Invocation
}

// ShellCommand returns a spec with a single default shell command.
func ShellCommand(s string) CommandSpec {
	return CommandSpec{Groups: map[string]Invocation{DefaultCommandGroup: {Shell: s}}}
}

// ArgvCommand returns a spec with a single default argv command.
func ArgvCommand(argv ...string) CommandSpec {
	return CommandSpec{Groups: map[string]Invocation{DefaultCommandGroup: {Argv: argv}}}
}

// Resolve returns the command for group, falling back to the default group.
func (c CommandSpec) Resolve(group string) Invocation {
	if inv, ok := c.Groups[group]; ok {
		return inv
	}
	return c.Groups[DefaultCommandGroup]
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *CommandSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		raw := map[string]yaml.Node{}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		c.Groups = make(map[string]Invocation, len(raw))
		for group, node := range raw {
			inv, err := decodeInvocation(&node)
			if err != nil {
				return err
			}
			c.Groups[group] = inv
		}
		return nil
	}

	inv, err := decodeInvocation(value)
	if err != nil {
		return err
	}
	c.Groups = map[string]Invocation{DefaultCommandGroup: inv}
	return nil
}

func decodeInvocation(node *yaml.Node) (Invocation, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return Invocation{}, err
		}
		return Invocation{Shell: s}, nil
	case yaml.SequenceNode:
		var argv []string
		if err := node.Decode(&argv); err != nil {
			return Invocation{}, err
		}
		return Invocation{Argv: argv}, nil
	default:
		return Invocation{}, NewParseError("command", "unsupported command value", ErrInvalidCommandSpec)
	}
}
