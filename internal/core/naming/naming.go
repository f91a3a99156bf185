// Package naming derives the deterministic names of the runtime resources
// that belong to a project.
//
// All functions are pure. Names are recomputed on demand and never cached:
// the daemon is the only source of truth for which of them currently exist.
package naming

import "fmt"

// Prefix is the leading component shared by every managed resource name.
const Prefix = "riptide"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// NetworkName generates the network name for a project.
// Pattern: riptide__{project}
//
// Example:
//
//	NetworkName("shop") // returns "riptide__shop"
func NetworkName(projectName string) string {
	return fmt.Sprintf("%s__%s", Prefix, projectName)
}

// ServiceContainerName generates the container name for a service.
// There is at most one container per service and project.
// Pattern: riptide__{project}__{service}
//
// Example:
//
//	ServiceContainerName("shop", "www") // returns "riptide__shop__www"
func ServiceContainerName(projectName, serviceName string) string {
	return fmt.Sprintf("%s__%s__%s", Prefix, projectName, serviceName)
}

// CommandContainerName generates the container name for one command
// invocation. The invoking process id keeps concurrent runs of the same
// command from colliding.
// Pattern: riptide__{project}__cmd__{command}__{pid}
//
// Example:
//
//	CommandContainerName("shop", "composer", 4711) // returns "riptide__shop__cmd__composer__4711"
func CommandContainerName(projectName, commandName string, pid int) string {
	return fmt.Sprintf("%s__%s__cmd__%s__%d", Prefix, projectName, commandName, pid)
}

// DetachedCommandContainerName generates the container name for a detached
// command run. Detached runs may overlap within one process, so each gets
// its own run id.
// Pattern: riptide__{project}__cmd__{command}__{pid}__{runID}
func DetachedCommandContainerName(projectName, commandName string, pid int, runID string) string {
	return fmt.Sprintf("%s__%s", CommandContainerName(projectName, commandName, pid), runID)
}
