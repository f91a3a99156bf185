package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/riptide-engine/internal/core/project"
)

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:     "riptide-engine",
		Short:   "Run riptide projects on Docker",
		Version: Version + " (built " + BuildTime + ")",
		Long: `riptide-engine starts, stops and inspects the services of a riptide
project as Docker containers and runs project commands in throwaway
containers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.config, "config", "", "Path to config file")
	root.PersistentFlags().StringVarP(&flags.project, "project", "p", "", "Path to the project file (default riptide.yml)")
	root.PersistentFlags().StringVar(&flags.compose, "compose", "", "Import the project from a docker-compose file")

	root.AddCommand(
		newStartCmd(flags),
		newStopCmd(flags),
		newStatusCmd(flags),
		newAddressCmd(flags),
		newPullCmd(flags),
		newCmdCmd(flags),
		newExecCmd(flags),
		newFgCmd(flags),
		newRunDetachedCmd(flags),
	)
	return root
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.close(ctx)
	return fn(ctx, a)
}

// servicesOrAll returns args, or every declared service when empty.
func servicesOrAll(p *project.Project, args []string) []string {
	if len(args) > 0 {
		return args
	}
	return p.ServiceNames()
}

// =============================================================================
// Services
// =============================================================================

func newStartCmd(flags *globalFlags) *cobra.Command {
	var quick bool
	var group string

	cmd := &cobra.Command{
		Use:   "start [services...]",
		Short: "Start services (all when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				services := servicesOrAll(a.project, args)
				a.ui.info("Starting %s", bold(strings.Join(services, ", ")))

				mq, err := a.engine.StartProject(ctx, a.project, services, quick, group)
				if err != nil {
					return &CommandError{Op: "start", Err: err, ExitCode: ExitDockerError}
				}
				if failed := a.ui.renderProgress(ctx, mq); len(failed) > 0 {
					return &CommandError{Op: "start", Err: fmt.Errorf("failed services: %s", strings.Join(failed, ", ")), ExitCode: ExitServiceError}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&quick, "quick", "q", false, "Skip the image check and the start verification")
	cmd.Flags().StringVarP(&group, "group", "g", project.DefaultCommandGroup, "Command group to start services with")
	return cmd
}

func newStopCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [services...]",
		Short: "Stop services (all when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				mq, err := a.engine.StopProject(ctx, a.project, servicesOrAll(a.project, args))
				if err != nil {
					return &CommandError{Op: "stop", Err: err, ExitCode: ExitDockerError}
				}
				if failed := a.ui.renderProgress(ctx, mq); len(failed) > 0 {
					return &CommandError{Op: "stop", Err: fmt.Errorf("failed services: %s", strings.Join(failed, ", ")), ExitCode: ExitServiceError}
				}
				return nil
			})
		},
	}
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which services are running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				a.ui.renderStatus(a.engine.Status(ctx, a.project))
				return nil
			})
		},
	}
}

func newAddressCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "address <service>",
		Short: "Print the host address of a service's main port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				addr, ok := a.engine.AddressFor(ctx, a.project, args[0])
				if !ok {
					return &CommandError{Op: "address", Err: fmt.Errorf("service %s is not running or has no port", args[0]), ExitCode: ExitServiceError}
				}
				fmt.Fprintln(a.ui.out, addr.String())
				return nil
			})
		},
	}
}

func newPullCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Pull the images of all services and commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.engine.PullImages(ctx, a.project, a.ui.raw); err != nil {
					return &CommandError{Op: "pull", Err: err, ExitCode: exitCodeFor(err, ExitDockerError)}
				}
				return nil
			})
		},
	}
}

func newFgCmd(flags *globalFlags) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "fg <service> [args...]",
		Short: "Run a service attached to the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.engine.ServiceFg(ctx, a.project, args[0], args[1:], group); err != nil {
					return &CommandError{Op: "fg", Err: err, ExitCode: exitCodeFor(err, ExitServiceError)}
				}
				return nil
			})
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVarP(&group, "group", "g", project.DefaultCommandGroup, "Command group to run the service with")
	return cmd
}

// =============================================================================
// Commands
// =============================================================================

func newCmdCmd(flags *globalFlags) *cobra.Command {
	var inService string

	cmd := &cobra.Command{
		Use:   "cmd <command> [args...]",
		Short: "Run a project command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				var code int
				var err error
				if inService != "" {
					code, err = a.engine.CmdInService(ctx, a.project, args[0], inService, args[1:])
				} else {
					code, err = a.engine.Cmd(ctx, a.project, args[0], args[1:])
				}
				if err != nil {
					return &CommandError{Op: "cmd", Err: err, ExitCode: exitCodeFor(err, ExitServiceError)}
				}
				if code != 0 {
					return exitStatus(code)
				}
				return nil
			})
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVarP(&inService, "in-service", "s", "", "Run inside the running container of this service")
	return cmd
}

func newExecCmd(flags *globalFlags) *cobra.Command {
	var root bool
	var command string

	cmd := &cobra.Command{
		Use:   "exec <service>",
		Short: "Open a shell in a running service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				opts := terminalExecOptions(root)
				var err error
				if command != "" {
					err = a.engine.ExecCustom(ctx, a.project, args[0], command, opts)
				} else {
					err = a.engine.ExecInteractive(ctx, a.project, args[0], opts)
				}
				if err != nil {
					return &CommandError{Op: "exec", Err: err, ExitCode: exitCodeFor(err, ExitServiceError)}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&root, "root", false, "Run as root instead of the current user")
	cmd.Flags().StringVarP(&command, "command", "c", "", "Shell command to run instead of a shell")
	return cmd
}

func newRunDetachedCmd(flags *globalFlags) *cobra.Command {
	var root bool

	cmd := &cobra.Command{
		Use:   "run-detached <command>",
		Short: "Run a project command without a terminal and print its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				c, ok := a.project.Command(args[0])
				if !ok || c.Image == "" {
					return &CommandError{Op: "run-detached", Err: fmt.Errorf("command %s not found or has no image", args[0]), ExitCode: ExitProjectError}
				}
				res, err := a.engine.CmdDetached(ctx, a.project, c, root)
				if err != nil {
					return &CommandError{Op: "run-detached", Err: err, ExitCode: exitCodeFor(err, ExitDockerError)}
				}
				if res.Output != "" {
					fmt.Fprintln(a.ui.out, res.Output)
				}
				if res.ExitCode != 0 {
					return exitStatus(res.ExitCode)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&root, "root", false, "Run as root")
	return cmd
}
