package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/artpar/riptide-engine/internal/core/results"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

// ui writes human-facing output. Logs go elsewhere.
type ui struct {
	out io.Writer
}

func newUI() *ui {
	return &ui{out: os.Stdout}
}

func (u *ui) info(format string, args ...any) {
	fmt.Fprintf(u.out, "%s %s\n", cyan("→"), fmt.Sprintf(format, args...))
}

func (u *ui) success(format string, args ...any) {
	fmt.Fprintf(u.out, "%s %s\n", green("✔"), fmt.Sprintf(format, args...))
}

func (u *ui) warn(format string, args ...any) {
	fmt.Fprintf(u.out, "%s %s\n", yellow("○"), fmt.Sprintf(format, args...))
}

func (u *ui) fail(format string, args ...any) {
	fmt.Fprintf(u.out, "%s %s\n", red("✘"), fmt.Sprintf(format, args...))
}

func (u *ui) raw(s string) {
	fmt.Fprint(u.out, s)
}

// =============================================================================
// Progress Rendering
// =============================================================================

// renderProgress prints every result of mq as it arrives and returns the
// services that failed.
func (u *ui) renderProgress(ctx context.Context, mq *results.MultiResultQueue) []string {
	var failed []string
	for r := range mq.Stream(ctx) {
		name := bold(r.Service)
		switch {
		case r.Err != nil:
			failed = append(failed, r.Service)
			u.fail("%s %s", name, r.Err.Error())
			if r.Err.Details != "" {
				fmt.Fprintln(u.out, indent(dim(r.Err.Details), "    "))
			}
		case r.Finished:
			u.success("%s %s", name, r.Step.String())
		default:
			u.info("%s %s", name, dim(r.Step.String()))
		}
	}
	sort.Strings(failed)
	return failed
}

// renderStatus prints one line per service.
func (u *ui) renderStatus(status map[string]bool) {
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if status[name] {
			fmt.Fprintf(u.out, "%-20s %s\n", name, green("running"))
		} else {
			fmt.Fprintf(u.out, "%-20s %s\n", name, dim("stopped"))
		}
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
