package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corecontainer "github.com/artpar/riptide-engine/internal/core/container"
	"github.com/artpar/riptide-engine/internal/core/naming"
	"github.com/artpar/riptide-engine/internal/core/project"
	"github.com/artpar/riptide-engine/internal/core/results"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const testProject = `
project:
  name: shop
  src: .
  app:
    services:
      www:
        image: nginx
        port: 80
        roles: [main, src]
        command: nginx -g 'daemon off;'
      db:
        image: postgres:15
      broken:
        image: crashy:1
    commands:
      npm:
        image: node:20
        command: npm
      yarn:
        aliases: npm
      local:
        aliases: missing
`

func loadTestProject(t *testing.T) *project.Project {
	t.Helper()
	p, err := project.Parse([]byte(testProject), t.TempDir())
	require.NoError(t, err)
	return p
}

func newTestEngine(t *testing.T, cli *fakeClient, opts ...func(*Options)) (*Engine, *fakeForeground) {
	t.Helper()
	fg := &fakeForeground{}
	o := Options{
		Logger:           setupTestLogger(),
		Workers:          4,
		EntrypointScript: "/assets/entrypoint.sh",
		Foreground:       fg,
		BuilderOptions: []corecontainer.Option{
			corecontainer.WithPortFinder(cli.portFinder()),
			corecontainer.WithUser(1000, 1000),
			corecontainer.WithPlatform("linux"),
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	e, err := NewEngine(context.Background(), cli, o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e, fg
}

func waitQueues(t *testing.T, mq *results.MultiResultQueue) map[string]error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := mq.Wait(ctx)
	require.NoError(t, err)
	return outcome
}

// lastStep drains a queue and returns the text of its final step.
func lastStep(t *testing.T, mq *results.MultiResultQueue, service string) results.Result {
	t.Helper()
	q, ok := mq.Queue(service)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var last results.Result
	for r := range q.Results(ctx) {
		last = r
	}
	require.True(t, last.Finished, "queue for %s did not end", service)
	return last
}

// =============================================================================
// Construction
// =============================================================================

func TestNewEngine_PingFailure(t *testing.T) {
	cli := newFakeClient()
	cli.pingErr = errors.New("dial unix /var/run/docker.sock: connect: no such file")

	_, err := NewEngine(context.Background(), cli, Options{Logger: setupTestLogger()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)

	var dockerErr *DockerError
	require.True(t, errors.As(err, &dockerErr))
	assert.Contains(t, err.Error(), "connection with docker daemon failed")
}

func TestContainerNameFor(t *testing.T) {
	e, _ := newTestEngine(t, newFakeClient())
	p := loadTestProject(t)
	assert.Equal(t, "riptide__shop__www", e.ContainerNameFor(p, "www"))
}

// =============================================================================
// Start
// =============================================================================

func TestStartProject_StartsService(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("nginx", corecontainer.ImageConfig{Entrypoint: corecontainer.ExecEntrypoint("/docker-entrypoint.sh")})
	e, _ := newTestEngine(t, cli)
	p := loadTestProject(t)

	mq, err := e.StartProject(context.Background(), p, []string{"www"}, false, project.DefaultCommandGroup)
	require.NoError(t, err)

	last := lastStep(t, mq, "www")
	require.Nil(t, last.Err)
	assert.Equal(t, MsgStartedOK, last.Step.Text)

	c, ok := cli.container("riptide__shop__www")
	require.True(t, ok)
	assert.Equal(t, ContainerStatusRunning, c.status)
	assert.Equal(t, "riptide__shop", c.args.Network)
	assert.Equal(t, "www", c.args.Hostname)
	assert.Equal(t, []string{corecontainer.EntrypointContainerPath}, c.args.Entrypoint)
	assert.Equal(t, corecontainer.ShellCommand("nginx -g 'daemon off;'"), c.args.Command)
	assert.Equal(t, `/docker-entrypoint.sh`, c.args.Env[corecontainer.EnvOriginalEntrypoint])
	assert.Equal(t, "1", c.args.Labels[corecontainer.LabelMain])
	assert.Equal(t, "30000", c.args.Labels[corecontainer.LabelPort])
	assert.Equal(t, map[int]int{80: 30000}, c.args.Ports)
	assert.False(t, c.args.Remove)

	assert.Equal(t, 1, cli.networks["riptide__shop"])
}

func TestStartProject_UnknownService(t *testing.T) {
	e, _ := newTestEngine(t, newFakeClient())
	p := loadTestProject(t)

	mq, err := e.StartProject(context.Background(), p, []string{"nope"}, false, "")
	require.NoError(t, err)

	last := lastStep(t, mq, "nope")
	require.NotNil(t, last.Err)
	assert.Equal(t, MsgServiceNotFound, last.Err.Message)
}

func TestStartProject_MixedKnownAndUnknown(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("nginx", corecontainer.ImageConfig{})
	e, _ := newTestEngine(t, cli)

	mq, err := e.StartProject(context.Background(), loadTestProject(t), []string{"www", "nope"}, false, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"www", "nope"}, mq.Services())

	// Ended before StartProject returns, not by a task
	q, ok := mq.Queue("nope")
	require.True(t, ok)
	assert.True(t, q.Ended())

	outcome := waitQueues(t, mq)
	assert.NoError(t, outcome["www"])
	assert.Error(t, outcome["nope"])
}

func TestStartProject_AlreadyRunning(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("postgres:15", corecontainer.ImageConfig{})
	cli.addContainer("riptide__shop__db", ContainerStatusRunning, nil)
	e, _ := newTestEngine(t, cli)

	mq, err := e.StartProject(context.Background(), loadTestProject(t), []string{"db"}, false, "")
	require.NoError(t, err)

	last := lastStep(t, mq, "db")
	require.Nil(t, last.Err)
	assert.Equal(t, MsgAlreadyStarted, last.Step.Text)
	assert.Empty(t, cli.removed)
}

func TestStartProject_RemovesStaleContainer(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("postgres:15", corecontainer.ImageConfig{})
	cli.addContainer("riptide__shop__db", ContainerStatusExited, nil)
	e, _ := newTestEngine(t, cli)

	mq, err := e.StartProject(context.Background(), loadTestProject(t), []string{"db"}, false, "")
	require.NoError(t, err)

	outcome := waitQueues(t, mq)
	assert.NoError(t, outcome["db"])
	assert.Equal(t, []string{"riptide__shop__db"}, cli.removed)

	c, ok := cli.container("riptide__shop__db")
	require.True(t, ok)
	assert.Equal(t, ContainerStatusRunning, c.status)
	assert.Empty(t, c.args.Ports, "db declares no main port")
}

func TestStartProject_PullsMissingImage(t *testing.T) {
	cli := newFakeClient()
	e, _ := newTestEngine(t, cli)

	mq, err := e.StartProject(context.Background(), loadTestProject(t), []string{"www"}, false, "")
	require.NoError(t, err)
	outcome := waitQueues(t, mq)

	assert.NoError(t, outcome["www"])
	assert.Equal(t, []string{"nginx:latest"}, cli.pulls)
}

func TestStartProject_QuickSkipsPull(t *testing.T) {
	cli := newFakeClient()
	e, _ := newTestEngine(t, cli)

	mq, err := e.StartProject(context.Background(), loadTestProject(t), []string{"www"}, true, "")
	require.NoError(t, err)
	outcome := waitQueues(t, mq)

	assert.Error(t, outcome["www"])
	assert.Empty(t, cli.pulls)
}

func TestStartProject_ContainerExitsReportsLogs(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("crashy:1", corecontainer.ImageConfig{})
	cli.exitOnStart["crashy:1"] = 2
	cli.logs["riptide__shop__broken"] = "fatal: no config\n"
	e, _ := newTestEngine(t, cli)

	mq, err := e.StartProject(context.Background(), loadTestProject(t), []string{"broken"}, false, "")
	require.NoError(t, err)

	last := lastStep(t, mq, "broken")
	require.NotNil(t, last.Err)
	assert.Equal(t, "Container failed to start", last.Err.Message)
	assert.Equal(t, "fatal: no config", last.Err.Details)
	assert.ErrorIs(t, last.Err, ErrContainerNotRunning)
}

func TestStartProject_ConcurrentStartsGetDistinctPorts(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("web", corecontainer.ImageConfig{})

	doc := "project:\n  name: many\n  app:\n    services:\n"
	var names []string
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("web%d", i)
		names = append(names, name)
		doc += fmt.Sprintf("      %s:\n        image: web\n        port: 8080\n", name)
	}
	p, err := project.Parse([]byte(doc), t.TempDir())
	require.NoError(t, err)

	e, _ := newTestEngine(t, cli)
	mq, err := e.StartProject(context.Background(), p, names, true, "")
	require.NoError(t, err)
	outcome := waitQueues(t, mq)

	seen := make(map[string]string)
	for _, name := range names {
		require.NoError(t, outcome[name])
		c, ok := cli.container(naming.ServiceContainerName("many", name))
		require.True(t, ok)
		port := c.args.Labels[corecontainer.LabelPort]
		prev, dup := seen[port]
		assert.False(t, dup, "%s and %s share host port %s", name, prev, port)
		seen[port] = name
	}
}

func TestStartProject_CloseEndsQueuedStarts(t *testing.T) {
	cli := newFakeClient()
	cli.blockImages = true
	e, _ := newTestEngine(t, cli, func(o *Options) { o.Workers = 1 })

	mq, err := e.StartProject(context.Background(), loadTestProject(t), []string{"www", "db"}, false, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Close(ctx), context.DeadlineExceeded)

	// Both queues end even though only one task ever held a worker
	outcome := waitQueues(t, mq)
	require.Len(t, outcome, 2)
	for _, name := range []string{"www", "db"} {
		assert.ErrorIs(t, outcome[name], context.Canceled, name)
	}
}

func TestStartProject_StartHookScope(t *testing.T) {
	cli := newFakeClient()
	var opened, released int
	e, _ := newTestEngine(t, cli, func(o *Options) {
		o.StartHook = func(ctx context.Context, p *project.Project) (func(), error) {
			opened++
			return func() { released++ }, nil
		}
	})

	_, err := e.StartProject(context.Background(), loadTestProject(t), nil, false, "")
	require.NoError(t, err)
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, released)
}

func TestStartProject_StartHookError(t *testing.T) {
	cli := newFakeClient()
	e, _ := newTestEngine(t, cli, func(o *Options) {
		o.StartHook = func(ctx context.Context, p *project.Project) (func(), error) {
			return nil, errors.New("locked")
		}
	})

	_, err := e.StartProject(context.Background(), loadTestProject(t), []string{"www"}, false, "")
	assert.ErrorContains(t, err, "locked")
	assert.Empty(t, cli.networks)
}

func TestStartProject_CommandGroup(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("app", corecontainer.ImageConfig{})
	doc := `
project:
  name: g
  app:
    services:
      api:
        image: app
        command:
          default: serve
          debug: [serve, --debug]
`
	p, err := project.Parse([]byte(doc), t.TempDir())
	require.NoError(t, err)

	e, _ := newTestEngine(t, cli)
	mq, err := e.StartProject(context.Background(), p, []string{"api"}, true, "debug")
	require.NoError(t, err)
	waitQueues(t, mq)

	c, ok := cli.container("riptide__g__api")
	require.True(t, ok)
	assert.Equal(t, corecontainer.ArgvCommand("serve", "--debug"), c.args.Command)
}

// =============================================================================
// Stop
// =============================================================================

func TestStopProject(t *testing.T) {
	cli := newFakeClient()
	cli.addContainer("riptide__shop__www", ContainerStatusRunning, nil)
	e, _ := newTestEngine(t, cli)

	mq, err := e.StopProject(context.Background(), loadTestProject(t), []string{"www", "db"})
	require.NoError(t, err)

	www := lastStep(t, mq, "www")
	require.Nil(t, www.Err)
	assert.Equal(t, MsgStoppedOK, www.Step.Text)
	_, exists := cli.container("riptide__shop__www")
	assert.False(t, exists)

	db := lastStep(t, mq, "db")
	require.Nil(t, db.Err)
	assert.Equal(t, MsgServiceNotRunning, db.Step.Text)
}

// =============================================================================
// Status And Address
// =============================================================================

func TestStatus(t *testing.T) {
	cli := newFakeClient()
	cli.addContainer("riptide__shop__www", ContainerStatusRunning, nil)
	cli.addContainer("riptide__shop__db", ContainerStatusExited, nil)
	e, _ := newTestEngine(t, cli)
	p := loadTestProject(t)

	assert.Equal(t, map[string]bool{"www": true, "db": false, "broken": false}, e.Status(context.Background(), p))
	assert.True(t, e.ServiceStatus(context.Background(), p, "www"))
	assert.False(t, e.ServiceStatus(context.Background(), p, "unknown"))
}

func TestAddressFor(t *testing.T) {
	tests := []struct {
		name    string
		service string
		status  ContainerStatus
		labels  map[string]string
		want    Address
		wantOK  bool
	}{
		{"running with port", "www", ContainerStatusRunning, map[string]string{corecontainer.LabelPort: "30004"}, Address{Host: "127.0.0.1", Port: 30004}, true},
		{"stopped", "www", ContainerStatusExited, map[string]string{corecontainer.LabelPort: "30004"}, Address{}, false},
		{"missing label", "www", ContainerStatusRunning, nil, Address{}, false},
		{"bad label", "www", ContainerStatusRunning, map[string]string{corecontainer.LabelPort: "x"}, Address{}, false},
		{"no main port", "db", ContainerStatusRunning, map[string]string{corecontainer.LabelPort: "30004"}, Address{}, false},
		{"unknown service", "nope", ContainerStatusRunning, nil, Address{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli := newFakeClient()
			cli.addContainer(naming.ServiceContainerName("shop", tt.service), tt.status, tt.labels)
			e, _ := newTestEngine(t, cli)

			addr, ok := e.AddressFor(context.Background(), loadTestProject(t), tt.service)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, addr)
		})
	}
}

func TestAddressFor_NoContainer(t *testing.T) {
	e, _ := newTestEngine(t, newFakeClient())
	_, ok := e.AddressFor(context.Background(), loadTestProject(t), "www")
	assert.False(t, ok)
}

// =============================================================================
// Commands
// =============================================================================

func TestCmd_RunsInForeground(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("node:20", corecontainer.ImageConfig{User: "node"})
	e, fg := newTestEngine(t, cli)
	fg.exitCode = 7

	code, err := e.Cmd(context.Background(), loadTestProject(t), "yarn", []string{"install", "--frozen"})
	require.NoError(t, err)
	assert.Equal(t, 7, code)
	assert.Equal(t, 1, cli.networks["riptide__shop"])

	require.Len(t, fg.runs, 1)
	tokens := fg.runs[0]
	name := naming.CommandContainerName("shop", "npm", os.Getpid())
	assert.Contains(t, tokens, name)
	assert.Contains(t, tokens, corecontainer.EnvNoStdoutRedirect+"=yes")
	assert.Contains(t, tokens, "/src")
	assert.Equal(t, `npm "install" "--frozen"`, tokens[len(tokens)-1])
	assert.Equal(t, "node:20", tokens[len(tokens)-2])
}

func TestCmd_UnknownCommand(t *testing.T) {
	e, fg := newTestEngine(t, newFakeClient())

	_, err := e.Cmd(context.Background(), loadTestProject(t), "local", nil)
	assert.ErrorIs(t, err, ErrCommandNotFound)
	assert.Empty(t, fg.runs)
}

func TestCmdInService_ServiceStopped(t *testing.T) {
	e, fg := newTestEngine(t, newFakeClient())

	_, err := e.CmdInService(context.Background(), loadTestProject(t), "npm", "www", nil)
	assert.ErrorIs(t, err, ErrServiceStopped)
	assert.Empty(t, fg.execs)
}

func TestCmdInService_Running(t *testing.T) {
	cli := newFakeClient()
	cli.addContainer("riptide__shop__www", ContainerStatusRunning, nil)
	e, fg := newTestEngine(t, cli)

	_, err := e.CmdInService(context.Background(), loadTestProject(t), "npm", "www", []string{"test"})
	require.NoError(t, err)

	require.Len(t, fg.execs, 1)
	assert.Equal(t, "riptide__shop__www", fg.execs[0].container)
	assert.Equal(t, `npm "test"`, fg.execs[0].command)
	assert.Equal(t, strconv.Itoa(os.Getuid())+":"+strconv.Itoa(os.Getgid()), fg.execs[0].opts.User)
}

func TestExecInteractive(t *testing.T) {
	cli := newFakeClient()
	cli.addContainer("riptide__shop__www", ContainerStatusRunning, nil)
	e, fg := newTestEngine(t, cli)
	p := loadTestProject(t)

	require.NoError(t, e.ExecInteractive(context.Background(), p, "www", ExecOptions{Root: true}))
	require.Len(t, fg.execs, 1)
	assert.Equal(t, DefaultExecCommand, fg.execs[0].command)
	assert.True(t, fg.execs[0].opts.Root)

	err := e.ExecCustom(context.Background(), p, "db", "ls", ExecOptions{})
	assert.ErrorIs(t, err, ErrServiceStopped)
}

func TestServiceFg(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("nginx", corecontainer.ImageConfig{})
	e, fg := newTestEngine(t, cli)

	err := e.ServiceFg(context.Background(), loadTestProject(t), "www", []string{"-t"}, project.DefaultCommandGroup)
	require.NoError(t, err)

	require.Len(t, fg.runs, 1)
	tokens := fg.runs[0]
	assert.Contains(t, tokens, "riptide__shop__www")
	assert.Contains(t, tokens, "30000:80")
	assert.Equal(t, `nginx -g 'daemon off;' "-t"`, tokens[len(tokens)-1])
}

func TestServiceFg_ReservesPortWhileRunning(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("web", corecontainer.ImageConfig{})
	p, err := project.Parse([]byte(`
project:
  name: pair
  app:
    services:
      front:
        image: web
        port: 8080
      back:
        image: web
        port: 8080
`), t.TempDir())
	require.NoError(t, err)

	fg := newBlockingForeground()
	e, _ := newTestEngine(t, cli, func(o *Options) {
		o.Foreground = fg
		// Engine default port finder
		o.BuilderOptions = []corecontainer.Option{
			corecontainer.WithUser(1000, 1000),
			corecontainer.WithPlatform("linux"),
		}
	})

	fgDone := make(chan error, 1)
	go func() { fgDone <- e.ServiceFg(context.Background(), p, "front", nil, "") }()

	var fgPort string
	select {
	case tokens := <-fg.started:
		for i, tok := range tokens {
			if tok == "-p" && i+1 < len(tokens) {
				fgPort, _, _ = strings.Cut(tokens[i+1], ":")
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("foreground run did not start")
	}
	require.NotEmpty(t, fgPort)
	assert.Contains(t, e.reservedPorts(), mustAtoi(t, fgPort))

	// The foreground container has not bound its port; it must not be reused
	mq, err := e.StartProject(context.Background(), p, []string{"back"}, true, "")
	require.NoError(t, err)
	require.NoError(t, waitQueues(t, mq)["back"])
	c, ok := cli.container(naming.ServiceContainerName("pair", "back"))
	require.True(t, ok)
	assert.NotEqual(t, fgPort, c.args.Labels[corecontainer.LabelPort])

	close(fg.release)
	require.NoError(t, <-fgDone)
	assert.Empty(t, e.reservedPorts())
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}

func TestServiceFg_AlreadyRunning(t *testing.T) {
	cli := newFakeClient()
	cli.addContainer("riptide__shop__www", ContainerStatusRunning, nil)
	e, fg := newTestEngine(t, cli)

	err := e.ServiceFg(context.Background(), loadTestProject(t), "www", nil, "")
	assert.ErrorIs(t, err, ErrContainerAlreadyRunning)
	assert.Empty(t, fg.runs)

	err = e.ServiceFg(context.Background(), loadTestProject(t), "nope", nil, "")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestCmdDetached(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("node:20", corecontainer.ImageConfig{})
	cli.logs["node:20"] = "v20.0.0\n"
	e, _ := newTestEngine(t, cli)
	p := loadTestProject(t)
	npm, _ := p.Command("npm")

	res, err := e.CmdDetached(context.Background(), p, npm, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "v20.0.0", res.Output)

	require.Len(t, cli.removed, 1)
	prefix := naming.CommandContainerName("shop", "npm", os.Getpid()) + "__"
	assert.True(t, strings.HasPrefix(cli.removed[0], prefix), cli.removed[0])

	// Each run gets its own container
	_, err = e.CmdDetached(context.Background(), p, npm, true)
	require.NoError(t, err)
	require.Len(t, cli.removed, 2)
	assert.NotEqual(t, cli.removed[0], cli.removed[1])
}

func TestCmdDetached_ExitCode(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("node:20", corecontainer.ImageConfig{})
	cli.exitOnStart["node:20"] = 3
	e, _ := newTestEngine(t, cli)
	p := loadTestProject(t)
	npm, _ := p.Command("npm")

	res, err := e.CmdDetached(context.Background(), p, npm, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Empty(t, res.Output)
	assert.Len(t, cli.removed, 1)
}

// =============================================================================
// Images
// =============================================================================

func TestPullImages(t *testing.T) {
	cli := newFakeClient()
	cli.pullStreams["nginx:latest"] = `{"status":"Downloading","progress":"[=>  ]"}` + "\nnot json\n"
	cli.pullErrs["crashy:1"] = NewDockerError("PullImage", "image", "crashy:1", "image not found", ErrImageNotFound)
	e, _ := newTestEngine(t, cli)

	var out []string
	err := e.PullImages(context.Background(), loadTestProject(t), func(s string) { out = append(out, s) })
	require.NoError(t, err)

	assert.Equal(t, []string{"crashy:1", "postgres:15", "nginx:latest", "node:20"}, cli.pulls)
	assert.Equal(t, []string{
		"[service/broken] Pulling 'crashy:1':\n",
		"\n    Warning: Image not found in repository.\n",
		"[service/db] Pulling 'postgres:15':\n",
		"\n    Pulling from library",
		"\n    Done!\n",
		"[service/www] Pulling 'nginx':\n",
		"\n    Downloading : [=>  ]",
		"\n    not json",
		"\n    Done!\n",
		"[command/npm] Pulling 'node:20':\n",
		"\n    Pulling from library",
		"\n    Done!\n",
		"Done!\n\n",
	}, out)
}

func TestPullImages_AbortsOnError(t *testing.T) {
	cli := newFakeClient()
	cli.pullErrs["postgres:15"] = NewDockerError("PullImage", "image", "postgres:15", "toomanyrequests", ErrImagePullFailed)
	e, _ := newTestEngine(t, cli)

	err := e.PullImages(context.Background(), loadTestProject(t), nil)
	assert.ErrorIs(t, err, ErrImagePullFailed)
	assert.Equal(t, []string{"crashy:1", "postgres:15"}, cli.pulls)
}

func TestPullImages_ErrorInStream(t *testing.T) {
	cli := newFakeClient()
	cli.pullStreams["crashy:1"] = `{"errorDetail":{"message":"manifest unknown"},"error":"manifest unknown"}` + "\n"
	cli.pullStreams["postgres:15"] = `{"errorDetail":{"message":"unauthorized"},"error":"unauthorized"}` + "\n"
	e, _ := newTestEngine(t, cli)

	err := e.PullImages(context.Background(), loadTestProject(t), nil)
	assert.ErrorIs(t, err, ErrImagePullFailed)
}

func TestImageLabels(t *testing.T) {
	cli := newFakeClient()
	cli.addImage("node:20", corecontainer.ImageConfig{Labels: map[string]string{"maintainer": "x"}})
	e, _ := newTestEngine(t, cli)
	p := loadTestProject(t)

	npm, _ := p.Command("npm")
	labels, err := e.ImageLabels(context.Background(), npm)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"maintainer": "x"}, labels)

	www, _ := p.Service("www")
	labels, err = e.ImageLabels(context.Background(), www)
	require.NoError(t, err)
	assert.Nil(t, labels)

	yarn, _ := p.Command("yarn")
	labels, err = e.ImageLabels(context.Background(), yarn)
	require.NoError(t, err)
	assert.Nil(t, labels)
}
