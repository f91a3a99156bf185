package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/artpar/riptide-engine/internal/core/project"
	"github.com/artpar/riptide-engine/internal/shell/docker"
)

// app is what a command runs against: config, logger, project and engine.
type app struct {
	cfg     *Config
	logger  *slog.Logger
	ui      *ui
	project *project.Project
	engine  *docker.Engine
	client  *docker.DockerClient
}

// globalFlags are the persistent root flags.
type globalFlags struct {
	config  string
	project string
	compose string
}

// openApp loads config and project and connects to the daemon.
func openApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := LoadConfig(flags.config)
	if err != nil {
		return nil, &CommandError{Op: "load config", Err: err, ExitCode: ExitConfigError}
	}
	if flags.project != "" {
		cfg.Project.File = flags.project
	}
	if flags.compose != "" {
		cfg.Project.Compose = flags.compose
	}

	logger := SetupLogger(cfg, os.Stderr)
	a := &app{cfg: cfg, logger: logger, ui: newUI()}

	p, err := loadProject(cfg.Project)
	if err != nil {
		return nil, &CommandError{Op: "load project", Err: err, ExitCode: ExitProjectError}
	}
	a.project = p

	if err := a.connect(ctx); err != nil {
		return nil, err
	}
	logger.Debug("engine ready", "project", p.Name, "docker_host", cfg.Docker.Host)
	return a, nil
}

// loadProject reads a riptide project document, or imports a compose file
// when one is configured.
func loadProject(cfg ProjectConfig) (*project.Project, error) {
	if cfg.Compose == "" {
		return project.Load(cfg.File)
	}

	path, err := filepath.Abs(cfg.Compose)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", cfg.Compose, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compose file: %w", err)
	}
	dir := filepath.Dir(path)
	name := cfg.Name
	if name == "" {
		name = filepath.Base(dir)
	}
	return project.FromCompose(string(content), name, dir)
}

func (a *app) connect(ctx context.Context) error {
	client, err := docker.NewDockerClient(ctx, a.cfg.Docker.Host)
	if err != nil {
		return &CommandError{Op: "connect to docker", Err: err, ExitCode: ExitDockerError}
	}

	assetsDir := a.cfg.Engine.AssetsDir
	if assetsDir == "" {
		assetsDir = docker.DefaultAssetsDir()
	}
	script, err := docker.WriteEntrypointScript(assetsDir)
	if err != nil {
		client.Close()
		return &CommandError{Op: "install entrypoint", Err: err, ExitCode: ExitConfigError}
	}

	engine, err := docker.NewEngine(ctx, client, docker.Options{
		Logger:           a.logger,
		Workers:          a.cfg.Engine.Workers,
		EntrypointScript: script,
		PortBase:         a.cfg.Engine.PortBase,
		StopTimeout:      a.cfg.Engine.StopTimeout,
		VerifyDelay:      a.cfg.Engine.VerifyDelay,
	})
	if err != nil {
		client.Close()
		return &CommandError{Op: "connect to docker", Err: err, ExitCode: ExitDockerError}
	}

	a.client = client
	a.engine = engine
	return nil
}

// close waits for scheduled tasks and disconnects.
func (a *app) close(ctx context.Context) {
	if a.engine != nil {
		if err := a.engine.Close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("engine shutdown incomplete", "error", err)
		}
	}
	if a.client != nil {
		a.client.Close()
	}
}

// terminalExecOptions describes the calling terminal for an interactive exec.
func terminalExecOptions(root bool) docker.ExecOptions {
	opts := docker.ExecOptions{Root: root}
	if !root {
		opts.User = strconv.Itoa(os.Getuid()) + ":" + strconv.Itoa(os.Getgid())
	}
	opts.Cols, _ = strconv.Atoi(os.Getenv("COLUMNS"))
	opts.Lines, _ = strconv.Atoi(os.Getenv("LINES"))
	return opts
}
