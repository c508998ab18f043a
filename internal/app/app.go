// Package app dispatches CLI commands to the bridge runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/rbright/voicebridge/internal/audio"
	"github.com/rbright/voicebridge/internal/cli"
	"github.com/rbright/voicebridge/internal/config"
	"github.com/rbright/voicebridge/internal/doctor"
	"github.com/rbright/voicebridge/internal/ipc"
	"github.com/rbright/voicebridge/internal/logging"
	"github.com/rbright/voicebridge/internal/metrics"
	"github.com/rbright/voicebridge/internal/pipeline"
	"github.com/rbright/voicebridge/internal/server"
	"github.com/rbright/voicebridge/internal/session"
	"github.com/rbright/voicebridge/internal/version"
)

const (
	binaryName      = "voicebridge"
	dotEnvPath      = ".env"
	shutdownTimeout = 5 * time.Second
	forwardTimeout  = 220 * time.Millisecond
	// cancel waits on each session's lock, which a slow client write or a
	// device open can hold for up to the server write timeout.
	cancelForwardTimeout = 8 * time.Second
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logOpts := logging.Options{Verbose: parsed.Verbose}
	if parsed.Command == cli.CommandServe {
		logOpts.Console = r.Stderr
	}
	logRuntime, err := logging.New(logOpts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	if loadedEnv, err := config.LoadDotEnv(dotEnvPath); err != nil {
		fmt.Fprintf(r.Stderr, "warning: %v\n", err)
		logger.Warn("dotenv load failed", "error", err.Error())
	} else if loadedEnv {
		logger.Debug("dotenv loaded", "path", dotEnvPath)
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		if parsed.Command != cli.CommandServe {
			fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		}
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded.Config, logger)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, ipc.CommandCancel)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	var (
		m               *metrics.Metrics
		stageObserver   pipeline.Observer
		sessionObserver session.Observer
	)
	if cfg.Metrics.Enable {
		m = metrics.New()
		stageObserver = m
		sessionObserver = m
	}

	stages, err := pipeline.Build(cfg, stageObserver, sessionObserver, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("build pipeline failed", "error", err.Error())
		return 1
	}

	control, socketPath, err := acquireControlSocket(ctx, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("acquire control socket failed", "error", err.Error())
		return 1
	}
	if control != nil {
		defer func() {
			if err := ipc.Release(control, socketPath); err != nil {
				logger.Warn("release control socket", "error", err.Error())
			}
		}()
	}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: listen on %s: %v\n", cfg.Addr(), err)
		logger.Error("listen failed", "addr", cfg.Addr(), "error", err.Error())
		return 1
	}

	srv := server.New(server.Options{Logger: logger, Sessions: stages, Metrics: m})

	controlCtx, cancelControl := context.WithCancel(ctx)
	defer cancelControl()
	controlDone := make(chan error, 1)
	if control != nil {
		go func() {
			controlServer := &ipc.Server{Handler: controlHandler(srv), Logger: logger}
			controlDone <- controlServer.Serve(controlCtx, control)
		}()
	} else {
		controlDone <- nil
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(listener)
	}()

	logger.Info("bridge ready",
		"addr", listener.Addr().String(),
		"whisper", cfg.WhisperURL,
		"ollama", cfg.OllamaURL,
		"model", cfg.OllamaModel,
		"max_record", cfg.MaxRecord().String(),
		"metrics", cfg.Metrics.Enable,
	)
	fmt.Fprintf(r.Stdout, "voicebridge listening on ws://%s\n", listener.Addr().String())

	var serveErr error
	served := false
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case serveErr = <-serveDone:
		served = true
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", "error", err.Error())
	}
	if !served {
		serveErr = <-serveDone
	}

	exitCode := 0
	if serveErr != nil {
		fmt.Fprintf(r.Stderr, "error: server failed: %v\n", serveErr)
		logger.Error("server failed", "error", serveErr.Error())
		exitCode = 1
	}

	cancelControl()
	if err := <-controlDone; err != nil {
		fmt.Fprintf(r.Stderr, "error: control socket failed: %v\n", err)
		exitCode = 1
	}

	logger.Info("bridge stopped")
	return exitCode
}

// acquireControlSocket claims the per-user control socket. A missing
// XDG_RUNTIME_DIR disables the socket with a warning; another running bridge
// is an error.
func acquireControlSocket(ctx context.Context, logger *slog.Logger) (net.Listener, string, error) {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		logger.Warn("control socket disabled", "error", err.Error())
		return nil, "", nil
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{ProbeTimeout: 180 * time.Millisecond, Retries: 8})
	if err != nil {
		return nil, "", err
	}
	return listener, socketPath, nil
}

// controlTarget is the part of the server the control socket drives.
type controlTarget interface {
	Connections() []server.ConnStatus
	CancelAll() int
}

func controlHandler(target controlTarget) ipc.Handler {
	return ipc.HandlerFunc(func(_ context.Context, req ipc.Request) ipc.Response {
		switch req.Command {
		case ipc.CommandStatus:
			sessions := sessionInfos(target.Connections())
			return ipc.Response{OK: true, State: aggregateState(sessions), Sessions: sessions}
		case ipc.CommandCancel:
			n := target.CancelAll()
			return ipc.Response{
				OK:       true,
				Message:  fmt.Sprintf("cancelled %d session(s)", n),
				Sessions: sessionInfos(target.Connections()),
			}
		default:
			return ipc.Response{OK: false, Error: fmt.Sprintf("unsupported command %q", req.Command)}
		}
	})
}

func sessionInfos(conns []server.ConnStatus) []ipc.SessionInfo {
	infos := make([]ipc.SessionInfo, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, ipc.SessionInfo{
			ID:        c.ID,
			Remote:    c.Remote,
			State:     string(c.Session.State),
			Turn:      c.Session.Turn,
			TurnAgeMS: c.Session.TurnAge.Milliseconds(),
			Turns:     c.Session.TurnsTotal,
		})
	}
	return infos
}

// aggregateState reports the busiest state across sessions.
func aggregateState(sessions []ipc.SessionInfo) string {
	state := "idle"
	for _, s := range sessions {
		switch s.State {
		case "recording":
			return "recording"
		case "processing":
			state = "processing"
		}
	}
	return state
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	resp, err := forward(ctx, ipc.CommandStatus)
	if errors.Is(err, ipc.ErrNotRunning) {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if resp.State == "" {
		resp.State = "idle"
	}
	fmt.Fprintf(r.Stdout, "%s (%d client(s))\n", resp.State, len(resp.Sessions))
	for _, s := range resp.Sessions {
		line := fmt.Sprintf("  %s remote=%s state=%s turns=%d", s.ID, s.Remote, s.State, s.Turns)
		if s.Turn > 0 {
			line += fmt.Sprintf(" turn=%d age=%s", s.Turn, (time.Duration(s.TurnAgeMS) * time.Millisecond).String())
		}
		fmt.Fprintln(r.Stdout, line)
	}
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command ipc.Command) int {
	resp, err := forward(ctx, command)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// forward sends command to the running bridge. A missing XDG_RUNTIME_DIR is
// reported as ipc.ErrNotRunning since no bridge could have bound a socket.
func forward(ctx context.Context, command ipc.Command) (ipc.Response, error) {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		return ipc.Response{}, fmt.Errorf("%w: %v", ipc.ErrNotRunning, err)
	}
	return forwardTo(ctx, socketPath, command)
}

func forwardTimeoutFor(command ipc.Command) time.Duration {
	if command == ipc.CommandCancel {
		return cancelForwardTimeout
	}
	return forwardTimeout
}

func forwardTo(ctx context.Context, socketPath string, command ipc.Command) (ipc.Response, error) {
	client := ipc.Client{Path: socketPath, Timeout: forwardTimeoutFor(command)}
	resp, err := client.Do(ctx, command)
	if err != nil && !errors.Is(err, ipc.ErrNotRunning) {
		var cmdErr *ipc.CommandError
		if errors.As(err, &cmdErr) {
			return resp, err
		}
		return resp, fmt.Errorf("forward command %q: %w", command, err)
	}
	return resp, err
}
