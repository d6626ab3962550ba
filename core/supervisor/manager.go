// Package supervisor owns the lifecycle of the external simulation process:
// launching it, streaming its output into the activity log, and stopping it.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/whr-sorting/simbridge/core/activity"
	"github.com/whr-sorting/simbridge/core/events"
	"github.com/whr-sorting/simbridge/core/logger"
	"github.com/whr-sorting/simbridge/internal/eventbus"
)

// SimulationManager is what the rest of the bridge needs from the supervisor.
type SimulationManager interface {
	Start(ctx context.Context) (StartResult, error)
	Stop() StopResult
	IsRunning() bool
}

// StartResult describes the outcome of Start.
type StartResult struct {
	Started        bool   `json:"started"`
	AlreadyRunning bool   `json:"already_running"`
	PID            int    `json:"pid,omitempty"`
	Message        string `json:"message"`
}

// StopResult describes the outcome of Stop.
type StopResult struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message"`
}

// Manager supervises at most one simulation process.
type Manager struct {
	cfg Config
	buf *activity.Buffer
	log logger.Logger
	bus eventbus.EventBus

	newCommand func(name string, args ...string) *exec.Cmd
	lookPath   func(file string) (string, error)

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
	// exiting is closed once a stopped process has been reaped.
	exiting chan struct{}
}

var _ SimulationManager = (*Manager)(nil)

// New creates a Manager. bus may be nil.
func New(cfg Config, buf *activity.Buffer, log logger.Logger, bus eventbus.EventBus) *Manager {
	cfg.SetDefaults()
	if buf == nil {
		buf = activity.NewBuffer(0)
	}
	return &Manager{
		cfg:        cfg,
		buf:        buf,
		log:        logger.OrNop(log),
		bus:        bus,
		newCommand: exec.Command,
		lookPath:   exec.LookPath,
	}
}

// IsRunning reports whether a simulation handle is held.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cmd != nil
}

// PID returns the process id of the running simulation, or 0.
func (m *Manager) PID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil || m.cmd.Process == nil {
		return 0
	}
	return m.cmd.Process.Pid
}

func (m *Manager) resolveExecutable() (string, error) {
	exe := m.cfg.Executable
	if strings.ContainsRune(exe, os.PathSeparator) || strings.ContainsRune(exe, '/') {
		if _, err := os.Stat(exe); err != nil {
			return "", &ConfigurationError{Setting: "executable", Path: exe, EnvVar: EnvExecutable, Err: err}
		}
		return exe, nil
	}
	path, err := m.lookPath(exe)
	if err != nil {
		return "", &ConfigurationError{Setting: "executable", Path: exe, EnvVar: EnvExecutable, Err: err}
	}
	return path, nil
}

func (m *Manager) checkScene() error {
	if m.cfg.SceneFile == "" {
		return &ConfigurationError{Setting: "scene file", EnvVar: EnvSceneFile}
	}
	if _, err := os.Stat(m.cfg.SceneFile); err != nil {
		return &ConfigurationError{Setting: "scene file", Path: m.cfg.SceneFile, EnvVar: EnvSceneFile, Err: err}
	}
	return nil
}

// Start launches the simulation unless one is already running. A process
// still exiting after Stop is waited for first, bounded by ctx. Start returns
// after the configured settle delay, or earlier if ctx ends or the process
// exits.
func (m *Manager) Start(ctx context.Context) (StartResult, error) {
	if err := m.awaitExit(ctx); err != nil {
		return StartResult{Message: err.Error()}, err
	}
	m.mu.Lock()
	if m.cmd != nil {
		pid := m.cmd.Process.Pid
		m.mu.Unlock()
		return StartResult{Started: true, AlreadyRunning: true, PID: pid, Message: "simulation already running"}, nil
	}
	exe, err := m.resolveExecutable()
	if err == nil {
		err = m.checkScene()
	}
	if err != nil {
		m.mu.Unlock()
		m.buf.Append(err.Error(), activity.CategoryError)
		return StartResult{Message: err.Error()}, err
	}

	cmd := m.newCommand(exe, m.cfg.Args()...)
	cmd.Dir = m.cfg.WorkDir
	configureProc(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.mu.Unlock()
		return StartResult{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.mu.Unlock()
		return StartResult{}, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		m.mu.Unlock()
		msg := fmt.Sprintf("failed to launch simulation: %v", err)
		m.buf.Append(msg, activity.CategoryError)
		m.log.Errorf("%s", msg)
		return StartResult{Message: msg}, fmt.Errorf("launch %s: %w", exe, err)
	}
	done := make(chan struct{})
	m.cmd = cmd
	m.done = done
	pid := cmd.Process.Pid
	m.mu.Unlock()

	msg := fmt.Sprintf("simulation started (pid %d, scene %s)", pid, m.cfg.SceneFile)
	m.buf.Append(msg, activity.CategorySuccess)
	m.publish(events.SimulationStateChanged{Running: true, PID: pid, Message: msg, Time: time.Now()})

	var pumps sync.WaitGroup
	pumps.Add(2)
	go m.pump(stdout, activity.CategoryDefault, &pumps)
	go m.pump(stderr, activity.CategoryError, &pumps)
	go func() {
		pumps.Wait()
		err := cmd.Wait()
		m.exited(cmd, err)
		close(done)
	}()

	timer := time.NewTimer(m.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-done:
		return StartResult{PID: pid, Message: ErrExitedEarly.Error()}, ErrExitedEarly
	}
	return StartResult{Started: true, PID: pid, Message: msg}, nil
}

// awaitExit blocks until the last stopped process has been reaped.
func (m *Manager) awaitExit(ctx context.Context) error {
	m.mu.Lock()
	exiting := m.exiting
	m.mu.Unlock()
	if exiting == nil {
		return nil
	}
	select {
	case <-exiting:
	case <-ctx.Done():
		return fmt.Errorf("previous simulation is still exiting: %w", ctx.Err())
	}
	m.mu.Lock()
	if m.exiting == exiting {
		m.exiting = nil
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) pump(r io.Reader, cat activity.Category, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		m.buf.Append(line, cat)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		m.log.Warnf("simulation output: %v", err)
	}
}

func (m *Manager) exited(cmd *exec.Cmd, err error) {
	m.mu.Lock()
	requested := m.cmd != cmd
	if !requested {
		m.cmd = nil
		m.done = nil
	}
	m.mu.Unlock()

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	var msg string
	switch {
	case err == nil:
		msg = "simulation exited cleanly"
		m.buf.Append(msg, activity.CategorySuccess)
	case requested:
		msg = fmt.Sprintf("simulation stopped: %v", err)
		m.buf.Append(msg, activity.CategoryInfo)
	case code < 0:
		msg = fmt.Sprintf("simulation terminated: %v", err)
		m.buf.Append(msg, activity.CategoryError)
	default:
		msg = fmt.Sprintf("simulation exited with code %d", code)
		m.buf.Append(msg, activity.CategoryError)
	}
	m.publish(events.SimulationStateChanged{Running: false, PID: cmd.Process.Pid, ExitCode: code, Message: msg, Time: time.Now()})
}

// Stop interrupts the running simulation and forgets its handle. If the process
// is still alive after the stop grace period it is killed.
func (m *Manager) Stop() StopResult {
	m.mu.Lock()
	cmd, done := m.cmd, m.done
	m.cmd, m.done = nil, nil
	if done != nil {
		m.exiting = done
	}
	m.mu.Unlock()
	if cmd == nil {
		return StopResult{Message: "simulation is not running"}
	}

	if err := interrupt(cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		m.log.Warnf("interrupt simulation: %v", err)
		_ = kill(cmd)
	}
	go func() {
		t := time.NewTimer(m.cfg.StopGrace)
		defer t.Stop()
		select {
		case <-done:
		case <-t.C:
			m.buf.Appendf(activity.CategoryError, "simulation ignored interrupt for %s, killing", m.cfg.StopGrace)
			_ = kill(cmd)
		}
	}()
	msg := fmt.Sprintf("simulation stop requested (pid %d)", cmd.Process.Pid)
	m.buf.Append(msg, activity.CategoryInfo)
	return StopResult{Stopped: true, Message: msg}
}

// Close stops the simulation and waits for the process to exit or ctx to end.
// A process already stopping is waited for as well.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	done, running := m.done, m.done != nil
	if !running {
		done = m.exiting
	}
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	if running {
		m.Stop()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) publish(ev events.SimulationStateChanged) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}
