// Package local manages a backend's Minecraft server as a direct child
// process via os/exec, for deployments where ward and the server run on
// the same host.
package local

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"go.wardproxy.dev/ward/internal/servermanager"
)

// Manager runs a configured start/stop command pair and tracks the
// resulting process's lifecycle in memory.
type Manager struct {
	startCommand string
	stopCommand  string
	workDir      string

	mu      sync.Mutex
	cmd     *exec.Cmd
	running atomic.Bool
	crashed atomic.Bool
}

var _ servermanager.Manager = (*Manager)(nil)

func init() {
	servermanager.RegisterProvider(servermanager.KindLocal, func(opts servermanager.Options) (servermanager.Manager, error) {
		return New(opts.StartCommand, opts.StopCommand, opts.WorkDir), nil
	})
}

// New builds a local process manager. startCommand and stopCommand are
// shell command lines (run via "sh -c"), matching how the teacher's
// ecosystem examples shell out to external tooling.
func New(startCommand, stopCommand, workDir string) *Manager {
	return &Manager{startCommand: startCommand, stopCommand: stopCommand, workDir: workDir}
}

func (m *Manager) GetStatus(context.Context) (servermanager.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.crashed.Load() {
		return servermanager.StatusCrashed, nil
	}
	if m.cmd == nil {
		return servermanager.StatusStopped, nil
	}
	if m.running.Load() {
		return servermanager.StatusRunning, nil
	}
	return servermanager.StatusStopped, nil
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running.Load() {
		return nil
	}
	if strings.TrimSpace(m.startCommand) == "" {
		return fmt.Errorf("servermanager/local: no start command configured")
	}

	cmd := exec.CommandContext(context.WithoutCancel(ctx), "sh", "-c", m.startCommand)
	cmd.Dir = m.workDir
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("servermanager/local: start: %w", err)
	}
	m.cmd = cmd
	m.running.Store(true)
	m.crashed.Store(false)

	go func() {
		err := cmd.Wait()
		m.mu.Lock()
		m.running.Store(false)
		m.crashed.Store(err != nil)
		m.mu.Unlock()
		if err != nil {
			zap.L().Warn("servermanager/local: process exited with error", zap.Error(err))
		}
	}()

	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	cmd := m.cmd
	stopCmd := m.stopCommand
	m.mu.Unlock()

	if cmd == nil || !m.running.Load() {
		return nil
	}

	if strings.TrimSpace(stopCmd) != "" {
		c := exec.CommandContext(ctx, "sh", "-c", stopCmd)
		c.Dir = m.workDir
		return c.Run()
	}
	return cmd.Process.Kill()
}

func (m *Manager) Restart(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil {
		return err
	}
	return m.Start(ctx)
}
