// Package supervisor controls the lazy-bird systemd user units.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrUnknownService is returned for names outside the managed set.
var ErrUnknownService = errors.New("unknown service")

// Runner executes a systemctl invocation and reports its combined output
// and exit code. A non-zero exit is not a run error; a missing binary is.
type Runner interface {
	Run(ctx context.Context, args ...string) (output string, exitCode int, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, args ...string) (string, int, error) {
	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(runCtx, "systemctl", args...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), exitErr.ExitCode(), nil
		}
		return "", 0, fmt.Errorf("run systemctl: %w", err)
	}
	return string(out), 0, nil
}

// ServiceStatus is one unit's state.
type ServiceStatus struct {
	Name   string `json:"name"`
	Unit   string `json:"unit"`
	Status string `json:"status"`
	Loaded bool   `json:"loaded"`
}

// Systemd manages the user units behind the server and watcher processes.
type Systemd struct {
	runner Runner
	units  map[string]string
	order  []string
}

// New returns a supervisor shelling out to systemctl --user.
func New() *Systemd {
	return NewWithRunner(execRunner{})
}

// NewWithRunner injects the command runner.
func NewWithRunner(r Runner) *Systemd {
	return &Systemd{
		runner: r,
		units: map[string]string{
			"server":  "lazy-bird-server",
			"watcher": "lazy-bird-watcher",
		},
		order: []string{"server", "watcher"},
	}
}

// Names lists the managed service names in display order.
func (s *Systemd) Names() []string {
	return append([]string(nil), s.order...)
}

// Status reports one service's state. A missing systemctl binary reads as
// status "unknown" rather than an error.
func (s *Systemd) Status(ctx context.Context, name string) (ServiceStatus, error) {
	unit, ok := s.units[name]
	if !ok {
		return ServiceStatus{}, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	st := ServiceStatus{Name: name, Unit: unit, Status: "stopped"}

	out, code, err := s.runner.Run(ctx, "--user", "is-active", unit)
	if err != nil {
		st.Status = "unknown"
		return st, nil
	}
	if code == 0 && strings.TrimSpace(out) == "active" {
		st.Status = "running"
	}

	if out, _, err := s.runner.Run(ctx, "--user", "status", unit); err == nil {
		for _, line := range strings.Split(out, "\n") {
			before, after, found := strings.Cut(line, "Loaded:")
			if !found || strings.TrimSpace(before) != "" {
				continue
			}
			st.Loaded = strings.HasPrefix(strings.TrimSpace(after), "loaded")
			break
		}
	}
	return st, nil
}

// StatusAll reports every managed service keyed by name.
func (s *Systemd) StatusAll(ctx context.Context) map[string]ServiceStatus {
	statuses := make(map[string]ServiceStatus, len(s.order))
	for _, name := range s.order {
		st, err := s.Status(ctx, name)
		if err != nil {
			continue
		}
		statuses[name] = st
	}
	return statuses
}

// Start starts the unit behind name.
func (s *Systemd) Start(ctx context.Context, name string) error {
	return s.verb(ctx, "start", name)
}

// Stop stops the unit behind name.
func (s *Systemd) Stop(ctx context.Context, name string) error {
	return s.verb(ctx, "stop", name)
}

// Restart restarts the unit behind name.
func (s *Systemd) Restart(ctx context.Context, name string) error {
	return s.verb(ctx, "restart", name)
}

func (s *Systemd) verb(ctx context.Context, verb, name string) error {
	unit, ok := s.units[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	out, code, err := s.runner.Run(ctx, "--user", verb, unit)
	if err != nil {
		return fmt.Errorf("%s %s: %w", verb, unit, err)
	}
	if code != 0 {
		return fmt.Errorf("%s %s: systemctl exited %d: %s", verb, unit, code, strings.TrimSpace(out))
	}
	return nil
}
