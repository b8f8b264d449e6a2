package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

// osProcess is the subset of *process.Process the directory needs.
type osProcess interface {
	NameWithContext(ctx context.Context) (string, error)
	KillWithContext(ctx context.Context) error
	IsRunningWithContext(ctx context.Context) (bool, error)
}

// ProcessDirectoryImpl implements domain.ProcessDirectory using gopsutil.
type ProcessDirectoryImpl struct {
	// list is swapped in tests.
	// It returns the processes and the index of the agent itself, or -1.
	list func(ctx context.Context) ([]osProcess, int, error)
}

// NewProcessDirectory creates a process directory over the local OS.
func NewProcessDirectory() *ProcessDirectoryImpl {
	return &ProcessDirectoryImpl{
		list: listOSProcesses,
	}
}

func listOSProcesses(ctx context.Context) ([]osProcess, int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]osProcess, 0, len(procs))
	pids := make([]int, 0, len(procs))
	for _, p := range procs {
		out = append(out, p)
		pids = append(pids, int(p.Pid))
	}
	return out, indexOf(pids, os.Getpid()), nil
}

func indexOf(pids []int, pid int) int {
	for i, p := range pids {
		if p == pid {
			return i
		}
	}
	return -1
}

// ListRunningNames returns the lower-cased names of running processes.
func (d *ProcessDirectoryImpl) ListRunningNames(ctx context.Context) (map[string]struct{}, error) {
	procs, _, err := d.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	names := make(map[string]struct{}, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // Process may have exited
		}
		names[strings.ToLower(name)] = struct{}{}
	}
	return names, nil
}

// Terminate kills every process whose lower-cased name equals name.
// The agent itself is never a target.
func (d *ProcessDirectoryImpl) Terminate(ctx context.Context, name string) (domain.TerminateOutcome, error) {
	target := strings.ToLower(strings.TrimSpace(name))
	if target == "" {
		return domain.TerminateNotFound, nil
	}

	procs, self, err := d.list(ctx)
	if err != nil {
		return domain.TerminateFailed, fmt.Errorf("list processes: %w", err)
	}

	matched := 0
	var errs []error
	for i, p := range procs {
		if i == self {
			continue
		}
		pname, err := p.NameWithContext(ctx)
		if err != nil || strings.ToLower(pname) != target {
			continue
		}
		matched++

		if err := p.KillWithContext(ctx); err != nil {
			// Exited between listing and kill: the goal is met.
			if running, rerr := p.IsRunningWithContext(ctx); rerr == nil && !running {
				continue
			}
			errs = append(errs, err)
		}
	}

	switch {
	case matched == 0:
		return domain.TerminateNotFound, nil
	case len(errs) > 0:
		return domain.TerminateFailed, fmt.Errorf("terminate %s: %w", target, errors.Join(errs...))
	}
	return domain.TerminateKilled, nil
}

// Ensure ProcessDirectoryImpl implements domain.ProcessDirectory.
var _ domain.ProcessDirectory = (*ProcessDirectoryImpl)(nil)
