package keepawake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	apperrors "github.com/codechrono/chrono/internal/errors"
)

// processAdapter holds the inhibitor for as long as a helper process runs.
// The helper is bound to this process's pid so it exits if chrono crashes.
type processAdapter struct {
	name    string
	args    []string
	execCmd func(name string, args ...string) *exec.Cmd
}

func (a *processAdapter) Acquire(ctx context.Context) (Handle, error) {
	cmd := a.execCmd(a.name, a.args...)
	if err := cmd.Start(); err != nil {
		var ex *exec.Error
		if errors.As(err, &ex) || errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Wrap(apperrors.CodeKeepAwakeUnsupported, a.name+" is unavailable", err)
		}
		return nil, apperrors.Wrap(apperrors.CodeKeepAwakeAcquireFailed, "failed to start "+a.name, err)
	}

	h := &processHandle{name: a.name, cmd: cmd, done: make(chan struct{})}
	go h.wait()
	return h, nil
}

type processHandle struct {
	name string
	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	err      error
	released bool
}

func (h *processHandle) wait() {
	err := h.cmd.Wait()
	h.mu.Lock()
	if h.released {
		err = nil
	}
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

func (h *processHandle) Done() <-chan struct{} { return h.done }

func (h *processHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Release sends SIGTERM and waits for exit, escalating to SIGKILL when ctx
// expires first.
func (h *processHandle) Release(ctx context.Context) error {
	h.once.Do(func() {
		h.mu.Lock()
		h.released = true
		h.mu.Unlock()
		_ = h.cmd.Process.Signal(syscall.SIGTERM)
	})

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		_ = h.cmd.Process.Kill()
		select {
		case <-h.done:
		case <-time.After(200 * time.Millisecond):
		}
		return fmt.Errorf("%s did not exit: %w", h.name, ctx.Err())
	}
}
