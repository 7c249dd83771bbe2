// Package notify delivers session-completion notifications.
package notify

import (
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"

	apperrors "github.com/codechrono/chrono/internal/errors"
	"github.com/codechrono/chrono/internal/timer"
)

// Func adapts a function to timer.Notifier.
type Func func(title, body string) error

func (f Func) Notify(title, body string) error { return f(title, body) }

// Multi fans a notification out to every notifier. All are tried; the
// failures are joined.
type Multi []timer.Notifier

func (m Multi) Notify(title, body string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(string, string) error { return nil }

// Desktop shows a native notification by running a platform helper.
type Desktop struct {
	// run executes the helper and returns its combined output.
	run func(name string, args ...string) ([]byte, error)
}

// NewDesktop returns a notifier for the current platform.
func NewDesktop() *Desktop {
	return &Desktop{run: func(name string, args ...string) ([]byte, error) {
		return exec.Command(name, args...).CombinedOutput()
	}}
}

func (d *Desktop) Notify(title, body string) error {
	name, args, ok := command(title, body)
	if !ok {
		return apperrors.New(apperrors.CodeNotifyUnsupported, "desktop notifications are unsupported on this host")
	}
	out, err := d.run(name, args...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = name + " failed"
		}
		return apperrors.Wrap(apperrors.CodeNotifyFailed, msg, err)
	}
	return nil
}

// Logged wraps n so that failures are logged instead of returned.
func Logged(n timer.Notifier) timer.Notifier {
	return Func(func(title, body string) error {
		if err := n.Notify(title, body); err != nil {
			log.Printf("notify: %q not delivered: %v", body, err)
		}
		return nil
	})
}

// appleScriptString quotes s as an AppleScript string literal.
func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return fmt.Sprintf(`"%s"`, s)
}
