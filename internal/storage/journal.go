package storage

import (
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff"

	apperrors "github.com/codechrono/chrono/internal/errors"
	"github.com/codechrono/chrono/internal/timer"
)

// SessionWriter is the write side of the session log.
type SessionWriter interface {
	LogAction(taskName, action string, elapsed int64, phase int) error
	LogCompletion(taskName string, elapsed int64, phase int) error
}

// Journal adapts a SessionWriter to timer.SessionLog. Writes that fail
// (typically SQLITE_BUSY while the CLI holds the file) are retried a few
// times with exponential backoff before being reported.
type Journal struct {
	w          SessionWriter
	maxRetries uint64
	newBackOff func() backoff.BackOff

	// OnFailure, when set, is called for every write that exhausted its
	// retries.
	OnFailure func(err error)
}

// NewJournal wraps w with the default retry policy.
func NewJournal(w SessionWriter) *Journal {
	return &Journal{
		w:          w,
		maxRetries: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 2 * time.Second
			return b
		},
	}
}

// AppendAction implements timer.SessionLog.
func (j *Journal) AppendAction(taskName string, action timer.Action, elapsed int64, phase timer.Phase) error {
	return j.retry(fmt.Sprintf("%s record", action), func() error {
		return j.w.LogAction(taskName, string(action), elapsed, int(phase))
	})
}

// AppendCompletion implements timer.SessionLog.
func (j *Journal) AppendCompletion(taskName string, elapsed int64, phase timer.Phase) error {
	return j.retry("completion record", func() error {
		return j.w.LogCompletion(taskName, elapsed, int(phase))
	})
}

func (j *Journal) retry(what string, op func() error) error {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return op()
	}, backoff.WithMaxRetries(j.newBackOff(), j.maxRetries))
	if err == nil {
		if attempts > 1 {
			log.Printf("storage: %s written after %d attempts", what, attempts)
		}
		return nil
	}

	coded := apperrors.WriteFailed(what, err)
	if j.OnFailure != nil {
		j.OnFailure(coded)
	}
	return coded
}

var _ timer.SessionLog = (*Journal)(nil)
