package server

import (
	"fmt"
	"strings"

	apperrors "github.com/codechrono/chrono/internal/errors"
	"github.com/codechrono/chrono/internal/timer"
)

// execute runs one timer command and returns the snapshot observed after
// it. WebSocket and HTTP commands both end up here.
func (s *Server) execute(cmd CommandPayload) (timer.Snapshot, error) {
	name := strings.ToLower(strings.TrimSpace(cmd.Command))

	var err error
	switch name {
	case CommandStart:
		err = s.timer.Start(strings.TrimSpace(cmd.TaskName), cmd.Minutes)
	case CommandBreak:
		// An omitted phase means a short break.
		phase := timer.ShortBreak
		if strings.TrimSpace(cmd.Phase) != "" {
			var ok bool
			if phase, ok = timer.ParsePhase(cmd.Phase); !ok {
				err = apperrors.New(apperrors.CodeTimerInvalidPhase,
					fmt.Sprintf("unknown phase %q", cmd.Phase))
				break
			}
		}
		err = s.timer.StartBreak(phase, cmd.Minutes)
	case CommandToggle:
		err = s.timer.PauseOrResume()
	case CommandReset:
		err = s.timer.Reset()
	case CommandActivity:
		s.timer.RecordActivity()
	case CommandState:
	default:
		return timer.Snapshot{}, apperrors.InvalidMessage(fmt.Sprintf("unknown command %q", cmd.Command))
	}

	s.mu.RLock()
	m := s.metrics
	s.mu.RUnlock()
	if m != nil && name != CommandState {
		m.Command(name, err)
	}

	if err != nil {
		return timer.Snapshot{}, err
	}
	return s.timer.Snapshot(), nil
}
