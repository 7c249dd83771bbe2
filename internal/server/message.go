package server

import (
	"encoding/json"

	apperrors "github.com/codechrono/chrono/internal/errors"
	"github.com/codechrono/chrono/internal/timer"
)

// MessageType identifies the kind of message sent over the WebSocket.
type MessageType string

const (
	// MessageTypeTimerState carries a timer snapshot. Sent to every client
	// on each transition and to a new client on connect.
	// Payload: timer.Snapshot
	MessageTypeTimerState MessageType = "timer.state"

	// MessageTypeTimerCommand is sent by clients to drive the timer.
	// Payload: CommandPayload
	MessageTypeTimerCommand MessageType = "timer.command"

	// MessageTypeCommandResult answers a timer.command with the snapshot
	// observed right after it ran.
	// Payload: CommandResultPayload
	MessageTypeCommandResult MessageType = "command.result"

	// MessageTypeNotification forwards a completion notification.
	// Payload: NotificationPayload
	MessageTypeNotification MessageType = "notification"

	// MessageTypeError reports a failed command or a malformed message.
	// Payload: ErrorPayload
	MessageTypeError MessageType = "error"
)

// Message is the envelope for every WebSocket message.
type Message struct {
	Type MessageType `json:"type"`
	// ID echoes the id of the client message being answered, if any.
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload"`
}

// inbound is a client message with its payload left raw until the type is
// known.
type inbound struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Command names accepted in CommandPayload.Command and as the last path
// element of /api/timer/.
const (
	CommandStart    = "start"
	CommandBreak    = "break"
	CommandToggle   = "toggle"
	CommandReset    = "reset"
	CommandActivity = "activity"
	CommandState    = "state"
)

// CommandPayload is a timer command. Only start uses TaskName, only break
// uses Phase, and Minutes 0 selects the configured default.
type CommandPayload struct {
	Command  string `json:"command"`
	TaskName string `json:"task_name,omitempty"`
	Phase    string `json:"phase,omitempty"`
	Minutes  int    `json:"minutes,omitempty"`
}

// CommandResultPayload is the reply to a successful command.
type CommandResultPayload struct {
	Command string         `json:"command"`
	State   timer.Snapshot `json:"state"`
}

// NotificationPayload mirrors a desktop notification.
type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ErrorPayload carries a stable error code and a human-readable message.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewTimerStateMessage(s timer.Snapshot) Message {
	return Message{Type: MessageTypeTimerState, Payload: s}
}

func NewCommandResultMessage(id, command string, s timer.Snapshot) Message {
	return Message{
		Type:    MessageTypeCommandResult,
		ID:      id,
		Payload: CommandResultPayload{Command: command, State: s},
	}
}

func NewNotificationMessage(title, body string) Message {
	return Message{
		Type:    MessageTypeNotification,
		Payload: NotificationPayload{Title: title, Body: body},
	}
}

// NewErrorMessage converts err into an error message answering id.
func NewErrorMessage(id string, err error) Message {
	code, msg := apperrors.ToCodeAndMessage(err)
	return Message{
		Type:    MessageTypeError,
		ID:      id,
		Payload: ErrorPayload{Code: code, Message: msg},
	}
}
