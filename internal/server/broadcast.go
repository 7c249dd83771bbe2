package server

import (
	"log"

	"github.com/codechrono/chrono/internal/timer"
)

// Broadcast queues msg for every connected client. It never blocks: when
// the queue is full the message is dropped. Broadcasts after Stop are
// ignored.
func (s *Server) Broadcast(msg Message) {
	// RLock is held across the send so Stop cannot close the channel
	// underneath it.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return
	}
	select {
	case s.broadcast <- msg:
	default:
		log.Printf("server: broadcast queue full, dropping %s", msg.Type)
	}
}

// BroadcastSnapshot publishes a timer snapshot. It has the shape of a
// timer.SnapshotHandler and is safe to call from the timer's emit path.
func (s *Server) BroadcastSnapshot(snap timer.Snapshot) {
	s.Broadcast(NewTimerStateMessage(snap))
}

// Notify forwards a notification to every client. It implements
// timer.Notifier so completions reach UIs as well as the desktop.
func (s *Server) Notify(title, body string) error {
	s.Broadcast(NewNotificationMessage(title, body))
	return nil
}

// runBroadcaster fans queued messages out to clients until Stop closes the
// queue.
func (s *Server) runBroadcaster() {
	for msg := range s.broadcast {
		s.mu.RLock()
		for client := range s.clients {
			client.queue(msg)
		}
		s.mu.RUnlock()
	}
}
