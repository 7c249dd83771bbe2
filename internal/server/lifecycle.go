package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

// StartAsync binds the listener and serves in the background. The returned
// channel yields nil once the server is accepting connections, or the
// listen error (for example, port already in use).
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	handler := s.createMux()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	s.mu.RLock()
	tlsConfig := s.tlsConfig
	s.mu.RUnlock()
	scheme := "http"
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
		scheme = "https"
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = srv
	s.startTime = time.Now()
	s.mu.Unlock()

	go s.runBroadcaster()

	go func() {
		log.Printf("server: listening on %s://%s", scheme, ln.Addr())
		errCh <- nil
		close(errCh)

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server: serve error: %v", err)
		}
	}()

	return errCh
}

// Stop closes every client, stops the broadcaster and closes the listener.
// It is safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	for client := range s.clients {
		client.closeSend()
	}
	s.clients = make(map[*Client]bool)

	// Broadcast checks stopped under the read lock, so nothing can be
	// sending on the channel now.
	close(s.broadcast)
	srv := s.httpServer
	m := s.metrics
	s.mu.Unlock()

	if m != nil {
		m.SetClients(0)
	}
	if srv != nil {
		return srv.Close()
	}
	return nil
}
