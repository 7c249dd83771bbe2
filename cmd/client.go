package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/codechrono/chrono/internal/auth"
	"github.com/codechrono/chrono/internal/certs"
	apperrors "github.com/codechrono/chrono/internal/errors"
	"github.com/codechrono/chrono/internal/server"
	"github.com/codechrono/chrono/internal/timer"
)

// hostClient calls the loopback API of a running `chrono serve`.
type hostClient struct {
	addr   string
	scheme string
	http   *http.Client
}

func newHostClient(addr string) *hostClient {
	return &hostClient{
		addr:   dialAddr(addr),
		scheme: "http",
		http:   &http.Client{Timeout: 5 * time.Second},
	}
}

// newTLSHostClient talks HTTPS, trusting only the host certificate.
func newTLSHostClient(addr, certPath string) (*hostClient, error) {
	tlsConfig, err := certs.ClientConfig(certPath)
	if err != nil {
		return nil, err
	}
	c := newHostClient(addr)
	c.scheme = "https"
	c.http.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	return c, nil
}

// dialAddr turns a listen address into one the CLI can connect to: a
// wildcard host means this machine.
func dialAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// Command sends a timer command and returns the resulting snapshot.
func (c *hostClient) Command(cmd server.CommandPayload) (timer.Snapshot, error) {
	var snap timer.Snapshot
	err := c.do(http.MethodPost, "/api/timer/"+cmd.Command, cmd, &snap)
	return snap, err
}

func (c *hostClient) State() (timer.Snapshot, error) {
	var snap timer.Snapshot
	err := c.do(http.MethodGet, "/api/timer/state", nil, &snap)
	return snap, err
}

func (c *hostClient) Status() (server.StatusResponse, error) {
	var st server.StatusResponse
	err := c.do(http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *hostClient) GenerateCode() (auth.CodeResponse, error) {
	var resp auth.CodeResponse
	err := c.do(http.MethodPost, "/pair/generate", nil, &resp)
	return resp, err
}

// RevokeDevice asks the host to drop open connections of a device and
// returns how many were closed.
func (c *hostClient) RevokeDevice(id string) (int, error) {
	var resp struct {
		Closed int `json:"closed"`
	}
	err := c.do(http.MethodPost, "/devices/"+id+"/revoke", nil, &resp)
	return resp.Closed, err
}

func (c *hostClient) do(method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.scheme+"://"+c.addr+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chrono host is not reachable at %s (start it with: chrono serve): %w", c.addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e auth.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Code == "" {
			return fmt.Errorf("host returned %s", resp.Status)
		}
		return apperrors.New(e.Code, e.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode host response: %w", err)
	}
	return nil
}
