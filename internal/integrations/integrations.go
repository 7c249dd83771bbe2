// Package integrations pulls assigned issues from GitHub, GitLab and Jira and
// imports the ones the user picks as tasks.
package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff"

	apperrors "github.com/codechrono/chrono/internal/errors"
)

// Source labels stored alongside imported tasks.
const (
	SourceGitHub = "GitHub"
	SourceGitLab = "GitLab"
	SourceJira   = "Jira"
)

const (
	userAgent         = "code-chrono"
	pageSize          = 50
	maxDescriptionLen = 500
	requestTimeout    = 15 * time.Second
)

// Issue is an upstream ticket assigned to the user.
type Issue struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	// Project is the upstream repository or project, when known.
	Project         string `json:"project,omitempty"`
	AlreadyImported bool   `json:"already_imported"`
}

// Provider fetches the open issues assigned to the authenticated user.
type Provider interface {
	Source() string
	FetchAssigned(ctx context.Context) ([]Issue, error)
}

// truncate cuts s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: requestTimeout}
}

// getJSON performs a GET and decodes the JSON body into out. 5xx responses
// and transport errors are retried twice; anything else fails at once.
func getJSON(ctx context.Context, client *http.Client, source, url string, header http.Header, out any) error {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header = header.Clone()
		req.Header.Set("User-Agent", userAgent)

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s returned %d", source, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("%s returned %d: %s", source, resp.StatusCode, strings.TrimSpace(string(data))))
		}
		body = data
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), 2), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			err = perm.Err
		}
		return apperrors.SyncRequestFailed(source, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.Wrap(apperrors.CodeSyncBadResponse,
			fmt.Sprintf("%s returned an unexpected payload", source), err)
	}
	return nil
}

// newBackOff is swapped out in tests.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

func logFetched(source string, n int) {
	log.Printf("sync: fetched %d assigned issues from %s", n, source)
}
