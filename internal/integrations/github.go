package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/codechrono/chrono/internal/errors"
)

// GitHub fetches open issues assigned to the token's owner.
type GitHub struct {
	Token string
	// Repo is "owner/name". Empty means issues across all repositories.
	Repo string

	BaseURL string
	Client  *http.Client
}

// NewGitHub returns a GitHub provider for the public API.
func NewGitHub(token, repo string) *GitHub {
	return &GitHub{Token: token, Repo: repo, BaseURL: "https://api.github.com"}
}

func (g *GitHub) Source() string { return SourceGitHub }

type githubIssue struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Body        *string         `json:"body"`
	HTMLURL     string          `json:"html_url"`
	PullRequest json.RawMessage `json:"pull_request"`
	Repository  *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func (g *GitHub) FetchAssigned(ctx context.Context) ([]Issue, error) {
	if g.Token == "" {
		return nil, apperrors.SyncNotConfigured(SourceGitHub, "token")
	}

	path := "/issues"
	if strings.Contains(g.Repo, "/") {
		path = "/repos/" + g.Repo + "/issues"
	}
	q := url.Values{}
	q.Set("filter", "assigned")
	q.Set("state", "open")
	q.Set("per_page", fmt.Sprint(pageSize))
	endpoint := strings.TrimRight(g.BaseURL, "/") + path + "?" + q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+g.Token)
	header.Set("Accept", "application/vnd.github+json")
	header.Set("X-GitHub-Api-Version", "2022-11-28")

	var raw []githubIssue
	if err := getJSON(ctx, defaultClient(g.Client), SourceGitHub, endpoint, header, &raw); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(raw))
	for _, it := range raw {
		// The issues endpoint also lists pull requests.
		if len(it.PullRequest) > 0 && string(it.PullRequest) != "null" {
			continue
		}
		is := Issue{
			ID:      fmt.Sprint(it.ID),
			Title:   it.Title,
			URL:     it.HTMLURL,
			Source:  SourceGitHub,
			Project: g.Repo,
		}
		if it.Body != nil {
			is.Description = truncate(*it.Body, maxDescriptionLen)
		}
		if it.Repository != nil && it.Repository.FullName != "" {
			is.Project = it.Repository.FullName
		}
		issues = append(issues, is)
	}
	logFetched(SourceGitHub, len(issues))
	return issues, nil
}
