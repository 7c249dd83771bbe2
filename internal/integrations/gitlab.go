package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/codechrono/chrono/internal/errors"
)

// GitLab fetches open issues assigned to the token's owner on gitlab.com or
// a self-hosted instance.
type GitLab struct {
	Token string
	// Host defaults to https://gitlab.com; a bare hostname gets https://.
	Host string
	// Project, when set, is recorded as the project of every issue.
	Project string

	Client *http.Client
}

func NewGitLab(token, host, project string) *GitLab {
	return &GitLab{Token: token, Host: host, Project: project}
}

func (g *GitLab) Source() string { return SourceGitLab }

func (g *GitLab) baseURL() string {
	host := strings.TrimRight(strings.TrimSpace(g.Host), "/")
	if host == "" {
		return "https://gitlab.com"
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host
}

type gitlabIssue struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	WebURL      string  `json:"web_url"`
	References  *struct {
		Full string `json:"full"`
	} `json:"references"`
}

func (g *GitLab) FetchAssigned(ctx context.Context) ([]Issue, error) {
	if g.Token == "" {
		return nil, apperrors.SyncNotConfigured(SourceGitLab, "token")
	}

	q := url.Values{}
	q.Set("scope", "assigned_to_me")
	q.Set("state", "opened")
	q.Set("per_page", fmt.Sprint(pageSize))
	endpoint := g.baseURL() + "/api/v4/issues?" + q.Encode()

	header := http.Header{}
	header.Set("PRIVATE-TOKEN", g.Token)

	var raw []gitlabIssue
	if err := getJSON(ctx, defaultClient(g.Client), SourceGitLab, endpoint, header, &raw); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(raw))
	for _, it := range raw {
		is := Issue{
			ID:      fmt.Sprintf("gl-%d", it.ID),
			Title:   it.Title,
			URL:     it.WebURL,
			Source:  SourceGitLab,
			Project: g.Project,
		}
		if it.Description != nil {
			is.Description = truncate(*it.Description, maxDescriptionLen)
		}
		if is.Project == "" && it.References != nil {
			// "group/project#12"
			if i := strings.LastIndex(it.References.Full, "#"); i > 0 {
				is.Project = it.References.Full[:i]
			}
		}
		issues = append(issues, is)
	}
	logFetched(SourceGitLab, len(issues))
	return issues, nil
}
