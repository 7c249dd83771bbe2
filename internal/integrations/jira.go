package integrations

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/codechrono/chrono/internal/errors"
)

const jiraJQL = "assignee = currentUser() AND statusCategory != Done ORDER BY updated DESC"

// Jira fetches unresolved issues assigned to the user on a Jira Cloud site.
type Jira struct {
	// Domain is the site host, e.g. "acme.atlassian.net". A scheme or
	// trailing slash is tolerated.
	Domain string
	Email  string
	Token  string

	// BaseURL overrides https://{Domain} for API calls.
	BaseURL string
	Client  *http.Client
}

func NewJira(domain, email, token string) *Jira {
	return &Jira{Domain: domain, Email: email, Token: token}
}

func (j *Jira) Source() string { return SourceJira }

func (j *Jira) host() string {
	d := strings.TrimSpace(j.Domain)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	return strings.TrimRight(d, "/")
}

type jiraSearch struct {
	Issues []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
			Project *struct {
				Key string `json:"key"`
			} `json:"project"`
		} `json:"fields"`
	} `json:"issues"`
}

func (j *Jira) FetchAssigned(ctx context.Context) ([]Issue, error) {
	switch {
	case j.host() == "":
		return nil, apperrors.SyncNotConfigured(SourceJira, "domain")
	case j.Email == "":
		return nil, apperrors.SyncNotConfigured(SourceJira, "email")
	case j.Token == "":
		return nil, apperrors.SyncNotConfigured(SourceJira, "token")
	}

	base := j.BaseURL
	if base == "" {
		base = "https://" + j.host()
	}
	q := url.Values{}
	q.Set("jql", jiraJQL)
	q.Set("maxResults", fmt.Sprint(pageSize))
	q.Set("fields", "summary,description,status,priority,project")
	endpoint := strings.TrimRight(base, "/") + "/rest/api/3/search?" + q.Encode()

	creds := base64.StdEncoding.EncodeToString([]byte(j.Email + ":" + j.Token))
	header := http.Header{}
	header.Set("Authorization", "Basic "+creds)
	header.Set("Accept", "application/json")

	var raw jiraSearch
	if err := getJSON(ctx, defaultClient(j.Client), SourceJira, endpoint, header, &raw); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(raw.Issues))
	for _, it := range raw.Issues {
		// Descriptions are Atlassian Document Format; not flattened.
		is := Issue{
			ID:     "jira-" + it.Key,
			Title:  fmt.Sprintf("[%s] %s", it.Key, it.Fields.Summary),
			URL:    fmt.Sprintf("https://%s/browse/%s", j.host(), it.Key),
			Source: SourceJira,
		}
		if it.Fields.Project != nil {
			is.Project = it.Fields.Project.Key
		}
		issues = append(issues, is)
	}
	logFetched(SourceJira, len(issues))
	return issues, nil
}
