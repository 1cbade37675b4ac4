// Package github stores documents as files in a GitHub repository through the
// contents API. The blob SHA of a file is its version.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"github.com/example/community-events/internal/persistence"
)

// Config identifies the repository that holds the documents.
type Config struct {
	Token  string
	Owner  string
	Repo   string
	Branch string
	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise.
	BaseURL string
}

// Store implements persistence.DocumentStore on the GitHub contents API.
type Store struct {
	client *gh.Client
	owner  string
	repo   string
	branch string
}

// New builds a store. httpClient may be nil.
func New(config Config, httpClient *http.Client) (*Store, error) {
	if config.Owner == "" || config.Repo == "" {
		return nil, fmt.Errorf("github store: owner and repo are required")
	}
	client := gh.NewClient(httpClient)
	if config.Token != "" {
		client = client.WithAuthToken(config.Token)
	}
	if config.BaseURL != "" {
		base := config.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github store: invalid base url: %w", err)
		}
		client.BaseURL = parsed
	}
	return &Store{client: client, owner: config.Owner, repo: config.Repo, branch: config.Branch}, nil
}

// Get fetches the file. A 404 is reported as a missing document.
func (s *Store) Get(ctx context.Context, name string) (persistence.Document, error) {
	var opts *gh.RepositoryContentGetOptions
	if s.branch != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: s.branch}
	}
	file, _, resp, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, name, opts)
	if err != nil {
		if statusOf(resp, err) == http.StatusNotFound {
			return persistence.Document{}, nil
		}
		return persistence.Document{}, fmt.Errorf("github: get %s: %w", name, err)
	}
	if file == nil {
		return persistence.Document{}, fmt.Errorf("github: %s is a directory", name)
	}
	content, err := file.GetContent()
	if err != nil {
		return persistence.Document{}, fmt.Errorf("github: decode %s: %w", name, err)
	}
	return persistence.Document{Body: []byte(content), Version: file.GetSHA()}, nil
}

// Put creates or updates the file. GitHub answers 409 or 422 when the SHA
// does not match the current blob; both become persistence.ErrConflict.
func (s *Store) Put(ctx context.Context, name string, body []byte, expectedVersion string) (string, error) {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr("Update " + name),
		Content: body,
	}
	if s.branch != "" {
		opts.Branch = gh.Ptr(s.branch)
	}

	var (
		result *gh.RepositoryContentResponse
		resp   *gh.Response
		err    error
	)
	if expectedVersion == "" {
		result, resp, err = s.client.Repositories.CreateFile(ctx, s.owner, s.repo, name, opts)
	} else {
		opts.SHA = gh.Ptr(expectedVersion)
		result, resp, err = s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, name, opts)
	}
	if err != nil {
		switch statusOf(resp, err) {
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return "", fmt.Errorf("github: put %s: %w", name, persistence.ErrConflict)
		}
		return "", fmt.Errorf("github: put %s: %w", name, err)
	}
	return result.GetContent().GetSHA(), nil
}

func statusOf(resp *gh.Response, err error) int {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}
	return 0
}
