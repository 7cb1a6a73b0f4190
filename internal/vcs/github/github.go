// Package github resolves references through the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v68/github"
	"github.com/zulandar/buildyard/internal/models"
	"github.com/zulandar/buildyard/internal/vcs"
	"golang.org/x/oauth2"
)

// Options configures the GitHub client.
type Options struct {
	Token   string // personal access or app installation token; empty for anonymous
	BaseURL string // API root for GitHub Enterprise; empty for api.github.com
}

// NewClient builds a go-github client from opts.
func NewClient(ctx context.Context, opts Options) (*gh.Client, error) {
	var httpClient *http.Client
	if opts.Token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}
	client := gh.NewClient(httpClient)
	if opts.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github: parse base url %q: %w", opts.BaseURL, err)
		}
		client.BaseURL = base
	}
	return client, nil
}

// Backend resolves references in one GitHub repository.
type Backend struct {
	client *gh.Client
	owner  string
	name   string
}

// New returns a backend for owner/name using client.
func New(client *gh.Client, owner, name string) *Backend {
	return &Backend{client: client, owner: owner, name: name}
}

// Factory returns a vcs.Factory that binds repositories to client by parsing
// owner and name out of the repository url.
func Factory(client *gh.Client) vcs.Factory {
	return func(repo *models.Repository) (vcs.Backend, error) {
		owner, name, err := ParseRepoURL(repo.URL)
		if err != nil {
			return nil, err
		}
		return New(client, owner, name), nil
	}
}

// LatestCommit implements vcs.Backend.
func (b *Backend) LatestCommit(ctx context.Context, ref string) (*vcs.Commit, error) {
	if ref == "" {
		return nil, fmt.Errorf("github: %w: empty reference", vcs.ErrUnknownRef)
	}
	rc, resp, err := b.client.Repositories.GetCommit(ctx, b.owner, b.name, ref, nil)
	if err != nil {
		var ghErr *gh.ErrorResponse
		if errors.As(err, &ghErr) && resp != nil &&
			(resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity) {
			return nil, fmt.Errorf("github: %w: %s/%s@%s", vcs.ErrUnknownRef, b.owner, b.name, ref)
		}
		return nil, fmt.Errorf("github: get commit %s/%s@%s: %w", b.owner, b.name, ref, err)
	}

	c := &vcs.Commit{SHA: rc.GetSHA()}
	if commit := rc.GetCommit(); commit != nil {
		message := strings.TrimRight(commit.GetMessage(), "\n")
		c.Message = message
		c.Subject = vcs.SplitMessage(message)
		if author := commit.GetAuthor(); author != nil {
			c.Author = vcs.FormatAuthor(author.GetName(), author.GetEmail())
		}
		if committer := commit.GetCommitter(); committer != nil {
			c.CommittedAt = committer.GetDate().Time
		}
	}
	if len(c.SHA) != 40 {
		return nil, fmt.Errorf("github: get commit %s/%s@%s: unexpected sha %q", b.owner, b.name, ref, c.SHA)
	}
	return c, nil
}

// ParseRepoURL extracts owner and repository name from https, ssh and scp-style
// GitHub urls.
func ParseRepoURL(raw string) (owner, name string, err error) {
	path := raw
	switch {
	case strings.Contains(raw, "://"):
		u, perr := url.Parse(raw)
		if perr != nil {
			return "", "", fmt.Errorf("github: parse repository url %q: %w", raw, perr)
		}
		path = u.Path
	case strings.Contains(raw, ":"):
		// scp-style: git@github.com:owner/name.git
		_, path, _ = strings.Cut(raw, ":")
	}
	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("github: repository url %q is not owner/name", raw)
	}
	return parts[0], parts[1], nil
}
