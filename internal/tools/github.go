package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
)

const githubResults = 5

// GitHub searches public repositories.
type GitHub struct {
	client *github.Client
}

// NewGitHub creates the tool. An empty token searches anonymously, which
// GitHub rate limits more tightly.
func NewGitHub(token string) *GitHub {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHub{client: client}
}

// WithBaseURL targets another API root, such as GitHub Enterprise.
func (g *GitHub) WithBaseURL(base string) (*GitHub, error) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid github base url: %w", err)
	}
	g.client.BaseURL = u
	return g, nil
}

func (g *GitHub) Kind() Kind { return KindGitHub }

// Invoke lists the best matching repositories, one per line.
func (g *GitHub) Invoke(ctx context.Context, query string) (string, error) {
	res, _, err := g.client.Search.Repositories(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: githubResults},
	})
	if err != nil {
		return "", fmt.Errorf("github search: %w", err)
	}
	if len(res.Repositories) == 0 {
		return NoResults, nil
	}

	lines := make([]string, 0, githubResults)
	for _, repo := range res.Repositories {
		if len(lines) == githubResults {
			break
		}
		lines = append(lines, fmt.Sprintf("%s (★%d): %s - %s",
			repo.GetFullName(), repo.GetStargazersCount(), repo.GetDescription(), repo.GetHTMLURL()))
	}
	return strings.Join(lines, "\n"), nil
}
