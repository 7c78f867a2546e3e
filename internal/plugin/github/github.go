// Package github is a plugin over the GitHub API: issue listing and
// creation plus repository lookups, using the go-github SDK.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gogithub "github.com/google/go-github/v69/github"

	"github.com/kahyalabs/kahya/internal/plugin"
)

// api is the slice of the GitHub API the plugin uses. Tests
// substitute a fake; the real implementation wraps go-github.
type api interface {
	listIssues(ctx context.Context, owner, repo, state string) ([]*gogithub.Issue, error)
	createIssue(ctx context.Context, owner, repo, title, body string) (*gogithub.Issue, error)
	getRepo(ctx context.Context, owner, repo string) (*gogithub.Repository, error)
}

// sdkAPI implements api with the go-github client.
type sdkAPI struct {
	client *gogithub.Client
	logger *slog.Logger
}

// checkRateLimit warns when the remaining API budget runs low.
func (s *sdkAPI) checkRateLimit(resp *gogithub.Response) {
	if resp == nil {
		return
	}
	if resp.Rate.Remaining < 100 {
		s.logger.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset", resp.Rate.Reset.Time,
		)
	}
}

func (s *sdkAPI) listIssues(ctx context.Context, owner, repo, state string) ([]*gogithub.Issue, error) {
	if state == "" {
		state = "open"
	}
	issues, resp, err := s.client.Issues.ListByRepo(ctx, owner, repo, &gogithub.IssueListByRepoOptions{
		State:       state,
		ListOptions: gogithub.ListOptions{PerPage: 20},
	})
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	s.checkRateLimit(resp)

	// The issues endpoint also returns pull requests; skip them.
	filtered := issues[:0]
	for _, i := range issues {
		if !i.IsPullRequest() {
			filtered = append(filtered, i)
		}
	}
	return filtered, nil
}

func (s *sdkAPI) createIssue(ctx context.Context, owner, repo, title, body string) (*gogithub.Issue, error) {
	issue, resp, err := s.client.Issues.Create(ctx, owner, repo, &gogithub.IssueRequest{
		Title: &title,
		Body:  &body,
	})
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	s.checkRateLimit(resp)
	return issue, nil
}

func (s *sdkAPI) getRepo(ctx context.Context, owner, repo string) (*gogithub.Repository, error) {
	r, resp, err := s.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("get repo: %w", err)
	}
	s.checkRateLimit(resp)
	return r, nil
}

// Plugin implements the github plugin.
type Plugin struct {
	api    api
	logger *slog.Logger
}

// New creates the plugin. The API client is built in Init from the
// manifest token.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string { return "github" }

func (p *Plugin) Description() string {
	return "GitHub: list and create issues, look up repositories"
}

func (p *Plugin) Actions() []plugin.ActionSpec {
	return []plugin.ActionSpec{
		{
			Name:        "list_issues",
			Description: "List issues in a repository",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"repo":  map[string]any{"type": "string", "description": "owner/name"},
					"state": map[string]any{"type": "string", "description": "open, closed or all"},
				},
				"required": []string{"repo"},
			},
		},
		{
			Name:        "create_issue",
			Description: "Open a new issue",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"repo":  map[string]any{"type": "string", "description": "owner/name"},
					"title": map[string]any{"type": "string"},
					"body":  map[string]any{"type": "string"},
				},
				"required": []string{"repo", "title"},
			},
		},
		{
			Name:        "get_repo",
			Description: "Look up a repository",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"repo": map[string]any{"type": "string", "description": "owner/name"},
				},
				"required": []string{"repo"},
			},
		},
	}
}

func (p *Plugin) Init(_ context.Context, settings plugin.Settings, logger *slog.Logger) error {
	p.logger = logger.With("plugin", p.Name())

	if p.api != nil {
		return nil
	}

	token := settings.String("token")
	if token == "" {
		return fmt.Errorf("github plugin requires a token setting")
	}
	p.api = &sdkAPI{
		client: gogithub.NewClient(nil).WithAuthToken(token),
		logger: p.logger,
	}
	return nil
}

func (p *Plugin) Execute(ctx context.Context, req plugin.Request) (*plugin.Result, error) {
	switch req.Action {
	case "list_issues":
		return p.listIssues(ctx, req.Params)
	case "create_issue":
		return p.createIssue(ctx, req.Params)
	case "get_repo":
		return p.getRepo(ctx, req.Params)
	default:
		return nil, fmt.Errorf("unsupported action %q", req.Action)
	}
}

func (p *Plugin) Close() error { return nil }

// splitRepo splits "owner/name".
func splitRepo(repo string) (string, string, error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo %q: expected owner/name", repo)
	}
	return parts[0], parts[1], nil
}

func (p *Plugin) listIssues(ctx context.Context, params map[string]any) (*plugin.Result, error) {
	owner, name, err := splitRepo(plugin.StringParam(params, "repo"))
	if err != nil {
		return nil, err
	}
	state := plugin.StringParam(params, "state")

	issues, err := p.api.listIssues(ctx, owner, name, state)
	if err != nil {
		return nil, err
	}

	if len(issues) == 0 {
		return &plugin.Result{
			Text: fmt.Sprintf("No issues in %s/%s.", owner, name),
			Data: map[string]any{"issues": []any{}},
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d issue(s) in %s/%s:\n", len(issues), owner, name)
	data := make([]map[string]any, 0, len(issues))
	for _, i := range issues {
		fmt.Fprintf(&b, "- #%d %s (%s)\n", i.GetNumber(), i.GetTitle(), i.GetState())
		data = append(data, map[string]any{
			"number": i.GetNumber(),
			"title":  i.GetTitle(),
			"state":  i.GetState(),
			"url":    i.GetHTMLURL(),
		})
	}

	return &plugin.Result{
		Text: strings.TrimRight(b.String(), "\n"),
		Data: map[string]any{"issues": data},
	}, nil
}

func (p *Plugin) createIssue(ctx context.Context, params map[string]any) (*plugin.Result, error) {
	owner, name, err := splitRepo(plugin.StringParam(params, "repo"))
	if err != nil {
		return nil, err
	}
	title := plugin.StringParam(params, "title")
	if title == "" {
		return nil, fmt.Errorf("create_issue requires a title")
	}
	body := plugin.StringParam(params, "body")

	issue, err := p.api.createIssue(ctx, owner, name, title, body)
	if err != nil {
		return nil, err
	}

	p.logger.Info("issue created", "repo", owner+"/"+name, "number", issue.GetNumber())

	return &plugin.Result{
		Text: fmt.Sprintf("Created issue #%d in %s/%s: %s", issue.GetNumber(), owner, name, issue.GetHTMLURL()),
		Data: map[string]any{
			"number": issue.GetNumber(),
			"title":  issue.GetTitle(),
			"url":    issue.GetHTMLURL(),
		},
	}, nil
}

func (p *Plugin) getRepo(ctx context.Context, params map[string]any) (*plugin.Result, error) {
	owner, name, err := splitRepo(plugin.StringParam(params, "repo"))
	if err != nil {
		return nil, err
	}

	repo, err := p.api.getRepo(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", repo.GetFullName(), repo.GetDescription())
	fmt.Fprintf(&b, "stars %d, forks %d, open issues %d",
		repo.GetStargazersCount(), repo.GetForksCount(), repo.GetOpenIssuesCount())

	return &plugin.Result{
		Text: b.String(),
		Data: map[string]any{
			"full_name":   repo.GetFullName(),
			"description": repo.GetDescription(),
			"stars":       repo.GetStargazersCount(),
			"forks":       repo.GetForksCount(),
			"open_issues": repo.GetOpenIssuesCount(),
			"url":         repo.GetHTMLURL(),
		},
	}, nil
}
