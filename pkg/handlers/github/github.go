// Package github exposes read access to the GitHub REST API and a clone
// tool backed by the git CLI.
package github

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v72/github"
	"golang.org/x/time/rate"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/config"
	"mcp-toolserver/pkg/errors"
	"mcp-toolserver/pkg/handlers"
	"mcp-toolserver/pkg/logging"
	"mcp-toolserver/pkg/resources"
	"mcp-toolserver/pkg/tools"
)

const (
	maxPerPage     = 100
	defaultPerPage = 30
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Set implements handlers.Set and handlers.Checker
type Set struct {
	cfg     config.GitHubConfig
	client  *http.Client
	api     *github.Client
	initErr error
	runner  handlers.Runner
	breaker *errors.Breaker
	limiter *rate.Limiter
	logger  *logging.StructuredLogger
}

// Option configures a Set
type Option func(*Set)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) Option {
	return func(s *Set) { s.client = c }
}

// WithRunner replaces the runner used for git
func WithRunner(r handlers.Runner) Option {
	return func(s *Set) { s.runner = r }
}

// WithBreaker replaces the circuit breaker guarding API calls
func WithBreaker(b *errors.Breaker) Option {
	return func(s *Set) { s.breaker = b }
}

// WithLimiter replaces the limiter throttling API calls
func WithLimiter(l *rate.Limiter) Option {
	return func(s *Set) { s.limiter = l }
}

// New creates the github handler set. State changes of the API circuit
// breaker are reported through lm.
func New(cfg config.GitHubConfig, lm *logging.LoggingManager, opts ...Option) *Set {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.github.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CloneTimeout <= 0 {
		cfg.CloneTimeout = 300 * time.Second
	}
	if cfg.GitBinary == "" {
		cfg.GitBinary = "git"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	s := &Set{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		runner: handlers.ExecRunner{},
		logger: lm.GetLogger("github"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = errors.NewBreaker(errors.DefaultBreakerConfig("github-api"))
	}
	if s.limiter == nil {
		s.limiter = newLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	s.api, s.initErr = newAPIClient(s.client, cfg.APIURL, cfg.Token)
	s.breaker.OnStateChange(func(from, to errors.BreakerState) {
		lm.LogCircuitBreakerStateChange("github-api", from, to)
	})
	return s
}

// Name implements handlers.Set
func (s *Set) Name() string { return config.HandlerGitHub }

// Check verifies the API is reachable. Without a token only the anonymous
// rate limit applies, which is logged but not fatal.
func (s *Set) Check(ctx context.Context) error {
	err := s.call(ctx, "/rate_limit", func(ctx context.Context) error {
		_, _, err := s.api.RateLimit.Get(ctx)
		return err
	})
	if err != nil {
		return errors.NewDependencyError("github api", err)
	}
	if s.cfg.Token == "" {
		s.logger.Warn("GITHUB_TOKEN is not set, using anonymous rate limits")
	}
	return nil
}

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("github api returned %d: %s", e.StatusCode, e.Message)
}

// newLimiter allows rps requests per second. Zero or less means unlimited.
func newLimiter(rps float64, burst int) *rate.Limiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(limit, burst)
}

// newAPIClient builds a go-github client on httpClient. apiURL replaces the
// public endpoint, which lets tests and GitHub Enterprise installs point it
// elsewhere.
func newAPIClient(httpClient *http.Client, apiURL, token string) (*github.Client, error) {
	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	base, err := url.Parse(apiURL + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid github api url: %w", err)
	}
	client.BaseURL = base
	return client, nil
}

// call runs fn after the rate limiter admits it, inside the circuit breaker.
// Only network failures and 5xx responses count against the breaker; other
// API errors are returned as *APIError without tripping it.
func (s *Set) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.initErr != nil {
		return s.initErr
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("github request %s: %w", op, err)
	}

	var clientErr error
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		apiErr := asAPIError(err)
		if apiErr == nil {
			return fmt.Errorf("github request %s: %w", op, err)
		}
		if apiErr.StatusCode >= http.StatusInternalServerError {
			return apiErr
		}
		clientErr = apiErr
		return nil
	})
	if err != nil {
		return err
	}
	return clientErr
}

// asAPIError converts the go-github response errors, or returns nil for
// anything that never reached the API.
func asAPIError(err error) *APIError {
	var resp *github.ErrorResponse
	if stderrors.As(err, &resp) && resp.Response != nil {
		return &APIError{StatusCode: resp.Response.StatusCode, Message: resp.Message}
	}
	var limited *github.RateLimitError
	if stderrors.As(err, &limited) && limited.Response != nil {
		return &APIError{StatusCode: limited.Response.StatusCode, Message: limited.Message}
	}
	var abuse *github.AbuseRateLimitError
	if stderrors.As(err, &abuse) && abuse.Response != nil {
		return &APIError{StatusCode: abuse.Response.StatusCode, Message: abuse.Message}
	}
	return nil
}

func checkName(field, value string) error {
	if err := handlers.CheckArgument(field, value); err != nil {
		return err
	}
	if !namePattern.MatchString(value) || value == "." || value == ".." {
		return fmt.Errorf("%s contains invalid characters", field)
	}
	return nil
}

func perPage(n int) int {
	if n <= 0 {
		return defaultPerPage
	}
	if n > maxPerPage {
		return maxPerPage
	}
	return n
}

type repoInput struct {
	Owner string `json:"owner" jsonschema:"repository owner"`
	Repo  string `json:"repo" jsonschema:"repository name"`
}

type listIssuesInput struct {
	Owner   string `json:"owner" jsonschema:"repository owner"`
	Repo    string `json:"repo" jsonschema:"repository name"`
	State   string `json:"state,omitempty" jsonschema:"issue state filter"`
	PerPage int    `json:"per_page,omitempty" jsonschema:"results per page, at most 100"`
}

type searchInput struct {
	Query   string `json:"query" jsonschema:"GitHub search query"`
	PerPage int    `json:"per_page,omitempty" jsonschema:"results per page, at most 100"`
}

type cloneInput struct {
	Owner string `json:"owner" jsonschema:"repository owner"`
	Repo  string `json:"repo" jsonschema:"repository name"`
	Dest  string `json:"dest" jsonschema:"directory to clone into"`
	Ref   string `json:"ref,omitempty" jsonschema:"branch or tag to check out"`
	Depth int    `json:"depth,omitempty" jsonschema:"create a shallow clone with this many commits"`
}

// Repository is the subset of repository fields the tools return
type Repository struct {
	FullName        string `json:"full_name"`
	Description     string `json:"description"`
	HTMLURL         string `json:"html_url"`
	CloneURL        string `json:"clone_url"`
	DefaultBranch   string `json:"default_branch"`
	Language        string `json:"language"`
	Private         bool   `json:"private"`
	Archived        bool   `json:"archived"`
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
	OpenIssuesCount int    `json:"open_issues_count"`
	UpdatedAt       string `json:"updated_at"`
}

// Issue is the subset of issue fields the tools return
type Issue struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	State       string `json:"state"`
	HTMLURL     string `json:"html_url"`
	CreatedAt   string `json:"created_at"`
	Author      string `json:"author"`
	PullRequest bool   `json:"pull_request"`
}

func toRepository(r *github.Repository) Repository {
	return Repository{
		FullName:        r.GetFullName(),
		Description:     r.GetDescription(),
		HTMLURL:         r.GetHTMLURL(),
		CloneURL:        r.GetCloneURL(),
		DefaultBranch:   r.GetDefaultBranch(),
		Language:        r.GetLanguage(),
		Private:         r.GetPrivate(),
		Archived:        r.GetArchived(),
		StargazersCount: r.GetStargazersCount(),
		ForksCount:      r.GetForksCount(),
		OpenIssuesCount: r.GetOpenIssuesCount(),
		UpdatedAt:       formatTime(r.GetUpdatedAt()),
	}
}

func toIssue(i *github.Issue) Issue {
	return Issue{
		Number:      i.GetNumber(),
		Title:       i.GetTitle(),
		State:       i.GetState(),
		HTMLURL:     i.GetHTMLURL(),
		CreatedAt:   formatTime(i.GetCreatedAt()),
		Author:      i.GetUser().GetLogin(),
		PullRequest: i.IsPullRequest(),
	}
}

func formatTime(t github.Timestamp) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// SearchResult is the payload of github_search_repositories
type SearchResult struct {
	TotalCount int          `json:"total_count"`
	Items      []Repository `json:"items"`
}

// CloneResult is the payload of github_clone_repository
type CloneResult struct {
	Repository string `json:"repository"`
	Path       string `json:"path"`
	Ref        string `json:"ref,omitempty"`
}

// Tools implements handlers.Set
func (s *Set) Tools() []tools.Tool {
	listIssues := tools.MustTypedTool("github_list_issues", "Lists issues of a repository", s.listIssues)
	if prop, ok := listIssues.Descriptor.InputSchema.Properties["state"]; ok {
		prop.Enum = []any{"open", "closed", "all"}
	}

	return []tools.Tool{
		tools.MustTypedTool("github_get_repository", "Returns repository metadata", s.getRepository),
		listIssues,
		tools.MustTypedTool("github_search_repositories", "Searches public repositories", s.searchRepositories),
		tools.MustTypedTool("github_clone_repository", "Clones a repository to a local directory", s.cloneRepository),
	}
}

func (s *Set) getRepository(ctx context.Context, in repoInput) (Repository, error) {
	if err := checkName("owner", in.Owner); err != nil {
		return Repository{}, err
	}
	if err := checkName("repo", in.Repo); err != nil {
		return Repository{}, err
	}
	repo, err := s.fetchRepository(ctx, in.Owner, in.Repo)
	if err != nil {
		return Repository{}, err
	}
	return toRepository(repo), nil
}

func (s *Set) fetchRepository(ctx context.Context, owner, repo string) (*github.Repository, error) {
	var out *github.Repository
	err := s.call(ctx, "/repos/"+owner+"/"+repo, func(ctx context.Context) error {
		var err error
		out, _, err = s.api.Repositories.Get(ctx, owner, repo)
		return err
	})
	return out, err
}

func (s *Set) listIssues(ctx context.Context, in listIssuesInput) ([]Issue, error) {
	if err := checkName("owner", in.Owner); err != nil {
		return nil, err
	}
	if err := checkName("repo", in.Repo); err != nil {
		return nil, err
	}
	state := in.State
	if state == "" {
		state = "open"
	}
	opts := &github.IssueListByRepoOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: perPage(in.PerPage)},
	}

	var found []*github.Issue
	err := s.call(ctx, "/repos/"+in.Owner+"/"+in.Repo+"/issues", func(ctx context.Context) error {
		var err error
		found, _, err = s.api.Issues.ListByRepo(ctx, in.Owner, in.Repo, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	issues := make([]Issue, 0, len(found))
	for _, issue := range found {
		issues = append(issues, toIssue(issue))
	}
	return issues, nil
}

func (s *Set) searchRepositories(ctx context.Context, in searchInput) (SearchResult, error) {
	if strings.TrimSpace(in.Query) == "" {
		return SearchResult{}, fmt.Errorf("query cannot be empty")
	}
	opts := &github.SearchOptions{ListOptions: github.ListOptions{PerPage: perPage(in.PerPage)}}

	var found *github.RepositoriesSearchResult
	err := s.call(ctx, "/search/repositories", func(ctx context.Context) error {
		var err error
		found, _, err = s.api.Search.Repositories(ctx, in.Query, opts)
		return err
	})
	if err != nil {
		return SearchResult{}, err
	}
	result := SearchResult{TotalCount: found.GetTotal(), Items: make([]Repository, 0, len(found.Repositories))}
	for _, repo := range found.Repositories {
		result.Items = append(result.Items, toRepository(repo))
	}
	return result, nil
}

func (s *Set) cloneRepository(ctx context.Context, in cloneInput) (CloneResult, error) {
	if err := checkName("owner", in.Owner); err != nil {
		return CloneResult{}, err
	}
	if err := checkName("repo", in.Repo); err != nil {
		return CloneResult{}, err
	}
	if err := handlers.CheckArgument("dest", in.Dest); err != nil {
		return CloneResult{}, err
	}

	found, err := s.fetchRepository(ctx, in.Owner, in.Repo)
	if err != nil {
		return CloneResult{}, err
	}
	repo := toRepository(found)
	if repo.CloneURL == "" {
		return CloneResult{}, fmt.Errorf("repository %s/%s has no clone url", in.Owner, in.Repo)
	}

	args := []string{"clone", "--quiet"}
	if in.Ref != "" {
		if err := handlers.CheckArgument("ref", in.Ref); err != nil {
			return CloneResult{}, err
		}
		args = append(args, "--branch", in.Ref)
	}
	if in.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(in.Depth))
	}
	dest := filepath.Clean(in.Dest)
	args = append(args, "--", repo.CloneURL, dest)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.CloneTimeout)
	defer cancel()
	if _, err := s.runner.Run(ctx, s.cfg.GitBinary, args...); err != nil {
		return CloneResult{}, err
	}

	return CloneResult{Repository: repo.FullName, Path: dest, Ref: in.Ref}, nil
}

// Resources implements handlers.Set
func (s *Set) Resources() []resources.Resource {
	return []resources.Resource{{
		Descriptor: models.ResourceDescriptor{
			Name:        "github_rate_limit",
			URI:         config.ResourceURI("github/rate_limit"),
			MimeType:    config.MimeTypeJSON,
			Description: "Current GitHub API rate limit status",
		},
		Provider: resources.JSON(func(ctx context.Context) (any, error) {
			var limits *github.RateLimits
			err := s.call(ctx, "/rate_limit", func(ctx context.Context) error {
				var err error
				limits, _, err = s.api.RateLimit.Get(ctx)
				return err
			})
			return limits, err
		}),
	}}
}

// BreakerStats reports the state of the API circuit breaker
func (s *Set) BreakerStats() errors.BreakerStats {
	return s.breaker.Stats()
}
