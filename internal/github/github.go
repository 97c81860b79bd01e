// Package github reads a user's repositories and their files from the
// GitHub REST API.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/jdholdren/mirror/internal/mirror"
)

const (
	DefaultBaseURL = "https://api.github.com/"
	DefaultTimeout = 5 * time.Second

	userAgent = "mirror"
	pageSize  = 100
)

var _ mirror.Source = (*Client)(nil)

type (
	Config struct {
		BaseURL string
		Owner   string
		// Optional. Unauthenticated calls share a much lower rate limit.
		Token   string
		Timeout time.Duration
		// Requests per second sent to the API. Zero or less is unlimited.
		RPS     float64
	}

	// Client is a [mirror.Source] backed by the GitHub API.
	Client struct {
		http    *http.Client
		baseURL *url.URL
		owner   string
		limiter *rate.Limiter
	}
)

// New creates a client for cfg.Owner's repositories.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Owner == "" {
		return nil, errors.New("owner is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing base url: %s", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS)))
	}

	return &Client{
		http:    NewHTTPClient(ctx, cfg.Token, cfg.Timeout),
		baseURL: base,
		owner:   cfg.Owner,
		limiter: limiter,
	}, nil
}

// NewHTTPClient returns a client with a fixed timeout that authenticates with
// token when one is given.
func NewHTTPClient(ctx context.Context, token string, timeout time.Duration) *http.Client {
	c := &http.Client{}
	if token != "" {
		c = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	c.Timeout = timeout

	return c
}

type repoResp struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	HTMLURL     string    `json:"html_url"`
	Description *string   `json:"description"`
	PushedAt    time.Time `json:"pushed_at"`
}

// Repos lists every repository of the owner, following pages until a short
// one comes back.
func (c *Client) Repos(ctx context.Context) ([]mirror.Repo, error) {
	var repos []mirror.Repo
	for page := 1; ; page++ {
		u := c.baseURL.JoinPath("users", c.owner, "repos")
		q := u.Query()
		q.Set("per_page", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))
		u.RawQuery = q.Encode()

		var resp []repoResp
		if err := c.getJSON(ctx, "repos", u, &resp); err != nil {
			return nil, err
		}

		for _, r := range resp {
			var desc string
			if r.Description != nil {
				desc = *r.Description
			}
			repos = append(repos, mirror.Repo{
				ID:          r.ID,
				Name:        r.Name,
				Slug:        mirror.Slug(r.Name),
				URL:         r.URL,
				HTMLURL:     r.HTMLURL,
				Description: desc,
				PushedAt:    r.PushedAt,
			})
		}

		if len(resp) < pageSize {
			return repos, nil
		}
	}
}

// Documents lists the markdown files at the root of repo.
func (c *Client) Documents(ctx context.Context, repo mirror.Repo) ([]mirror.FileMeta, error) {
	u := c.baseURL.JoinPath("repos", c.owner, repo.Name, "contents/")

	var files []mirror.FileMeta
	if err := c.getJSON(ctx, "contents", u, &files); err != nil {
		return nil, err
	}

	docs := make([]mirror.FileMeta, 0, len(files))
	for _, f := range files {
		if mirror.IsDocument(f.Path) {
			docs = append(docs, f)
		}
	}

	return docs, nil
}

type fileResp struct {
	Content string `json:"content"`
}

// File fetches and decodes one file of repo.
func (c *Client) File(ctx context.Context, repo mirror.Repo, path string) (string, error) {
	u := c.baseURL.JoinPath("repos", c.owner, repo.Name, "contents", path)

	var f fileResp
	if err := c.getJSON(ctx, "file", u, &f); err != nil {
		return "", err
	}

	return DecodeContent(path, f.Content)
}

// DecodeContent turns the base64 envelope of a file into text. The API wraps
// the payload in newlines, which are dropped first. Invalid UTF-8 becomes the
// replacement character instead of an error.
func DecodeContent(path, content string) (string, error) {
	byts, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
	if err != nil {
		return "", &mirror.DecodeError{Path: path, Err: err}
	}

	return strings.ToValidUTF8(string(byts), "\uFFFD"), nil
}

func (c *Client) getJSON(ctx context.Context, op string, u *url.URL, into any) error {
	fetchErr := func(status int, err error) error {
		return &mirror.FetchError{Op: op, URL: u.String(), Status: status, Err: err}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fetchErr(0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fetchErr(0, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fetchErr(0, err)
	}
	defer resp.Body.Close()
	slog.DebugContext(ctx, "fetched", "op", op, "url", u.String(), "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return fetchErr(resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fetchErr(resp.StatusCode, fmt.Errorf("error decoding response: %w", err))
	}

	return nil
}
