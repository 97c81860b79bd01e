package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/mirror/internal/mirror"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{
		BaseURL: srv.URL,
		Owner:   "mr-adult",
		Timeout: time.Second,
	})
	require.NoError(t, err)

	return c
}

func TestRepos(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/mr-adult/repos", r.URL.Path)
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		w.Write([]byte(`[
			{"id": 2, "name": "My Repo! 2.0", "url": "https://api.github.com/repos/mr-adult/x", "html_url": "https://github.com/mr-adult/x", "description": "a thing", "pushed_at": "2024-01-02T03:04:05Z"},
			{"id": 1, "name": "blog-posts", "url": "u", "html_url": "h", "description": null, "pushed_at": "2024-01-01T00:00:00Z"}
		]`))
	}))

	repos, err := c.Repos(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 2)

	assert.Equal(t, int64(2), repos[0].ID)
	assert.Equal(t, "MyRepo20", repos[0].Slug)
	assert.Equal(t, "a thing", repos[0].Description)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), repos[0].PushedAt.UTC())
	assert.Nil(t, repos[0].Readme)

	assert.Equal(t, "", repos[1].Description)
}

func TestRepos_Pages(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		page := r.URL.Query().Get("page")
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))

		n := pageSize
		if page == "2" {
			n = 3
		}
		items := make([]string, 0, n)
		for i := range n {
			items = append(items, fmt.Sprintf(`{"id": %s%03d, "name": "r", "pushed_at": "2024-01-01T00:00:00Z"}`, page, i))
		}
		w.Write([]byte("[" + strings.Join(items, ",") + "]"))
	}))

	repos, err := c.Repos(context.Background())
	require.NoError(t, err)
	assert.Len(t, repos, pageSize+3)
	assert.Equal(t, 2, calls)
}

func TestRepos_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "bad status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"message": "not a list"}`))
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)

			_, err := c.Repos(context.Background())
			var fetchErr *mirror.FetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, "repos", fetchErr.Op)
			assert.Equal(t, tt.wantStatus, fetchErr.Status)
		})
	}
}

func TestRepos_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c, err := New(context.Background(), Config{BaseURL: srv.URL, Owner: "o", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Repos(context.Background())
	var fetchErr *mirror.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.Status)
}

func TestDocuments_FiltersMarkdown(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/mr-adult/blog-posts/contents/", r.URL.Path)
		w.Write([]byte(`[
			{"sha": "a1", "name": "Home.md", "path": "Home.md"},
			{"sha": "b2", "name": "image.png", "path": "image.png"},
			{"sha": "c3", "name": "First Post.md", "path": "First Post.md"}
		]`))
	}))

	docs, err := c.Documents(context.Background(), mirror.Repo{Name: "blog-posts"})
	require.NoError(t, err)
	assert.Equal(t, []mirror.FileMeta{
		{SHA: "a1", Name: "Home.md", Path: "Home.md"},
		{SHA: "c3", Name: "First Post.md", Path: "First Post.md"},
	}, docs)
}

func TestFile(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("///summary\n# Title\nbody"))
	// The API breaks the payload into lines.
	wrapped := encoded[:10] + "\n" + encoded[10:] + "\n"

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/mr-adult/blog-posts/contents/First Post.md", r.URL.Path)
		fmt.Fprintf(w, `{"content": %q, "encoding": "base64"}`, wrapped)
	}))

	content, err := c.File(context.Background(), mirror.Repo{Name: "blog-posts"}, "First Post.md")
	require.NoError(t, err)
	assert.Equal(t, "///summary\n# Title\nbody", content)
}

func TestDecodeContent(t *testing.T) {
	t.Run("invalid utf8 is replaced", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte{'o', 'k', 0xff, '!'})

		got, err := DecodeContent("x.md", encoded)
		require.NoError(t, err)
		assert.Equal(t, "ok�!", got)
	})

	t.Run("bad base64", func(t *testing.T) {
		_, err := DecodeContent("x.md", "not base64!!")

		var decodeErr *mirror.DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, "x.md", decodeErr.Path)
	})

	t.Run("empty", func(t *testing.T) {
		got, err := DecodeContent("x.md", "")
		require.NoError(t, err)
		assert.Equal(t, "", got)
	})
}

func TestNewRequiresOwner(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestNewHTTPClient_Token(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), Config{BaseURL: srv.URL, Owner: "o", Token: "secret"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)

	repos, err := c.Repos(context.Background())
	require.NoError(t, err)
	assert.Empty(t, repos)
}
