// Package server is the HTTP JSON surface over the mirrored catalog and
// documents.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	mirrerrs "github.com/jdholdren/mirror/internal/errors"
	"github.com/jdholdren/mirror/internal/mirror"
)

var errMissingQuery = errors.New("missing query")

type (
	// Mirror is the read side the server answers from.
	Mirror interface {
		Catalog(ctx context.Context) ([]mirror.Repo, error)
		CatalogItem(ctx context.Context, name string) (mirror.Repo, error)
		Documents(ctx context.Context) ([]mirror.Document, error)
		Document(ctx context.Context, name string) (mirror.Document, error)
		Home(ctx context.Context) (mirror.Document, error)
		Search(ctx context.Context, query string, limit int) ([]mirror.SearchHit, error)
	}

	// Renderer turns markdown into HTML.
	Renderer interface {
		HTML(markdown string) (string, error)
	}

	Server struct {
		*http.Server

		mirror   Mirror
		renderer Renderer
	}

	Config struct {
		Port       int
		CorsOrigin string
	}

	Params struct {
		fx.In

		Config   Config
		Mirror   Mirror
		Renderer Renderer
		Gatherer prometheus.Gatherer
	}
)

func NewServer(lc fx.Lifecycle, p Params) *Server {
	srvr := New(p)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srvr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("server stopped", "error", err)
				}
			}()

			slog.Info("started api server", "port", p.Config.Port)

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srvr.Shutdown(ctx)
		},
	})

	return srvr
}

// New builds the server and its routes without starting it.
func New(p Params) *Server {
	var (
		r      = ErrRouter{Router: mux.NewRouter()}
		origin = p.Config.CorsOrigin
	)
	if origin == "" {
		origin = "*"
	}

	srvr := &Server{
		mirror:   p.Mirror,
		renderer: p.Renderer,
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", p.Config.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{origin}),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type"}),
			)(r),
		},
	}

	r.Use(AccessLogMiddleware)
	r.HandleFuncE("/api/projects", srvr.getProjects).Methods(http.MethodGet)
	r.HandleFuncE("/api/projects/{name}", srvr.getProject).Methods(http.MethodGet)
	r.HandleFuncE("/api/blog", srvr.getPosts).Methods(http.MethodGet)
	r.HandleFuncE("/api/blog/{name}", srvr.getPost).Methods(http.MethodGet)
	r.HandleFuncE("/api/home", srvr.getHome).Methods(http.MethodGet)
	r.HandleFuncE("/api/search", srvr.getSearch).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return srvr
}

type (
	ProjectResp struct {
		ID          int64     `json:"id"`
		Name        string    `json:"name"`
		URLSafeName string    `json:"url_safe_name"`
		URL         string    `json:"url"`
		HTMLURL     string    `json:"html_url"`
		Description string    `json:"description"`
		PushedAt    time.Time `json:"pushed_at"`
		ReadmeHTML  string    `json:"readme_html,omitempty"`
	}

	PostResp struct {
		Name        string `json:"name"`
		URLSafeName string `json:"url_safe_name"`
		Summary     string `json:"summary"`
		HTML        string `json:"html,omitempty"`
	}

	SearchResp struct {
		Hits []SearchHitResp `json:"hits"`
	}

	SearchHitResp struct {
		Name        string              `json:"name"`
		URLSafeName string              `json:"url_safe_name"`
		Score       float64             `json:"score"`
		Fragments   map[string][]string `json:"fragments,omitempty"`
	}
)

func projectResp(r mirror.Repo) ProjectResp {
	return ProjectResp{
		ID:          r.ID,
		Name:        r.Name,
		URLSafeName: r.Slug,
		URL:         r.URL,
		HTMLURL:     r.HTMLURL,
		Description: r.Description,
		PushedAt:    r.PushedAt,
	}
}

func postResp(d mirror.Document) PostResp {
	return PostResp{
		Name:        d.Name,
		URLSafeName: d.Slug,
		Summary:     d.Summary,
	}
}

func (s Server) getProjects(w http.ResponseWriter, r *http.Request) error {
	repos, err := s.mirror.Catalog(r.Context())
	if err != nil {
		return err
	}

	resp := make([]ProjectResp, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, projectResp(repo))
	}

	return WriteJSON(w, http.StatusOK, resp)
}

func (s Server) getProject(w http.ResponseWriter, r *http.Request) error {
	repo, err := s.mirror.CatalogItem(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		return err
	}

	resp := projectResp(repo)
	if repo.Readme != nil {
		html, err := s.renderer.HTML(*repo.Readme)
		if err != nil {
			return err
		}
		resp.ReadmeHTML = html
	}

	return WriteJSON(w, http.StatusOK, resp)
}

func (s Server) getPosts(w http.ResponseWriter, r *http.Request) error {
	docs, err := s.mirror.Documents(r.Context())
	if err != nil {
		return err
	}

	resp := make([]PostResp, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, postResp(d))
	}

	return WriteJSON(w, http.StatusOK, resp)
}

func (s Server) getPost(w http.ResponseWriter, r *http.Request) error {
	doc, err := s.mirror.Document(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		return err
	}

	return s.writeDocument(w, doc)
}

func (s Server) getHome(w http.ResponseWriter, r *http.Request) error {
	doc, err := s.mirror.Home(r.Context())
	if err != nil {
		return err
	}

	return s.writeDocument(w, doc)
}

func (s Server) writeDocument(w http.ResponseWriter, doc mirror.Document) error {
	html, err := s.renderer.HTML(doc.Body)
	if err != nil {
		return err
	}

	resp := postResp(doc)
	resp.HTML = html

	return WriteJSON(w, http.StatusOK, resp)
}

func (s Server) getSearch(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query().Get("q")
	if q == "" {
		return mirrerrs.E(http.StatusBadRequest, errMissingQuery, mirrerrs.Detail{Field: "q", Error: "is required"})
	}

	var limit int
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			return mirrerrs.E(http.StatusBadRequest, "invalid limit", mirrerrs.Detail{Field: "limit", Error: "must be a positive integer"})
		}
		limit = n
	}

	hits, err := s.mirror.Search(r.Context(), q, limit)
	if err != nil {
		return err
	}

	resp := SearchResp{Hits: make([]SearchHitResp, 0, len(hits))}
	for _, h := range hits {
		resp.Hits = append(resp.Hits, SearchHitResp{
			Name:        h.Name,
			URLSafeName: h.Slug,
			Score:       h.Score,
			Fragments:   h.Fragments,
		})
	}

	return WriteJSON(w, http.StatusOK, resp)
}
