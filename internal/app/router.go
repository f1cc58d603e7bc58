package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/examdesk/incidentd/api/openapi"
	"github.com/examdesk/incidentd/internal/identity/jwt"
	"github.com/examdesk/incidentd/internal/incidents"
	incidentspostgres "github.com/examdesk/incidentd/internal/incidents/postgres"
	"github.com/examdesk/incidentd/internal/pkg/ctxlog"
	"github.com/examdesk/incidentd/internal/pkg/httputil"
	"github.com/examdesk/incidentd/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 60 * time.Second

func (a *App) router() (*chi.Mux, error) {
	tokens, err := jwt.NewValidator(jwt.Config{
		SecretKey: a.config.JWT.SecretKey,
		Issuer:    a.config.JWT.Issuer,
		Audience:  a.config.JWT.Audience,
		Leeway:    a.config.JWT.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("token validator: %w", err)
	}

	repo := incidentspostgres.NewRepository(a.db)
	incidentsHandler := incidents.NewHandler(incidents.NewService(repo, repo))

	r := chi.NewRouter()

	// Outermost so the histogram covers every other middleware.
	r.Use(httputil.MetricsMiddleware)
	// Preflight requests are answered before logging and auth.
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Get("/version", handleVersion)
	r.Get("/api/openapi.yaml", handleOpenAPI)
	r.Get("/docs", handleDocs)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.RateLimitMiddleware(a.config.RateLimit.RequestsPerSecond, a.config.RateLimit.Burst))
		r.Use(httputil.AuthMiddleware(tokens))

		incidentsHandler.RegisterRoutes(r)
	})

	return r, nil
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Warn("database ping failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	httputil.Text(w, http.StatusOK, "OK")
}

func handleVersion(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapi.Document)
}

// docsPage renders the embedded OpenAPI document with Redoc.
const docsPage = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <title>Exam Incident Desk API</title>
  </head>
  <body>
    <redoc spec-url="/api/openapi.yaml"></redoc>
    <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
  </body>
</html>
`

func handleDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
}
