package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"scenestudio/internal/http/handlers"
	"scenestudio/internal/middleware"
)

// Options configures the public HTTP surface.
type Options struct {
	Logger          zerolog.Logger
	JWTSecret       string
	CORSOrigins     []string
	RateLimitPerMin int
	DefaultLocale   string
	Country         middleware.CountryLookup
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// StaticDir is served under /static when set.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = "en"
	}
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.Country),
	)

	r.Get("/v1/healthz", app.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Post("/v1/payments/webhook", app.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Get("/v1/me", app.Me)

		r.Route("/v1/batches", func(r chi.Router) {
			r.Post("/", app.StartBatch)
			r.Get("/{batchID}", app.GetBatch)
		})

		r.Route("/v1/library", func(r chi.Router) {
			r.Get("/", app.ListLibrary)
			r.Get("/export", app.ExportLibrary)
			r.Delete("/{artifactID}", app.DeleteArtifact)
		})

		r.Route("/v1/renders", func(r chi.Router) {
			r.Post("/", app.StartRender)
			r.Get("/{renderID}", app.GetRender)
		})

		r.Post("/v1/images/generate", app.GenerateImages)
	})

	return r
}
